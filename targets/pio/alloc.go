//go:build rp2040 || rp2350

package pio

import (
	"errors"

	"nojerky/core"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

var ErrNoStateMachine = errors.New("no free PIO state machine")

var (
	// PIO allocation tracking
	// 2 PIO blocks (PIO0, PIO1) with 4 state machines each
	pioAllocations = [2][4]bool{} // [pioNum][smNum]
	nextPIONum     = uint8(0)
	nextSMNum      = uint8(0)

	// Curve program offset per block, -1 until loaded
	programOffsets = [2]int16{-1, -1}
)

// allocatePIO claims a state machine, round-robin across both blocks
func allocatePIO() (uint8, uint8, error) {
	for i := 0; i < 8; i++ { // 2 PIO × 4 SM = 8 total
		pioNum := nextPIONum
		smNum := nextSMNum

		// Advance to next slot
		nextSMNum++
		if nextSMNum >= 4 {
			nextSMNum = 0
			nextPIONum = (nextPIONum + 1) % 2
		}

		if !pioAllocations[pioNum][smNum] {
			pioAllocations[pioNum][smNum] = true
			return pioNum, smNum, nil
		}
	}
	return 0, 0, ErrNoStateMachine
}

func releasePIO(pioNum, smNum uint8) {
	pioAllocations[pioNum][smNum] = false
}

func pioBlock(pioNum uint8) *rp2pio.PIO {
	if pioNum == 0 {
		return rp2pio.PIO0
	}
	return rp2pio.PIO1
}

// loadProgram adds the curve program to a block once and returns its offset
func loadProgram(pioNum uint8, block *rp2pio.PIO) (uint8, error) {
	if off := programOffsets[pioNum]; off >= 0 {
		return uint8(off), nil
	}
	offset, err := block.AddProgram(buildCurveProgram(), curveProgramOrigin)
	if err != nil {
		return 0, err
	}
	programOffsets[pioNum] = int16(offset)
	return offset, nil
}

// GetPIOAllocationStatus returns PIO allocation status for debugging
func GetPIOAllocationStatus() [2][4]bool {
	return pioAllocations
}

// Group starts the chunks of several sinks together.
// Member i is channel i of the curve server.
type Group struct {
	members []*Sink
	armed   uint32 // Members that wait for each other
	waiting uint32 // Armed members holding a chunk
}

// NewGroup binds sinks to a group in channel order
func NewGroup(sinks ...*Sink) *Group {
	g := &Group{members: sinks}
	for _, s := range sinks {
		s.group = g
	}
	return g
}

// SyncReset arms every member
func (g *Group) SyncReset() error {
	return g.SyncMask(1<<len(g.members) - 1)
}

// SyncMask arms the members whose bit is set. Their state machines stop
// until each armed member has a chunk queued, then start together.
func (g *Group) SyncMask(mask uint32) error {
	for i, s := range g.members {
		if mask&(1<<i) != 0 && s.busy.Load() {
			return core.ErrSinkBusy
		}
	}
	g.armed = 0
	g.waiting = 0
	for i, s := range g.members {
		if mask&(1<<i) == 0 {
			continue
		}
		s.sm.SetEnabled(false)
		g.armed |= 1 << i
	}
	return nil
}

// hold parks a member's chunk while the group is armed.
// Reports whether the member must not start on its own.
func (g *Group) hold(s *Sink) bool {
	bit := g.bit(s)
	if g.armed&bit == 0 {
		return false
	}
	s.held = true
	g.waiting |= bit
	if g.waiting == g.armed {
		g.start()
	}
	return true
}

// drop removes an aborted member so the others are not held forever
func (g *Group) drop(s *Sink) {
	bit := g.bit(s)
	g.armed &^= bit
	g.waiting &^= bit
	if g.armed != 0 && g.waiting == g.armed {
		g.start()
	}
}

// start enables the held state machines back to back
func (g *Group) start() {
	held := g.waiting
	g.armed, g.waiting = 0, 0
	for i, s := range g.members {
		if held&(1<<i) != 0 {
			s.sm.SetEnabled(true)
		}
	}
	now := core.GetTime()
	for i, s := range g.members {
		if held&(1<<i) != 0 {
			s.begin(now)
		}
	}
}

func (g *Group) bit(s *Sink) uint32 {
	for i, m := range g.members {
		if m == s {
			return 1 << i
		}
	}
	return 0
}
