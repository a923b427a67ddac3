//go:build rp2040 || rp2350

package pio

// PIO pulse sink: a state machine plays symbol words straight from its
// TX FIFO, one 16-bit half per pass through the program.

import (
	"errors"
	"machine"
	"math"
	"sync/atomic"
	"time"

	"nojerky/core"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

var (
	ErrHalfTooShort  = errors.New("symbol half shorter than 2 ticks")
	ErrBadResolution = errors.New("resolution out of PIO divider range")
)

const (
	// PIO cycles per symbol tick; the two OUTs of a half fill exactly one tick
	cyclesPerTick = 2

	// A half costs one tick of OUTs plus at least one loop pass
	minHalfTicks = 2

	DefaultCapacity   = 256
	DefaultResolution = 1000000
)

// buildCurveProgram creates the curve program using AssemblerV0.
// Each half is 15 bits of loop count followed by the pin level, shifted
// right with autopull so one FIFO word carries one symbol.
//
//	.wrap_target
//	out x, 15         ; loop count
//	out pins, 1       ; level
//	jmp x--, 2 [1]    ; hold for x+1 ticks
//	.wrap
//
// A half lasts x+2 ticks.
func buildCurveProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		asm.Out(rp2pio.OutDestX, 15).Encode(),             // 0
		asm.Out(rp2pio.OutDestPins, 1).Encode(),           // 1
		asm.Jmp(2, rp2pio.JmpXNZeroDec).Delay(1).Encode(), // 2
	}
}

const curveProgramOrigin = 0 // Jump addresses above are absolute

// pioWord converts a symbol into the program's FIFO format
func pioWord(s core.PulseSymbol) (uint32, error) {
	if s.Duration0 < minHalfTicks || s.Duration1 < minHalfTicks {
		return 0, ErrHalfTooShort
	}
	return core.PulseSymbol{
		Duration0: s.Duration0 - minHalfTicks,
		Level0:    s.Level0,
		Duration1: s.Duration1 - minHalfTicks,
		Level1:    s.Level1,
	}.Word(), nil
}

// SinkConfig describes one PIO pulse channel
type SinkConfig struct {
	Name       string
	Pin        machine.Pin
	Resolution uint32 // Symbol ticks per second
	ClockHz    uint32 // System timer ticks per second
	Capacity   int
}

// curveEncoder holds a chunk converted to FIFO words
type curveEncoder struct {
	symbols  []core.PulseSymbol
	words    []uint32
	ticks    uint64
	minTicks uint32
}

func (e *curveEncoder) Symbols() []core.PulseSymbol {
	return e.symbols
}

// Sink implements core.PulseSink on a PIO state machine
type Sink struct {
	cfg    SinkConfig
	pio    *rp2pio.PIO
	sm     rp2pio.StateMachine
	pioNum uint8
	smNum  uint8
	group  *Group
	timer  core.Timer

	current *curveEncoder
	next    int
	endAt   uint32
	refill  uint32

	busy atomic.Bool
	done atomic.Bool
	held bool // Waiting for its group to start
}

// NewSink claims a free state machine and drives cfg.Pin from it
func NewSink(cfg SinkConfig) (*Sink, error) {
	if cfg.Resolution == 0 {
		cfg.Resolution = DefaultResolution
	}
	if cfg.ClockHz == 0 {
		cfg.ClockHz = 1000000
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Name == "" {
		cfg.Name = "pio"
	}

	whole, frac, err := clockDivider(machine.CPUFrequency(), cfg.Resolution)
	if err != nil {
		return nil, err
	}

	pioNum, smNum, err := allocatePIO()
	if err != nil {
		return nil, err
	}
	s := &Sink{cfg: cfg, pio: pioBlock(pioNum), pioNum: pioNum, smNum: smNum}
	s.sm = s.pio.StateMachine(smNum)
	s.sm.TryClaim()

	offset, err := loadProgram(pioNum, s.pio)
	if err != nil {
		releasePIO(pioNum, smNum)
		return nil, err
	}

	cfg.Pin.Configure(machine.PinConfig{Mode: s.pio.PinMode()})

	smCfg := rp2pio.DefaultStateMachineConfig()
	smCfg.SetOutPins(cfg.Pin, 1)
	smCfg.SetOutShift(true, true, 32)
	smCfg.SetWrap(offset+uint8(len(buildCurveProgram()))-1, offset)
	smCfg.SetClkDivIntFrac(whole, frac)

	s.sm.Init(offset, smCfg)
	s.sm.SetPindirsConsecutive(cfg.Pin, 1, true)
	s.sm.SetPinsConsecutive(cfg.Pin, 1, false)
	s.sm.SetEnabled(true)

	s.timer.Handler = s.handleTimer
	return s, nil
}

// clockDivider returns the 16.8 divider running the PIO at cyclesPerTick
// cycles per tick
func clockDivider(sysHz, resolution uint32) (uint16, uint8, error) {
	if resolution == 0 {
		return 0, 0, ErrBadResolution
	}
	div := uint64(sysHz) * 256 / (uint64(resolution) * cyclesPerTick)
	if div < 256 || div>>8 > math.MaxUint16 {
		return 0, 0, ErrBadResolution
	}
	return uint16(div >> 8), uint8(div), nil
}

// NewEncoder converts a chunk into FIFO words
func (s *Sink) NewEncoder(symbols []core.PulseSymbol) (core.ChunkEncoder, error) {
	if len(symbols) > s.cfg.Capacity {
		return nil, core.ErrChunkTooLarge
	}
	enc := &curveEncoder{symbols: symbols, words: make([]uint32, len(symbols)), minTicks: math.MaxUint32}
	for i, sym := range symbols {
		w, err := pioWord(sym)
		if err != nil {
			return nil, err
		}
		enc.words[i] = w
		enc.ticks += uint64(sym.Ticks())
		enc.minTicks = min(enc.minTicks, sym.Ticks())
	}
	return enc, nil
}

// Transmit fills the FIFO and starts the refill timer. A sink whose group
// is armed waits for the rest of the group instead.
func (s *Sink) Transmit(enc core.ChunkEncoder) error {
	e, ok := enc.(*curveEncoder)
	if !ok || e == nil {
		return core.ErrNoEncoder
	}
	if !s.busy.CompareAndSwap(false, true) {
		return core.ErrSinkBusy
	}

	s.current = e
	s.next = 0
	s.done.Store(false)
	// Refill while at least half of the FIFO is still queued
	s.refill = max(1, s.toTimer(uint64(e.minTicks)*2))
	s.fill()

	if s.group != nil && s.group.hold(s) {
		return nil
	}
	s.begin(core.GetTime())
	return nil
}

// begin starts completion tracking from now
func (s *Sink) begin(now uint32) {
	s.held = false
	s.endAt = now + s.toTimer(s.current.ticks)
	s.timer.WakeTime = now + s.refill
	core.ScheduleTimer(&s.timer)
}

func (s *Sink) toTimer(ticks uint64) uint32 {
	return uint32(ticks * uint64(s.cfg.ClockHz) / uint64(s.cfg.Resolution))
}

// fill pushes words until the FIFO is full or the chunk is queued
func (s *Sink) fill() {
	words := s.current.words
	for s.next < len(words) && !s.sm.IsTxFIFOFull() {
		s.sm.TxPut(words[s.next])
		s.next++
	}
}

// handleTimer refills the FIFO and watches for the end of the chunk.
// Runs with the scheduler locked.
func (s *Sink) handleTimer(t *core.Timer) uint8 {
	// TODO: feed the FIFO from DMA so refill does not depend on main loop latency
	s.fill()
	now := core.GetTime()
	if s.next < len(s.current.words) {
		t.WakeTime = now + s.refill
		return core.SF_RESCHEDULE
	}
	if int32(now-s.endAt) < 0 || !s.sm.IsTxFIFOEmpty() {
		t.WakeTime = s.endAt
		if int32(t.WakeTime-now) <= 0 {
			t.WakeTime = now + s.refill
		}
		return core.SF_RESCHEDULE
	}
	s.done.Store(true)
	return core.SF_DONE
}

// WaitDone drives the scheduler until the chunk completes
func (s *Sink) WaitDone(timeout time.Duration) error {
	if !s.busy.Load() {
		return nil
	}
	deadline := time.Now().Add(timeout)
	for {
		core.ProcessTimers()
		if s.done.Load() {
			s.busy.Store(false)
			return nil
		}
		if time.Now().After(deadline) {
			s.abort()
			return core.ErrSinkTimeout
		}
		core.Idle()
	}
}

// Release unbinds an encoder, aborting playback if it is still running
func (s *Sink) Release(enc core.ChunkEncoder) error {
	if enc == nil {
		return core.ErrNoEncoder
	}
	if e, ok := enc.(*curveEncoder); !ok || e != s.current {
		return nil
	}
	if s.busy.Load() && !s.done.Load() {
		s.abort()
	}
	s.current = nil
	return nil
}

// abort drains the state machine and parks the pin low
func (s *Sink) abort() {
	core.CancelTimer(&s.timer)
	if s.held && s.group != nil {
		s.group.drop(s)
	}
	s.held = false
	s.sm.SetEnabled(false)
	s.sm.ClearFIFOs()
	s.sm.Restart()
	s.sm.SetPinsConsecutive(s.cfg.Pin, 1, false)
	s.sm.SetEnabled(true)
	s.busy.Store(false)
}

// Done reports whether the last transmitted chunk has finished
func (s *Sink) Done() bool {
	return s.done.Load()
}

// MinHalfTicks returns the shortest half the program can play
func (s *Sink) MinHalfTicks() uint16 {
	return minHalfTicks
}

// Capacity returns the maximum symbols per transaction
func (s *Sink) Capacity() int {
	return s.cfg.Capacity
}

// Resolution returns the symbol tick rate in Hz
func (s *Sink) Resolution() uint32 {
	return s.cfg.Resolution
}

// GetName returns the sink name with its PIO slot
func (s *Sink) GetName() string {
	return s.cfg.Name + "@pio" + string('0'+s.pioNum) + "." + string('0'+s.smNum)
}
