package stepper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"nojerky/core"
)

// GroupMove pairs a channel with its command
type GroupMove struct {
	Stepper *Stepper
	Command Command
}

// Group runs independent channels together.
// Each channel follows its own profile; only the start can be aligned.
type Group struct {
	syncer core.Syncer
}

// NewGroup creates a group; syncer may be nil
func NewGroup(syncer core.Syncer) *Group {
	return &Group{syncer: syncer}
}

// MoveAll plans every move before starting playback, aligns the start
// when a syncer is set, then plays all channels concurrently.
// Results are returned in input order.
func (g *Group) MoveAll(ctx context.Context, moves []GroupMove) ([]*Result, error) {
	for i, mv := range moves {
		if !mv.Stepper.busy.CompareAndSwap(false, true) {
			for _, prev := range moves[:i] {
				prev.Stepper.busy.Store(false)
			}
			return nil, fmt.Errorf("%s: %w", mv.Stepper.Name(), ErrBusy)
		}
	}
	defer func() {
		for _, mv := range moves {
			mv.Stepper.busy.Store(false)
		}
	}()

	start := time.Now()
	plans := make([]*prepared, len(moves))
	for i, mv := range moves {
		p, err := mv.Stepper.prepare(mv.Command)
		if err != nil {
			mv.Stepper.observeMove(start, err)
			return nil, err
		}
		plans[i] = p
	}

	if err := g.sync(moves); err != nil {
		return nil, fmt.Errorf("sync reset: %w", err)
	}

	errs := make([]error, len(moves))
	var wg sync.WaitGroup
	for i, mv := range moves {
		wg.Add(1)
		go func(i int, s *Stepper) {
			defer wg.Done()
			errs[i] = s.play(ctx, plans[i])
			s.observeMove(start, errs[i])
		}(i, mv.Stepper)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	results := make([]*Result, len(plans))
	for i, p := range plans {
		results[i] = &p.result
	}
	return results, nil
}

// sync arms only the channels in the batch when the syncer supports masks
func (g *Group) sync(moves []GroupMove) error {
	if g.syncer == nil {
		return nil
	}
	ms, ok := g.syncer.(core.MaskSyncer)
	if !ok {
		return g.syncer.SyncReset()
	}
	var mask uint32
	for _, mv := range moves {
		if oid := mv.Stepper.cfg.OID; oid < 32 {
			mask |= 1 << oid
		}
	}
	return ms.SyncMask(mask)
}
