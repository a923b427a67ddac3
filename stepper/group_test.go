package stepper

import (
	"context"
	"errors"
	"testing"
)

type countingSyncer struct {
	calls int
	err   error
}

func (c *countingSyncer) SyncReset() error {
	c.calls++
	return c.err
}

func TestGroupMoveAll(t *testing.T) {
	sx, sy := newFakeSink(32), newFakeSink(32)
	x, _ := New(testConfig(), sx, newRecordingGPIO())
	cfgY := testConfig()
	cfgY.Name = "y"
	y, _ := New(cfgY, sy, newRecordingGPIO())

	syncer := &countingSyncer{}
	g := NewGroup(syncer)

	results, err := g.MoveAll(context.Background(), []GroupMove{
		{Stepper: x, Command: Command{From: 0, To: 1000, Duration: 2}},
		{Stepper: y, Command: Command{From: 0, To: 500, Duration: 1}},
	})
	if err != nil {
		t.Fatalf("MoveAll: %v", err)
	}
	if syncer.calls != 1 {
		t.Errorf("expected one sync reset, got %d", syncer.calls)
	}
	if results[0].Steps != 100 || results[1].Steps != 50 {
		t.Errorf("unexpected step counts %d/%d", results[0].Steps, results[1].Steps)
	}
	if len(sx.symbols) != results[0].Symbols || len(sy.symbols) != results[1].Symbols {
		t.Error("sinks did not receive the planned curves")
	}
	if x.Position() != 1000 || y.Position() != 500 {
		t.Errorf("unexpected positions %d/%d", x.Position(), y.Position())
	}
	if x.Busy() || y.Busy() {
		t.Error("busy flags left set")
	}
}

func TestGroupMoveAllBusy(t *testing.T) {
	x, _ := New(testConfig(), newFakeSink(32), newRecordingGPIO())
	y, _ := New(testConfig(), newFakeSink(32), newRecordingGPIO())
	y.busy.Store(true)

	_, err := NewGroup(nil).MoveAll(context.Background(), []GroupMove{
		{Stepper: x, Command: Command{From: 0, To: 10, Duration: 1}},
		{Stepper: y, Command: Command{From: 0, To: 10, Duration: 1}},
	})
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if x.Busy() {
		t.Error("x left busy after group rejection")
	}
}

func TestGroupMoveAllSyncFailure(t *testing.T) {
	sx := newFakeSink(32)
	x, _ := New(testConfig(), sx, newRecordingGPIO())
	syncer := &countingSyncer{err: errors.New("sync lost")}

	_, err := NewGroup(syncer).MoveAll(context.Background(), []GroupMove{
		{Stepper: x, Command: Command{From: 0, To: 10, Duration: 1}},
	})
	if err == nil {
		t.Fatal("expected sync failure")
	}
	if len(sx.symbols) != 0 {
		t.Error("curve played despite sync failure")
	}
}

type maskSyncer struct {
	countingSyncer
	masks []uint32
}

func (m *maskSyncer) SyncMask(mask uint32) error {
	m.masks = append(m.masks, mask)
	return nil
}

func TestGroupMoveAllSyncsBatchChannels(t *testing.T) {
	cfgX := testConfig()
	cfgX.OID = 1
	x, _ := New(cfgX, newFakeSink(32), newRecordingGPIO())
	cfgY := testConfig()
	cfgY.Name, cfgY.OID = "y", 3
	y, _ := New(cfgY, newFakeSink(32), newRecordingGPIO())

	syncer := &maskSyncer{}
	_, err := NewGroup(syncer).MoveAll(context.Background(), []GroupMove{
		{Stepper: x, Command: Command{From: 0, To: 10, Duration: 1}},
		{Stepper: y, Command: Command{From: 0, To: 10, Duration: 1}},
	})
	if err != nil {
		t.Fatalf("MoveAll: %v", err)
	}
	if len(syncer.masks) != 1 || syncer.masks[0] != 0b1010 {
		t.Errorf("masks = %v, want [0b1010]", syncer.masks)
	}
	if syncer.calls != 0 {
		t.Errorf("plain SyncReset called %d times", syncer.calls)
	}
}
