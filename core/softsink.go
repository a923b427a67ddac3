package core

// Software pulse sink: replays symbols by toggling a GPIO from the timer
// scheduler. Used on the host simulation and on targets without a
// dedicated pulse peripheral.

import (
	"math"
	"sync/atomic"
	"time"
)

const (
	DefaultSoftCapacity = 64
	softResumeWindowUS  = 1000
)

// SoftSinkConfig describes a software sink
type SoftSinkConfig struct {
	Name       string
	Pin        GPIOPin
	Resolution uint32 // Symbol ticks per second
	ClockHz    uint32 // System timer ticks per second
	Capacity   int    // Symbols per transaction
}

// SoftSink implements PulseSink with the timer scheduler
type SoftSink struct {
	cfg    SoftSinkConfig
	driver GPIODriver
	timer  Timer

	// Playback state, touched only by the timer handler while busy
	symbols []PulseSymbol
	index   int
	half    int
	elapsed uint64
	start   uint32
	level   int8

	busy    atomic.Bool
	done    atomic.Bool
	edges   atomic.Uint32
	lastEnd uint32
	hasLast bool
	current ChunkEncoder
}

// NewSoftSink configures the output pin and returns a sink.
// A nil driver selects the globally registered GPIO driver.
func NewSoftSink(driver GPIODriver, cfg SoftSinkConfig) (*SoftSink, error) {
	if driver == nil {
		driver = MustGPIO()
	}
	if cfg.Resolution == 0 {
		cfg.Resolution = 1000000
	}
	if cfg.ClockHz == 0 {
		cfg.ClockHz = TimerFreq
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultSoftCapacity
	}
	if cfg.Name == "" {
		cfg.Name = "soft-gpio"
	}
	if err := driver.ConfigureOutput(cfg.Pin); err != nil {
		return nil, err
	}
	if err := driver.SetPin(cfg.Pin, false); err != nil {
		return nil, err
	}

	s := &SoftSink{cfg: cfg, driver: driver, level: LevelLow}
	s.timer.Handler = s.handleTimer
	return s, nil
}

// NewEncoder binds a chunk
func (s *SoftSink) NewEncoder(symbols []PulseSymbol) (ChunkEncoder, error) {
	if len(symbols) > s.cfg.Capacity {
		return nil, ErrChunkTooLarge
	}
	return NewSymbolEncoder(symbols), nil
}

// Transmit schedules the chunk on the timer list.
// A chunk submitted right after the previous one finished continues its
// timeline so consecutive chunks play without a gap.
func (s *SoftSink) Transmit(enc ChunkEncoder) error {
	if enc == nil {
		return ErrNoEncoder
	}
	if !s.busy.CompareAndSwap(false, true) {
		return ErrSinkBusy
	}

	now := GetTime()
	start := now
	if s.hasLast && now-s.lastEnd < TimerFromUS(softResumeWindowUS, s.cfg.ClockHz) {
		start = s.lastEnd
	}

	s.current = enc
	s.symbols = enc.Symbols()
	s.index = 0
	s.half = 0
	s.elapsed = 0
	s.start = start
	s.done.Store(false)

	s.timer.WakeTime = start
	ScheduleTimer(&s.timer)
	return nil
}

// WaitDone drives the scheduler until the chunk completes
func (s *SoftSink) WaitDone(timeout time.Duration) error {
	if !s.busy.Load() {
		return nil
	}

	limit := DurationToTicks(timeout, s.cfg.ClockHz)
	if limit > math.MaxInt32 {
		limit = math.MaxInt32
	}
	begin := GetTime()
	for {
		ProcessTimers()
		if s.done.Load() {
			s.busy.Store(false)
			return nil
		}
		if uint64(GetTime()-begin) > limit {
			CancelTimer(&s.timer)
			s.hasLast = false
			s.busy.Store(false)
			return ErrSinkTimeout
		}
		idle()
	}
}

// Release unbinds an encoder, aborting playback if it is still running
func (s *SoftSink) Release(enc ChunkEncoder) error {
	if enc == nil {
		return ErrNoEncoder
	}
	if s.current != enc {
		return nil
	}
	if s.busy.Load() && !s.done.Load() {
		CancelTimer(&s.timer)
		s.hasLast = false
		s.busy.Store(false)
	}
	s.current = nil
	s.symbols = nil
	return nil
}

// Capacity returns the maximum symbols per transaction
func (s *SoftSink) Capacity() int {
	return s.cfg.Capacity
}

// Resolution returns the symbol tick rate in Hz
func (s *SoftSink) Resolution() uint32 {
	return s.cfg.Resolution
}

// GetName returns sink implementation name
func (s *SoftSink) GetName() string {
	return s.cfg.Name
}

// Done reports whether the last transmitted chunk has finished
func (s *SoftSink) Done() bool {
	return s.done.Load()
}

// Edges returns the number of rising edges driven since creation
func (s *SoftSink) Edges() uint32 {
	return s.edges.Load()
}

// handleTimer applies the current half and schedules the next edge.
// Runs with the scheduler locked.
func (s *SoftSink) handleTimer(t *Timer) uint8 {
	if s.index >= len(s.symbols) {
		s.lastEnd = t.WakeTime
		s.hasLast = true
		s.done.Store(true)
		return SF_DONE
	}

	sym := s.symbols[s.index]
	level, dur := sym.Level0, sym.Duration0
	if s.half == 1 {
		level, dur = sym.Level1, sym.Duration1
	}
	s.setLevel(int8(level))

	s.elapsed += uint64(dur)
	if s.half == 0 {
		s.half = 1
	} else {
		s.half = 0
		s.index++
	}

	t.WakeTime = s.start + uint32(s.elapsed*uint64(s.cfg.ClockHz)/uint64(s.cfg.Resolution))
	return SF_RESCHEDULE
}

func (s *SoftSink) setLevel(level int8) {
	if level == s.level {
		return
	}
	s.level = level
	if level == LevelHigh {
		s.edges.Add(1)
	}
	s.driver.SetPin(s.cfg.Pin, level == LevelHigh)
}
