// Package stepper drives one motor per pulse channel: it plans a
// minimum-jerk move, encodes it into pulse symbols and plays them on a sink.
package stepper

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"nojerky/core"
	"nojerky/motion"
)

var (
	ErrBusy   = errors.New("stepper channel busy")
	ErrNoSink = errors.New("stepper has no pulse sink")
)

// Planning modes reported to observers
const (
	ModeTime     = "time"
	ModeVelocity = "velocity"
)

// Config describes one stepper channel
type Config struct {
	Name string
	OID  uint8

	DirPin       core.GPIOPin
	EnablePin    core.GPIOPin
	HasDir       bool
	HasEnable    bool
	InvertStep   bool
	InvertDir    bool
	InvertEnable bool

	StepSize     float64 // Distance per step pulse
	UnitTimestep float64 // Finest timestep quantum (s)
	MaxShift     int
	MaxSteps     int
	MaxSymbols   int
	MaxVelocity  float64 // Default velocity bound, 0 = time-constrained
}

// Command is one motion command in absolute positions
type Command struct {
	From     uint32
	To       uint32
	V0       int32
	VT       int32
	A0       int32
	AT       int32
	Duration uint32  // Seconds, used when no velocity bound applies
	VMax     float64 // Overrides Config.MaxVelocity when positive
}

// Result summarizes an executed move
type Result struct {
	Mode         string
	Steps        int
	Symbols      int
	Duration     time.Duration // Physical duration of the pulse curve
	PeakVelocity float64
	Reverse      bool
	Stats        motion.SearchStats
}

// Observer receives per-move measurements
type Observer interface {
	ObservePlan(mode string, steps int, stats motion.SearchStats)
	ObserveCurve(symbols int)
	ObserveMove(d time.Duration, err error)
}

// Stepper is one motor bound to a pulse sink
type Stepper struct {
	cfg      Config
	sink     core.PulseSink
	gpio     core.GPIODriver
	observer Observer

	busy     atomic.Bool
	position atomic.Uint32
}

// prepared is a planned and encoded move waiting for playback
type prepared struct {
	result Result
	curve  *core.PulseCurve
	target uint32
}

// New creates a stepper. gpio may be nil when neither direction nor
// enable pins are used.
func New(cfg Config, sink core.PulseSink, gpio core.GPIODriver) (*Stepper, error) {
	if sink == nil {
		return nil, ErrNoSink
	}
	if cfg.StepSize <= 0 {
		return nil, fmt.Errorf("%w: step size %v", motion.ErrInvalidRequest, cfg.StepSize)
	}
	if cfg.UnitTimestep <= 0 {
		cfg.UnitTimestep = motion.UnitTimestep
	}
	if cfg.Name == "" {
		cfg.Name = sink.GetName()
	}

	if (cfg.HasDir || cfg.HasEnable) && gpio == nil {
		gpio = core.MustGPIO()
	}
	if cfg.HasDir {
		if err := gpio.ConfigureOutput(cfg.DirPin); err != nil {
			return nil, err
		}
	}
	if cfg.HasEnable {
		if err := gpio.ConfigureOutput(cfg.EnablePin); err != nil {
			return nil, err
		}
		// Start disabled
		if err := gpio.SetPin(cfg.EnablePin, cfg.InvertEnable); err != nil {
			return nil, err
		}
	}

	return &Stepper{cfg: cfg, sink: sink, gpio: gpio}, nil
}

// SetObserver installs a measurement observer
func (s *Stepper) SetObserver(o Observer) {
	s.observer = o
}

// Name returns the channel name
func (s *Stepper) Name() string {
	return s.cfg.Name
}

// Position returns the target of the last completed move
func (s *Stepper) Position() uint32 {
	return s.position.Load()
}

// SetPosition overrides the tracked position
func (s *Stepper) SetPosition(pos uint32) {
	s.position.Store(pos)
}

// Busy reports whether a move is in progress
func (s *Stepper) Busy() bool {
	return s.busy.Load()
}

// Enable drives the enable pin
func (s *Stepper) Enable(on bool) error {
	if !s.cfg.HasEnable {
		return nil
	}
	return s.gpio.SetPin(s.cfg.EnablePin, on != s.cfg.InvertEnable)
}

// Move plans, encodes and plays one command.
// Only one command may run on a channel at a time.
func (s *Stepper) Move(ctx context.Context, cmd Command) (*Result, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer s.busy.Store(false)

	start := time.Now()
	p, err := s.prepare(cmd)
	if err != nil {
		s.observeMove(start, err)
		return nil, err
	}
	err = s.play(ctx, p)
	s.observeMove(start, err)
	if err != nil {
		return nil, err
	}
	return &p.result, nil
}

// prepare sets direction and runs the planner and encoder
func (s *Stepper) prepare(cmd Command) (*prepared, error) {
	bc, reverse := normalize(cmd)

	mode := ModeTime
	vmax := cmd.VMax
	if vmax <= 0 {
		vmax = s.cfg.MaxVelocity
	}
	if vmax > 0 {
		mode = ModeVelocity
		bc.T = motion.DurationForVelocity(bc.Distance(), vmax)
	}

	coeff, err := motion.ComputeCoefficients(bc)
	if err != nil {
		return nil, fmt.Errorf("%s: plan: %w", s.cfg.Name, err)
	}
	tr, err := motion.Plan(motion.TrajectoryRequest{
		Coeff:         coeff,
		Dx:            s.cfg.StepSize,
		UnitTS:        s.cfg.UnitTimestep,
		TotalDistance: bc.Distance(),
		Duration:      bc.T,
		MaxSteps:      s.cfg.MaxSteps,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: plan: %w", s.cfg.Name, err)
	}
	if s.observer != nil {
		s.observer.ObservePlan(mode, tr.Len(), tr.Stats)
	}
	if tr.Stats.Exhausted+tr.Stats.Saturated > 0 {
		core.RecordTiming(core.EvtSearchFallback, s.cfg.OID, core.GetTime(),
			uint32(tr.Stats.Exhausted), uint32(tr.Stats.Saturated))
	}

	opts := core.EncodeOptions{
		MaxShift:   s.cfg.MaxShift,
		MaxSymbols: s.cfg.MaxSymbols,
		Invert:     s.cfg.InvertStep,
	}
	if hl, ok := s.sink.(core.HalfLimiter); ok {
		opts.MinHalfTicks = hl.MinHalfTicks()
	}
	curve, err := core.EncodeCurve(tr.Steps, float64(s.sink.Resolution()), opts)
	if err != nil {
		return nil, fmt.Errorf("%s: encode: %w", s.cfg.Name, err)
	}
	if s.observer != nil {
		s.observer.ObserveCurve(curve.Len())
	}

	if err := s.setDirection(reverse); err != nil {
		return nil, fmt.Errorf("%s: direction: %w", s.cfg.Name, err)
	}

	p := &prepared{
		curve:  curve,
		target: cmd.To,
		result: Result{
			Mode:         mode,
			Steps:        tr.Len(),
			Symbols:      curve.Len(),
			Duration:     curve.Duration(s.sink.Resolution()),
			PeakVelocity: tr.PeakVelocity(),
			Reverse:      reverse,
			Stats:        tr.Stats,
		},
	}
	core.DebugMove(s.cfg.OID, p.result.Steps, p.result.Symbols, tr.TotalTime(),
		tr.Stats.Degenerate, tr.Stats.Exhausted, tr.Stats.Saturated)
	return p, nil
}

// play transmits a prepared curve and records the new position
func (s *Stepper) play(ctx context.Context, p *prepared) error {
	core.RecordTiming(core.EvtMoveStart, s.cfg.OID, core.GetTime(), uint32(p.result.Steps), uint32(p.result.Symbols))
	if err := core.Play(ctx, p.curve, s.sink); err != nil {
		return fmt.Errorf("%s: %w", s.cfg.Name, err)
	}
	core.RecordTiming(core.EvtMoveDone, s.cfg.OID, core.GetTime(), uint32(p.result.Steps), 0)
	s.position.Store(p.target)
	return nil
}

func (s *Stepper) setDirection(reverse bool) error {
	if !s.cfg.HasDir {
		return nil
	}
	return s.gpio.SetPin(s.cfg.DirPin, reverse != s.cfg.InvertDir)
}

func (s *Stepper) observeMove(start time.Time, err error) {
	if s.observer != nil {
		s.observer.ObserveMove(time.Since(start), err)
	}
}

// normalize converts a command into forward boundary conditions.
// Reverse moves are mirrored so the planner always sees XT >= X0.
func normalize(cmd Command) (motion.BoundaryConditions, bool) {
	if cmd.To >= cmd.From {
		return motion.BoundaryConditions{
			X0: cmd.From, XT: cmd.To,
			V0: cmd.V0, VT: cmd.VT,
			A0: cmd.A0, AT: cmd.AT,
			T: cmd.Duration,
		}, false
	}
	return motion.BoundaryConditions{
		X0: 0, XT: cmd.From - cmd.To,
		V0: -cmd.V0, VT: -cmd.VT,
		A0: -cmd.A0, AT: -cmd.AT,
		T: cmd.Duration,
	}, true
}
