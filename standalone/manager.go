// Package standalone runs motion programs without a host: it builds one
// stepper per configured motor and executes configured moves or line
// commands against them.
package standalone

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"nojerky/config"
	"nojerky/core"
	"nojerky/standalone/gcode"
	"nojerky/stepper"
)

var (
	ErrNotInitialized = errors.New("manager not initialized")
	ErrUnknownMotor   = errors.New("unknown motor")
	ErrUnsupported    = errors.New("unsupported command")
)

// SinkFactory creates the pulse sink for a motor.
// index is the motor's position in Motors() and doubles as its channel.
type SinkFactory func(name string, index int, motor config.MotorConfig) (core.PulseSink, error)

// MoveReport describes one executed move
type MoveReport struct {
	Index  int
	Move   config.MoveConfig
	Result *stepper.Result
	Err    error
}

// Manager coordinates the steppers of one machine
type Manager struct {
	config   *config.MachineConfig
	parser   *gcode.Parser
	names    []string
	steppers map[string]*stepper.Stepper
	group    *stepper.Group
	observer stepper.Observer

	// Line interface
	inputBuffer  []byte
	outputBuffer []byte
	dwell        uint32 // Default G1 duration (s)

	initialized bool
	running     bool
}

// NewManager creates a manager from JSON configuration
func NewManager(configData []byte) (*Manager, error) {
	cfg, err := config.LoadConfig(configData)
	if err != nil {
		return nil, err
	}
	return NewManagerWithConfig(cfg)
}

// NewManagerWithConfig creates a manager with an existing config
func NewManagerWithConfig(cfg *config.MachineConfig) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}

	names := cfg.MotorNames()
	return &Manager{
		config:       cfg,
		parser:       gcode.NewParser(),
		names:        names,
		steppers:     make(map[string]*stepper.Stepper, len(names)),
		inputBuffer:  make([]byte, 0, 256),
		outputBuffer: make([]byte, 0, 256),
		dwell:        1,
	}, nil
}

// SetObserver installs a measurement observer on every stepper.
// Call before Initialize.
func (m *Manager) SetObserver(o stepper.Observer) {
	m.observer = o
}

// Initialize creates the steppers. syncer may be nil when channels need
// no start alignment.
func (m *Manager) Initialize(sinks SinkFactory, gpio core.GPIODriver, syncer core.Syncer) error {
	if m.initialized {
		return errors.New("already initialized")
	}

	for i, name := range m.names {
		motor := m.config.Motors[name]
		cfg, err := StepperConfig(name, uint8(i), motor)
		if err != nil {
			return err
		}
		sink, err := sinks(name, i, motor)
		if err != nil {
			return fmt.Errorf("motor %s: sink: %w", name, err)
		}
		st, err := stepper.New(cfg, sink, gpio)
		if err != nil {
			return fmt.Errorf("motor %s: %w", name, err)
		}
		if m.observer != nil {
			st.SetObserver(m.observer)
		}
		m.steppers[name] = st
	}

	if m.config.Sync {
		m.group = stepper.NewGroup(syncer)
	} else {
		m.group = stepper.NewGroup(nil)
	}

	m.initialized = true
	return nil
}

// StepperConfig converts a motor configuration into a stepper configuration
func StepperConfig(name string, oid uint8, motor config.MotorConfig) (stepper.Config, error) {
	cfg := stepper.Config{
		Name:         name,
		OID:          oid,
		InvertStep:   motor.InvertStep,
		InvertDir:    motor.InvertDir,
		InvertEnable: motor.InvertEnable,
		StepSize:     motor.StepSize,
		UnitTimestep: motor.UnitTimestep,
		MaxShift:     motor.MaxShift,
		MaxSteps:     motor.MaxSteps,
		MaxSymbols:   motor.MaxSymbols,
		MaxVelocity:  motor.MaxVelocity,
	}
	if motor.DirPin != "" {
		pin, err := config.ParsePin(motor.DirPin)
		if err != nil {
			return cfg, fmt.Errorf("motor %s: dir pin: %w", name, err)
		}
		cfg.DirPin, cfg.HasDir = core.GPIOPin(pin), true
	}
	if motor.EnablePin != "" {
		pin, err := config.ParsePin(motor.EnablePin)
		if err != nil {
			return cfg, fmt.Errorf("motor %s: enable pin: %w", name, err)
		}
		cfg.EnablePin, cfg.HasEnable = core.GPIOPin(pin), true
	}
	return cfg, nil
}

// Motors returns the motor names in channel order
func (m *Manager) Motors() []string {
	return m.names
}

// Stepper returns a motor's stepper, nil if unknown
func (m *Manager) Stepper(name string) *stepper.Stepper {
	return m.steppers[name]
}

// Enable switches every driver on or off
func (m *Manager) Enable(on bool) error {
	for _, name := range m.names {
		if err := m.steppers[name].Enable(on); err != nil {
			return err
		}
	}
	return nil
}

// RunProgram executes the configured moves in order. With Sync set,
// consecutive moves on distinct motors start together.
func (m *Manager) RunProgram(ctx context.Context, report func(MoveReport)) error {
	if !m.initialized {
		return ErrNotInitialized
	}

	moves := m.config.Moves
	for i := 0; i < len(moves); {
		end := i + 1
		if m.config.Sync {
			used := map[string]bool{moves[i].Motor: true}
			for end < len(moves) && !used[moves[end].Motor] {
				used[moves[end].Motor] = true
				end++
			}
		}

		results, err := m.runBatch(ctx, moves[i:end])
		for j := i; j < end; j++ {
			r := MoveReport{Index: j, Move: moves[j], Err: err}
			if results != nil {
				r.Result = results[j-i]
			}
			if report != nil {
				report(r)
			}
		}
		if err != nil {
			return fmt.Errorf("move %d: %w", i, err)
		}
		i = end
	}
	return nil
}

func (m *Manager) runBatch(ctx context.Context, moves []config.MoveConfig) ([]*stepper.Result, error) {
	batch := make([]stepper.GroupMove, len(moves))
	for i, mv := range moves {
		st := m.steppers[mv.Motor]
		if st == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownMotor, mv.Motor)
		}
		batch[i] = stepper.GroupMove{Stepper: st, Command: commandFromMove(mv)}
	}

	if len(batch) == 1 {
		res, err := batch[0].Stepper.Move(ctx, batch[0].Command)
		if err != nil {
			return nil, err
		}
		return []*stepper.Result{res}, nil
	}
	return m.group.MoveAll(ctx, batch)
}

func commandFromMove(mv config.MoveConfig) stepper.Command {
	return stepper.Command{
		From:     mv.From,
		To:       mv.To,
		V0:       mv.V0,
		VT:       mv.VT,
		A0:       mv.A0,
		AT:       mv.AT,
		Duration: mv.Duration,
		VMax:     mv.VMax,
	}
}

// ProcessLine executes one line command:
//
//	G0/G1 <motor><target>... [P<seconds>] [F<vmax>]  move, several motors start together
//	G4 P<seconds>                                    dwell
//	G92 <motor><position>...                         set position
//	M17 / M18 / M84                                  enable / disable drivers
func (m *Manager) ProcessLine(ctx context.Context, line string) error {
	if !m.initialized {
		return ErrNotInitialized
	}

	cmd, err := m.parser.ParseLine(line)
	if err != nil || cmd == nil || cmd.Type == 0 {
		return err
	}

	switch {
	case cmd.Type == 'G' && (cmd.Number == 0 || cmd.Number == 1):
		return m.executeMove(ctx, cmd)
	case cmd.Type == 'G' && cmd.Number == 4:
		return m.dwellFor(ctx, cmd.GetParameter('P', 0))
	case cmd.Type == 'G' && cmd.Number == 92:
		return m.setPositions(cmd)
	case cmd.Type == 'M' && cmd.Number == 17:
		return m.Enable(true)
	case cmd.Type == 'M' && (cmd.Number == 18 || cmd.Number == 84):
		return m.Enable(false)
	}
	return fmt.Errorf("%w: %c%d", ErrUnsupported, cmd.Type, cmd.Number)
}

func (m *Manager) executeMove(ctx context.Context, cmd *gcode.Command) error {
	if cmd.HasParameter('P') {
		p := cmd.GetParameter('P', 0)
		if p < 1 || p != math.Trunc(p) {
			return fmt.Errorf("%w: P must be a whole number of seconds", ErrUnsupported)
		}
		m.dwell = uint32(p)
	}
	vmax := cmd.GetParameter('F', 0)

	var moves []config.MoveConfig
	for _, letter := range cmd.Order {
		if letter == 'P' || letter == 'F' {
			continue
		}
		name := strings.ToLower(string(letter))
		st := m.steppers[name]
		if st == nil {
			return fmt.Errorf("%w: %s", ErrUnknownMotor, name)
		}
		target := cmd.Parameters[letter]
		if target < 0 || target > math.MaxUint32 {
			return fmt.Errorf("target %s=%v out of range", name, target)
		}
		moves = append(moves, config.MoveConfig{
			Motor:    name,
			From:     st.Position(),
			To:       uint32(math.Round(target)),
			Duration: m.dwell,
			VMax:     vmax,
		})
	}
	if len(moves) == 0 {
		return nil
	}

	_, err := m.runBatch(ctx, moves)
	return err
}

func (m *Manager) dwellFor(ctx context.Context, seconds float64) error {
	if seconds <= 0 {
		return nil
	}
	select {
	case <-time.After(time.Duration(seconds * float64(time.Second))):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) setPositions(cmd *gcode.Command) error {
	for _, letter := range cmd.Order {
		name := strings.ToLower(string(letter))
		st := m.steppers[name]
		if st == nil {
			return fmt.Errorf("%w: %s", ErrUnknownMotor, name)
		}
		st.SetPosition(uint32(math.Round(math.Max(0, cmd.Parameters[letter]))))
	}
	return nil
}

// ProcessByte processes a single byte of input (for serial streaming)
func (m *Manager) ProcessByte(ctx context.Context, b byte) error {
	if b != '\n' && b != '\r' {
		m.inputBuffer = append(m.inputBuffer, b)
		return nil
	}

	line := strings.TrimSpace(string(m.inputBuffer))
	m.inputBuffer = m.inputBuffer[:0]
	if line == "" {
		return nil
	}

	if err := m.ProcessLine(ctx, line); err != nil {
		m.SendResponse("!! " + err.Error() + "\n")
		return err
	}
	m.SendResponse("ok\n")
	return nil
}

// SendResponse queues a response to be sent to the host
func (m *Manager) SendResponse(response string) {
	m.outputBuffer = append(m.outputBuffer, response...)
}

// GetOutput returns any pending output and clears the buffer
func (m *Manager) GetOutput() []byte {
	if len(m.outputBuffer) == 0 {
		return nil
	}

	output := make([]byte, len(m.outputBuffer))
	copy(output, m.outputBuffer)
	m.outputBuffer = m.outputBuffer[:0]
	return output
}

// Start begins standalone operation
func (m *Manager) Start() error {
	if !m.initialized {
		return ErrNotInitialized
	}

	m.running = true
	m.SendResponse("nojerky standalone ready\n")
	return nil
}

// Stop halts operation and disables the drivers
func (m *Manager) Stop() {
	m.running = false
	if m.initialized {
		m.Enable(false)
	}
}

// IsRunning returns whether the manager is running
func (m *Manager) IsRunning() bool {
	return m.running
}
