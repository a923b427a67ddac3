package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrInvalidPin    = errors.New("invalid pin name")
)

// Defaults match a 1 MHz pulse peripheral with 128-symbol memory blocks
const (
	DefaultStepSize        = 1.0
	DefaultUnitTimestep    = 2e-6
	DefaultResolutionHz    = 1000000
	DefaultMemBlockSymbols = 128
	DefaultMaxShift        = 10
	DefaultMaxSteps        = 1 << 20
	DefaultMaxSymbols      = 1 << 22
	DefaultBaud            = 250000
)

// LoadConfig parses a JSON configuration and returns a MachineConfig
func LoadConfig(jsonData []byte) (*MachineConfig, error) {
	var config MachineConfig

	err := json.Unmarshal(jsonData, &config)
	if err != nil {
		return nil, err
	}

	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadFile reads and parses a JSON configuration file
func LoadFile(path string) (*MachineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadConfig(data)
}

// applyDefaults fills in missing configuration values with sensible defaults
func applyDefaults(config *MachineConfig) {
	if config.Sink == "" {
		config.Sink = "soft"
	}
	if config.Baud == 0 {
		config.Baud = DefaultBaud
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	for name, motor := range config.Motors {
		if motor.StepSize == 0 {
			motor.StepSize = DefaultStepSize
		}
		if motor.UnitTimestep == 0 {
			motor.UnitTimestep = DefaultUnitTimestep
		}
		if motor.ResolutionHz == 0 {
			motor.ResolutionHz = DefaultResolutionHz
		}
		if motor.MemBlockSymbols == 0 {
			motor.MemBlockSymbols = DefaultMemBlockSymbols
		}
		if motor.MaxShift == 0 {
			motor.MaxShift = DefaultMaxShift
		}
		if motor.MaxSteps == 0 {
			motor.MaxSteps = DefaultMaxSteps
		}
		if motor.MaxSymbols == 0 {
			motor.MaxSymbols = DefaultMaxSymbols
		}
		config.Motors[name] = motor
	}
}

// Validate checks values that would make planning or encoding impossible
func (c *MachineConfig) Validate() error {
	switch c.Sink {
	case "soft", "serial", "pio":
	default:
		return fmt.Errorf("%w: unknown sink %q", ErrInvalidConfig, c.Sink)
	}
	if c.Sink == "serial" && c.Port == "" {
		return fmt.Errorf("%w: serial sink needs a port", ErrInvalidConfig)
	}

	for name, m := range c.Motors {
		if m.StepSize <= 0 {
			return fmt.Errorf("%w: motor %s: step size must be positive", ErrInvalidConfig, name)
		}
		if m.UnitTimestep <= 0 {
			return fmt.Errorf("%w: motor %s: unit timestep must be positive", ErrInvalidConfig, name)
		}
		if m.MemBlockSymbols < 0 || m.MaxShift < 0 || m.MaxSteps < 0 || m.MaxSymbols < 0 {
			return fmt.Errorf("%w: motor %s: negative limit", ErrInvalidConfig, name)
		}
		if m.MaxVelocity < 0 {
			return fmt.Errorf("%w: motor %s: negative velocity bound", ErrInvalidConfig, name)
		}
		if _, err := ParsePin(m.StepPin); err != nil {
			return fmt.Errorf("%w: motor %s: step pin: %w", ErrInvalidConfig, name, err)
		}
	}

	for i, mv := range c.Moves {
		if _, ok := c.Motors[mv.Motor]; !ok {
			return fmt.Errorf("%w: move %d: unknown motor %q", ErrInvalidConfig, i, mv.Motor)
		}
	}
	return nil
}

// MotorNames returns the motor names sorted. A motor's index in this list
// is its channel number on the pulse firmware.
func (c *MachineConfig) MotorNames() []string {
	names := make([]string, 0, len(c.Motors))
	for name := range c.Motors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParsePin converts a pin name such as "gpio12" or "12" to its number
func ParsePin(name string) (uint32, error) {
	s := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "gpio")
	if s == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPin, name)
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPin, name)
	}
	return uint32(n), nil
}

// DefaultConfig returns a single-motor configuration on the software sink
func DefaultConfig() *MachineConfig {
	return &MachineConfig{
		Sink:     "soft",
		Baud:     DefaultBaud,
		LogLevel: "info",
		Motors: map[string]MotorConfig{
			"x": {
				StepPin:         "gpio0",
				DirPin:          "gpio1",
				EnablePin:       "gpio8",
				InvertEnable:    true,
				StepSize:        DefaultStepSize,
				UnitTimestep:    DefaultUnitTimestep,
				ResolutionHz:    DefaultResolutionHz,
				MemBlockSymbols: DefaultMemBlockSymbols,
				MaxShift:        DefaultMaxShift,
				MaxSteps:        DefaultMaxSteps,
				MaxSymbols:      DefaultMaxSymbols,
			},
		},
		Moves: []MoveConfig{
			{Motor: "x", From: 0, To: 100, Duration: 2},
			{Motor: "x", From: 100, To: 0, Duration: 2},
		},
	}
}
