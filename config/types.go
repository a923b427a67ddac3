package config

// MotorConfig represents configuration for a single stepper channel
type MotorConfig struct {
	StepPin      string // GPIO pin for step pulses
	DirPin       string // GPIO pin for direction
	EnablePin    string // GPIO pin for enable (optional)
	InvertStep   bool   // Invert step output
	InvertDir    bool   // Invert direction signal
	InvertEnable bool   // Invert enable signal

	StepSize        float64 // Distance quantum per step pulse
	UnitTimestep    float64 // Finest timestep quantum (s)
	ResolutionHz    uint32  // Pulse peripheral tick rate
	MemBlockSymbols int     // Symbols per transaction
	MaxShift        int     // Largest split exponent for long pulses
	MaxSteps        int     // Timestep buffer limit per move
	MaxSymbols      int     // Symbol buffer limit per move
	MaxVelocity     float64 // Velocity bound for velocity-constrained moves (0 = time mode)
}

// MoveConfig is a motion command in configuration form
type MoveConfig struct {
	Motor    string
	From     uint32
	To       uint32
	V0       int32
	VT       int32
	A0       int32
	AT       int32
	Duration uint32  // Seconds, time-constrained mode
	VMax     float64 // Overrides the motor velocity bound when set
}

// MachineConfig represents the complete machine configuration
type MachineConfig struct {
	Sink     string                 // "soft", "serial" or "pio"
	Port     string                 // Serial device for the serial sink
	Baud     int                    // Serial baud rate
	Sync     bool                   // Align channel start times
	Motors   map[string]MotorConfig // Keyed by motor name
	Moves    []MoveConfig           // Demo program
	LogLevel string                 // debug, info, warn, error
}
