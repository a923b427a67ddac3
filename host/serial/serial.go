// Package serial opens the link between the host and a pulse firmware.
package serial

import (
	"errors"
	"io"
	"time"
)

var ErrNoDevice = errors.New("no serial device configured")

// Port is the byte stream a protocol.HostLink runs on.
// Native ports use github.com/tarm/serial; tests use in-memory pipes.
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate (USB CDC ignores this)
	Baud int

	// Read timeout; zero blocks until data arrives
	ReadTimeout time.Duration
}

// DefaultConfig returns the configuration used by the firmware's USB CDC port
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        250000,
		ReadTimeout: 100 * time.Millisecond,
	}
}

func (c *Config) validate() error {
	if c == nil || c.Device == "" {
		return ErrNoDevice
	}
	if c.Baud <= 0 {
		c.Baud = 250000
	}
	return nil
}
