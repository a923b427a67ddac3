//go:build rp2040 || rp2350

package main

import (
	"machine"
	"time"
)

// modePin selects standalone mode when strapped to ground at boot
const modePin = machine.GPIO22

// ModeConfig determines which mode to run
type ModeConfig struct {
	// Standalone runs the built-in program and line commands instead of
	// serving a host
	Standalone bool
}

// GetMode samples the strap pin
func GetMode() ModeConfig {
	modePin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	time.Sleep(time.Millisecond)
	return ModeConfig{Standalone: !modePin.Get()}
}
