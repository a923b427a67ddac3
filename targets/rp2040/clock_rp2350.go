//go:build rp2350

package main

// The RP2350 timer lives at a different address than the RP2040's
const (
	timerBase = 0x400B0000 // TIMER0
	chipName  = "rp2350"
)
