//go:build rp2040 || rp2350

package main

import (
	"runtime/volatile"
	"unsafe"

	"nojerky/core"
)

// Raw reads of the 64-bit microsecond timer, no latching
const (
	timerTimeRawH = timerBase + 0x24
	timerTimeRawL = timerBase + 0x28

	// ClockHz is the rate of the hardware timer
	ClockHz = 1000000
)

var (
	timerRawH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTimeRawH)))
	timerRawL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTimeRawL)))
)

// InitClock makes the scheduler read the hardware timer before each dispatch
func InitClock() {
	// Discard a few reads while the tick generator settles
	_ = timerRawL.Get()
	_ = timerRawL.Get()
	core.SetClockSource(GetHardwareTime)
}

// GetHardwareTime returns the low 32 bits of the microsecond counter
func GetHardwareTime() uint32 {
	return timerRawL.Get()
}

// GetHardwareUptime reads the full 64-bit timer
func GetHardwareUptime() uint64 {
	// Re-read the high word to detect a carry between the two reads
	for {
		high1 := timerRawH.Get()
		low := timerRawL.Get()
		high2 := timerRawH.Get()
		if high1 == high2 {
			return (uint64(high1) << 32) | uint64(low)
		}
	}
}
