//go:build !tinygo

package core

import "sync/atomic"

var systemTicks atomic.Uint32

func getSystemTicks() uint32 {
	return systemTicks.Load()
}

func setSystemTicks(ticks uint32) {
	systemTicks.Store(ticks)
}

// idle advances the simulated clock to the next timer wake time.
// The host has no free-running counter, so waiting loops jump time forward.
func idle() {
	state := disableInterrupts()
	next := timerList
	var wake uint32
	if next != nil {
		wake = next.WakeTime
	}
	restoreInterrupts(state)

	if next == nil {
		return
	}
	for {
		now := systemTicks.Load()
		if wake <= now || systemTicks.CompareAndSwap(now, wake) {
			return
		}
	}
}
