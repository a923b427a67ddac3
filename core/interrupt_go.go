//go:build !tinygo

package core

import "sync"

// State is a placeholder for interrupt state on regular Go
type State uintptr

// schedMu stands in for interrupt masking when goroutines share the timer list
var schedMu sync.Mutex

// disableInterrupts takes the scheduler lock on regular Go
func disableInterrupts() State {
	schedMu.Lock()
	return 0
}

// restoreInterrupts releases the scheduler lock
func restoreInterrupts(state State) {
	schedMu.Unlock()
}
