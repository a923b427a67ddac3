package core

import "sync"

// SimGPIODriver keeps pin levels in memory.
// Used for dry runs on the host and in tests.
type SimGPIODriver struct {
	mu          sync.Mutex
	pins        map[GPIOPin]bool
	configured  map[GPIOPin]bool
	transitions map[GPIOPin]int
}

// NewSimGPIODriver returns a driver with no configured pins
func NewSimGPIODriver() *SimGPIODriver {
	return &SimGPIODriver{
		pins:        make(map[GPIOPin]bool),
		configured:  make(map[GPIOPin]bool),
		transitions: make(map[GPIOPin]int),
	}
}

func (d *SimGPIODriver) ConfigureOutput(pin GPIOPin) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.configured[pin] = true
	d.pins[pin] = false
	return nil
}

func (d *SimGPIODriver) SetPin(pin GPIOPin, value bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.configured[pin] {
		return ErrPinNotConfigured
	}
	if d.pins[pin] != value {
		d.transitions[pin]++
	}
	d.pins[pin] = value
	return nil
}

func (d *SimGPIODriver) GetPin(pin GPIOPin) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.configured[pin] {
		return false, ErrPinNotConfigured
	}
	return d.pins[pin], nil
}

// Transitions returns the number of level changes driven on a pin
func (d *SimGPIODriver) Transitions(pin GPIOPin) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transitions[pin]
}
