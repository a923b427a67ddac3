//go:build rp2040 || rp2350

package pio

import (
	"device/rp"
	"errors"
	"machine"

	"nojerky/core"
)

var ErrPinRange = errors.New("pin outside the SIO bank")

// GPIO implements core.GPIODriver for the direction and enable pins.
// Levels are written through the SIO set/clear registers.
type GPIO struct {
	configured uint32 // Bit n set once GPIOn is an output
}

// NewGPIO creates a driver for bank 0 pins
func NewGPIO() *GPIO {
	return &GPIO{}
}

// ConfigureOutput configures a pin as a digital output
func (d *GPIO) ConfigureOutput(pin core.GPIOPin) error {
	if pin >= 32 {
		return ErrPinRange
	}
	if d.configured&(1<<pin) != 0 {
		return nil
	}
	machine.Pin(pin).Configure(machine.PinConfig{Mode: machine.PinOutput})
	d.configured |= 1 << pin
	return nil
}

// SetPin sets the pin to high (true) or low (false)
func (d *GPIO) SetPin(pin core.GPIOPin, value bool) error {
	if pin >= 32 || d.configured&(1<<pin) == 0 {
		return core.ErrPinNotConfigured
	}
	FastGPIOSet(uint8(pin), value)
	return nil
}

// GetPin reads the current pin state
func (d *GPIO) GetPin(pin core.GPIOPin) (bool, error) {
	if pin >= 32 || d.configured&(1<<pin) == 0 {
		return false, core.ErrPinNotConfigured
	}
	return rp.SIO.GPIO_IN.Get()&(1<<pin) != 0, nil
}

// FastGPIOSet is an optimized GPIO set function using direct register access
func FastGPIOSet(pin uint8, high bool) {
	mask := uint32(1) << pin
	if high {
		rp.SIO.GPIO_OUT_SET.Set(mask)
	} else {
		rp.SIO.GPIO_OUT_CLR.Set(mask)
	}
}
