//go:build rp2040 || rp2350

package main

import (
	"context"
	"machine"
	"time"

	"nojerky/config"
	"nojerky/core"
	"nojerky/standalone"
	piosink "nojerky/targets/pio"
)

// RunStandaloneMode runs the configured program once, then accepts line
// commands over USB. No host is required.
func RunStandaloneMode(cfg *config.MachineConfig, sinks []*piosink.Sink, gpio core.GPIODriver, group core.Syncer) {
	manager, err := standalone.NewManagerWithConfig(cfg)
	if err != nil {
		blinkForever(100 * time.Millisecond)
	}

	factory := func(name string, index int, motor config.MotorConfig) (core.PulseSink, error) {
		return sinks[index], nil
	}
	if err := manager.Initialize(factory, gpio, group); err != nil {
		blinkForever(100 * time.Millisecond)
	}
	if err := manager.Start(); err != nil {
		return
	}

	// Flash LED 3 times to indicate standalone mode started
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for i := 0; i < 3; i++ {
		led.High()
		time.Sleep(200 * time.Millisecond)
		led.Low()
		time.Sleep(200 * time.Millisecond)
	}

	ctx := context.Background()
	manager.Enable(true)
	if err := manager.RunProgram(ctx, func(r standalone.MoveReport) {
		if r.Err != nil {
			manager.SendResponse("!! move " + itoa(r.Index) + ": " + r.Err.Error() + "\n")
		}
	}); err != nil {
		core.DumpTimingRing()
	}

	for {
		if USBAvailable() > 0 {
			if b, err := USBRead(); err == nil {
				// Errors are reported to the sender by ProcessByte
				manager.ProcessByte(ctx, b)
			}
		}

		if output := manager.GetOutput(); len(output) > 0 {
			USBWriteBytes(output)
		}

		core.ProcessTimers()
		time.Sleep(10 * time.Microsecond)
	}
}
