//go:build rp2040 || rp2350

package main

// PIO curve bench: plays jerk-limited moves of increasing speed on one
// channel. Watch step and dir on an oscilloscope.

import (
	"context"
	"machine"
	"time"

	"nojerky/core"
	"nojerky/stepper"
	piosink "nojerky/targets/pio"
)

const (
	stepPin = machine.GPIO2
	dirPin  = machine.GPIO3
)

// Each move covers the same distance in less time
var speedTests = []struct {
	steps    uint32
	duration uint32 // s
	name     string
}{
	{2000, 4, "slow (~0.5 kHz avg)"},
	{20000, 4, "medium (~5 kHz avg)"},
	{100000, 2, "fast (~50 kHz avg)"},
}

func main() {
	time.Sleep(3 * time.Second)

	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	fail := func(msg string, err error) {
		println(msg, err.Error())
		for {
			led.High()
			time.Sleep(100 * time.Millisecond)
			led.Low()
			time.Sleep(100 * time.Millisecond)
		}
	}

	core.SetClockSource(func() uint32 { return uint32(time.Now().UnixMicro()) })
	core.TimerInit()

	println("=== PIO Curve Test ===")
	println("Step: GP2, Dir: GP3")

	sink, err := piosink.NewSink(piosink.SinkConfig{Name: "bench", Pin: stepPin})
	if err != nil {
		fail("sink:", err)
	}
	st, err := stepper.New(stepper.Config{
		Name:     "bench",
		DirPin:   core.GPIOPin(dirPin),
		HasDir:   true,
		StepSize: 1,
	}, sink, piosink.NewGPIO())
	if err != nil {
		fail("stepper:", err)
	}
	println("Init OK on", sink.GetName())

	ctx := context.Background()
	cycle := 0
	for {
		cycle++
		println("\n=== Cycle", cycle, "===")

		for _, test := range speedTests {
			led.High()
			res, err := st.Move(ctx, stepper.Command{From: 0, To: test.steps, Duration: test.duration})
			if err != nil {
				println("  move failed:", err.Error())
				core.DumpTimingRing()
			} else {
				println("Speed:", test.name, "steps:", res.Steps, "symbols:", res.Symbols)
			}
			// Return home; the stepper mirrors the curve and flips dir
			st.Move(ctx, stepper.Command{From: test.steps, To: 0, Duration: test.duration})
			led.Low()
			time.Sleep(500 * time.Millisecond)
		}
	}
}
