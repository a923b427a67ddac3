//go:build rp2040 || rp2350

package main

import (
	"machine"
	"time"

	"nojerky/config"
	"nojerky/core"
	"nojerky/protocol"
	piosink "nojerky/targets/pio"
)

var (
	// Buffers for communication
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	server       *core.CurveServer

	// Debug counters
	messagesReceived uint32
	messagesSent     uint32
	msgerrors        uint32

	// USB connection state tracking
	usbWasDisconnected       bool
	consecutiveWriteFailures uint32
)

func main() {
	// Disable the watchdog so a previous reset does not persist
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitUSB()
	InitClock()
	initDebug()
	core.TimerInit()

	gpio := piosink.NewGPIO()
	core.SetGPIODriver(gpio)

	cfg := config.DefaultConfig()
	names, sinks, err := buildSinks(cfg)
	if err != nil {
		blinkForever(100 * time.Millisecond)
	}
	group := piosink.NewGroup(sinks...)

	if GetMode().Standalone {
		RunStandaloneMode(cfg, sinks, gpio, group)
		return
	}
	runCurveServer(names, sinks, gpio, group)
}

// buildSinks creates one PIO channel per motor in name order, matching the
// channel numbering of the host
func buildSinks(cfg *config.MachineConfig) ([]string, []*piosink.Sink, error) {
	names := cfg.MotorNames()
	sinks := make([]*piosink.Sink, 0, len(names))
	for _, name := range names {
		motor := cfg.Motors[name]
		pin, err := config.ParsePin(motor.StepPin)
		if err != nil {
			return nil, nil, err
		}
		s, err := piosink.NewSink(piosink.SinkConfig{
			Name:       name,
			Pin:        machine.Pin(pin),
			Resolution: motor.ResolutionHz,
			ClockHz:    ClockHz,
			Capacity:   motor.MemBlockSymbols,
		})
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, s)
	}
	return names, sinks, nil
}

// runCurveServer serves curve messages from the host over USB
func runCurveServer(names []string, sinks []*piosink.Sink, gpio core.GPIODriver, group core.Syncer) {
	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()

	// Flush immediately: the host waits for each ACK before the next frame
	server = core.NewCurveServer(outputBuffer, writeUSB)
	for i, s := range sinks {
		server.AddChannel(s)
		core.DebugPrintln("channel " + itoa(i) + ": " + names[i] + " " + s.GetName())
	}
	server.SetSyncer(group)
	server.SetPinDriver(gpio)

	go usbReaderLoop()

	for {
		// Recover from panics in the main loop to prevent a firmware crash
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
				}
			}()

			if inputBuffer.Available() > 0 {
				data := inputBuffer.Data()
				originalLen := len(data)
				inputBuf := protocol.NewSliceInputBuffer(data)

				server.Receive(inputBuf)
				messagesReceived++

				if consumed := originalLen - inputBuf.Available(); consumed > 0 {
					inputBuffer.Pop(consumed)
				}
			}

			core.ProcessTimers()
			server.Poll()

			if len(outputBuffer.Result()) > 0 {
				writeUSB()
				messagesSent++
			}
		}()

		// Yield to the reader goroutine
		time.Sleep(10 * time.Microsecond)
	}
}

// usbReaderLoop runs in a goroutine to continuously read USB data
func usbReaderLoop() {
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop()
		}
	}()

	for {
		if USBAvailable() > 0 {
			data, err := USBRead()
			if err != nil {
				msgerrors++
				time.Sleep(1 * time.Millisecond)
				continue
			}

			// Data after a disconnect starts a fresh session
			if usbWasDisconnected {
				usbWasDisconnected = false
				inputBuffer.Reset()
				outputBuffer.Reset()
				server.Reset()
				messagesReceived = 0
				messagesSent = 0
				consecutiveWriteFailures = 0
			}

			if inputBuffer.Write([]byte{data}) == 0 {
				// Buffer full
				msgerrors++
				time.Sleep(10 * time.Millisecond)
			}
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// writeUSB writes pending output, marking the link down after repeated
// failures
func writeUSB() {
	result := outputBuffer.Result()
	written := 0
	for written < len(result) {
		n, err := USBWriteBytes(result[written:])
		if err != nil || n == 0 {
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				usbWasDisconnected = true
				consecutiveWriteFailures = 0
				// Drop stale data rather than retrying it forever
				outputBuffer.Reset()
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
	outputBuffer.Reset()
}

// blinkForever signals a fatal setup error on the LED
func blinkForever(period time.Duration) {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for {
		led.High()
		time.Sleep(period)
		led.Low()
		time.Sleep(period)
	}
}

// itoa converts int to string without importing strconv (for embedded)
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}
