package sink

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"nojerky/core"
	"nojerky/host/mcu"
	"nojerky/protocol"
)

// firmware runs a CurveServer on the far end of a pipe
type firmware struct {
	srv  *core.CurveServer
	gpio *core.SimGPIODriver
	soft *core.SoftSink
	stop chan struct{}
	done chan struct{}
}

func startFirmware(t *testing.T, conn net.Conn, capacity int, poll bool) *firmware {
	t.Helper()

	core.SetTime(0)
	gpio := core.NewSimGPIODriver()
	soft, err := core.NewSoftSink(gpio, core.SoftSinkConfig{
		Pin:        2,
		Resolution: 1000000,
		ClockHz:    1000000,
		Capacity:   capacity,
	})
	if err != nil {
		t.Fatalf("NewSoftSink: %v", err)
	}

	out := protocol.NewScratchOutput()
	fw := &firmware{gpio: gpio, soft: soft, stop: make(chan struct{}), done: make(chan struct{})}
	fw.srv = core.NewCurveServer(out, func() {
		if data := out.Take(); len(data) > 0 {
			conn.Write(data)
		}
	})
	fw.srv.AddChannel(soft)
	fw.srv.SetPinDriver(gpio)

	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			fw.srv.Receive(protocol.NewSliceInputBuffer(buf[:n]))
		}
	}()

	if poll {
		go func() {
			defer close(fw.done)
			for {
				select {
				case <-fw.stop:
					return
				default:
				}
				core.ProcessTimers()
				fw.srv.Poll()
				core.Idle()
				time.Sleep(20 * time.Microsecond)
			}
		}()
	} else {
		close(fw.done)
	}

	t.Cleanup(func() {
		close(fw.stop)
		<-fw.done
		conn.Close()
	})
	return fw
}

func connect(t *testing.T, capacity int, poll bool) (*mcu.MCU, *firmware) {
	t.Helper()
	hostConn, devConn := net.Pipe()
	fw := startFirmware(t, devConn, capacity, poll)

	m := mcu.NewMCU()
	m.Attach(hostConn)
	t.Cleanup(func() { m.Close() })
	return m, fw
}

func testCurve(t *testing.T, steps int) *core.PulseCurve {
	t.Helper()
	dts := make([]float64, steps)
	for i := range dts {
		dts[i] = 0.0005 + float64(i%3)*0.0001
	}
	curve, err := core.EncodeCurve(dts, 1000000, core.EncodeOptions{})
	if err != nil {
		t.Fatalf("EncodeCurve: %v", err)
	}
	return curve
}

func TestSerialSinkPlaysCurve(t *testing.T) {
	m, fw := connect(t, 8, true)

	s, err := NewSerialSink(m, Config{Channel: 0, Capacity: 8, Resolution: 1000000})
	if err != nil {
		t.Fatalf("NewSerialSink: %v", err)
	}

	curve := testCurve(t, 20)
	if err := core.Play(context.Background(), curve, s); err != nil {
		t.Fatalf("Play: %v", err)
	}

	if got := fw.soft.Edges(); got != 20 {
		t.Errorf("firmware drove %d rising edges, expected 20", got)
	}
	if got := fw.gpio.Transitions(2); got != 40 {
		t.Errorf("expected 40 transitions, got %d", got)
	}
}

func TestSerialSinkRemoteOverflow(t *testing.T) {
	m, _ := connect(t, 4, true)

	// Host believes the channel holds more than it does
	s, err := NewSerialSink(m, Config{Channel: 0, Capacity: 16, Resolution: 1000000})
	if err != nil {
		t.Fatalf("NewSerialSink: %v", err)
	}

	err = core.Play(context.Background(), testCurve(t, 10), s)
	if !errors.Is(err, core.ErrTransmit) || !errors.Is(err, ErrRemote) {
		t.Fatalf("expected ErrTransmit wrapping ErrRemote, got %v", err)
	}
}

func TestSerialSinkTimeout(t *testing.T) {
	// Without polling the firmware never reports completion
	m, _ := connect(t, 8, false)

	s, err := NewSerialSink(m, Config{Channel: 0, Capacity: 8})
	if err != nil {
		t.Fatalf("NewSerialSink: %v", err)
	}

	curve := testCurve(t, 4)
	enc, err := s.NewEncoder(curve.Symbols)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	if err := s.Transmit(enc); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	if err := s.Transmit(enc); !errors.Is(err, core.ErrSinkBusy) {
		t.Errorf("second Transmit: expected ErrSinkBusy, got %v", err)
	}
	if err := s.WaitDone(50 * time.Millisecond); !errors.Is(err, ErrAckTimeout) {
		t.Fatalf("expected ErrAckTimeout, got %v", err)
	}
	if err := s.Release(enc); err != nil {
		t.Errorf("Release: %v", err)
	}
}

func TestSerialSinkReleaseStopsFirmwareChannel(t *testing.T) {
	// Without polling the firmware channel stays busy until aborted
	m, _ := connect(t, 8, false)

	s, err := NewSerialSink(m, Config{Channel: 0, Capacity: 8})
	if err != nil {
		t.Fatalf("NewSerialSink: %v", err)
	}

	curve := testCurve(t, 4)
	enc, err := s.NewEncoder(curve.Symbols)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	if err := s.Transmit(enc); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	if err := s.WaitDone(20 * time.Millisecond); !errors.Is(err, ErrAckTimeout) {
		t.Fatalf("expected ErrAckTimeout, got %v", err)
	}
	if err := s.Release(enc); err != nil {
		t.Fatalf("Release: %v", err)
	}

	// A busy channel would answer the next run with StatusBusy at once
	enc, err = s.NewEncoder(curve.Symbols)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	if err := s.Transmit(enc); err != nil {
		t.Fatalf("second Transmit: %v", err)
	}
	if err := s.WaitDone(50 * time.Millisecond); !errors.Is(err, ErrAckTimeout) {
		t.Errorf("expected the second chunk to be accepted and running, got %v", err)
	}
}

func TestSerialSinkRejectsLargeChunk(t *testing.T) {
	m, _ := connect(t, 8, false)

	s, err := NewSerialSink(m, Config{Channel: 0, Capacity: 2})
	if err != nil {
		t.Fatalf("NewSerialSink: %v", err)
	}
	if _, err := s.NewEncoder(make([]core.PulseSymbol, 3)); !errors.Is(err, core.ErrChunkTooLarge) {
		t.Errorf("expected ErrChunkTooLarge, got %v", err)
	}
	if _, err := NewSerialSink(m, Config{Channel: 0, Capacity: 2}); !errors.Is(err, mcu.ErrChannelInUse) {
		t.Errorf("expected ErrChannelInUse, got %v", err)
	}
	if _, err := NewSerialSink(m, Config{Channel: 1}); !errors.Is(err, core.ErrInvalidCapacity) {
		t.Errorf("expected ErrInvalidCapacity, got %v", err)
	}
}

func TestMCUIdentify(t *testing.T) {
	m, _ := connect(t, 12, false)

	info, err := m.Identify(time.Second)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if info.Channels != 1 || info.Capacity != 12 || info.Resolution != 1000000 {
		t.Errorf("unexpected identity %+v", info)
	}
	if m.Info() == nil {
		t.Error("Info not recorded")
	}
}

func TestMCURemoteGPIO(t *testing.T) {
	m, fw := connect(t, 8, false)
	gpio := m.GPIO()

	if _, err := gpio.GetPin(6); !errors.Is(err, core.ErrPinNotConfigured) {
		t.Errorf("expected ErrPinNotConfigured, got %v", err)
	}
	if err := gpio.ConfigureOutput(6); err != nil {
		t.Fatalf("ConfigureOutput: %v", err)
	}
	if err := gpio.SetPin(6, true); err != nil {
		t.Fatalf("SetPin: %v", err)
	}
	if v, err := gpio.GetPin(6); err != nil || !v {
		t.Errorf("cached level %v (%v), expected high", v, err)
	}
	// SetPin returns once the firmware has ACKed the frame
	if v, err := fw.gpio.GetPin(6); err != nil || !v {
		t.Errorf("firmware pin %v (%v), expected high", v, err)
	}
}
