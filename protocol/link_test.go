package protocol

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

// runDevice serves a Device on conn until it is closed
func runDevice(conn net.Conn, handler func(d *Device, msg any) error) *Device {
	out := NewScratchOutput()
	var d *Device
	d = NewDevice(out, func(msg any) error {
		return handler(d, msg)
	})
	d.SetFlushCallback(func() {
		conn.Write(out.Take())
	})

	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			d.Receive(NewSliceInputBuffer(buf[:n]))
		}
	}()
	return d
}

func TestHostLinkCurveExchange(t *testing.T) {
	hostConn, devConn := net.Pipe()

	var mu sync.Mutex
	var staged []uint32
	runDevice(devConn, func(d *Device, msg any) error {
		switch m := msg.(type) {
		case CurveData:
			mu.Lock()
			staged = append(staged, m.Words...)
			mu.Unlock()
		case CurveRun:
			return d.Send(CurveDone{Channel: m.Channel, Status: StatusOK, Count: m.Count})
		}
		return nil
	})

	done := make(chan CurveDone, 1)
	link := NewHostLink(hostConn, func(msg any) {
		if m, ok := msg.(CurveDone); ok {
			done <- m
		}
	})
	defer link.Close()

	words := make([]uint32, 40)
	for i := range words {
		words[i] = uint32(i+1)<<16 | uint32(i+1)
	}
	for _, m := range SplitCurveData(0, words) {
		if err := link.Send(m); err != nil {
			t.Fatalf("Send CurveData: %v", err)
		}
	}
	if err := link.Send(CurveRun{Channel: 0, Count: uint32(len(words))}); err != nil {
		t.Fatalf("Send CurveRun: %v", err)
	}

	select {
	case m := <-done:
		if m.Status != StatusOK || m.Count != uint32(len(words)) {
			t.Errorf("unexpected completion %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no CurveDone received")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(staged) != len(words) {
		t.Fatalf("device staged %d words, expected %d", len(staged), len(words))
	}
	for i := range words {
		if staged[i] != words[i] {
			t.Errorf("word %d: expected 0x%08X, got 0x%08X", i, words[i], staged[i])
		}
	}
}

func TestHostLinkAckTimeout(t *testing.T) {
	hostConn, devConn := net.Pipe()
	defer devConn.Close()

	// Drain without answering
	go func() {
		buf := make([]byte, 256)
		for {
			if _, err := devConn.Read(buf); err != nil {
				return
			}
		}
	}()

	link := NewHostLink(hostConn, nil)
	defer link.Close()
	link.SetAckTimeout(50 * time.Millisecond)

	err := link.Send(Reset{})
	if !errors.Is(err, ErrAckTimeout) {
		t.Fatalf("expected ErrAckTimeout, got %v", err)
	}
	if link.Sequence() != MessageDest {
		t.Errorf("sequence advanced without ACK: 0x%02x", link.Sequence())
	}
}

func TestDeviceSequenceAndReset(t *testing.T) {
	out := NewScratchOutput()
	var got []any
	resets := 0
	d := NewDevice(out, func(msg any) error {
		got = append(got, msg)
		return nil
	})
	d.SetResetCallback(func() { resets++ })

	frame := func(seq uint8, m Encoder) []byte {
		s := NewScratchOutput()
		EncodeFrame(s, seq, Payload(m))
		return s.Take()
	}

	// In order
	d.Receive(NewSliceInputBuffer(frame(0x10, CurveRun{Count: 1})))
	d.Receive(NewSliceInputBuffer(frame(0x11, CurveRun{Count: 2})))
	// Duplicate is acknowledged but not dispatched
	d.Receive(NewSliceInputBuffer(frame(0x11, CurveRun{Count: 2})))
	if len(got) != 2 {
		t.Fatalf("expected 2 dispatched messages, got %d", len(got))
	}

	acks := out.Take()
	var seqs []uint8
	dec := NewFrameDecoder()
	for len(acks) > 0 {
		msg, n, err := dec.Next(acks)
		if err != nil || msg == nil {
			t.Fatalf("bad ACK stream: %v", err)
		}
		seqs = append(seqs, msg.Sequence)
		acks = acks[n:]
	}
	want := []uint8{0x11, 0x12, 0x12}
	for i := range want {
		if seqs[i] != want[i] {
			t.Errorf("ACK %d: expected 0x%02x, got 0x%02x", i, want[i], seqs[i])
		}
	}

	// Host restart
	d.Receive(NewSliceInputBuffer(frame(0x10, Reset{})))
	if resets != 1 || len(got) != 3 {
		t.Errorf("expected reset and dispatch, got resets=%d messages=%d", resets, len(got))
	}
}
