// Package sink ships pulse curves to a firmware over the serial protocol.
package sink

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"nojerky/core"
	"nojerky/protocol"
)

var (
	ErrAckTimeout = errors.New("timed out waiting for curve completion")
	ErrRemote     = errors.New("firmware rejected curve")
)

// Link is the connection a SerialSink sends on
type Link interface {
	Send(m protocol.Encoder) error
	Subscribe(channel uint8) (<-chan protocol.CurveDone, error)
}

// Config describes one firmware channel
type Config struct {
	Name       string
	Channel    uint8
	Capacity   int    // Symbols the firmware can stage
	Resolution uint32 // Firmware tick rate in Hz
}

// SerialSink implements core.PulseSink on a firmware channel
type SerialSink struct {
	cfg  Config
	link Link
	done <-chan protocol.CurveDone

	mu      sync.Mutex
	pending uint32 // Symbols awaiting completion, 0 when idle
	busy    bool
}

// NewSerialSink subscribes to a channel's completion reports
func NewSerialSink(link Link, cfg Config) (*SerialSink, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("channel %d: %w", cfg.Channel, core.ErrInvalidCapacity)
	}
	if cfg.Resolution == 0 {
		cfg.Resolution = 1000000
	}
	if cfg.Name == "" {
		cfg.Name = fmt.Sprintf("serial-%d", cfg.Channel)
	}

	done, err := link.Subscribe(cfg.Channel)
	if err != nil {
		return nil, err
	}
	return &SerialSink{cfg: cfg, link: link, done: done}, nil
}

// NewEncoder binds a chunk
func (s *SerialSink) NewEncoder(symbols []core.PulseSymbol) (core.ChunkEncoder, error) {
	if len(symbols) > s.cfg.Capacity {
		return nil, core.ErrChunkTooLarge
	}
	return core.NewSymbolEncoder(symbols), nil
}

// Transmit stages the chunk on the firmware and starts it
func (s *SerialSink) Transmit(enc core.ChunkEncoder) error {
	if enc == nil {
		return core.ErrNoEncoder
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return core.ErrSinkBusy
	}

	// Drop a report left over from an abandoned chunk
	select {
	case <-s.done:
	default:
	}

	symbols := enc.Symbols()
	words := make([]uint32, len(symbols))
	for i, sym := range symbols {
		words[i] = sym.Word()
	}

	for _, m := range protocol.SplitCurveData(s.cfg.Channel, words) {
		if err := s.link.Send(m); err != nil {
			return fmt.Errorf("stage at %d: %w", m.Offset, err)
		}
	}
	if err := s.link.Send(protocol.CurveRun{Channel: s.cfg.Channel, Count: uint32(len(words))}); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	s.pending = uint32(len(words))
	s.busy = true
	return nil
}

// WaitDone waits for the firmware's completion report
func (s *SerialSink) WaitDone(timeout time.Duration) error {
	s.mu.Lock()
	busy, want := s.busy, s.pending
	s.mu.Unlock()
	if !busy {
		return nil
	}

	select {
	case m := <-s.done:
		s.mu.Lock()
		s.busy = false
		s.pending = 0
		s.mu.Unlock()

		if m.Status != protocol.StatusOK {
			return fmt.Errorf("%w: channel %d: %s", ErrRemote, m.Channel, protocol.StatusText(m.Status))
		}
		if m.Count != want {
			return fmt.Errorf("%w: channel %d played %d of %d symbols", ErrRemote, m.Channel, m.Count, want)
		}
		return nil

	case <-time.After(timeout):
		return fmt.Errorf("%w after %v", ErrAckTimeout, timeout)
	}
}

// Release abandons a chunk still in flight, stopping it on the firmware so
// the channel accepts a new chunk at once
func (s *SerialSink) Release(enc core.ChunkEncoder) error {
	if enc == nil {
		return core.ErrNoEncoder
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.busy {
		return nil
	}
	s.busy = false
	s.pending = 0
	if err := s.link.Send(protocol.Abort{Channel: s.cfg.Channel}); err != nil {
		return fmt.Errorf("abort channel %d: %w", s.cfg.Channel, err)
	}
	return nil
}

// Capacity returns the maximum symbols per transaction
func (s *SerialSink) Capacity() int {
	return s.cfg.Capacity
}

// Resolution returns the firmware tick rate in Hz
func (s *SerialSink) Resolution() uint32 {
	return s.cfg.Resolution
}

// GetName returns sink implementation name
func (s *SerialSink) GetName() string {
	return s.cfg.Name
}

// Channel returns the firmware channel number
func (s *SerialSink) Channel() uint8 {
	return s.cfg.Channel
}
