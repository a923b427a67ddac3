// Package mcu manages the host's connection to a pulse firmware: opening
// the port, identifying the device and routing completion reports to the
// channels waiting for them.
package mcu

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"nojerky/core"
	"nojerky/host/serial"
	"nojerky/protocol"
)

var (
	ErrNotConnected    = errors.New("not connected to MCU")
	ErrChannelInUse    = errors.New("channel already subscribed")
	ErrIdentifyTimeout = errors.New("no identify response")
)

// MCU represents a connection to a pulse firmware
type MCU struct {
	link *protocol.HostLink
	port io.ReadWriteCloser

	mu       sync.Mutex
	channels map[uint8]chan protocol.CurveDone
	identity chan protocol.Identify
	info     *protocol.Identify

	// Responses nobody was waiting for
	Dropped uint32
}

// NewMCU creates a new MCU instance (not yet connected)
func NewMCU() *MCU {
	return &MCU{
		channels: make(map[uint8]chan protocol.CurveDone),
		identity: make(chan protocol.Identify, 1),
	}
}

// Connect connects to an MCU via serial port
func (m *MCU) Connect(device string) error {
	return m.ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig connects to an MCU with a custom serial config
func (m *MCU) ConnectWithConfig(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	if err := port.Flush(); err != nil {
		port.Close()
		return fmt.Errorf("flush %s: %w", cfg.Device, err)
	}

	m.Attach(port)

	// Give the MCU time to settle if it just enumerated
	time.Sleep(100 * time.Millisecond)
	return nil
}

// Attach runs the link over an already open stream
func (m *MCU) Attach(port io.ReadWriteCloser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.port = port
	m.link = protocol.NewHostLink(port, m.handleResponse)
}

// SetAckTimeout overrides the per-frame ACK timeout
func (m *MCU) SetAckTimeout(d time.Duration) {
	if link := m.current(); link != nil {
		link.SetAckTimeout(d)
	}
}

// Close closes the connection to the MCU
func (m *MCU) Close() error {
	m.mu.Lock()
	link := m.link
	m.link = nil
	m.mu.Unlock()

	if link == nil {
		return nil
	}
	return link.Close()
}

// IsConnected returns true if connected to an MCU
func (m *MCU) IsConnected() bool {
	return m.current() != nil
}

func (m *MCU) current() *protocol.HostLink {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.link
}

// Send delivers one message and waits for its ACK
func (m *MCU) Send(msg protocol.Encoder) error {
	link := m.current()
	if link == nil {
		return ErrNotConnected
	}
	return link.Send(msg)
}

// Identify queries the firmware's channel layout
func (m *MCU) Identify(timeout time.Duration) (protocol.Identify, error) {
	select {
	case <-m.identity:
	default:
	}

	if err := m.Send(protocol.Identify{}); err != nil {
		return protocol.Identify{}, fmt.Errorf("send identify: %w", err)
	}

	select {
	case info := <-m.identity:
		m.mu.Lock()
		m.info = &info
		m.mu.Unlock()
		return info, nil
	case <-time.After(timeout):
		return protocol.Identify{}, ErrIdentifyTimeout
	}
}

// Info returns the last identify response, nil before Identify succeeds
func (m *MCU) Info() *protocol.Identify {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info
}

// Subscribe returns the stream of completion reports for a channel
func (m *MCU) Subscribe(channel uint8) (<-chan protocol.CurveDone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[channel]; ok {
		return nil, fmt.Errorf("%w: %d", ErrChannelInUse, channel)
	}
	ch := make(chan protocol.CurveDone, 1)
	m.channels[channel] = ch
	return ch, nil
}

// Unsubscribe stops routing reports for a channel
func (m *MCU) Unsubscribe(channel uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, channel)
}

// SyncReset aligns every subscribed channel so their next curves start together
func (m *MCU) SyncReset() error {
	m.mu.Lock()
	var mask uint32
	for ch := range m.channels {
		if ch < 32 {
			mask |= 1 << ch
		}
	}
	m.mu.Unlock()
	return m.SyncMask(mask)
}

// SyncMask aligns the channels whose bit is set
func (m *MCU) SyncMask(mask uint32) error {
	if mask == 0 {
		return nil
	}
	return m.Send(protocol.SyncReset{Mask: mask})
}

// Reset drops everything staged on the firmware
func (m *MCU) Reset() error {
	return m.Send(protocol.Reset{})
}

// handleResponse routes responses from the link reader
func (m *MCU) handleResponse(msg any) {
	switch r := msg.(type) {
	case protocol.CurveDone:
		m.mu.Lock()
		ch, ok := m.channels[r.Channel]
		if !ok {
			m.Dropped++
			m.mu.Unlock()
			return
		}
		select {
		case ch <- r:
		default:
			m.Dropped++
		}
		m.mu.Unlock()
	case protocol.Identify:
		select {
		case m.identity <- r:
		default:
		}
	}
}

// GPIO returns a driver whose pins live on the firmware.
// Reads return the last level written.
func (m *MCU) GPIO() core.GPIODriver {
	return &remoteGPIO{mcu: m, levels: make(map[core.GPIOPin]bool)}
}

type remoteGPIO struct {
	mcu    *MCU
	mu     sync.Mutex
	levels map[core.GPIOPin]bool
}

// ConfigureOutput records the pin; the firmware configures it on first write
func (g *remoteGPIO) ConfigureOutput(pin core.GPIOPin) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.levels[pin] = false
	return nil
}

func (g *remoteGPIO) SetPin(pin core.GPIOPin, value bool) error {
	if err := g.mcu.Send(protocol.SetPin{Pin: uint32(pin), Value: value}); err != nil {
		return fmt.Errorf("set pin %d: %w", pin, err)
	}
	g.mu.Lock()
	g.levels[pin] = value
	g.mu.Unlock()
	return nil
}

func (g *remoteGPIO) GetPin(pin core.GPIOPin) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.levels[pin]
	if !ok {
		return false, core.ErrPinNotConfigured
	}
	return v, nil
}
