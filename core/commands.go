package core

// Firmware side of the curve protocol: stages symbols received from the
// host per channel and plays them on the channel's sink.

import (
	"errors"
	"sync"
	"time"

	"nojerky/protocol"
)

// pollWait bounds WaitDone for sinks that cannot report completion
const pollWait = 10 * time.Millisecond

// curveChannel holds a channel's staged symbols and playback state
type curveChannel struct {
	sink    PulseSink
	staged  []PulseSymbol
	enc     ChunkEncoder
	running bool
	status  uint8 // First staging error since the last run
}

// CurveServer dispatches protocol messages to pulse channels
type CurveServer struct {
	mu       sync.Mutex
	device   *protocol.Device
	channels []*curveChannel
	syncer   Syncer
	gpio     GPIODriver
	outputs  map[GPIOPin]bool // Pins configured through SetPin

	Completed uint32
	Faults    uint32
}

// NewCurveServer creates a server writing responses to output.
// flush is called whenever a response or ACK is ready.
func NewCurveServer(output protocol.OutputBuffer, flush func()) *CurveServer {
	s := &CurveServer{outputs: make(map[GPIOPin]bool)}
	s.device = protocol.NewDevice(output, s.handle)
	if flush != nil {
		s.device.SetFlushCallback(flush)
	}
	s.device.SetResetCallback(s.abortAll)
	return s
}

// AddChannel registers a sink and returns its channel number
func (s *CurveServer) AddChannel(sink PulseSink) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = append(s.channels, &curveChannel{
		sink:   sink,
		staged: make([]PulseSymbol, 0, sink.Capacity()),
	})
	return uint8(len(s.channels) - 1)
}

// SetSyncer installs the hook run on SyncReset
func (s *CurveServer) SetSyncer(syncer Syncer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncer = syncer
}

// SetPinDriver selects the driver for host pin requests.
// Defaults to the globally registered driver.
func (s *CurveServer) SetPinDriver(d GPIODriver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gpio = d
}

// Receive feeds host bytes into the link
func (s *CurveServer) Receive(input protocol.InputBuffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.device.Receive(input)
}

// Reset restarts the link after a reconnect and aborts every channel
func (s *CurveServer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.device.Reset()
}

// Poll reports channels whose playback has finished.
// Call it from the main loop after ProcessTimers.
func (s *CurveServer) Poll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, ch := range s.channels {
		if !ch.running {
			continue
		}
		if d, ok := ch.sink.(DoneReporter); ok && !d.Done() {
			continue
		}

		status := protocol.StatusOK
		if err := ch.sink.WaitDone(pollWait); err != nil {
			if _, ok := ch.sink.(DoneReporter); !ok && errors.Is(err, ErrSinkTimeout) {
				continue
			}
			status = protocol.StatusFault
			s.Faults++
		}
		s.finish(uint8(i), ch, status)
	}
}

// finish releases the chunk and reports completion to the host
func (s *CurveServer) finish(channel uint8, ch *curveChannel, status uint8) {
	count := uint32(len(ch.staged))
	if ch.enc != nil {
		ch.sink.Release(ch.enc)
		ch.enc = nil
	}
	ch.running = false
	ch.staged = ch.staged[:0]
	if status == protocol.StatusOK {
		s.Completed++
	}
	RecordTiming(EvtChunkDone, channel, GetTime(), count, uint32(status))
	s.device.Send(protocol.CurveDone{Channel: channel, Status: status, Count: count})
}

// handle runs with s.mu held, from Receive
func (s *CurveServer) handle(msg any) error {
	switch m := msg.(type) {
	case protocol.CurveData:
		s.handleCurveData(m)
	case protocol.CurveRun:
		s.handleCurveRun(m)
	case protocol.SyncReset:
		if ms, ok := s.syncer.(MaskSyncer); ok {
			return ms.SyncMask(m.Mask)
		}
		if s.syncer != nil {
			return s.syncer.SyncReset()
		}
	case protocol.Reset:
		s.abortAll()
	case protocol.Abort:
		if ch := s.channel(m.Channel); ch != nil {
			ch.abort()
		}
	case protocol.Identify:
		return s.device.Send(s.identity())
	case protocol.SetPin:
		return s.setPin(GPIOPin(m.Pin), m.Value)
	}
	return nil
}

// setPin configures the pin as an output on first use
func (s *CurveServer) setPin(pin GPIOPin, value bool) error {
	d := s.gpio
	if d == nil {
		d = MustGPIO()
	}
	if !s.outputs[pin] {
		if err := d.ConfigureOutput(pin); err != nil {
			return err
		}
		s.outputs[pin] = true
	}
	return d.SetPin(pin, value)
}

func (s *CurveServer) handleCurveData(m protocol.CurveData) {
	ch := s.channel(m.Channel)
	if ch == nil {
		return
	}
	if ch.running || ch.status != protocol.StatusOK {
		return
	}
	if int(m.Offset) != len(ch.staged) {
		ch.fail(protocol.StatusSequence)
		return
	}
	if len(ch.staged)+len(m.Words) > ch.sink.Capacity() {
		ch.fail(protocol.StatusOverflow)
		return
	}
	for _, w := range m.Words {
		ch.staged = append(ch.staged, SymbolFromWord(w))
	}
}

func (s *CurveServer) handleCurveRun(m protocol.CurveRun) {
	ch := s.channel(m.Channel)

	var status uint8
	switch {
	case ch == nil:
		status = protocol.StatusNoChannel
	case ch.running:
		status = protocol.StatusBusy
	case ch.status != protocol.StatusOK:
		status = ch.status
	case m.Count != uint32(len(ch.staged)):
		status = protocol.StatusSequence
	default:
		status = s.start(m.Channel, ch)
	}

	if status != protocol.StatusOK {
		if ch != nil && !ch.running {
			ch.status = protocol.StatusOK
			ch.staged = ch.staged[:0]
		}
		s.Faults++
		RecordTiming(EvtChunkError, m.Channel, GetTime(), m.Count, uint32(status))
		s.device.Send(protocol.CurveDone{Channel: m.Channel, Status: status})
	}
}

// start binds the staged symbols and begins playback
func (s *CurveServer) start(channel uint8, ch *curveChannel) uint8 {
	enc, err := ch.sink.NewEncoder(ch.staged)
	if err != nil {
		return protocol.StatusOverflow
	}
	if err := ch.sink.Transmit(enc); err != nil {
		ch.sink.Release(enc)
		if errors.Is(err, ErrSinkBusy) {
			return protocol.StatusBusy
		}
		return protocol.StatusFault
	}
	ch.enc = enc
	ch.running = true
	RecordTiming(EvtChunkSubmit, channel, GetTime(), uint32(len(ch.staged)), 0)
	return protocol.StatusOK
}

func (s *CurveServer) channel(n uint8) *curveChannel {
	if int(n) >= len(s.channels) {
		return nil
	}
	return s.channels[n]
}

func (s *CurveServer) identity() protocol.Identify {
	id := protocol.Identify{Channels: uint32(len(s.channels))}
	for i, ch := range s.channels {
		c := uint32(ch.sink.Capacity())
		if i == 0 || c < id.Capacity {
			id.Capacity = c
		}
		if i == 0 {
			id.Resolution = ch.sink.Resolution()
		}
	}
	return id
}

// abortAll stops every channel and drops staged symbols
func (s *CurveServer) abortAll() {
	for _, ch := range s.channels {
		ch.abort()
	}
}

// abort stops playback without reporting completion
func (ch *curveChannel) abort() {
	if ch.enc != nil {
		ch.sink.Release(ch.enc)
		ch.enc = nil
	}
	ch.running = false
	ch.status = protocol.StatusOK
	ch.staged = ch.staged[:0]
}

// fail records the first staging error until the next CurveRun
func (ch *curveChannel) fail(status uint8) {
	if ch.status == protocol.StatusOK {
		ch.status = status
	}
}
