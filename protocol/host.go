package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

var (
	ErrAckTimeout = errors.New("ACK timeout")
	ErrLinkClosed = errors.New("link closed")
	ErrSequence   = errors.New("sequence mismatch")
)

// DefaultAckTimeout bounds the wait for each frame's ACK
const DefaultAckTimeout = 2 * time.Second

// ResponseHandler receives every decoded response message
type ResponseHandler func(msg any)

// HostLink handles the host side of the link: it sends messages one frame
// at a time, waits for each ACK and forwards responses to a handler.
type HostLink struct {
	port io.ReadWriteCloser

	seq     uint8
	decoder *FrameDecoder
	input   *FifoBuffer

	ackChan chan *Message
	handler ResponseHandler

	writeMutex sync.Mutex
	ackTimeout time.Duration

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// NewHostLink creates a host-side link and starts its reader
func NewHostLink(port io.ReadWriteCloser, handler ResponseHandler) *HostLink {
	l := &HostLink{
		port:       port,
		seq:        MessageDest,
		decoder:    NewFrameDecoder(),
		input:      NewFifoBuffer(MessageMax),
		ackChan:    make(chan *Message, 1),
		handler:    handler,
		ackTimeout: DefaultAckTimeout,
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}

	go l.readLoop()
	return l
}

// SetAckTimeout overrides the per-frame ACK timeout
func (l *HostLink) SetAckTimeout(d time.Duration) {
	l.ackTimeout = d
}

// Send encodes one message in a frame and waits for its ACK
func (l *HostLink) Send(m Encoder) error {
	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()

	scratch := NewScratchOutput()
	if err := EncodeFrame(scratch, l.seq, Payload(m)); err != nil {
		return err
	}

	// Drop a stale ACK left over from a previous timeout
	select {
	case <-l.ackChan:
	default:
	}

	frame := scratch.Result()
	n, err := l.port.Write(frame)
	if err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if n != len(frame) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(frame))
	}

	return l.waitForAck()
}

// waitForAck expects an ACK carrying the next sequence
func (l *HostLink) waitForAck() error {
	expected := nextSeq(l.seq)
	select {
	case ack := <-l.ackChan:
		if ack.Sequence != expected {
			return fmt.Errorf("%w: expected 0x%02x, got 0x%02x", ErrSequence, expected, ack.Sequence)
		}
		l.seq = expected
		return nil

	case <-time.After(l.ackTimeout):
		return fmt.Errorf("%w after %v", ErrAckTimeout, l.ackTimeout)

	case <-l.stopChan:
		return ErrLinkClosed
	}
}

// readLoop continuously reads from the port and processes frames
func (l *HostLink) readLoop() {
	defer close(l.doneChan)

	buffer := make([]byte, 256)
	for {
		select {
		case <-l.stopChan:
			return
		default:
		}

		n, err := l.port.Read(buffer)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if n > 0 {
			l.input.Write(buffer[:n])
			l.processFrames()
		}
	}
}

// processFrames decodes buffered frames and routes ACKs and responses
func (l *HostLink) processFrames() {
	data := l.input.Data()
	consumed := 0
	for consumed < len(data) {
		msg, n, err := l.decoder.Next(data[consumed:])
		consumed += n
		if err != nil {
			continue
		}
		if msg == nil {
			break
		}
		l.dispatch(msg)
	}
	l.input.Pop(consumed)
}

// dispatch routes a frame to the ACK channel or the response handler
func (l *HostLink) dispatch(msg *Message) {
	if msg.IsAck() {
		select {
		case l.ackChan <- msg:
		default:
		}
		return
	}

	payload := msg.Payload
	for len(payload) > 0 {
		m, err := DecodeMessage(&payload)
		if err != nil {
			return
		}
		if l.handler != nil {
			l.handler(m)
		}
	}
}

// Close stops the reader and closes the port
func (l *HostLink) Close() error {
	var err error
	l.stopOnce.Do(func() {
		close(l.stopChan)
		if l.port != nil {
			err = l.port.Close()
		}
		<-l.doneChan
	})
	return err
}

// Sequence returns the sequence number of the next frame
func (l *HostLink) Sequence() uint8 {
	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()
	return l.seq
}
