package protocol

// MessageHandler is called for each message decoded from an accepted frame
type MessageHandler func(msg any) error

// Device handles the firmware side of the link: it validates frames,
// enforces sequence order, sends ACK/NAK and dispatches messages.
type Device struct {
	decoder       *FrameDecoder
	nextSequence  uint8 // Expected sequence from host (0x10-0x1F)
	output        OutputBuffer
	handler       MessageHandler
	resetCallback func() // Called when host reset is detected
	flushCallback func() // Called to immediately flush ACK to USB

	HandlerErrors uint32
}

// NewDevice creates a firmware-side link endpoint
func NewDevice(output OutputBuffer, handler MessageHandler) *Device {
	return &Device{
		decoder:      NewFrameDecoder(),
		nextSequence: MessageDest,
		output:       output,
		handler:      handler,
	}
}

// Receive processes incoming data from the input buffer
func (d *Device) Receive(input InputBuffer) {
	data := input.Data()
	consumed := 0

	for consumed < len(data) {
		msg, n, err := d.decoder.Next(data[consumed:])
		consumed += n
		if err != nil {
			// NAK so the host retransmits from the expected sequence
			d.encodeAckNak()
			continue
		}
		if msg == nil {
			break
		}
		if msg.Sequence&^MessageSeqMask != MessageDest {
			continue
		}

		// A host restarting at MessageDest resets our state
		if msg.Sequence == MessageDest && d.nextSequence != MessageDest {
			d.nextSequence = MessageDest
			if d.resetCallback != nil {
				d.resetCallback()
			}
		}

		if msg.Sequence == d.nextSequence {
			d.nextSequence = nextSeq(msg.Sequence)
			d.dispatch(msg.Payload)
		}
		// Out of order frames get a NAK carrying the expected sequence
		d.encodeAckNak()
	}

	if consumed > 0 {
		input.Pop(consumed)
	}
}

// dispatch decodes and handles every message in a payload
func (d *Device) dispatch(payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			d.HandlerErrors++
		}
	}()

	for len(payload) > 0 {
		msg, err := DecodeMessage(&payload)
		if err != nil {
			d.HandlerErrors++
			return
		}
		if d.handler != nil {
			if err := d.handler(msg); err != nil {
				d.HandlerErrors++
			}
		}
	}
}

// encodeAckNak sends an ACK/NAK immediately
func (d *Device) encodeAckNak() {
	d.output.Output(AckFrame(d.nextSequence))
	if d.flushCallback != nil {
		d.flushCallback()
	}
}

// Send encodes a message as a response frame and flushes it
func (d *Device) Send(m Encoder) error {
	if err := EncodeFrame(d.output, d.nextSequence, Payload(m)); err != nil {
		return err
	}
	if d.flushCallback != nil {
		d.flushCallback()
	}
	return nil
}

// Reset resets the link state (after USB disconnect/reconnect)
func (d *Device) Reset() {
	d.decoder.Reset()
	d.nextSequence = MessageDest
	if d.resetCallback != nil {
		d.resetCallback()
	}
}

// SetResetCallback sets a callback to be called when host reset is detected
func (d *Device) SetResetCallback(callback func()) {
	d.resetCallback = callback
}

// SetFlushCallback sets a callback to immediately flush ACK messages
func (d *Device) SetFlushCallback(callback func()) {
	d.flushCallback = callback
}
