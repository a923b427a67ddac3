// Package protocol implements the framed link between the host planner and
// the pulse firmware. Frames follow the Klipper block layout: length,
// sequence, VLQ payload, CRC16 and a sync byte.
package protocol

// Version is the link protocol version reported by the firmware
const Version = "0.1.0"

// Frame layout
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePayloadMax  = MessageLengthMax - MessageLengthMin
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10

	MessageSeqMask = 0x0F

	// MessageMax sizes scratch buffers that hold several frames
	MessageMax = 512
)

// Message identifiers carried as the first VLQ of a payload
const (
	MsgCurveData uint32 = 1 // host -> mcu: channel, offset, count, words...
	MsgCurveRun  uint32 = 2 // host -> mcu: channel, count
	MsgCurveDone uint32 = 3 // mcu -> host: channel, status, count
	MsgSyncReset uint32 = 4 // host -> mcu: channel mask
	MsgReset     uint32 = 5 // host -> mcu: drop staged symbols
	MsgIdentify  uint32 = 6 // both ways: channels, capacity, resolution
	MsgSetPin    uint32 = 7 // host -> mcu: pin, value
	MsgAbort     uint32 = 8 // host -> mcu: channel
)

// Message is one decoded frame
type Message struct {
	Length   uint8
	Sequence uint8
	Payload  []byte // Frame data without header/trailer
	CRC      uint16
}

// IsAck reports whether the frame is an ACK/NAK (no payload)
func (m *Message) IsAck() bool {
	return len(m.Payload) == 0
}

// nextSeq advances a sequence number within the destination range
func nextSeq(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
