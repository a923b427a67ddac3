package protocol

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	ErrBadCRC       = errors.New("frame CRC mismatch")
	ErrBadFrame     = errors.New("malformed frame")
	ErrFrameTooLong = errors.New("payload exceeds frame size")
	ErrUnknownMsg   = errors.New("unknown message id")
)

// EncodeFrame appends a complete frame carrying payload to output
func EncodeFrame(output OutputBuffer, seq uint8, payload []byte) error {
	if len(payload) > MessagePayloadMax {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLong, len(payload), MessagePayloadMax)
	}

	cursor := output.CurPosition()
	output.Output([]byte{uint8(len(payload) + MessageLengthMin), seq})
	output.Output(payload)

	crc := CRC16(output.DataSince(cursor))
	output.Output([]byte{
		uint8((crc & 0xFF00) >> 8),
		uint8(crc & 0xFF),
		MessageValueSync,
	})
	return nil
}

// AckFrame returns an empty frame acknowledging up to seq
func AckFrame(seq uint8) []byte {
	crc := CRC16([]byte{MessageLengthMin, seq})
	return []byte{
		MessageLengthMin,
		seq,
		uint8((crc & 0xFF00) >> 8),
		uint8(crc & 0xFF),
		MessageValueSync,
	}
}

// FrameDecoder splits a byte stream into frames.
// After a framing error it discards input up to the next sync byte.
type FrameDecoder struct {
	lost bool

	// Counters for diagnostics
	CRCErrors   uint32
	FrameErrors uint32
}

// NewFrameDecoder creates a decoder that starts synchronized
func NewFrameDecoder() *FrameDecoder {
	return &FrameDecoder{}
}

// Next decodes the first frame in data.
// It returns the frame (nil if none is complete yet), the number of bytes
// the caller should drop, and a framing error if bytes were discarded.
func (d *FrameDecoder) Next(data []byte) (*Message, int, error) {
	n := 0
	for n < len(data) {
		rest := data[n:]

		if d.lost {
			i := bytes.IndexByte(rest, MessageValueSync)
			if i < 0 {
				return nil, len(data), nil
			}
			n += i + 1
			d.lost = false
			continue
		}

		if rest[0] == MessageValueSync {
			n++
			continue
		}
		if len(rest) < MessageLengthMin {
			return nil, n, nil
		}

		msgLen := int(rest[MessagePositionLen])
		if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
			d.lost = true
			d.FrameErrors++
			return nil, n + 1, fmt.Errorf("%w: length %d", ErrBadFrame, msgLen)
		}
		if len(rest) < msgLen {
			return nil, n, nil
		}
		if rest[msgLen-MessageTrailerSync] != MessageValueSync {
			d.lost = true
			d.FrameErrors++
			return nil, n + 1, fmt.Errorf("%w: missing sync", ErrBadFrame)
		}

		frameCRC := uint16(rest[msgLen-MessageTrailerCRC])<<8 |
			uint16(rest[msgLen-MessageTrailerCRC+1])
		if frameCRC != CRC16(rest[:msgLen-MessageTrailerSize]) {
			d.CRCErrors++
			return nil, n + msgLen, ErrBadCRC
		}

		payload := make([]byte, msgLen-MessageLengthMin)
		copy(payload, rest[MessageHeaderSize:msgLen-MessageTrailerSize])
		return &Message{
			Length:   uint8(msgLen),
			Sequence: rest[MessagePositionSeq],
			Payload:  payload,
			CRC:      frameCRC,
		}, n + msgLen, nil
	}
	return nil, n, nil
}

// Reset drops any partial synchronization state
func (d *FrameDecoder) Reset() {
	d.lost = false
}
