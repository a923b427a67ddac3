package protocol

import "fmt"

// Status codes reported in CurveDone
const (
	StatusOK        uint8 = 0
	StatusBusy      uint8 = 1 // Channel still playing
	StatusOverflow  uint8 = 2 // Staged symbols exceed channel capacity
	StatusSequence  uint8 = 3 // CurveData offset out of order
	StatusNoChannel uint8 = 4
	StatusFault     uint8 = 5 // Peripheral reported an error
)

// StatusText returns a short description of a status code
func StatusText(status uint8) string {
	switch status {
	case StatusOK:
		return "ok"
	case StatusBusy:
		return "busy"
	case StatusOverflow:
		return "overflow"
	case StatusSequence:
		return "out of sequence"
	case StatusNoChannel:
		return "no such channel"
	case StatusFault:
		return "peripheral fault"
	default:
		return fmt.Sprintf("status %d", status)
	}
}

// CurveData stages symbol words on a channel starting at Offset
type CurveData struct {
	Channel uint8
	Offset  uint32
	Words   []uint32
}

// CurveRun starts playback of Count staged symbols
type CurveRun struct {
	Channel uint8
	Count   uint32
}

// CurveDone reports the end of playback on a channel
type CurveDone struct {
	Channel uint8
	Status  uint8
	Count   uint32
}

// SyncReset aligns the channels selected by Mask
type SyncReset struct {
	Mask uint32
}

// Identify describes the firmware's pulse channels
type Identify struct {
	Channels   uint32
	Capacity   uint32
	Resolution uint32
}

// SetPin drives a direction or enable output on the firmware
type SetPin struct {
	Pin   uint32
	Value bool
}

// Abort stops playback on one channel and drops its staged symbols.
// No CurveDone is reported for the abandoned chunk.
type Abort struct {
	Channel uint8
}

// curveDataHeaderMax bounds msg id, channel, offset and count
const curveDataHeaderMax = 1 + 2 + 5 + 2

func (m CurveData) Encode(output OutputBuffer) {
	EncodeVLQUint(output, MsgCurveData)
	EncodeVLQUint(output, uint32(m.Channel))
	EncodeVLQUint(output, m.Offset)
	EncodeVLQUint(output, uint32(len(m.Words)))
	for _, w := range m.Words {
		EncodeVLQUint(output, w)
	}
}

func (m CurveRun) Encode(output OutputBuffer) {
	EncodeVLQUint(output, MsgCurveRun)
	EncodeVLQUint(output, uint32(m.Channel))
	EncodeVLQUint(output, m.Count)
}

func (m CurveDone) Encode(output OutputBuffer) {
	EncodeVLQUint(output, MsgCurveDone)
	EncodeVLQUint(output, uint32(m.Channel))
	EncodeVLQUint(output, uint32(m.Status))
	EncodeVLQUint(output, m.Count)
}

func (m SyncReset) Encode(output OutputBuffer) {
	EncodeVLQUint(output, MsgSyncReset)
	EncodeVLQUint(output, m.Mask)
}

func (m Identify) Encode(output OutputBuffer) {
	EncodeVLQUint(output, MsgIdentify)
	EncodeVLQUint(output, m.Channels)
	EncodeVLQUint(output, m.Capacity)
	EncodeVLQUint(output, m.Resolution)
}

func (m SetPin) Encode(output OutputBuffer) {
	EncodeVLQUint(output, MsgSetPin)
	EncodeVLQUint(output, m.Pin)
	if m.Value {
		EncodeVLQUint(output, 1)
	} else {
		EncodeVLQUint(output, 0)
	}
}

func (m Abort) Encode(output OutputBuffer) {
	EncodeVLQUint(output, MsgAbort)
	EncodeVLQUint(output, uint32(m.Channel))
}

// Encoder is implemented by every message type
type Encoder interface {
	Encode(output OutputBuffer)
}

// Payload encodes a message into a standalone payload slice
func Payload(m Encoder) []byte {
	scratch := NewScratchOutput()
	m.Encode(scratch)
	return scratch.Take()
}

// SplitCurveData packs words into as few CurveData messages as fit a frame
func SplitCurveData(channel uint8, words []uint32) []CurveData {
	var msgs []CurveData
	offset := 0
	for offset < len(words) {
		size := curveDataHeaderMax
		end := offset
		for end < len(words) {
			n := VLQSize(int32(words[end]))
			if size+n > MessagePayloadMax {
				break
			}
			size += n
			end++
		}
		msgs = append(msgs, CurveData{
			Channel: channel,
			Offset:  uint32(offset),
			Words:   words[offset:end],
		})
		offset = end
	}
	return msgs
}

// DecodeMessage decodes one message from the front of a payload
func DecodeMessage(data *[]byte) (any, error) {
	id, err := DecodeVLQUint(data)
	if err != nil {
		return nil, err
	}

	var vals [3]uint32
	read := func(n int) error {
		for i := 0; i < n; i++ {
			v, err := DecodeVLQUint(data)
			if err != nil {
				return fmt.Errorf("message %d: %w", id, err)
			}
			vals[i] = v
		}
		return nil
	}

	switch id {
	case MsgCurveData:
		if err := read(3); err != nil {
			return nil, err
		}
		if int(vals[2]) > len(*data) {
			return nil, fmt.Errorf("message %d: %d words: %w", id, vals[2], ErrBufferTooSmall)
		}
		m := CurveData{Channel: uint8(vals[0]), Offset: vals[1], Words: make([]uint32, vals[2])}
		for i := range m.Words {
			w, err := DecodeVLQUint(data)
			if err != nil {
				return nil, fmt.Errorf("message %d word %d: %w", id, i, err)
			}
			m.Words[i] = w
		}
		return m, nil
	case MsgCurveRun:
		if err := read(2); err != nil {
			return nil, err
		}
		return CurveRun{Channel: uint8(vals[0]), Count: vals[1]}, nil
	case MsgCurveDone:
		if err := read(3); err != nil {
			return nil, err
		}
		return CurveDone{Channel: uint8(vals[0]), Status: uint8(vals[1]), Count: vals[2]}, nil
	case MsgSyncReset:
		if err := read(1); err != nil {
			return nil, err
		}
		return SyncReset{Mask: vals[0]}, nil
	case MsgReset:
		return Reset{}, nil
	case MsgIdentify:
		if err := read(3); err != nil {
			return nil, err
		}
		return Identify{Channels: vals[0], Capacity: vals[1], Resolution: vals[2]}, nil
	case MsgSetPin:
		if err := read(2); err != nil {
			return nil, err
		}
		return SetPin{Pin: vals[0], Value: vals[1] != 0}, nil
	case MsgAbort:
		if err := read(1); err != nil {
			return nil, err
		}
		return Abort{Channel: uint8(vals[0])}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMsg, id)
	}
}

// Reset drops staged symbols on every channel
type Reset struct{}

func (Reset) Encode(output OutputBuffer) {
	EncodeVLQUint(output, MsgReset)
}
