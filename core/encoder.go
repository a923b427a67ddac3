package core

// Pulse curve encoder: converts per-step time increments into symbols

import (
	"errors"
	"fmt"
	"math"

	"nojerky/internal/growbuf"
)

var (
	ErrEncodingOverflow = errors.New("step duration exceeds maximum split factor")
	ErrCurveTooLarge    = errors.New("pulse curve exceeds maximum symbol count")
	ErrInvalidScale     = errors.New("tick scale must be positive")
	ErrStepTooShort     = errors.New("steps too short for the minimum pulse at this tick scale")
)

const (
	// DefaultMaxShift allows splitting one half period into up to 1024 parts
	DefaultMaxShift = 10

	// DefaultMaxSymbols bounds the symbol buffer of a single curve
	DefaultMaxSymbols = 1 << 22

	// DefaultMinHalfTicks keeps both halves of a pulse non-zero
	DefaultMinHalfTicks = 1

	// maxLeadTicks bounds how far stretched steps may run ahead of the
	// exact timeline
	maxLeadTicks = 1

	initialSymbolCap = 64
)

// EncodeOptions tunes the encoder
type EncodeOptions struct {
	MaxShift   int  // Largest allowed split exponent, 0 = DefaultMaxShift
	MaxSymbols int  // Symbol limit, 0 = DefaultMaxSymbols
	Invert     bool // Swap output levels

	// Shortest half a sink can play, 0 = DefaultMinHalfTicks
	MinHalfTicks uint16
}

// EncodeCurve converts time increments (seconds) into pulse symbols.
// tickScale is the peripheral resolution in ticks per second.
// Steps shorter than two minimum halves are stretched and the excess is
// taken back from the following steps. If the output would lead the exact
// timeline by more than one tick, ErrStepTooShort is returned.
// On error no curve is returned.
func EncodeCurve(steps []float64, tickScale float64, opts EncodeOptions) (*PulseCurve, error) {
	if tickScale <= 0 || math.IsNaN(tickScale) || math.IsInf(tickScale, 0) {
		return nil, ErrInvalidScale
	}
	maxShift := opts.MaxShift
	if maxShift <= 0 {
		maxShift = DefaultMaxShift
	}
	maxSymbols := opts.MaxSymbols
	if maxSymbols <= 0 {
		maxSymbols = DefaultMaxSymbols
	}
	minHalf := uint64(opts.MinHalfTicks)
	if minHalf == 0 {
		minHalf = DefaultMinHalfTicks
	}
	minStep := 2 * minHalf

	high, low := uint8(LevelHigh), uint8(LevelLow)
	if opts.Invert {
		high, low = low, high
	}

	capacity := len(steps)
	if capacity < initialSymbolCap {
		capacity = initialSymbolCap
	}
	buf := growbuf.New[PulseSymbol](capacity/4, maxSymbols)

	var elapsed float64 // Exact cumulative time (s)
	var emitted uint64  // Cumulative ticks emitted

	for i, dt := range steps {
		elapsed += dt

		// Round the running total so errors do not accumulate
		target := uint64(math.Round(elapsed * tickScale))
		ticks := uint64(0)
		if target > emitted {
			ticks = target - emitted
		}
		if ticks < minStep {
			ticks = minStep
		}
		emitted += ticks

		if lead := float64(emitted) - elapsed*tickScale; lead > maxLeadTicks {
			buf.Reset()
			return nil, fmt.Errorf("%w: step %d needs %d ticks, leads by %.1f", ErrStepTooShort, i, ticks, lead)
		}

		if err := encodeStep(buf, ticks, maxShift, high, low); err != nil {
			buf.Reset()
			if errors.Is(err, growbuf.ErrLimit) {
				return nil, fmt.Errorf("%w: %d symbols at step %d", ErrCurveTooLarge, maxSymbols, i)
			}
			return nil, fmt.Errorf("step %d (%d ticks): %w", i, ticks, err)
		}
	}

	return &PulseCurve{
		Symbols: buf.Shrink(),
		Ticks:   emitted,
		Steps:   len(steps),
	}, nil
}

// encodeStep emits one pulse period of the given length
func encodeStep(buf *growbuf.Buffer[PulseSymbol], ticks uint64, maxShift int, high, low uint8) error {
	hi := ticks / 2
	lo := ticks - hi // lo >= hi

	if lo <= MaxSymbolDuration {
		return buf.Append(PulseSymbol{
			Duration0: uint16(hi),
			Level0:    high,
			Duration1: uint16(lo),
			Level1:    low,
		})
	}

	k, err := splitShift(lo, maxShift)
	if err != nil {
		return err
	}
	if err := appendHeld(buf, hi, k, high); err != nil {
		return err
	}
	return appendHeld(buf, lo, k, low)
}

// splitShift finds the smallest k >= 1 such that ceil(v / 2^k) fits a symbol half
func splitShift(v uint64, maxShift int) (int, error) {
	for k := 1; k <= maxShift; k++ {
		parts := uint64(1) << k
		if (v+parts-1)/parts <= MaxSymbolDuration {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %d ticks need more than 2^%d parts", ErrEncodingOverflow, v, maxShift)
}

// appendHeld splits v into 2^k parts held at one level, two parts per symbol.
// Parts differ by at most one tick and sum exactly to v.
func appendHeld(buf *growbuf.Buffer[PulseSymbol], v uint64, k int, level uint8) error {
	parts := uint64(1) << k
	base := v >> k
	rem := v - base<<k

	part := func(i uint64) uint16 {
		if i < rem {
			return uint16(base + 1)
		}
		return uint16(base)
	}

	for i := uint64(0); i < parts; i += 2 {
		err := buf.Append(PulseSymbol{
			Duration0: part(i),
			Level0:    level,
			Duration1: part(i + 1),
			Level1:    level,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
