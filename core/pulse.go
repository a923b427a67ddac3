package core

import "time"

const (
	// MaxSymbolDuration is the largest duration a symbol half can hold (15 bits)
	MaxSymbolDuration = 0x7FFF

	LevelLow  = 0
	LevelHigh = 1
)

// PulseSymbol is one hardware symbol: two level/duration halves.
// The layout matches the RMT symbol word of the target peripheral.
type PulseSymbol struct {
	Duration0 uint16
	Level0    uint8
	Duration1 uint16
	Level1    uint8
}

// Word packs the symbol as d0[0:15] l0[15] d1[16:31] l1[31]
func (s PulseSymbol) Word() uint32 {
	return uint32(s.Duration0&MaxSymbolDuration) |
		uint32(s.Level0&1)<<15 |
		uint32(s.Duration1&MaxSymbolDuration)<<16 |
		uint32(s.Level1&1)<<31
}

// SymbolFromWord unpacks a 32-bit symbol word
func SymbolFromWord(w uint32) PulseSymbol {
	return PulseSymbol{
		Duration0: uint16(w & MaxSymbolDuration),
		Level0:    uint8(w>>15) & 1,
		Duration1: uint16((w >> 16) & MaxSymbolDuration),
		Level1:    uint8(w>>31) & 1,
	}
}

// Ticks returns the symbol period
func (s PulseSymbol) Ticks() uint32 {
	return uint32(s.Duration0) + uint32(s.Duration1)
}

// PulseCurve is an encoded motion ready for transmission
type PulseCurve struct {
	Symbols []PulseSymbol
	Ticks   uint64 // Total period of all symbols
	Steps   int    // Number of step pulses encoded
}

// Len returns the number of symbols
func (c *PulseCurve) Len() int {
	return len(c.Symbols)
}

// Duration converts the curve length to wall time at the given resolution
func (c *PulseCurve) Duration(resolution uint32) time.Duration {
	return TicksToDuration(c.Ticks, resolution)
}

// SymbolTicks sums the periods of a symbol slice
func SymbolTicks(symbols []PulseSymbol) uint64 {
	var total uint64
	for _, s := range symbols {
		total += uint64(s.Ticks())
	}
	return total
}

// TicksToDuration converts ticks at resolution (Hz) to a duration
func TicksToDuration(ticks uint64, resolution uint32) time.Duration {
	if resolution == 0 {
		return 0
	}
	sec := ticks / uint64(resolution)
	rem := ticks % uint64(resolution)
	return time.Duration(sec)*time.Second +
		time.Duration(rem*uint64(time.Second)/uint64(resolution))
}

// DurationToTicks converts a duration to ticks at resolution (Hz)
func DurationToTicks(d time.Duration, resolution uint32) uint64 {
	if d <= 0 {
		return 0
	}
	sec := uint64(d / time.Second)
	rem := uint64(d % time.Second)
	return sec*uint64(resolution) + rem*uint64(resolution)/uint64(time.Second)
}
