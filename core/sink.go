package core

import (
	"errors"
	"time"
)

var (
	ErrSinkBusy      = errors.New("sink already transmitting")
	ErrSinkTimeout   = errors.New("timed out waiting for sink")
	ErrChunkTooLarge = errors.New("chunk exceeds sink capacity")
	ErrNoEncoder     = errors.New("no encoder bound")
)

// PulseSink defines the output peripheral abstraction for pulse curves.
// Implementations can use RMT, PIO, timer-driven GPIO or a remote link.
type PulseSink interface {
	// NewEncoder binds a chunk of symbols to the peripheral
	// The chunk must not exceed Capacity()
	NewEncoder(symbols []PulseSymbol) (ChunkEncoder, error)

	// Transmit starts asynchronous playback of an encoded chunk
	Transmit(enc ChunkEncoder) error

	// WaitDone blocks until the last transmitted chunk has finished
	WaitDone(timeout time.Duration) error

	// Release frees the resources held by an encoder
	Release(enc ChunkEncoder) error

	// Capacity returns the maximum symbols per transaction
	Capacity() int

	// Resolution returns the tick rate in Hz
	Resolution() uint32

	// GetName returns sink implementation name
	GetName() string
}

// ChunkEncoder is a chunk of symbols bound to a sink
type ChunkEncoder interface {
	Symbols() []PulseSymbol
}

// SymbolEncoder is a plain ChunkEncoder over a symbol slice
type SymbolEncoder struct {
	symbols []PulseSymbol
}

// NewSymbolEncoder wraps a symbol slice
func NewSymbolEncoder(symbols []PulseSymbol) *SymbolEncoder {
	return &SymbolEncoder{symbols: symbols}
}

// Symbols returns the bound symbols
func (e *SymbolEncoder) Symbols() []PulseSymbol {
	return e.symbols
}

// Syncer aligns the start of several channels
type Syncer interface {
	SyncReset() error
}

// DoneReporter is implemented by sinks that can report completion without
// blocking
type DoneReporter interface {
	Done() bool
}

// MaskSyncer aligns a subset of channels, bit n selecting channel n
type MaskSyncer interface {
	SyncMask(mask uint32) error
}

// HalfLimiter is implemented by sinks that cannot play halves shorter
// than a number of ticks
type HalfLimiter interface {
	MinHalfTicks() uint16
}
