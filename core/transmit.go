package core

// Chunked transmitter: feeds a pulse curve to a sink one
// hardware transaction at a time

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrTransmit        = errors.New("pulse transmission failed")
	ErrInvalidCapacity = errors.New("sink capacity must be positive")
)

// DefaultWaitMargin is added to a chunk's physical duration when waiting
const DefaultWaitMargin = 100 * time.Millisecond

var waitMargin = DefaultWaitMargin

// SetWaitMargin overrides the completion wait margin
func SetWaitMargin(d time.Duration) {
	waitMargin = d
}

// Chunks splits symbols into floor(len/m) full chunks plus one remainder.
// The chunks share the backing array of symbols.
func Chunks(symbols []PulseSymbol, m int) [][]PulseSymbol {
	if m <= 0 || len(symbols) == 0 {
		return nil
	}

	n := (len(symbols) + m - 1) / m
	chunks := make([][]PulseSymbol, 0, n)
	for start := 0; start < len(symbols); start += m {
		end := start + m
		if end > len(symbols) {
			end = len(symbols)
		}
		chunks = append(chunks, symbols[start:end:end])
	}
	return chunks
}

// Play transmits a curve on a sink, one chunk at a time.
// Each chunk is waited for and released before the next is submitted.
// Cancellation is honoured between chunks only.
func Play(ctx context.Context, curve *PulseCurve, sink PulseSink) error {
	if curve == nil || len(curve.Symbols) == 0 {
		return nil
	}

	m := sink.Capacity()
	if m <= 0 {
		return fmt.Errorf("%w: %s reports %d", ErrInvalidCapacity, sink.GetName(), m)
	}

	for i, chunk := range Chunks(curve.Symbols, m) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cancelled before chunk %d: %w", i, err)
		}
		if err := playChunk(sink, chunk, i); err != nil {
			return err
		}
	}
	return nil
}

// playChunk runs one encode/transmit/wait/release cycle
func playChunk(sink PulseSink, chunk []PulseSymbol, index int) error {
	enc, err := sink.NewEncoder(chunk)
	if err != nil {
		return fmt.Errorf("%w: chunk %d encoder: %w", ErrTransmit, index, err)
	}

	RecordTiming(EvtChunkSubmit, uint8(index), GetTime(), uint32(len(chunk)), 0)
	if err := sink.Transmit(enc); err != nil {
		sink.Release(enc)
		RecordTiming(EvtChunkError, uint8(index), GetTime(), 0, 0)
		return fmt.Errorf("%w: chunk %d submit: %w", ErrTransmit, index, err)
	}

	timeout := TicksToDuration(SymbolTicks(chunk), sink.Resolution()) + waitMargin
	if err := sink.WaitDone(timeout); err != nil {
		sink.Release(enc)
		RecordTiming(EvtChunkError, uint8(index), GetTime(), 1, 0)
		return fmt.Errorf("%w: chunk %d wait: %w", ErrTransmit, index, err)
	}
	RecordTiming(EvtChunkDone, uint8(index), GetTime(), uint32(len(chunk)), 0)
	chunksPlayed.Add(1)

	if err := sink.Release(enc); err != nil {
		return fmt.Errorf("%w: chunk %d release: %w", ErrTransmit, index, err)
	}
	return nil
}
