// Package growbuf provides the owned, growable buffer used for timestep
// sequences and pulse curves.
package growbuf

import "errors"

var (
	// ErrLimit is returned when growing would exceed the buffer's element limit
	ErrLimit = errors.New("buffer element limit reached")
)

// Buffer is an append-only buffer that doubles its capacity on exhaustion
// and can be shrunk to its exact length once complete.
type Buffer[T any] struct {
	data  []T
	limit int // 0 = unlimited
}

// New creates a buffer with the given initial capacity and element limit
func New[T any](capacity, limit int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	if limit > 0 && capacity > limit {
		capacity = limit
	}
	return &Buffer[T]{
		data:  make([]T, 0, capacity),
		limit: limit,
	}
}

// Append adds v, doubling the backing storage when full
func (b *Buffer[T]) Append(v T) error {
	if len(b.data) == cap(b.data) {
		if err := b.grow(); err != nil {
			return err
		}
	}
	b.data = append(b.data, v)
	return nil
}

// grow doubles capacity, clamped to the limit
func (b *Buffer[T]) grow() error {
	n := len(b.data)
	if b.limit > 0 && n >= b.limit {
		return ErrLimit
	}

	newCap := cap(b.data) * 2
	if newCap == 0 {
		newCap = 1
	}
	if b.limit > 0 && newCap > b.limit {
		newCap = b.limit
	}

	next := make([]T, n, newCap)
	copy(next, b.data)
	b.data = next
	return nil
}

// Len returns the number of elements written
func (b *Buffer[T]) Len() int {
	return len(b.data)
}

// Cap returns the current capacity
func (b *Buffer[T]) Cap() int {
	return cap(b.data)
}

// Shrink returns the contents in a slice whose capacity equals its length.
// The buffer is emptied and must not be reused for the same result.
func (b *Buffer[T]) Shrink() []T {
	out := make([]T, len(b.data))
	copy(out, b.data)
	b.data = b.data[:0]
	return out
}

// Reset drops the contents and releases the backing storage
func (b *Buffer[T]) Reset() {
	b.data = nil
}
