package store

import (
	"fmt"
)

// Buffer is a fixed capacity byte region with a logical length <= capacity.
// The memory is either owned (allocated through the engine) or borrowed from
// the caller. Buffer does no lifecycle tracking itself, see Value.
type Buffer struct {
	data   []byte // full capacity region, len(data) == capacity
	length int
	owned  bool
}

// newBuffer creates a buffer whose capacity is len(data)
func newBuffer(data []byte, length int, owned bool) Buffer {
	return Buffer{data: data, length: length, owned: owned}
}

// Cap returns the capacity of the buffer.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Len returns the logical length of the buffer.
func (b *Buffer) Len() int {
	return b.length
}

// Owned reports whether the memory was allocated through the engine.
func (b *Buffer) Owned() bool {
	return b.owned
}

// bytes returns the logical content
func (b *Buffer) bytes() []byte {
	return b.data[:b.length]
}

// setLen sets the logical length
func (b *Buffer) setLen(n int) error {
	if n < 0 || n > len(b.data) {
		return NewError("value", RetCCapacity, fmt.Sprintf("length %d out of range [0, %d]", n, len(b.data)))
	}
	b.length = n
	return nil
}

// write copies p into the buffer and sets the length
func (b *Buffer) write(p []byte) error {
	if len(p) > len(b.data) {
		return NewError("value", RetCCapacity, fmt.Sprintf("%d bytes do not fit into a buffer of %d bytes", len(p), len(b.data)))
	}
	b.length = copy(b.data, p)
	return nil
}
