// Package buffer implements the fixed-capacity byte buffers the receiver
// fills and the converter pool drains, and the pool that owns them (spec
// §3 "JSONBuffer", §4.1 "BufferPool").
package buffer

import (
	"time"

	"github.com/bolson-project/bolson/internal/bolson/seq"
)

// Buffer is a fixed-capacity byte slab that accumulates one or more
// newline-delimited JSON records. It is owned by exactly one pipeline
// stage at a time: the receiver while filling it, a converter worker while
// parsing it, and the pool everywhere in between.
type Buffer struct {
	ID            int
	data          []byte
	size          int
	Range         seq.Range
	RecvTimestamp time.Time
}

func newBuffer(id, capacity int) *Buffer {
	return &Buffer{ID: id, data: make([]byte, capacity)}
}

// Capacity returns the buffer's fixed byte capacity.
func (b *Buffer) Capacity() int {
	return len(b.data)
}

// Remaining returns the number of unused bytes at the tail of the buffer.
func (b *Buffer) Remaining() int {
	return len(b.data) - b.size
}

// Append copies p onto the tail of the buffer. The caller must have
// already checked Remaining() >= len(p).
func (b *Buffer) Append(p []byte) {
	n := copy(b.data[b.size:], p)
	b.size += n
}

// Bytes returns the filled portion of the buffer.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.size]
}

// Reset clears the buffer for reuse, dropping any previously assigned
// sequence range.
func (b *Buffer) Reset() {
	b.size = 0
	b.Range = seq.Range{}
	b.RecvTimestamp = time.Time{}
}
