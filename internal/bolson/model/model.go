// Package model holds the small value types threaded between the Parser,
// Resizer, Serializer and converter worker: ParsedBatch, ResizedBatch and
// SerializedBatch.
package model

import (
	"github.com/apache/arrow-go/v18/arrow"

	"github.com/bolson-project/bolson/internal/bolson/seq"
)

// ParsedBatch is a columnar record batch plus the seq range it covers,
// produced by the Parser and consumed by the Resizer.
type ParsedBatch struct {
	Batch arrow.Record
	Range seq.Range
}

// Release releases the underlying Arrow record's reference count.
func (p ParsedBatch) Release() {
	if p.Batch != nil {
		p.Batch.Release()
	}
}

// ResizedBatch is a piece of a ParsedBatch (a contiguous row subset) that
// fits under the configured IPC size ceiling once serialized, produced by
// the Resizer and consumed by the Serializer.
type ResizedBatch struct {
	Batch arrow.Record
	Range seq.Range
}

// Release releases the underlying Arrow record's reference count.
func (r ResizedBatch) Release() {
	if r.Batch != nil {
		r.Batch.Release()
	}
}

// SerializedBatch is the final message ready for the bus: an opaque
// Arrow-IPC-stream-format byte blob plus the seq range it covers,
// produced by the Serializer and consumed by the Publisher.
type SerializedBatch struct {
	Payload []byte
	Range   seq.Range
}
