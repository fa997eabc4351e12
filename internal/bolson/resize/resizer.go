// Package resize implements the recursive halving that splits a
// ParsedBatch into row ranges small enough that each one's serialized IPC
// message stays under the configured size ceiling.
package resize

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"

	bolsonerrors "github.com/bolson-project/bolson/internal/bolson/errors"
	"github.com/bolson-project/bolson/internal/bolson/model"
)

// Resizer splits ParsedBatches into ResizedBatches that respect MaxIPCSize
// once serialized.
type Resizer struct {
	maxIPCSize       int
	sizeHintFraction float64
}

// New creates a Resizer targeting maxIPCSize bytes per serialized message.
// sizeHintFraction is the fraction of maxIPCSize a probe treats as the
// safe target, leaving headroom for IPC framing overhead.
func New(maxIPCSize int, sizeHintFraction float64) *Resizer {
	if sizeHintFraction <= 0 || sizeHintFraction > 1 {
		sizeHintFraction = 0.9
	}
	return &Resizer{maxIPCSize: maxIPCSize, sizeHintFraction: sizeHintFraction}
}

// Resize splits one ParsedBatch into one or more ResizedBatches, each
// guaranteed to serialize to no more than r.maxIPCSize bytes. Every row
// ends up in exactly one output slice; each output holds its own reference,
// so the caller still releases batch.Batch and must Release each returned
// ResizedBatch once serialized.
func (r *Resizer) Resize(batch model.ParsedBatch) ([]model.ResizedBatch, error) {
	rec := batch.Batch
	if rec.NumRows() == 0 {
		return nil, fmt.Errorf("%w: empty batch", bolsonerrors.ErrOversized)
	}

	size, err := serializedSize(rec)
	if err != nil {
		return nil, err
	}
	target := int64(float64(r.maxIPCSize) * r.sizeHintFraction)
	if size <= target {
		rec.Retain()
		return []model.ResizedBatch{{Batch: rec, Range: batch.Range}}, nil
	}
	if rec.NumRows() == 1 {
		if size <= int64(r.maxIPCSize) {
			rec.Retain()
			return []model.ResizedBatch{{Batch: rec, Range: batch.Range}}, nil
		}
		return nil, fmt.Errorf("%w: single row serializes to %d bytes > %d", bolsonerrors.ErrOversized, size, r.maxIPCSize)
	}

	mid := rec.NumRows() / 2
	head := rec.NewSlice(0, mid)
	defer head.Release()
	tail := rec.NewSlice(mid, rec.NumRows())
	defer tail.Release()

	headRange, tailRange := batch.Range.Split(uint64(mid))

	headOut, err := r.Resize(model.ParsedBatch{Batch: head, Range: headRange})
	if err != nil {
		return nil, err
	}
	tailOut, err := r.Resize(model.ParsedBatch{Batch: tail, Range: tailRange})
	if err != nil {
		for _, b := range headOut {
			b.Release()
		}
		return nil, err
	}
	return append(headOut, tailOut...), nil
}

// serializedSize measures the exact IPC stream-format encoding size of rec
// by writing it to a discarding counter. Resize calls it once per candidate
// slice while halving.
func serializedSize(rec arrow.Record) (int64, error) {
	cw := &countingWriter{}
	w := ipc.NewWriter(cw, ipc.WithSchema(rec.Schema()))
	if err := w.Write(rec); err != nil {
		return 0, fmt.Errorf("%w: measuring size: %v", bolsonerrors.ErrIPC, err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("%w: measuring size: %v", bolsonerrors.ErrIPC, err)
	}
	return cw.n, nil
}

type countingWriter struct{ n int64 }

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
