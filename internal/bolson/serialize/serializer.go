// Package serialize turns a ResizedBatch into the final Arrow-IPC-stream
// byte payload published to the bus, embedding the per-message sequence
// range in the outgoing schema's metadata.
package serialize

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"

	bolsonerrors "github.com/bolson-project/bolson/internal/bolson/errors"
	"github.com/bolson-project/bolson/internal/bolson/model"
	"github.com/bolson-project/bolson/internal/bolson/seq"
)

const (
	// MetaSeqFirst is the schema metadata key carrying the first sequence
	// number covered by an IPC message.
	MetaSeqFirst = "bolson_seq_first"
	// MetaSeqLast is the schema metadata key carrying the last sequence
	// number covered by an IPC message.
	MetaSeqLast = "bolson_seq_last"
)

// Serializer encodes ResizedBatches to Arrow IPC stream format and enforces
// the size ceiling one final time after metadata is embedded, since adding
// the seq range grows the schema message by a few bytes.
type Serializer struct {
	maxIPCSize int
}

// New creates a Serializer that rejects any message exceeding maxIPCSize
// bytes once fully encoded.
func New(maxIPCSize int) *Serializer {
	return &Serializer{maxIPCSize: maxIPCSize}
}

// Serialize encodes one ResizedBatch into a SerializedBatch.
func (s *Serializer) Serialize(batch model.ResizedBatch) (model.SerializedBatch, error) {
	rec := withRangeMetadata(batch.Batch, batch.Range)
	defer rec.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(rec.Schema()))
	if err := w.Write(rec); err != nil {
		return model.SerializedBatch{}, fmt.Errorf("%w: %v", bolsonerrors.ErrIPC, err)
	}
	if err := w.Close(); err != nil {
		return model.SerializedBatch{}, fmt.Errorf("%w: %v", bolsonerrors.ErrIPC, err)
	}

	payload := buf.Bytes()
	if s.maxIPCSize > 0 && len(payload) > s.maxIPCSize {
		return model.SerializedBatch{}, fmt.Errorf("%w: message of %d bytes exceeds max_ipc_size %d after metadata", bolsonerrors.ErrOversized, len(payload), s.maxIPCSize)
	}

	return model.SerializedBatch{Payload: payload, Range: batch.Range}, nil
}

// withRangeMetadata returns a new zero-copy Record sharing rec's columns
// but carrying a schema with the seq range embedded in its metadata.
func withRangeMetadata(rec arrow.Record, r seq.Range) arrow.Record {
	base := rec.Schema()
	keys := make([]string, 0, base.Metadata().Len()+2)
	vals := make([]string, 0, base.Metadata().Len()+2)
	keys = append(keys, base.Metadata().Keys()...)
	vals = append(vals, base.Metadata().Values()...)
	keys = append(keys, MetaSeqFirst, MetaSeqLast)
	vals = append(vals, strconv.FormatUint(r.First, 10), strconv.FormatUint(r.Last, 10))
	md := arrow.NewMetadata(keys, vals)
	schema := arrow.NewSchema(base.Fields(), &md)

	cols := make([]arrow.Array, rec.NumCols())
	for i := range cols {
		cols[i] = rec.Column(i)
	}
	return array.NewRecord(schema, cols, rec.NumRows())
}
