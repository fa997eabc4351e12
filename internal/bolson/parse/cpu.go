package parse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	bolsonbuffer "github.com/bolson-project/bolson/internal/bolson/buffer"
	"github.com/bolson-project/bolson/internal/bolson/config"
	bolsonerrors "github.com/bolson-project/bolson/internal/bolson/errors"
	"github.com/bolson-project/bolson/internal/bolson/model"
)

// CPU is the reference software parser: it decodes each newline-delimited
// JSON record with encoding/json and appends it column-by-column into an
// Arrow RecordBuilder. It never requires exclusive access, matching spec
// §4.6's "software parsers may run fully in parallel".
type CPU struct {
	inputSchema  *arrow.Schema
	outputSchema *arrow.Schema
	columns      []config.SchemaColumn
	behavior     config.UnexpectedFieldBehavior
	seqColumn    bool
	seqColumn0   int // index of the seq column in outputSchema, when seqColumn is set
	mem          memory.Allocator
}

// NewCPU builds a CPU parser from the converter configuration and the
// user-supplied data schema.
func NewCPU(cols []config.SchemaColumn, cfg config.ConvertConfig) (*CPU, error) {
	inputSchema, err := BuildSchema(cols, false, "")
	if err != nil {
		return nil, err
	}
	outputSchema, err := BuildSchema(cols, cfg.SeqColumn, cfg.SeqColumnName)
	if err != nil {
		return nil, err
	}
	seqIdx := -1
	if cfg.SeqColumn {
		seqIdx = 0
	}
	return &CPU{
		inputSchema:  inputSchema,
		outputSchema: outputSchema,
		columns:      cols,
		behavior:     cfg.UnexpectedFieldBehavior,
		seqColumn:    cfg.SeqColumn,
		seqColumn0:   seqIdx,
		mem:          memory.NewGoAllocator(),
	}, nil
}

// NeedsExclusiveAccess always returns false for the CPU parser.
func (c *CPU) NeedsExclusiveAccess() bool { return false }

// InputSchema returns the schema without the seq column.
func (c *CPU) InputSchema() *arrow.Schema { return c.inputSchema }

// OutputSchema returns the schema including the seq column, if enabled.
func (c *CPU) OutputSchema() *arrow.Schema { return c.outputSchema }

// Parse decodes each buffer's newline-delimited JSON records into one
// ParsedBatch per buffer.
func (c *CPU) Parse(buffers []*bolsonbuffer.Buffer) ([]model.ParsedBatch, error) {
	out := make([]model.ParsedBatch, 0, len(buffers))
	for _, buf := range buffers {
		batch, err := c.parseOne(buf)
		if err != nil {
			return nil, err
		}
		out = append(out, batch)
	}
	return out, nil
}

func (c *CPU) parseOne(buf *bolsonbuffer.Buffer) (model.ParsedBatch, error) {
	rb := array.NewRecordBuilder(c.mem, c.outputSchema)
	defer rb.Release()

	scanner := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	scanner.Buffer(make([]byte, 0, 64*1024), buf.Capacity())

	seqNum := buf.Range.First
	rows := 0
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec map[string]json.RawMessage
		if err := json.Unmarshal(line, &rec); err != nil {
			return model.ParsedBatch{}, fmt.Errorf("%w: buffer %d row %d: %v", bolsonerrors.ErrParse, buf.ID, rows, err)
		}
		if c.seqColumn {
			rb.Field(c.seqColumn0).(*array.Uint64Builder).Append(seqNum)
		}
		for i, col := range c.columns {
			fieldIdx := i
			if c.seqColumn {
				fieldIdx++
			}
			raw, present := rec[col.Name]
			delete(rec, col.Name)
			if err := appendField(rb.Field(fieldIdx), raw, present); err != nil {
				return model.ParsedBatch{}, fmt.Errorf("%w: buffer %d row %d column %q: %v", bolsonerrors.ErrParse, buf.ID, rows, col.Name, err)
			}
		}
		if len(rec) > 0 && c.behavior == config.FieldError {
			for name := range rec {
				return model.ParsedBatch{}, fmt.Errorf("%w: buffer %d row %d: unexpected field %q", bolsonerrors.ErrParse, buf.ID, rows, name)
			}
		}
		seqNum++
		rows++
	}
	if err := scanner.Err(); err != nil {
		return model.ParsedBatch{}, fmt.Errorf("%w: buffer %d: %v", bolsonerrors.ErrParse, buf.ID, err)
	}
	if rows == 0 {
		return model.ParsedBatch{}, fmt.Errorf("%w: buffer %d: no complete JSON records", bolsonerrors.ErrParse, buf.ID)
	}

	rec := rb.NewRecord()
	return model.ParsedBatch{Batch: rec, Range: buf.Range}, nil
}

// appendField appends one decoded JSON value onto a scalar or list column
// builder. Absent or JSON-null values append a null.
func appendField(b array.Builder, raw json.RawMessage, present bool) error {
	if !present || raw == nil || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		b.AppendNull()
		return nil
	}
	switch fb := b.(type) {
	case *array.Int64Builder:
		var v int64
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		fb.Append(v)
	case *array.Uint64Builder:
		var v uint64
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		fb.Append(v)
	case *array.Float64Builder:
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		fb.Append(v)
	case *array.BooleanBuilder:
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		fb.Append(v)
	case *array.StringBuilder:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		fb.Append(v)
	case *array.ListBuilder:
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return err
		}
		fb.Append(true)
		vb := fb.ValueBuilder()
		for _, e := range elems {
			if err := appendField(vb, e, true); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported builder type %T", b)
	}
	return nil
}
