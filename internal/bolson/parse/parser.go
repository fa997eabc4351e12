// Package parse defines the Parser capability interface and its reference
// CPU implementation. Accelerator-specific backends (FPGA/OPAE) are out
// of scope; only the interface and the CPU variant are implemented here.
package parse

import (
	"github.com/apache/arrow-go/v18/arrow"

	"github.com/bolson-project/bolson/internal/bolson/buffer"
	"github.com/bolson-project/bolson/internal/bolson/model"
)

// Parser converts raw JSON buffers into columnar record batches. A single
// Parser instance is bound to one converter worker for its lifetime; it
// may be called with more than one buffer in backends that batch parsing
// across buffers, but the reference CPU parser is always invoked with
// exactly one buffer per call, matching the converter worker loop in spec
// §4.6.
type Parser interface {
	// Parse converts the given buffers into one ParsedBatch per buffer, in
	// the same order. A non-nil error means none of the buffers produced a
	// batch; callers treat this as a non-fatal parse error and drop the
	// buffer, continuing with the next one.
	Parse(buffers []*buffer.Buffer) ([]model.ParsedBatch, error)

	// NeedsExclusiveAccess reports whether calls to Parse must be
	// serialized process-wide via an external lock, required by certain
	// hardware-backed parser implementations that are not safe for
	// concurrent use.
	NeedsExclusiveAccess() bool

	// InputSchema returns the schema the parser expects each JSON record to
	// conform to.
	InputSchema() *arrow.Schema

	// OutputSchema returns the schema of record batches the parser
	// produces, which is InputSchema with a prepended bolson_seq column
	// when seq-column mode is enabled.
	OutputSchema() *arrow.Schema
}
