package parse

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/bolson-project/bolson/internal/bolson/config"
)

// BuildSchema translates the user-configured column list into an Arrow
// schema, optionally prepending a bolson_seq column, walking the column
// list with a field-by-field type switch.
func BuildSchema(cols []config.SchemaColumn, seqColumn bool, seqColumnName string) (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, len(cols)+1)
	if seqColumn {
		fields = append(fields, arrow.Field{Name: seqColumnName, Type: arrow.PrimitiveTypes.Uint64})
	}
	for _, c := range cols {
		typ, err := parseColumnType(c.Type)
		if err != nil {
			return nil, fmt.Errorf("schema column %q: %w", c.Name, err)
		}
		fields = append(fields, arrow.Field{Name: c.Name, Type: typ, Nullable: true})
	}
	return arrow.NewSchema(fields, nil), nil
}

// parseColumnType maps the small set of scalar and list type names the
// configuration accepts onto their Arrow equivalents.
func parseColumnType(name string) (arrow.DataType, error) {
	if strings.HasPrefix(name, "list<") && strings.HasSuffix(name, ">") {
		inner := name[len("list<") : len(name)-1]
		elem, err := parseColumnType(inner)
		if err != nil {
			return nil, err
		}
		return arrow.ListOf(elem), nil
	}
	switch name {
	case "int64":
		return arrow.PrimitiveTypes.Int64, nil
	case "uint64":
		return arrow.PrimitiveTypes.Uint64, nil
	case "float64":
		return arrow.PrimitiveTypes.Float64, nil
	case "bool":
		return arrow.FixedWidthTypes.Boolean, nil
	case "string":
		return arrow.BinaryTypes.String, nil
	default:
		return nil, fmt.Errorf("unsupported schema type %q", name)
	}
}

// WithMetadata returns a copy of schema carrying the given key/value pairs
// in its metadata, used to embed bolson_seq_first / bolson_seq_last on each
// outgoing IPC message.
func WithMetadata(schema *arrow.Schema, keys, vals []string) *arrow.Schema {
	md := arrow.NewMetadata(keys, vals)
	return arrow.NewSchema(schema.Fields(), &md)
}
