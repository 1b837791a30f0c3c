package common

import (
	"context"
	"fmt"
	"strings"
)

// FieldType is the declared type of a column.
type FieldType int

const (
	TypeText FieldType = iota
	TypeInteger
	TypeBigInt
	TypeDouble
	TypeBoolean
	TypeDate
	TypeGeometry
)

func (t FieldType) String() string {
	switch t {
	case TypeText:
		return "text"
	case TypeInteger:
		return "integer"
	case TypeBigInt:
		return "bigint"
	case TypeDouble:
		return "double"
	case TypeBoolean:
		return "boolean"
	case TypeDate:
		return "date"
	case TypeGeometry:
		return "geometry"
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

// Field describes one column of a Schema.
type Field struct {
	Name     string
	Type     FieldType
	Length   int // declared width, 0 if unbounded
	Decimals int
	// GeometryKind is the WKT name of the geometry type ("POINT",
	// "MULTIPOLYGON", ...) when known. Only meaningful for TypeGeometry.
	GeometryKind string
	SRID         int
}

// Schema is an ordered list of fields.
type Schema []Field

// Names returns the field names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Index returns the position of name (case-insensitive), or -1.
func (s Schema) Index(name string) int {
	for i, f := range s {
		if strings.EqualFold(f.Name, name) {
			return i
		}
	}
	return -1
}

// GeometryIndex returns the position of the first geometry field, or -1.
func (s Schema) GeometryIndex() int {
	for i, f := range s {
		if f.Type == TypeGeometry {
			return i
		}
	}
	return -1
}

// Validate checks that names are present and unique ignoring case.
func (s Schema) Validate() error {
	seen := make(map[string]bool, len(s))
	for i, f := range s {
		if f.Name == "" {
			return SchemaError("schema.validate", "field %d has no name", i)
		}
		key := strings.ToLower(f.Name)
		if seen[key] {
			return SchemaError("schema.validate", "duplicate field name %q", f.Name)
		}
		seen[key] = true
	}
	return nil
}

// Row holds one value per schema field. Values are string, int64, float64,
// bool, time.Time, []byte (WKB geometry) or nil.
type Row []any

// State tells what a read produced.
type State int

const (
	StateRow State = iota
	StateDeleted
	StateEnd
)

// Result is the outcome of one read: a row, a deleted slot, or end of
// stream. Table indexes Source.Tables() for multi-table sources.
type Result struct {
	State State
	Table int
	Row   Row
}

// TableDef names one output table of a Source. The target table name is
// the requested name plus Suffix.
type TableDef struct {
	Suffix string
	Schema Schema
}

// Source is a lazy, forward-only sequence of rows.
type Source interface {
	Tables() []TableDef
	// Next returns StateEnd once the input is exhausted.
	Next() (Result, error)
	Close() error
}

// FileDriver is random access over a file-backed table.
type FileDriver interface {
	Schema() Schema
	RowCount() int64
	// Row reports StateDeleted for records flagged as deleted.
	Row(rowID int64) (Result, error)
	InsertRow(values Row) error
	Close() error
}

// Sink receives rows during an export.
type Sink interface {
	InsertRow(values Row) error
	Close() error
}

// TableEngine is the SQL store files are imported into and exported from.
type TableEngine interface {
	TableExists(ctx context.Context, name string) (bool, error)
	CreateTable(ctx context.Context, name string, schema Schema) error
	DropTable(ctx context.Context, name string) error
	// InsertBatch writes rows as one unit of work.
	InsertBatch(ctx context.Context, name string, schema Schema, rows []Row) error
	// Scan yields rows in table order. Returning an error from yield stops
	// the scan and is returned as is.
	Scan(ctx context.Context, name string, yield func(Row) error) error
	TableSchema(ctx context.Context, name string) (Schema, error)
	RowCount(ctx context.Context, name string) (int64, error)
}

// DriverFunction is the registration surface of one file format.
type DriverFunction interface {
	Descriptor() *Descriptor
	ImportFile(ctx context.Context, engine TableEngine, path, table string, opts ImportOptions, progress Progress) error
	ExportTable(ctx context.Context, engine TableEngine, table, path string, opts ExportOptions, progress Progress) error
}
