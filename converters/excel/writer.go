package excel

import (
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-multierror"
	"github.com/xuri/excelize/v2"

	"github.com/darianmavgo/geoio/converters/common"
	"github.com/darianmavgo/geoio/converters/geom"
)

// maxSheetName is the longest sheet name Excel accepts.
const maxSheetName = 31

// Writer is a Sink that streams rows into a single sheet workbook. The
// workbook is saved to path on Close.
type Writer struct {
	path   string
	file   *excelize.File
	sw     *excelize.StreamWriter
	schema common.Schema
	row    int
	buf    []any
	closed bool
}

var _ common.Sink = (*Writer)(nil)

// Create prepares a workbook with one sheet named after table and writes
// the header row.
func Create(path, table string, schema common.Schema) (*Writer, error) {
	f := excelize.NewFile()
	name := sheetName(table)
	if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
		f.Close()
		return nil, common.SchemaError("xlsx.create", "invalid sheet name %q: %v", name, err)
	}
	sw, err := f.NewStreamWriter(name)
	if err != nil {
		f.Close()
		return nil, common.IOError("xlsx.create", path, err)
	}
	w := &Writer{path: path, file: f, sw: sw, schema: schema, buf: make([]any, len(schema))}
	for i, n := range schema.Names() {
		w.buf[i] = n
	}
	if err := w.writeRow(); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func sheetName(table string) string {
	name := table
	for len(name) > maxSheetName || !utf8.ValidString(name) {
		name = name[:len(name)-1]
	}
	if name == "" {
		return "Sheet1"
	}
	return name
}

func (w *Writer) writeRow() error {
	w.row++
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return common.RangeError("xlsx.write", int64(w.row), excelize.TotalRows)
	}
	if err := w.sw.SetRow(cell, w.buf); err != nil {
		return common.IOError("xlsx.write", w.path, err)
	}
	return nil
}

// InsertRow appends one row. Geometries are written as WKT and dates as
// ISO text.
func (w *Writer) InsertRow(values common.Row) error {
	if len(values) != len(w.schema) {
		return common.SchemaError("xlsx.write", "row has %d values, sheet has %d columns", len(values), len(w.schema))
	}
	for i, v := range values {
		switch x := v.(type) {
		case []byte:
			if w.schema[i].Type != common.TypeGeometry {
				w.buf[i] = string(x)
				continue
			}
			g, err := geom.UnmarshalWKB(x)
			if err != nil {
				return common.FormatError("xlsx.write", "row %d: %v", w.row, err)
			}
			w.buf[i] = g.String()
		case time.Time:
			if w.schema[i].Type == common.TypeDate {
				w.buf[i] = x.Format(time.DateOnly)
			} else {
				w.buf[i] = x.Format(time.RFC3339)
			}
		default:
			w.buf[i] = v
		}
	}
	return w.writeRow()
}

// Close flushes the sheet and saves the workbook.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	var result *multierror.Error
	if err := w.sw.Flush(); err != nil {
		result = multierror.Append(result, common.IOError("xlsx.flush", w.path, err))
	} else if err := w.file.SaveAs(w.path); err != nil {
		result = multierror.Append(result, common.IOError("xlsx.save", w.path, err))
	}
	if err := w.file.Close(); err != nil {
		result = multierror.Append(result, common.IOError("xlsx.close", w.path, err))
	}
	return result.ErrorOrNil()
}
