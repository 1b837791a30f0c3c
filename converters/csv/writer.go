package csv

import (
	"encoding/csv"
	"io"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/text/transform"

	"github.com/darianmavgo/geoio/converters/common"
	"github.com/darianmavgo/geoio/converters/geom"
)

// Writer is a Sink writing delimited text. Geometry columns are written as
// WKT and nulls as empty fields.
type Writer struct {
	schema common.Schema
	w      *csv.Writer
	enc    io.WriteCloser
	out    io.Closer
	record []string
	closed bool
}

var _ common.Sink = (*Writer)(nil)

// NewWriter writes the header of schema to w. Closing the Writer flushes
// it and closes out, which may be nil.
func NewWriter(w io.Writer, out io.Closer, schema common.Schema, delimiter rune, encodingName string) (*Writer, error) {
	enc, err := common.LookupEncoding(encodingName)
	if err != nil {
		return nil, err
	}
	if delimiter == 0 || delimiter == common.AutoDelimiter {
		delimiter = ','
	}
	tw := transform.NewWriter(w, enc.NewEncoder())
	cw := csv.NewWriter(tw)
	cw.Comma = delimiter

	c := &Writer{schema: schema, w: cw, enc: tw, out: out, record: make([]string, len(schema))}
	if err := cw.Write(schema.Names()); err != nil {
		return nil, common.IOError("csv.write", "", err)
	}
	return c, nil
}

// Create creates path (compressed by suffix) and writes the header.
func Create(path string, schema common.Schema, delimiter rune, encodingName string, overwrite bool) (*Writer, error) {
	out, err := common.CreateOutput(path, overwrite)
	if err != nil {
		return nil, err
	}
	c, err := NewWriter(out, out, schema, delimiter, encodingName)
	if err != nil {
		out.Close()
		return nil, err
	}
	return c, nil
}

func (c *Writer) InsertRow(values common.Row) error {
	if len(values) != len(c.schema) {
		return common.SchemaError("csv.write", "row has %d values, header has %d", len(values), len(c.schema))
	}
	for i, v := range values {
		if c.schema[i].Type == common.TypeGeometry {
			s, err := geometryText(v)
			if err != nil {
				return err
			}
			c.record[i] = s
			continue
		}
		if b, ok := v.([]byte); ok {
			c.record[i] = string(b)
			continue
		}
		c.record[i] = FormatValue(v)
	}
	if err := c.w.Write(c.record); err != nil {
		return common.IOError("csv.write", "", err)
	}
	return nil
}

func geometryText(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case *geom.Geometry:
		return x.String(), nil
	case []byte:
		g, err := geom.UnmarshalWKB(x)
		if err != nil {
			return "", common.FormatError("csv.write", "invalid geometry: %v", err)
		}
		return g.String(), nil
	case string:
		return x, nil
	}
	return "", common.SchemaError("csv.write", "cannot write %T as geometry", v)
}

// Close flushes buffered records and closes the output.
func (c *Writer) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	var result *multierror.Error
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		result = multierror.Append(result, common.IOError("csv.flush", "", err))
	}
	if err := c.enc.Close(); err != nil {
		result = multierror.Append(result, common.IOError("csv.flush", "", err))
	}
	if c.out != nil {
		if err := c.out.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
