package geojson

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-multierror"

	"github.com/darianmavgo/geoio/converters/common"
	"github.com/darianmavgo/geoio/converters/geom"
)

// Writer is a Sink writing a FeatureCollection. The first geometry column
// is the feature geometry; every other column is a property, with further
// geometry columns written as WKT.
type Writer struct {
	schema  common.Schema
	geomIdx int
	w       *bufio.Writer
	out     io.Closer
	keys    [][]byte
	buf     []byte
	count   int64
	closed  bool
}

var _ common.Sink = (*Writer)(nil)

// NewWriter writes the collection header to w. Closing the Writer ends
// the collection and closes out, which may be nil.
func NewWriter(w io.Writer, out io.Closer, schema common.Schema) (*Writer, error) {
	gi := schema.GeometryIndex()
	if gi < 0 {
		return nil, common.SchemaError("geojson.write", "table has no geometry column")
	}
	gw := &Writer{schema: schema, geomIdx: gi, w: bufio.NewWriterSize(w, 65536), out: out, keys: make([][]byte, len(schema))}
	for i, f := range schema {
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, common.SchemaError("geojson.write", "column %q: %v", f.Name, err)
		}
		gw.keys[i] = k
	}

	head := []byte(`{"type":"FeatureCollection",`)
	if srid := schema[gi].SRID; srid != 0 && srid != SRID {
		head = fmt.Appendf(head, `"crs":{"type":"name","properties":{"name":"urn:ogc:def:crs:EPSG::%d"}},`, srid)
	}
	head = append(head, `"features":[`...)
	if _, err := gw.w.Write(head); err != nil {
		return nil, common.IOError("geojson.write", "", err)
	}
	return gw, nil
}

// Create creates path (compressed by suffix) and writes the header.
func Create(path string, schema common.Schema, overwrite bool) (*Writer, error) {
	if schema.GeometryIndex() < 0 {
		return nil, common.SchemaError("geojson.write", "table has no geometry column")
	}
	out, err := common.CreateOutput(path, overwrite)
	if err != nil {
		return nil, err
	}
	gw, err := NewWriter(out, out, schema)
	if err != nil {
		out.Close()
		return nil, err
	}
	return gw, nil
}

func (gw *Writer) InsertRow(values common.Row) error {
	if len(values) != len(gw.schema) {
		return common.SchemaError("geojson.write", "row has %d values, table has %d columns", len(values), len(gw.schema))
	}
	b := gw.buf[:0]
	if gw.count > 0 {
		b = append(b, ',')
	}
	b = append(b, `{"type":"Feature","geometry":`...)
	g, err := toGeometry(values[gw.geomIdx])
	if err != nil {
		return err
	}
	if g == nil {
		b = append(b, "null"...)
	} else if b, err = appendGeometry(b, g); err != nil {
		return common.SchemaError("geojson.write", "row %d: %v", gw.count, err)
	}

	b = append(b, `,"properties":{`...)
	first := true
	for i, v := range values {
		if i == gw.geomIdx {
			continue
		}
		if !first {
			b = append(b, ',')
		}
		first = false
		b = append(b, gw.keys[i]...)
		b = append(b, ':')
		if b, err = appendValue(b, v, gw.schema[i]); err != nil {
			return err
		}
	}
	b = append(b, "}}"...)

	if _, err := gw.w.Write(b); err != nil {
		return common.IOError("geojson.write", "", err)
	}
	gw.buf = b
	gw.count++
	return nil
}

func toGeometry(v any) (*geom.Geometry, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case *geom.Geometry:
		return x, nil
	case []byte:
		g, err := geom.UnmarshalWKB(x)
		if err != nil {
			return nil, common.FormatError("geojson.write", "invalid geometry: %v", err)
		}
		return g, nil
	}
	return nil, common.SchemaError("geojson.write", "cannot write %T as geometry", v)
}

func appendValue(b []byte, v any, f common.Field) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return append(b, "null"...), nil
	case int64:
		return strconv.AppendInt(b, x, 10), nil
	case float64:
		return appendNumber(b, x), nil
	case bool:
		return strconv.AppendBool(b, x), nil
	case time.Time:
		if f.Type == common.TypeDate {
			return strconv.AppendQuote(b, x.Format(time.DateOnly)), nil
		}
		return strconv.AppendQuote(b, x.Format(time.RFC3339)), nil
	case []byte:
		if f.Type == common.TypeGeometry {
			g, err := toGeometry(x)
			if err != nil {
				return nil, err
			}
			v = g.String()
		} else {
			v = string(x)
		}
	}
	s, err := json.Marshal(v)
	if err != nil {
		return nil, common.SchemaError("geojson.write", "column %s: %v", f.Name, err)
	}
	return append(b, s...), nil
}

// Close ends the collection, flushes and closes the output.
func (gw *Writer) Close() error {
	if gw.closed {
		return nil
	}
	gw.closed = true
	var result *multierror.Error
	if _, err := gw.w.WriteString("]}\n"); err != nil {
		result = multierror.Append(result, common.IOError("geojson.flush", "", err))
	}
	if err := gw.w.Flush(); err != nil {
		result = multierror.Append(result, common.IOError("geojson.flush", "", err))
	}
	if gw.out != nil {
		if err := gw.out.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
