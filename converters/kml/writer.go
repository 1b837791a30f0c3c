// Package kml exports tables as KML 2.2 documents, plain or zipped as KMZ.
// KML is export only.
package kml

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/darianmavgo/geoio/converters/common"
	"github.com/darianmavgo/geoio/converters/geom"
)

// Namespace of KML 2.2 documents.
const Namespace = "http://www.opengis.net/kml/2.2"

// SRID is the only coordinate system KML accepts (WGS 84).
const SRID = 4326

// Writer is a Sink writing one Placemark per row inside a Folder named
// after the table. Attribute columns go to ExtendedData typed by a Schema
// element.
type Writer struct {
	table   string
	schema  common.Schema
	geomIdx int
	attrs   []int
	enc     *xml.Encoder
	out     io.Closer
	err     error
	closed  bool
}

var _ common.Sink = (*Writer)(nil)

// checkSchema returns the geometry column of schema, which must exist and
// be in WGS 84 when its SRID is known.
func checkSchema(schema common.Schema) (int, error) {
	gi := schema.GeometryIndex()
	if gi < 0 {
		return -1, common.SchemaError("kml.write", "table has no geometry column")
	}
	if srid := schema[gi].SRID; srid != 0 && srid != SRID {
		return -1, common.SchemaError("kml.write", "KML needs EPSG:%d coordinates, %s is EPSG:%d", SRID, schema[gi].Name, srid)
	}
	return gi, nil
}

// NewWriter writes the document header to w. Closing the Writer ends the
// document and closes out, which may be nil.
func NewWriter(w io.Writer, out io.Closer, table string, schema common.Schema) (*Writer, error) {
	gi, err := checkSchema(schema)
	if err != nil {
		return nil, err
	}
	kw := &Writer{table: table, schema: schema, geomIdx: gi, enc: xml.NewEncoder(w), out: out}
	for i := range schema {
		if i != gi {
			kw.attrs = append(kw.attrs, i)
		}
	}
	kw.enc.Indent("", "  ")

	kw.token(xml.ProcInst{Target: "xml", Inst: []byte(`version="1.0" encoding="UTF-8"`)})
	kw.token(xml.StartElement{Name: xml.Name{Space: Namespace, Local: "kml"}})
	kw.start("Document")
	if len(kw.attrs) > 0 {
		kw.start("Schema", attr("name", table), attr("id", table))
		for _, i := range kw.attrs {
			f := schema[i]
			kw.start("SimpleField", attr("name", f.Name), attr("type", fieldType(f.Type)))
			kw.end("SimpleField")
		}
		kw.end("Schema")
	}
	kw.start("Folder")
	kw.element("name", table)
	if kw.err != nil {
		return nil, common.IOError("kml.write", "", kw.err)
	}
	return kw, nil
}

// Create creates path and writes the header. A .kmz path gets a ZIP
// archive holding doc.kml.
func Create(path, table string, schema common.Schema, overwrite bool) (*Writer, error) {
	if _, err := checkSchema(schema); err != nil {
		return nil, err
	}
	if err := common.CheckDestination(path, overwrite); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, common.IOError("create", path, err)
	}
	var w io.Writer = f
	closers := closeChain{f.Close}
	if strings.EqualFold(filepath.Ext(path), ".kmz") {
		zw := zip.NewWriter(f)
		if w, err = zw.Create("doc.kml"); err != nil {
			f.Close()
			return nil, common.IOError("create", path, err)
		}
		closers = append(closers, zw.Close)
	}
	kw, err := NewWriter(w, closers, table, schema)
	if err != nil {
		closers.Close()
		return nil, err
	}
	return kw, nil
}

// closeChain closes in reverse order of opening.
type closeChain []func() error

func (c closeChain) Close() error {
	var result *multierror.Error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func fieldType(t common.FieldType) string {
	switch t {
	case common.TypeInteger, common.TypeBigInt:
		return "int"
	case common.TypeDouble:
		return "double"
	case common.TypeBoolean:
		return "bool"
	}
	return "string"
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

func (kw *Writer) token(t xml.Token) {
	if kw.err == nil {
		kw.err = kw.enc.EncodeToken(t)
	}
}

func (kw *Writer) start(name string, attrs ...xml.Attr) {
	kw.token(xml.StartElement{Name: xml.Name{Local: name}, Attr: attrs})
}

func (kw *Writer) end(name string) {
	kw.token(xml.EndElement{Name: xml.Name{Local: name}})
}

func (kw *Writer) element(name, text string, attrs ...xml.Attr) {
	kw.start(name, attrs...)
	kw.token(xml.CharData(text))
	kw.end(name)
}

func (kw *Writer) InsertRow(values common.Row) error {
	if len(values) != len(kw.schema) {
		return common.SchemaError("kml.write", "row has %d values, table has %d columns", len(values), len(kw.schema))
	}
	g, err := toGeometry(values[kw.geomIdx])
	if err != nil {
		return err
	}
	texts := make([]string, len(kw.attrs))
	for j, i := range kw.attrs {
		if values[i] == nil {
			continue
		}
		if texts[j], err = formatValue(values[i], kw.schema[i].Type); err != nil {
			return err
		}
	}

	kw.start("Placemark")
	if len(kw.attrs) > 0 {
		kw.start("ExtendedData")
		kw.start("SchemaData", attr("schemaUrl", "#"+kw.table))
		for j, i := range kw.attrs {
			if values[i] != nil {
				kw.element("SimpleData", texts[j], attr("name", kw.schema[i].Name))
			}
		}
		kw.end("SchemaData")
		kw.end("ExtendedData")
	}
	if g != nil {
		kw.geometry(g)
	}
	kw.end("Placemark")
	if kw.err != nil {
		return common.IOError("kml.write", "", kw.err)
	}
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
			return nil, common.FormatError("kml.write", "invalid geometry: %v", err)
		}
		return g, nil
	}
	return nil, common.SchemaError("kml.write", "cannot write %T as geometry", v)
}

func formatValue(v any, t common.FieldType) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	case time.Time:
		if t == common.TypeDate {
			return x.Format(time.DateOnly), nil
		}
		return x.Format(time.RFC3339), nil
	case []byte:
		if t != common.TypeGeometry {
			return string(x), nil
		}
		g, err := toGeometry(x)
		if err != nil {
			return "", err
		}
		return g.String(), nil
	}
	return "", common.SchemaError("kml.write", "cannot write %T", v)
}

func (kw *Writer) geometry(g *geom.Geometry) {
	z := g.Layout.HasZ()
	switch g.Kind {
	case geom.KindPoint:
		kw.point(g.Points, z)
	case geom.KindLineString:
		kw.lineString(g.Points, z)
	case geom.KindPolygon:
		kw.polygon(g.Lines, z)
	case geom.KindMultiPoint:
		kw.start("MultiGeometry")
		for i := range g.Points {
			kw.point(g.Points[i:i+1], z)
		}
		kw.end("MultiGeometry")
	case geom.KindMultiLineString:
		kw.start("MultiGeometry")
		for _, l := range g.Lines {
			kw.lineString(l, z)
		}
		kw.end("MultiGeometry")
	case geom.KindMultiPolygon:
		kw.start("MultiGeometry")
		for _, p := range g.Polygons {
			kw.polygon(p, z)
		}
		kw.end("MultiGeometry")
	}
}

func (kw *Writer) point(pts []geom.Coord, z bool) {
	kw.start("Point")
	kw.element("coordinates", coordinates(pts, z))
	kw.end("Point")
}

func (kw *Writer) lineString(pts []geom.Coord, z bool) {
	kw.start("LineString")
	kw.element("coordinates", coordinates(pts, z))
	kw.end("LineString")
}

func (kw *Writer) polygon(rings [][]geom.Coord, z bool) {
	kw.start("Polygon")
	for i, ring := range rings {
		boundary := "innerBoundaryIs"
		if i == 0 {
			boundary = "outerBoundaryIs"
		}
		kw.start(boundary)
		kw.start("LinearRing")
		kw.element("coordinates", coordinates(ring, z))
		kw.end("LinearRing")
		kw.end(boundary)
	}
	kw.end("Polygon")
}

// coordinates renders lon,lat[,alt] tuples separated by spaces.
func coordinates(pts []geom.Coord, z bool) string {
	var b strings.Builder
	for i, c := range pts {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatFloat(c.X, 'f', -1, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(c.Y, 'f', -1, 64))
		if z {
			b.WriteByte(',')
			b.WriteString(strconv.FormatFloat(c.Z, 'f', -1, 64))
		}
	}
	return b.String()
}

// Close ends the document, flushes and closes the output.
func (kw *Writer) Close() error {
	if kw.closed {
		return nil
	}
	kw.closed = true
	var result *multierror.Error
	kw.end("Folder")
	kw.end("Document")
	kw.token(xml.EndElement{Name: xml.Name{Space: Namespace, Local: "kml"}})
	if kw.err == nil {
		kw.err = kw.enc.Close()
	}
	if kw.err != nil {
		result = multierror.Append(result, common.IOError("kml.flush", "", kw.err))
	}
	if kw.out != nil {
		if err := kw.out.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
