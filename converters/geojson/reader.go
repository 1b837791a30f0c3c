// Package geojson imports and exports GeoJSON FeatureCollections. Each
// feature becomes one row: the geometry in the_geom followed by one column
// per property.
package geojson

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/darianmavgo/geoio/converters/common"
	"github.com/darianmavgo/geoio/converters/geom"
)

// SRID of a collection that names no crs.
const SRID = 4326

// GeometryColumn is the name of the imported geometry column.
const GeometryColumn = "the_geom"

// feature is one member of the features array.
type feature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties properties      `json:"properties"`
}

// properties keeps the members of a properties object in document order.
type properties struct {
	keys   []string
	values []any
}

func (p *properties) UnmarshalJSON(b []byte) error {
	p.keys, p.values = p.keys[:0], p.values[:0]
	if isNull(b) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := expectDelim(dec, '{'); err != nil {
		return fmt.Errorf("properties: %w", err)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("property %q: %w", key, err)
		}
		p.keys = append(p.keys, key)
		p.values = append(p.values, v)
	}
	return expectDelim(dec, '}')
}

// Bits of the JSON value kinds seen in one property.
const (
	seenString = 1 << iota
	seenBool
	seenInt
	seenFloat
	seenNested
)

func valueKind(v any) int {
	switch x := v.(type) {
	case nil:
		return 0
	case string:
		return seenString
	case bool:
		return seenBool
	case json.Number:
		if _, err := x.Int64(); err == nil {
			return seenInt
		}
		return seenFloat
	}
	return seenNested
}

// columnType maps the kinds seen across a file to a column type. Anything
// mixed with text or nested values is text.
func columnType(kinds int) common.FieldType {
	switch kinds {
	case seenBool:
		return common.TypeBoolean
	case seenInt:
		return common.TypeBigInt
	case seenFloat, seenInt | seenFloat:
		return common.TypeDouble
	}
	return common.TypeText
}

// collection holds the top level members read around the features array.
type collection struct {
	typ  string
	srid int
}

var epsgCode = regexp.MustCompile(`(?i)EPSG:{1,2}(\d+)$`)

// parseCRS reads the srid of a named crs member. Unknown names give 0.
func parseCRS(raw json.RawMessage) int {
	var crs struct {
		Properties struct {
			Name string `json:"name"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(raw, &crs); err != nil {
		return 0
	}
	name := strings.TrimSpace(crs.Properties.Name)
	if strings.HasSuffix(strings.ToUpper(name), "CRS84") {
		return SRID
	}
	if m := epsgCode.FindStringSubmatch(name); m != nil {
		srid, _ := strconv.Atoi(m[1])
		return srid
	}
	return 0
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %v, found %v", want, tok)
	}
	return nil
}

// member reads one top level member other than features into c.
func (c *collection) member(dec *json.Decoder, key string) error {
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch strings.ToLower(key) {
	case "type":
		if err := json.Unmarshal(raw, &c.typ); err != nil {
			return fmt.Errorf("type: %w", err)
		}
		if !strings.EqualFold(c.typ, "FeatureCollection") {
			return fmt.Errorf("expected a FeatureCollection, found %q", c.typ)
		}
	case "crs":
		c.srid = parseCRS(raw)
	}
	return nil
}

// enter consumes the top level object up to the opening of the features
// array.
func (c *collection) enter(dec *json.Decoder) error {
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		if strings.EqualFold(key, "features") {
			return expectDelim(dec, '[')
		}
		if err := c.member(dec, key); err != nil {
			return err
		}
	}
	return errors.New("document has no features member")
}

// leave consumes the rest of the document after the features array.
func (c *collection) leave(dec *json.Decoder) error {
	if err := expectDelim(dec, ']'); err != nil {
		return err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if err := c.member(dec, fmt.Sprint(tok)); err != nil {
			return err
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return err
	}
	if c.typ == "" {
		return errors.New("document has no type member")
	}
	return nil
}

func newDecoder(r io.Reader) *json.Decoder {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec
}

func decodeFeature(dec *json.Decoder, f *feature) error {
	*f = feature{}
	if err := dec.Decode(f); err != nil {
		return err
	}
	if !strings.EqualFold(f.Type, "Feature") {
		return fmt.Errorf("expected a Feature, found %q", f.Type)
	}
	return nil
}

// inferSchema reads the whole document once and returns the table schema
// and, per column, the raw property name it holds.
func inferSchema(path string) (common.Schema, []string, error) {
	in, err := common.OpenInput(path)
	if err != nil {
		return nil, nil, err
	}
	defer in.Close()

	var (
		c     collection
		f     feature
		keys  []string
		kinds = map[string]int{}
		geoms = map[geom.Kind]bool{}
		n     int
	)
	readErr := func(err error) error {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			err = errors.New("unexpected end of file")
		}
		return common.FormatError("geojson.read", "feature %d: %v", n, err).WithPath(path)
	}

	dec := newDecoder(in)
	if err := c.enter(dec); err != nil {
		return nil, nil, common.FormatError("geojson.read", "%v", err).WithPath(path)
	}
	for dec.More() {
		if err := decodeFeature(dec, &f); err != nil {
			return nil, nil, readErr(err)
		}
		if !isNull(f.Geometry) {
			var obj geometryObject
			if err := json.Unmarshal(f.Geometry, &obj); err != nil {
				return nil, nil, readErr(err)
			}
			k, err := geometryKind(obj.Type)
			if err != nil {
				return nil, nil, readErr(err)
			}
			geoms[k] = true
		}
		for i, key := range f.Properties.keys {
			if _, ok := kinds[key]; !ok {
				keys = append(keys, key)
			}
			kinds[key] |= valueKind(f.Properties.values[i])
		}
		n++
	}
	if err := c.leave(dec); err != nil {
		return nil, nil, common.FormatError("geojson.read", "%v", err).WithPath(path)
	}

	g := common.Field{Name: GeometryColumn, Type: common.TypeGeometry, SRID: c.srid}
	if g.SRID == 0 {
		g.SRID = SRID
	}
	if len(geoms) == 1 {
		for k := range geoms {
			g.GeometryKind = k.String()
		}
	}
	names := common.GenColumnNames(append([]string{GeometryColumn}, keys...))
	schema := common.Schema{g}
	for i, key := range keys {
		schema = append(schema, common.Field{Name: names[i+1], Type: columnType(kinds[key])})
	}
	return schema, keys, nil
}

// Reader streams the features of a FeatureCollection as rows of a single
// table. The schema comes from a first pass over the whole file, so every
// property of every feature gets a column.
type Reader struct {
	path     string
	input    *common.InputFile
	dec      *json.Decoder
	progress common.Progress

	schema  common.Schema
	columns map[string]int
	srid    int
	feature feature
	rows    int64
	done    bool
}

var _ common.Source = (*Reader)(nil)

// Open infers the schema of path, then reopens it for streaming.
// Compression is detected by suffix.
func Open(path string, progress common.Progress) (*Reader, error) {
	schema, keys, err := inferSchema(path)
	if err != nil {
		return nil, err
	}
	in, err := common.OpenInput(path)
	if err != nil {
		return nil, err
	}
	r := &Reader{
		path:     path,
		input:    in,
		dec:      newDecoder(in),
		progress: common.NoProgress,
		schema:   schema,
		columns:  make(map[string]int, len(keys)),
		srid:     schema[0].SRID,
	}
	if progress != nil {
		r.progress = progress
	}
	for i, key := range keys {
		r.columns[key] = i + 1
	}
	var c collection
	if err := c.enter(r.dec); err != nil {
		in.Close()
		return nil, common.FormatError("geojson.read", "%v", err).WithPath(path)
	}
	return r, nil
}

func (r *Reader) Tables() []common.TableDef {
	return []common.TableDef{{Schema: r.schema}}
}

// Schema returns the inferred schema.
func (r *Reader) Schema() common.Schema { return r.schema }

func (r *Reader) Next() (common.Result, error) {
	if r.done || !r.dec.More() {
		r.done = true
		r.progress.ProgressTo(1)
		return common.Result{State: common.StateEnd}, nil
	}
	f := &r.feature
	if err := decodeFeature(r.dec, f); err != nil {
		return common.Result{}, r.formatError("%v", err)
	}
	row := make(common.Row, len(r.schema))
	g, err := decodeGeometry(f.Geometry)
	if err != nil {
		return common.Result{}, r.formatError("%v", err)
	}
	if g != nil {
		g.SRID = r.srid
		if row[0], err = geom.MarshalWKB(g); err != nil {
			return common.Result{}, r.formatError("%v", err)
		}
	}
	for i, key := range f.Properties.keys {
		col, ok := r.columns[key]
		if !ok {
			return common.Result{}, r.formatError("property %q changed since the schema was read", key)
		}
		v, err := convert(f.Properties.values[i], r.schema[col].Type)
		if err != nil {
			return common.Result{}, r.formatError("property %q: %v", key, err)
		}
		row[col] = v
	}
	r.rows++
	if r.rows%1000 == 0 {
		r.progress.ProgressTo(r.input.Fraction())
	}
	return common.Result{State: common.StateRow, Row: row}, nil
}

func (r *Reader) formatError(format string, args ...any) error {
	return common.FormatError("geojson.read", "feature %d: "+format, append([]any{r.rows}, args...)...).WithPath(r.path)
}

func (r *Reader) Close() error {
	if r.input == nil {
		return nil
	}
	err := r.input.Close()
	r.input = nil
	return err
}

// convert turns a decoded JSON value into a value of a column of type t.
func convert(v any, t common.FieldType) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case common.TypeBigInt:
		if n, ok := v.(json.Number); ok {
			return n.Int64()
		}
	case common.TypeDouble:
		if n, ok := v.(json.Number); ok {
			return n.Float64()
		}
	case common.TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case common.TypeText:
		switch x := v.(type) {
		case string:
			return x, nil
		case json.Number:
			return x.String(), nil
		case bool:
			return strconv.FormatBool(x), nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	return nil, fmt.Errorf("cannot store %T in a %v column", v, t)
}
