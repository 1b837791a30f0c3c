package geojson

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/darianmavgo/geoio/converters/geom"
)

// geometryObject is a GeoJSON geometry member. Coordinates stay raw until
// the type is known.
type geometryObject struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

var kindNames = map[string]geom.Kind{
	"point":           geom.KindPoint,
	"linestring":      geom.KindLineString,
	"polygon":         geom.KindPolygon,
	"multipoint":      geom.KindMultiPoint,
	"multilinestring": geom.KindMultiLineString,
	"multipolygon":    geom.KindMultiPolygon,
}

var typeNames = map[geom.Kind]string{
	geom.KindPoint:           "Point",
	geom.KindLineString:      "LineString",
	geom.KindPolygon:         "Polygon",
	geom.KindMultiPoint:      "MultiPoint",
	geom.KindMultiLineString: "MultiLineString",
	geom.KindMultiPolygon:    "MultiPolygon",
}

// geometryKind returns the kind named by a geometry's type member.
func geometryKind(name string) (geom.Kind, error) {
	if k, ok := kindNames[strings.ToLower(name)]; ok {
		return k, nil
	}
	if strings.EqualFold(name, "GeometryCollection") {
		return 0, fmt.Errorf("unsupported geometry type %s", name)
	}
	return 0, fmt.Errorf("unknown geometry type %q", name)
}

// decodeGeometry turns a raw geometry member into a geometry. A JSON null
// is a nil geometry.
func decodeGeometry(raw json.RawMessage) (*geom.Geometry, error) {
	if isNull(raw) {
		return nil, nil
	}
	var obj geometryObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("invalid geometry: %w", err)
	}
	kind, err := geometryKind(obj.Type)
	if err != nil {
		return nil, err
	}
	if isNull(obj.Coordinates) {
		return nil, fmt.Errorf("%s has no coordinates", obj.Type)
	}

	var pos positions
	g := &geom.Geometry{Kind: kind}
	switch kind {
	case geom.KindPoint:
		var c []float64
		if err = json.Unmarshal(obj.Coordinates, &c); err == nil {
			var p geom.Coord
			if p, err = pos.coord(c); err == nil {
				g.Points = []geom.Coord{p}
			}
		}
	case geom.KindLineString, geom.KindMultiPoint:
		var cs [][]float64
		if err = json.Unmarshal(obj.Coordinates, &cs); err == nil {
			g.Points, err = pos.seq(cs)
		}
	case geom.KindPolygon, geom.KindMultiLineString:
		var css [][][]float64
		if err = json.Unmarshal(obj.Coordinates, &css); err == nil {
			g.Lines, err = pos.seqs(css)
		}
	case geom.KindMultiPolygon:
		var polys [][][][]float64
		if err = json.Unmarshal(obj.Coordinates, &polys); err == nil {
			g.Polygons = make([][][]geom.Coord, len(polys))
			for i := 0; i < len(polys) && err == nil; i++ {
				g.Polygons[i], err = pos.seqs(polys[i])
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s coordinates: %w", obj.Type, err)
	}
	g.Layout = pos.layout()
	return g, nil
}

// positions tracks whether every position read carries an altitude.
type positions struct {
	n    int
	allZ bool
}

func (p *positions) coord(c []float64) (geom.Coord, error) {
	if len(c) < 2 {
		return geom.Coord{}, fmt.Errorf("position has %d values", len(c))
	}
	if p.n == 0 {
		p.allZ = true
	}
	p.n++
	out := geom.Coord{X: c[0], Y: c[1]}
	if len(c) >= 3 {
		out.Z = c[2]
	} else {
		p.allZ = false
	}
	return out, nil
}

func (p *positions) seq(cs [][]float64) ([]geom.Coord, error) {
	out := make([]geom.Coord, len(cs))
	for i, c := range cs {
		var err error
		if out[i], err = p.coord(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *positions) seqs(css [][][]float64) ([][]geom.Coord, error) {
	out := make([][]geom.Coord, len(css))
	for i, cs := range css {
		var err error
		if out[i], err = p.seq(cs); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *positions) layout() geom.Layout {
	if p.n > 0 && p.allZ {
		return geom.XYZ
	}
	return geom.XY
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

// appendGeometry writes g as a GeoJSON geometry object. M values are
// dropped; GeoJSON positions carry at most an altitude.
func appendGeometry(b []byte, g *geom.Geometry) ([]byte, error) {
	name, ok := typeNames[g.Kind]
	if !ok {
		return nil, fmt.Errorf("unsupported geometry kind %v", g.Kind)
	}
	z := g.Layout.HasZ()
	b = append(b, `{"type":"`...)
	b = append(b, name...)
	b = append(b, `","coordinates":`...)
	switch g.Kind {
	case geom.KindPoint:
		if len(g.Points) == 0 {
			b = append(b, "[]"...)
		} else {
			b = appendPosition(b, g.Points[0], z)
		}
	case geom.KindLineString, geom.KindMultiPoint:
		b = appendSeq(b, g.Points, z)
	case geom.KindPolygon, geom.KindMultiLineString:
		b = appendSeqs(b, g.Lines, z)
	case geom.KindMultiPolygon:
		b = append(b, '[')
		for i, p := range g.Polygons {
			if i > 0 {
				b = append(b, ',')
			}
			b = appendSeqs(b, p, z)
		}
		b = append(b, ']')
	}
	return append(b, '}'), nil
}

func appendPosition(b []byte, c geom.Coord, z bool) []byte {
	b = append(b, '[')
	b = appendNumber(b, c.X)
	b = append(b, ',')
	b = appendNumber(b, c.Y)
	if z {
		b = append(b, ',')
		b = appendNumber(b, c.Z)
	}
	return append(b, ']')
}

func appendSeq(b []byte, cs []geom.Coord, z bool) []byte {
	b = append(b, '[')
	for i, c := range cs {
		if i > 0 {
			b = append(b, ',')
		}
		b = appendPosition(b, c, z)
	}
	return append(b, ']')
}

func appendSeqs(b []byte, seqs [][]geom.Coord, z bool) []byte {
	b = append(b, '[')
	for i, cs := range seqs {
		if i > 0 {
			b = append(b, ',')
		}
		b = appendSeq(b, cs, z)
	}
	return append(b, ']')
}

// appendNumber writes f as a JSON number; NaN and infinities become null.
func appendNumber(b []byte, f float64) []byte {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return append(b, "null"...)
	}
	return strconv.AppendFloat(b, f, 'f', -1, 64)
}
