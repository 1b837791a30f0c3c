package shp

import (
	"encoding/binary"
	"math"

	"github.com/darianmavgo/geoio/converters/common"
	"github.com/darianmavgo/geoio/converters/geom"
)

// byteReader walks a little-endian record body and remembers the first
// overrun.
type byteReader struct {
	b   []byte
	pos int
	bad bool
}

func (r *byteReader) left() int { return len(r.b) - r.pos }

func (r *byteReader) take(n int) []byte {
	if r.bad || n < 0 || r.left() < n {
		r.bad = true
		return nil
	}
	s := r.b[r.pos : r.pos+n]
	r.pos += n
	return s
}

func (r *byteReader) int32() int32 {
	s := r.take(4)
	if s == nil {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(s))
}

func (r *byteReader) float() float64 {
	s := r.take(8)
	if s == nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(s))
}

// DecodeShape decodes one record body (starting at the shape type) from a
// file of type fileType. A Null record decodes to nil.
func DecodeShape(body []byte, fileType ShapeType) (*geom.Geometry, error) {
	r := &byteReader{b: body}
	t := ShapeType(r.int32())
	if r.bad {
		return nil, common.FormatError("shp.decode", "record has no shape type")
	}
	if t == Null {
		return nil, nil
	}
	if t != fileType {
		return nil, common.FormatError("shp.decode", "record type %v in a %v file", t, fileType)
	}

	var g *geom.Geometry
	switch t.Base() {
	case Point:
		g = decodePoint(r, t)
	case MultiPoint:
		_, pts, l := decodePoly(r, t, false)
		g = geom.NewMultiPoint(l, pts)
	case PolyLine:
		parts, pts, l := decodePoly(r, t, true)
		g = geom.NewMultiLineString(l, splitParts(parts, pts))
	case Polygon:
		parts, pts, l := decodePoly(r, t, true)
		g = geom.NewMultiPolygon(l, assemblePolygons(splitParts(parts, pts)))
	default:
		return nil, common.FormatError("shp.decode", "unsupported shape type %v", t)
	}
	if r.bad {
		return nil, common.FormatError("shp.decode", "%v record truncated", t)
	}
	return g, nil
}

func decodePoint(r *byteReader, t ShapeType) *geom.Geometry {
	c := geom.Coord{X: r.float(), Y: r.float()}
	switch {
	case t.HasZ():
		c.Z = r.float()
		if r.left() >= 8 {
			c.M = r.float()
			return geom.NewPoint(geom.XYZM, c)
		}
		return geom.NewPoint(geom.XYZ, c)
	case t.HasM():
		c.M = r.float()
		return geom.NewPoint(geom.XYM, c)
	}
	return geom.NewPoint(geom.XY, c)
}

// decodePoly reads the box, optional part table, points and Z/M blocks
// shared by MultiPoint, PolyLine and Polygon records.
func decodePoly(r *byteReader, t ShapeType, withParts bool) ([]int, []geom.Coord, geom.Layout) {
	r.take(32) // box
	numParts := 1
	if withParts {
		numParts = int(r.int32())
	}
	numPoints := int(r.int32())
	if numParts < 0 || numPoints < 0 || (withParts && numParts*4 > r.left()) || numPoints*16 > r.left() {
		r.bad = true
		return nil, nil, geom.XY
	}
	parts := []int{0}
	if withParts {
		parts = make([]int, numParts)
		for i := range parts {
			parts[i] = int(r.int32())
			if parts[i] < 0 || parts[i] > numPoints || (i > 0 && parts[i] < parts[i-1]) {
				r.bad = true
				return nil, nil, geom.XY
			}
		}
	}
	pts := make([]geom.Coord, numPoints)
	for i := range pts {
		pts[i].X, pts[i].Y = r.float(), r.float()
	}

	z, m := false, false
	if t.HasZ() {
		r.take(16)
		for i := range pts {
			pts[i].Z = r.float()
		}
		z = true
	}
	if t.HasM() && r.left() >= 16+8*numPoints {
		r.take(16)
		for i := range pts {
			pts[i].M = r.float()
		}
		m = true
	}
	return parts, pts, geom.LayoutOf(z, m)
}

func splitParts(parts []int, pts []geom.Coord) [][]geom.Coord {
	out := make([][]geom.Coord, 0, len(parts))
	for i, start := range parts {
		end := len(pts)
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if end > start {
			out = append(out, pts[start:end:end])
		}
	}
	return out
}

// assemblePolygons groups rings into polygons. Clockwise rings are shells
// and counter-clockwise rings are holes. Each hole joins the smallest shell
// containing it; a hole no shell contains becomes a shell itself.
func assemblePolygons(rings [][]geom.Coord) [][][]geom.Coord {
	type shell struct {
		ring  []geom.Coord
		bound geom.Envelope
		holes [][]geom.Coord
	}
	var (
		shells []*shell
		holes  [][]geom.Coord
	)
	for _, ring := range rings {
		ring = geom.Close(ring)
		if len(ring) < 4 {
			continue
		}
		if geom.IsCCW(ring) {
			holes = append(holes, ring)
		} else {
			shells = append(shells, &shell{ring: ring, bound: geom.RingBound(ring)})
		}
	}

	for _, hole := range holes {
		hb := geom.RingBound(hole)
		var best *shell
		for _, s := range shells {
			if !s.bound.ContainsXY(hb) || !geom.PointInRing(hole[0], s.ring) {
				continue
			}
			if best == nil || area(s.bound) < area(best.bound) {
				best = s
			}
		}
		if best == nil {
			r := geom.Reverse(hole)
			shells = append(shells, &shell{ring: r, bound: hb})
			continue
		}
		best.holes = append(best.holes, hole)
	}

	polys := make([][][]geom.Coord, len(shells))
	for i, s := range shells {
		polys[i] = append([][]geom.Coord{s.ring}, s.holes...)
	}
	return polys
}

func area(e geom.Envelope) float64 {
	return (e.MaxX - e.MinX) * (e.MaxY - e.MinY)
}

// EncodeShape encodes g as a record body for a file of type t. A nil or
// empty geometry is encoded as a Null record.
func EncodeShape(g *geom.Geometry, t ShapeType) ([]byte, error) {
	if g == nil || g.IsEmpty() {
		return binary.LittleEndian.AppendUint32(nil, uint32(Null)), nil
	}
	if !t.accepts(g.Kind) {
		return nil, common.SchemaError("shp.encode", "cannot write %v into a %v file", g.Kind, t)
	}
	w := &byteWriter{}
	w.int32(int32(t))
	switch t.Base() {
	case Point:
		c := g.Points[0]
		w.float(c.X)
		w.float(c.Y)
		if t.HasZ() {
			w.float(c.Z)
			if g.Layout.HasM() {
				w.float(c.M)
			}
		} else if t.HasM() {
			w.float(c.M)
		}
	case MultiPoint:
		encodePoly(w, t, g.Layout, nil, g.Points)
	case PolyLine:
		lines := g.Lines
		if g.Kind == geom.KindLineString {
			lines = [][]geom.Coord{g.Points}
		}
		parts, pts := joinParts(lines)
		encodePoly(w, t, g.Layout, parts, pts)
	case Polygon:
		polys := g.Polygons
		if g.Kind == geom.KindPolygon {
			polys = [][][]geom.Coord{g.Lines}
		}
		var rings [][]geom.Coord
		for _, p := range polys {
			for i, ring := range p {
				ring = geom.Close(ring)
				// shells clockwise, holes counter-clockwise
				if (i == 0) == geom.IsCCW(ring) {
					ring = geom.Reverse(ring)
				}
				rings = append(rings, ring)
			}
		}
		parts, pts := joinParts(rings)
		encodePoly(w, t, g.Layout, parts, pts)
	}
	return w.b, nil
}

func joinParts(lines [][]geom.Coord) ([]int, []geom.Coord) {
	parts := make([]int, 0, len(lines))
	var pts []geom.Coord
	for _, l := range lines {
		parts = append(parts, len(pts))
		pts = append(pts, l...)
	}
	return parts, pts
}

// encodePoly writes the layout shared by MultiPoint (parts == nil),
// PolyLine and Polygon bodies.
func encodePoly(w *byteWriter, t ShapeType, l geom.Layout, parts []int, pts []geom.Coord) {
	e := geom.EmptyEnvelope()
	for _, c := range pts {
		e.Extend(c)
	}
	w.float(e.MinX)
	w.float(e.MinY)
	w.float(e.MaxX)
	w.float(e.MaxY)
	if parts != nil {
		w.int32(int32(len(parts)))
	}
	w.int32(int32(len(pts)))
	for _, p := range parts {
		w.int32(int32(p))
	}
	for _, c := range pts {
		w.float(c.X)
		w.float(c.Y)
	}
	if t.HasZ() {
		w.float(e.MinZ)
		w.float(e.MaxZ)
		for _, c := range pts {
			w.float(c.Z)
		}
	}
	if t.HasM() && (!t.HasZ() || l.HasM()) {
		w.float(e.MinM)
		w.float(e.MaxM)
		for _, c := range pts {
			w.float(c.M)
		}
	}
}

type byteWriter struct {
	b []byte
}

func (w *byteWriter) int32(v int32) {
	w.b = binary.LittleEndian.AppendUint32(w.b, uint32(v))
}

func (w *byteWriter) float(v float64) {
	w.b = binary.LittleEndian.AppendUint64(w.b, math.Float64bits(v))
}
