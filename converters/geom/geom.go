// Package geom holds the neutral geometry value exchanged between the
// spatial codecs and the SQL store, plus its WKB and WKT encodings.
package geom

import (
	"fmt"
	"math"
)

// Kind is the OGC geometry type code.
type Kind uint32

const (
	KindPoint           Kind = 1
	KindLineString      Kind = 2
	KindPolygon         Kind = 3
	KindMultiPoint      Kind = 4
	KindMultiLineString Kind = 5
	KindMultiPolygon    Kind = 6
)

func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "POINT"
	case KindLineString:
		return "LINESTRING"
	case KindPolygon:
		return "POLYGON"
	case KindMultiPoint:
		return "MULTIPOINT"
	case KindMultiLineString:
		return "MULTILINESTRING"
	case KindMultiPolygon:
		return "MULTIPOLYGON"
	}
	return fmt.Sprintf("Kind(%d)", uint32(k))
}

// ParseKind maps a WKT type name to a Kind.
func ParseKind(name string) (Kind, bool) {
	for k := KindPoint; k <= KindMultiPolygon; k++ {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}

// Layout tells which ordinates beyond X and Y are meaningful.
type Layout uint8

const (
	XY Layout = iota
	XYZ
	XYM
	XYZM
)

func (l Layout) HasZ() bool { return l == XYZ || l == XYZM }
func (l Layout) HasM() bool { return l == XYM || l == XYZM }

// LayoutOf builds a Layout from flags.
func LayoutOf(z, m bool) Layout {
	switch {
	case z && m:
		return XYZM
	case z:
		return XYZ
	case m:
		return XYM
	}
	return XY
}

// Coord is one vertex. Z and M are zero unless the layout carries them.
type Coord struct {
	X, Y, Z, M float64
}

// Geometry is a point, line or polygon family value.
//
//	Point, LineString, MultiPoint: Points
//	Polygon (rings), MultiLineString (lines): Lines
//	MultiPolygon (polygons of rings, shell first): Polygons
type Geometry struct {
	Kind     Kind
	Layout   Layout
	SRID     int
	Points   []Coord
	Lines    [][]Coord
	Polygons [][][]Coord
}

func NewPoint(layout Layout, c Coord) *Geometry {
	return &Geometry{Kind: KindPoint, Layout: layout, Points: []Coord{c}}
}

func NewLineString(layout Layout, pts []Coord) *Geometry {
	return &Geometry{Kind: KindLineString, Layout: layout, Points: pts}
}

func NewMultiPoint(layout Layout, pts []Coord) *Geometry {
	return &Geometry{Kind: KindMultiPoint, Layout: layout, Points: pts}
}

func NewPolygon(layout Layout, rings [][]Coord) *Geometry {
	return &Geometry{Kind: KindPolygon, Layout: layout, Lines: rings}
}

func NewMultiLineString(layout Layout, lines [][]Coord) *Geometry {
	return &Geometry{Kind: KindMultiLineString, Layout: layout, Lines: lines}
}

func NewMultiPolygon(layout Layout, polys [][][]Coord) *Geometry {
	return &Geometry{Kind: KindMultiPolygon, Layout: layout, Polygons: polys}
}

// IsEmpty reports whether g has no vertices.
func (g *Geometry) IsEmpty() bool { return g.NumPoints() == 0 }

// NumPoints counts every vertex of g.
func (g *Geometry) NumPoints() int {
	n := len(g.Points)
	for _, l := range g.Lines {
		n += len(l)
	}
	for _, p := range g.Polygons {
		for _, r := range p {
			n += len(r)
		}
	}
	return n
}

// Each calls fn for every vertex of g.
func (g *Geometry) Each(fn func(Coord)) {
	for _, c := range g.Points {
		fn(c)
	}
	for _, l := range g.Lines {
		for _, c := range l {
			fn(c)
		}
	}
	for _, p := range g.Polygons {
		for _, r := range p {
			for _, c := range r {
				fn(c)
			}
		}
	}
}

// Envelope is an axis aligned bounding box over every ordinate.
type Envelope struct {
	MinX, MinY, MaxX, MaxY float64
	MinZ, MaxZ, MinM, MaxM float64
	empty                  bool
}

// EmptyEnvelope returns an envelope that any Extend call replaces.
func EmptyEnvelope() Envelope {
	return Envelope{
		MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1),
		MinZ: math.Inf(1), MaxZ: math.Inf(-1), MinM: math.Inf(1), MaxM: math.Inf(-1),
		empty: true,
	}
}

// IsEmpty reports whether nothing was added to e.
func (e Envelope) IsEmpty() bool { return e.empty }

// Extend grows e to include c.
func (e *Envelope) Extend(c Coord) {
	e.empty = false
	e.MinX, e.MaxX = math.Min(e.MinX, c.X), math.Max(e.MaxX, c.X)
	e.MinY, e.MaxY = math.Min(e.MinY, c.Y), math.Max(e.MaxY, c.Y)
	e.MinZ, e.MaxZ = math.Min(e.MinZ, c.Z), math.Max(e.MaxZ, c.Z)
	e.MinM, e.MaxM = math.Min(e.MinM, c.M), math.Max(e.MaxM, c.M)
}

// Merge grows e to include o.
func (e *Envelope) Merge(o Envelope) {
	if o.empty {
		return
	}
	e.Extend(Coord{X: o.MinX, Y: o.MinY, Z: o.MinZ, M: o.MinM})
	e.Extend(Coord{X: o.MaxX, Y: o.MaxY, Z: o.MaxZ, M: o.MaxM})
}

// ContainsXY reports whether o lies inside e in the XY plane.
func (e Envelope) ContainsXY(o Envelope) bool {
	return !e.empty && !o.empty &&
		o.MinX >= e.MinX && o.MaxX <= e.MaxX && o.MinY >= e.MinY && o.MaxY <= e.MaxY
}

// Bound returns the envelope of g.
func (g *Geometry) Bound() Envelope {
	e := EmptyEnvelope()
	g.Each(e.Extend)
	return e
}

// RingBound returns the envelope of a single ring.
func RingBound(ring []Coord) Envelope {
	e := EmptyEnvelope()
	for _, c := range ring {
		e.Extend(c)
	}
	return e
}
