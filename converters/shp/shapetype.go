// Package shp reads and writes ESRI shapefiles (.shp, .shx and .dbf).
package shp

import (
	"fmt"

	"github.com/darianmavgo/geoio/converters/geom"
)

// ShapeType is the shape type code of a file or record.
type ShapeType int32

const (
	Null        ShapeType = 0
	Point       ShapeType = 1
	PolyLine    ShapeType = 3
	Polygon     ShapeType = 5
	MultiPoint  ShapeType = 8
	PointZ      ShapeType = 11
	PolyLineZ   ShapeType = 13
	PolygonZ    ShapeType = 15
	MultiPointZ ShapeType = 18
	PointM      ShapeType = 21
	PolyLineM   ShapeType = 23
	PolygonM    ShapeType = 25
	MultiPointM ShapeType = 28
	MultiPatch  ShapeType = 31
)

var shapeNames = map[ShapeType]string{
	Null: "Null", Point: "Point", PolyLine: "PolyLine", Polygon: "Polygon", MultiPoint: "MultiPoint",
	PointZ: "PointZ", PolyLineZ: "PolyLineZ", PolygonZ: "PolygonZ", MultiPointZ: "MultiPointZ",
	PointM: "PointM", PolyLineM: "PolyLineM", PolygonM: "PolygonM", MultiPointM: "MultiPointM",
	MultiPatch: "MultiPatch",
}

func (t ShapeType) String() string {
	if s, ok := shapeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("ShapeType(%d)", int32(t))
}

// Supported reports whether records of t can be decoded. MultiPatch is
// a known type but is not supported.
func (t ShapeType) Supported() bool {
	_, ok := shapeNames[t]
	return ok && t != MultiPatch
}

// Base strips the Z or M variant.
func (t ShapeType) Base() ShapeType {
	switch {
	case t > 20:
		return t - 20
	case t > 10:
		return t - 10
	}
	return t
}

func (t ShapeType) HasZ() bool { return t > 10 && t < 20 }
func (t ShapeType) HasM() bool { return t > 10 && t != MultiPatch }

// Kind returns the geometry kind records of t decode to.
func (t ShapeType) Kind() geom.Kind {
	switch t.Base() {
	case Point:
		return geom.KindPoint
	case MultiPoint:
		return geom.KindMultiPoint
	case PolyLine:
		return geom.KindMultiLineString
	case Polygon:
		return geom.KindMultiPolygon
	}
	return 0
}

// ShapeTypeFor picks the file shape type able to hold geometries of kind k
// with layout l.
func ShapeTypeFor(k geom.Kind, l geom.Layout) (ShapeType, error) {
	var base ShapeType
	switch k {
	case geom.KindPoint:
		base = Point
	case geom.KindMultiPoint:
		base = MultiPoint
	case geom.KindLineString, geom.KindMultiLineString:
		base = PolyLine
	case geom.KindPolygon, geom.KindMultiPolygon:
		base = Polygon
	default:
		return Null, fmt.Errorf("no shape type for %v", k)
	}
	switch {
	case l.HasZ():
		return base + 10, nil
	case l.HasM():
		return base + 20, nil
	}
	return base, nil
}

// accepts reports whether a geometry of kind k can be written to a file
// of type t.
func (t ShapeType) accepts(k geom.Kind) bool {
	switch t.Base() {
	case Point:
		return k == geom.KindPoint
	case MultiPoint:
		return k == geom.KindMultiPoint || k == geom.KindPoint
	case PolyLine:
		return k == geom.KindLineString || k == geom.KindMultiLineString
	case Polygon:
		return k == geom.KindPolygon || k == geom.KindMultiPolygon
	}
	return false
}
