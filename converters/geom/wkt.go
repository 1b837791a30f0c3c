package geom

import (
	"strconv"
	"strings"
)

// String renders g as WKT, e.g. "POINT Z (1 2 3)".
func (g *Geometry) String() string {
	var b strings.Builder
	b.WriteString(g.Kind.String())
	switch g.Layout {
	case XYZ:
		b.WriteString(" Z")
	case XYM:
		b.WriteString(" M")
	case XYZM:
		b.WriteString(" ZM")
	}
	if g.IsEmpty() {
		b.WriteString(" EMPTY")
		return b.String()
	}
	b.WriteByte(' ')
	switch g.Kind {
	case KindPoint:
		b.WriteByte('(')
		g.writeCoord(&b, g.Points[0])
		b.WriteByte(')')
	case KindLineString:
		g.writeSeq(&b, g.Points)
	case KindMultiPoint:
		b.WriteByte('(')
		for i, c := range g.Points {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('(')
			g.writeCoord(&b, c)
			b.WriteByte(')')
		}
		b.WriteByte(')')
	case KindPolygon, KindMultiLineString:
		g.writeSeqs(&b, g.Lines)
	case KindMultiPolygon:
		b.WriteByte('(')
		for i, p := range g.Polygons {
			if i > 0 {
				b.WriteString(", ")
			}
			g.writeSeqs(&b, p)
		}
		b.WriteByte(')')
	}
	return b.String()
}

func (g *Geometry) writeCoord(b *strings.Builder, c Coord) {
	b.WriteString(formatFloat(c.X))
	b.WriteByte(' ')
	b.WriteString(formatFloat(c.Y))
	if g.Layout.HasZ() {
		b.WriteByte(' ')
		b.WriteString(formatFloat(c.Z))
	}
	if g.Layout.HasM() {
		b.WriteByte(' ')
		b.WriteString(formatFloat(c.M))
	}
}

func (g *Geometry) writeSeq(b *strings.Builder, cs []Coord) {
	b.WriteByte('(')
	for i, c := range cs {
		if i > 0 {
			b.WriteString(", ")
		}
		g.writeCoord(b, c)
	}
	b.WriteByte(')')
}

func (g *Geometry) writeSeqs(b *strings.Builder, seqs [][]Coord) {
	b.WriteByte('(')
	for i, s := range seqs {
		if i > 0 {
			b.WriteString(", ")
		}
		g.writeSeq(b, s)
	}
	b.WriteByte(')')
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
