package geom

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrInvalidWKB is returned for truncated or malformed WKB.
var ErrInvalidWKB = errors.New("geom: invalid wkb")

const (
	ewkbZ    = 0x80000000
	ewkbM    = 0x40000000
	ewkbSRID = 0x20000000
)

// MarshalWKB encodes g as little-endian ISO WKB (Z/M as +1000/+2000/+3000).
func MarshalWKB(g *Geometry) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeWKB(&buf, g.Kind, g.Layout, g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func wkbType(k Kind, l Layout) uint32 {
	t := uint32(k)
	switch l {
	case XYZ:
		t += 1000
	case XYM:
		t += 2000
	case XYZM:
		t += 3000
	}
	return t
}

func writeHeader(w *bytes.Buffer, k Kind, l Layout) {
	w.WriteByte(1)
	_ = binary.Write(w, binary.LittleEndian, wkbType(k, l))
}

func writeUint32(w *bytes.Buffer, v int) {
	_ = binary.Write(w, binary.LittleEndian, uint32(v))
}

func writeCoord(w *bytes.Buffer, l Layout, c Coord) {
	var b [8]byte
	put := func(f float64) {
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(f))
		w.Write(b[:])
	}
	put(c.X)
	put(c.Y)
	if l.HasZ() {
		put(c.Z)
	}
	if l.HasM() {
		put(c.M)
	}
}

func writeCoords(w *bytes.Buffer, l Layout, cs []Coord) {
	writeUint32(w, len(cs))
	for _, c := range cs {
		writeCoord(w, l, c)
	}
}

func writeWKB(w *bytes.Buffer, k Kind, l Layout, g *Geometry) error {
	writeHeader(w, k, l)
	switch k {
	case KindPoint:
		if len(g.Points) == 0 {
			nan := math.NaN()
			writeCoord(w, l, Coord{X: nan, Y: nan, Z: nan, M: nan})
		} else {
			writeCoord(w, l, g.Points[0])
		}
	case KindLineString:
		writeCoords(w, l, g.Points)
	case KindPolygon:
		writeUint32(w, len(g.Lines))
		for _, r := range g.Lines {
			writeCoords(w, l, r)
		}
	case KindMultiPoint:
		writeUint32(w, len(g.Points))
		for _, c := range g.Points {
			writeHeader(w, KindPoint, l)
			writeCoord(w, l, c)
		}
	case KindMultiLineString:
		writeUint32(w, len(g.Lines))
		for _, line := range g.Lines {
			writeHeader(w, KindLineString, l)
			writeCoords(w, l, line)
		}
	case KindMultiPolygon:
		writeUint32(w, len(g.Polygons))
		for _, poly := range g.Polygons {
			writeHeader(w, KindPolygon, l)
			writeUint32(w, len(poly))
			for _, r := range poly {
				writeCoords(w, l, r)
			}
		}
	default:
		return fmt.Errorf("geom: cannot encode %v", k)
	}
	return nil
}

// UnmarshalWKB decodes ISO WKB or PostGIS EWKB in either byte order.
func UnmarshalWKB(data []byte) (*Geometry, error) {
	d := &wkbDecoder{r: bytes.NewReader(data)}
	g, err := d.geometry()
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated", ErrInvalidWKB)
		}
		return nil, err
	}
	return g, nil
}

type wkbDecoder struct {
	r     *bytes.Reader
	order binary.ByteOrder
}

func (d *wkbDecoder) header() (Kind, Layout, int, error) {
	bo, err := d.r.ReadByte()
	if err != nil {
		return 0, 0, 0, err
	}
	switch bo {
	case 0:
		d.order = binary.BigEndian
	case 1:
		d.order = binary.LittleEndian
	default:
		return 0, 0, 0, fmt.Errorf("%w: byte order %d", ErrInvalidWKB, bo)
	}
	var t uint32
	if err := binary.Read(d.r, d.order, &t); err != nil {
		return 0, 0, 0, err
	}
	z, m := t&ewkbZ != 0, t&ewkbM != 0
	srid := 0
	if t&ewkbSRID != 0 {
		var s uint32
		if err := binary.Read(d.r, d.order, &s); err != nil {
			return 0, 0, 0, err
		}
		srid = int(s)
	}
	t &^= ewkbZ | ewkbM | ewkbSRID
	switch t / 1000 {
	case 1:
		z = true
	case 2:
		m = true
	case 3:
		z, m = true, true
	}
	k := Kind(t % 1000)
	if k < KindPoint || k > KindMultiPolygon {
		return 0, 0, 0, fmt.Errorf("%w: geometry type %d", ErrInvalidWKB, t)
	}
	return k, LayoutOf(z, m), srid, nil
}

func (d *wkbDecoder) count() (int, error) {
	var n uint32
	if err := binary.Read(d.r, d.order, &n); err != nil {
		return 0, err
	}
	// every element takes at least 4 bytes
	if int64(n)*4 > int64(d.r.Len()) {
		return 0, fmt.Errorf("%w: count %d exceeds data", ErrInvalidWKB, n)
	}
	return int(n), nil
}

func (d *wkbDecoder) coord(l Layout) (Coord, error) {
	var c Coord
	vals := []*float64{&c.X, &c.Y}
	if l.HasZ() {
		vals = append(vals, &c.Z)
	}
	if l.HasM() {
		vals = append(vals, &c.M)
	}
	for _, v := range vals {
		var bits uint64
		if err := binary.Read(d.r, d.order, &bits); err != nil {
			return c, err
		}
		*v = math.Float64frombits(bits)
	}
	return c, nil
}

func (d *wkbDecoder) coords(l Layout) ([]Coord, error) {
	n, err := d.count()
	if err != nil {
		return nil, err
	}
	cs := make([]Coord, n)
	for i := range cs {
		if cs[i], err = d.coord(l); err != nil {
			return nil, err
		}
	}
	return cs, nil
}

func (d *wkbDecoder) rings(l Layout) ([][]Coord, error) {
	n, err := d.count()
	if err != nil {
		return nil, err
	}
	rings := make([][]Coord, n)
	for i := range rings {
		if rings[i], err = d.coords(l); err != nil {
			return nil, err
		}
	}
	return rings, nil
}

func (d *wkbDecoder) geometry() (*Geometry, error) {
	k, l, srid, err := d.header()
	if err != nil {
		return nil, err
	}
	g := &Geometry{Kind: k, Layout: l, SRID: srid}
	switch k {
	case KindPoint:
		c, err := d.coord(l)
		if err != nil {
			return nil, err
		}
		if !math.IsNaN(c.X) || !math.IsNaN(c.Y) {
			g.Points = []Coord{c}
		}
	case KindLineString:
		if g.Points, err = d.coords(l); err != nil {
			return nil, err
		}
	case KindPolygon:
		if g.Lines, err = d.rings(l); err != nil {
			return nil, err
		}
	case KindMultiPoint, KindMultiLineString, KindMultiPolygon:
		n, err := d.count()
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			member, err := d.geometry()
			if err != nil {
				return nil, err
			}
			if member.Kind != k-3 {
				return nil, fmt.Errorf("%w: %v inside %v", ErrInvalidWKB, member.Kind, k)
			}
			switch k {
			case KindMultiPoint:
				g.Points = append(g.Points, member.Points...)
			case KindMultiLineString:
				g.Lines = append(g.Lines, member.Points)
			case KindMultiPolygon:
				g.Polygons = append(g.Polygons, member.Lines)
			}
		}
	}
	return g, nil
}
