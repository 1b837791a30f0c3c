package shp

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/darianmavgo/geoio/converters/common"
	"github.com/darianmavgo/geoio/converters/geom"
)

const (
	fileCode   = 9994
	version    = 1000
	headerLen  = 100
	recHeadLen = 8
	indexEntry = 8
)

// BBox is the bounding box stored in file headers.
type BBox struct {
	XMin, YMin, XMax, YMax float64
	ZMin, ZMax, MMin, MMax float64
}

func bboxOf(e geom.Envelope, z, m bool) BBox {
	if e.IsEmpty() {
		return BBox{}
	}
	b := BBox{XMin: e.MinX, YMin: e.MinY, XMax: e.MaxX, YMax: e.MaxY}
	if z {
		b.ZMin, b.ZMax = e.MinZ, e.MaxZ
	}
	if m {
		b.MMin, b.MMax = e.MinM, e.MaxM
	}
	return b
}

// Header is the 100-byte preamble shared by .shp and .shx files.
type Header struct {
	FileLength int64 // in bytes
	ShapeType  ShapeType
	BBox       BBox
}

// ReadHeader parses a .shp or .shx header.
func ReadHeader(r io.Reader) (*Header, error) {
	var buf [headerLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, common.FormatError("shp.header", "short header: %v", err)
	}
	if code := binary.BigEndian.Uint32(buf[0:4]); code != fileCode {
		return nil, common.FormatError("shp.header", "bad file code %d", code)
	}
	if v := binary.LittleEndian.Uint32(buf[28:32]); v != version {
		return nil, common.FormatError("shp.header", "bad version %d", v)
	}
	h := &Header{
		FileLength: int64(binary.BigEndian.Uint32(buf[24:28])) * 2,
		ShapeType:  ShapeType(int32(binary.LittleEndian.Uint32(buf[32:36]))),
	}
	if !h.ShapeType.Supported() {
		return nil, common.FormatError("shp.header", "unsupported shape type %v", h.ShapeType)
	}
	f := func(i int) float64 {
		return math.Float64frombits(binary.LittleEndian.Uint64(buf[36+8*i:]))
	}
	h.BBox = BBox{f(0), f(1), f(2), f(3), f(4), f(5), f(6), f(7)}
	return h, nil
}

// Bytes encodes h.
func (h *Header) Bytes() []byte {
	buf := make([]byte, headerLen)
	binary.BigEndian.PutUint32(buf[0:4], fileCode)
	binary.BigEndian.PutUint32(buf[24:28], uint32(h.FileLength/2))
	binary.LittleEndian.PutUint32(buf[28:32], version)
	binary.LittleEndian.PutUint32(buf[32:36], uint32(h.ShapeType))
	b := h.BBox
	for i, v := range []float64{b.XMin, b.YMin, b.XMax, b.YMax, b.ZMin, b.ZMax, b.MMin, b.MMax} {
		binary.LittleEndian.PutUint64(buf[36+8*i:], math.Float64bits(v))
	}
	return buf
}

// Index gives random access to record positions through a .shx file.
type Index struct {
	r      io.ReaderAt
	header *Header
	count  int64
}

// ReadIndex reads the header of a .shx file.
func ReadIndex(r io.ReaderAt) (*Index, error) {
	h, err := ReadHeader(io.NewSectionReader(r, 0, headerLen))
	if err != nil {
		return nil, err
	}
	if h.FileLength < headerLen || (h.FileLength-headerLen)%indexEntry != 0 {
		return nil, common.FormatError("shp.index", "index length %d is not 100 + 8n", h.FileLength)
	}
	return &Index{r: r, header: h, count: (h.FileLength - headerLen) / indexEntry}, nil
}

// Len returns the number of records.
func (x *Index) Len() int64 { return x.count }

// Entry returns the byte offset and content length in bytes of record rowID.
func (x *Index) Entry(rowID int64) (offset, length int64, err error) {
	if rowID < 0 || rowID >= x.count {
		return 0, 0, common.RangeError("shp.index", rowID, x.count)
	}
	var buf [indexEntry]byte
	if _, err := x.r.ReadAt(buf[:], headerLen+rowID*indexEntry); err != nil {
		return 0, 0, common.FormatError("shp.index", "entry %d: %v", rowID, err)
	}
	offset = int64(binary.BigEndian.Uint32(buf[0:4])) * 2
	length = int64(binary.BigEndian.Uint32(buf[4:8])) * 2
	return offset, length, nil
}

// Offset returns the byte offset of record rowID in the .shp file.
func (x *Index) Offset(rowID int64) (int64, error) {
	off, _, err := x.Entry(rowID)
	return off, err
}
