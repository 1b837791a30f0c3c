package shp

import (
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"

	"github.com/darianmavgo/geoio/converters/common"
	"github.com/darianmavgo/geoio/converters/dbf"
	"github.com/darianmavgo/geoio/converters/geom"
)

// GeometryColumn is the name of the geometry column of every shapefile table.
const GeometryColumn = "the_geom"

// Options configures how a shapefile is opened or created.
type Options struct {
	Encoding string // attribute encoding, see dbf.Options
	SRID     int    // stamped on decoded geometries and the schema
}

// File pairs the .shp, .shx and .dbf parts of a shapefile. Column 0 is
// the geometry as WKB, the rest are the dbf fields.
type File struct {
	path   string
	shp    *os.File
	shx    *os.File
	attrs  *dbf.File
	header *Header
	index  *Index
	srid   int

	writable bool
	closed   bool
	count    int64
	shpLen   int64
	bound    geom.Envelope
}

var _ common.FileDriver = (*File)(nil)

// Open opens the shapefile at path (the .shp part) read-only. The .shx and
// .dbf parts are looked up next to it ignoring case.
func Open(path string, opts Options) (*File, error) {
	s := &File{path: path, srid: opts.SRID}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	var err error
	if s.shp, err = os.Open(path); err != nil {
		return nil, common.IOError("shp.open", path, err)
	}
	if s.header, err = ReadHeader(s.shp); err != nil {
		return nil, withPath(err, path)
	}

	shxPath := common.FindSidecar(path, ".shx")
	if shxPath == "" {
		return nil, common.IOError("shp.open", common.SidecarPath(path, ".shx"), os.ErrNotExist)
	}
	if s.shx, err = os.Open(shxPath); err != nil {
		return nil, common.IOError("shp.open", shxPath, err)
	}
	if s.index, err = ReadIndex(s.shx); err != nil {
		return nil, withPath(err, shxPath)
	}

	dbfPath := common.FindSidecar(path, ".dbf")
	if dbfPath == "" {
		return nil, common.IOError("shp.open", common.SidecarPath(path, ".dbf"), os.ErrNotExist)
	}
	if s.attrs, err = dbf.Open(dbfPath, dbf.Options{Encoding: opts.Encoding}); err != nil {
		return nil, err
	}
	if s.attrs.RowCount() != s.index.Len() {
		return nil, common.FormatError("shp.open", "index has %d records, attribute file has %d",
			s.index.Len(), s.attrs.RowCount()).WithPath(path)
	}
	s.count = s.index.Len()
	ok = true
	return s, nil
}

func withPath(err error, path string) error {
	var e *common.Error
	if errors.As(err, &e) && e.Path == "" {
		return e.WithPath(path)
	}
	return err
}

// Create writes an empty shapefile of shape type t with the given
// attribute fields. Existing parts are truncated.
func Create(path string, t ShapeType, fields []dbf.Field, opts Options) (*File, error) {
	if !t.Supported() || t == Null {
		return nil, common.SchemaError("shp.create", "cannot create a %v file", t)
	}
	s := &File{
		path:     path,
		srid:     opts.SRID,
		header:   &Header{ShapeType: t, FileLength: headerLen},
		writable: true,
		shpLen:   headerLen,
		bound:    geom.EmptyEnvelope(),
	}
	ok := false
	defer func() {
		if !ok {
			s.discard()
		}
	}()

	var err error
	if s.shp, err = os.Create(path); err != nil {
		return nil, common.IOError("shp.create", path, err)
	}
	shxPath := common.SidecarPath(path, ".shx")
	if s.shx, err = os.Create(shxPath); err != nil {
		return nil, common.IOError("shp.create", shxPath, err)
	}
	if err := s.writeHeaders(); err != nil {
		return nil, err
	}
	if s.attrs, err = dbf.Create(common.SidecarPath(path, ".dbf"), fields, dbf.Options{Encoding: opts.Encoding}); err != nil {
		return nil, err
	}
	ok = true
	return s, nil
}

// discard closes whatever Create managed to open.
func (s *File) discard() {
	for _, f := range []*os.File{s.shp, s.shx} {
		if f != nil {
			f.Close()
		}
	}
	if s.attrs != nil {
		s.attrs.Close()
	}
}

// ShapeType returns the file shape type.
func (s *File) ShapeType() ShapeType { return s.header.ShapeType }

// Header returns the .shp header as last read or written.
func (s *File) Header() *Header { return s.header }

// Attributes returns the dbf part.
func (s *File) Attributes() *dbf.File { return s.attrs }

func (s *File) Schema() common.Schema {
	g := common.Field{
		Name:         GeometryColumn,
		Type:         common.TypeGeometry,
		GeometryKind: s.header.ShapeType.Kind().String(),
		SRID:         s.srid,
	}
	return append(common.Schema{g}, s.attrs.Schema()...)
}

func (s *File) RowCount() int64 { return s.count }

// Geometry reads and decodes the shape of record rowID. A Null shape is nil.
func (s *File) Geometry(rowID int64) (*geom.Geometry, error) {
	if rowID < 0 || rowID >= s.count {
		return nil, common.RangeError("shp.read", rowID, s.count)
	}
	off, length, err := s.index.Entry(rowID)
	if err != nil {
		return nil, withPath(err, s.path)
	}
	if length < 4 {
		return nil, common.FormatError("shp.read", "record %d has content length %d", rowID, length).WithPath(s.path)
	}
	if off < headerLen || off+recHeadLen+length > s.header.FileLength {
		return nil, common.FormatError("shp.read", "record %d at %d+%d lies outside the %d byte file",
			rowID, off, length, s.header.FileLength).WithPath(s.path)
	}
	buf := make([]byte, recHeadLen+length)
	if _, err := s.shp.ReadAt(buf, off); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, common.FormatError("shp.read", "record %d is truncated", rowID).WithPath(s.path)
		}
		return nil, common.IOError("shp.read", s.path, err)
	}
	if words := int64(binary.BigEndian.Uint32(buf[4:8])); words*2 != length {
		return nil, common.FormatError("shp.read", "record %d: header says %d bytes, index says %d",
			rowID, words*2, length).WithPath(s.path)
	}
	g, err := DecodeShape(buf[recHeadLen:], s.header.ShapeType)
	if err != nil {
		return nil, withPath(err, s.path)
	}
	if g != nil {
		g.SRID = s.srid
	}
	return g, nil
}

// Row returns the WKB geometry followed by the attributes of rowID.
func (s *File) Row(rowID int64) (common.Result, error) {
	if s.closed {
		return common.Result{}, common.IOError("shp.read", s.path, os.ErrClosed)
	}
	if rowID < 0 || rowID >= s.count {
		return common.Result{}, common.RangeError("shp.read", rowID, s.count)
	}
	attrs, err := s.attrs.Row(rowID)
	if err != nil {
		return common.Result{}, err
	}
	if attrs.State == common.StateDeleted {
		return attrs, nil
	}
	g, err := s.Geometry(rowID)
	if err != nil {
		return common.Result{}, err
	}
	row := make(common.Row, 0, 1+len(attrs.Row))
	if g == nil {
		row = append(row, nil)
	} else {
		wkb, err := geom.MarshalWKB(g)
		if err != nil {
			return common.Result{}, common.FormatError("shp.read", "record %d: %v", rowID, err).WithPath(s.path)
		}
		row = append(row, wkb)
	}
	return common.Result{State: common.StateRow, Row: append(row, attrs.Row...)}, nil
}

// InsertRow appends the geometry in values[0] (WKB, *geom.Geometry or nil)
// and the attributes in values[1:].
func (s *File) InsertRow(values common.Row) error {
	if s.closed {
		return common.IOError("shp.write", s.path, os.ErrClosed)
	}
	if !s.writable {
		return common.IOError("shp.write", s.path, errors.New("file is opened read-only"))
	}
	if len(values) == 0 {
		return common.SchemaError("shp.write", "row has no geometry column")
	}
	var g *geom.Geometry
	switch v := values[0].(type) {
	case nil:
	case *geom.Geometry:
		g = v
	case []byte:
		var err error
		if g, err = geom.UnmarshalWKB(v); err != nil {
			return common.SchemaError("shp.write", "row %d: %v", s.count, err)
		}
	default:
		return common.SchemaError("shp.write", "cannot store %T as geometry", v)
	}
	body, err := EncodeShape(g, s.header.ShapeType)
	if err != nil {
		return err
	}

	// the shape goes first; a record past shpLen is overwritten by the
	// next insert and cut by Close, so counts only move once all parts
	// are written
	rec := make([]byte, recHeadLen, recHeadLen+len(body))
	binary.BigEndian.PutUint32(rec[0:4], uint32(s.count+1))
	binary.BigEndian.PutUint32(rec[4:8], uint32(len(body)/2))
	rec = append(rec, body...)
	if _, err := s.shp.WriteAt(rec, s.shpLen); err != nil {
		return common.IOError("shp.write", s.path, err)
	}
	var entry [indexEntry]byte
	binary.BigEndian.PutUint32(entry[0:4], uint32(s.shpLen/2))
	binary.BigEndian.PutUint32(entry[4:8], uint32(len(body)/2))
	if _, err := s.shx.WriteAt(entry[:], headerLen+s.count*indexEntry); err != nil {
		return common.IOError("shp.write", s.shx.Name(), err)
	}
	if err := s.attrs.InsertRow(values[1:]); err != nil {
		return err
	}

	s.shpLen += int64(len(rec))
	s.count++
	if g != nil {
		s.bound.Merge(g.Bound())
	}
	return nil
}

func (s *File) writeHeaders() error {
	t := s.header.ShapeType
	s.header.BBox = bboxOf(s.bound, t.HasZ(), t.HasM())
	s.header.FileLength = s.shpLen
	if _, err := s.shp.WriteAt(s.header.Bytes(), 0); err != nil {
		return common.IOError("shp.write", s.path, err)
	}
	shx := *s.header
	shx.FileLength = headerLen + s.count*indexEntry
	if _, err := s.shx.WriteAt(shx.Bytes(), 0); err != nil {
		return common.IOError("shp.write", s.shx.Name(), err)
	}
	if err := s.shp.Truncate(s.shpLen); err != nil {
		return common.IOError("shp.write", s.path, err)
	}
	if err := s.shx.Truncate(shx.FileLength); err != nil {
		return common.IOError("shp.write", s.shx.Name(), err)
	}
	return nil
}

// Close finalises the headers of a written shapefile and closes all parts.
// Errors from every part are reported together.
func (s *File) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var result *multierror.Error
	if s.writable && s.shp != nil && s.shx != nil {
		if err := s.writeHeaders(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, f := range []*os.File{s.shp, s.shx} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil {
			result = multierror.Append(result, common.IOError("shp.close", f.Name(), err))
		}
	}
	if s.attrs != nil {
		if err := s.attrs.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
