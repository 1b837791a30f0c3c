package dbf

import (
	"errors"
	"io"
	"log"
	"os"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/korean"

	"github.com/darianmavgo/geoio/converters/common"
)

// Options configures how a dBase file is opened or created.
type Options struct {
	// Encoding overrides the code page sidecar and the language driver byte.
	Encoding string
}

// File is random access over the records of one dBase file.
type File struct {
	path     string
	f        *os.File
	header   *Header
	enc      encoding.Encoding
	writable bool
	dirty    bool
	closed   bool
	buf      []byte
	// cleanup runs after the file is closed, e.g. removing a decompressed copy.
	cleanup func() error
}

var _ common.FileDriver = (*File)(nil)

// Open opens path read-only.
func Open(path string, opts Options) (*File, error) {
	return open(path, opts, os.O_RDONLY)
}

// OpenForAppend opens an existing file for reading and appending records.
func OpenForAppend(path string, opts Options) (*File, error) {
	return open(path, opts, os.O_RDWR)
}

func open(path string, opts Options, flag int) (*File, error) {
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, common.IOError("dbf.open", path, err)
	}
	h, err := ReadHeader(f)
	if err != nil {
		f.Close()
		var e *common.Error
		if errors.As(err, &e) {
			return nil, e.WithPath(path)
		}
		return nil, err
	}
	enc, err := resolveEncoding(path, opts.Encoding, h.LanguageDriver)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &File{
		path:     path,
		f:        f,
		header:   h,
		enc:      enc,
		writable: flag&os.O_RDWR != 0,
		buf:      make([]byte, h.RecordLength),
	}, nil
}

// Create writes a new file with the given fields and no records. An
// existing file is truncated.
func Create(path string, fields []Field, opts Options) (*File, error) {
	h, err := NewHeader(fields)
	if err != nil {
		return nil, err
	}
	enc, err := common.LookupEncoding(opts.Encoding)
	if err != nil {
		return nil, err
	}
	h.LanguageDriver = languageDriver(enc)

	f, err := os.Create(path)
	if err != nil {
		return nil, common.IOError("dbf.create", path, err)
	}
	if _, err := h.WriteTo(f); err != nil {
		f.Close()
		return nil, common.IOError("dbf.create", path, err)
	}
	return &File{
		path:     path,
		f:        f,
		header:   h,
		enc:      enc,
		writable: true,
		dirty:    true,
		buf:      make([]byte, h.RecordLength),
	}, nil
}

func resolveEncoding(path, explicit string, lang byte) (encoding.Encoding, error) {
	if explicit != "" {
		return common.LookupEncoding(explicit)
	}
	if cpg := common.FindSidecar(path, ".cpg"); cpg != "" {
		name, err := common.ReadCodePage(cpg)
		if err == nil && name != "" {
			enc, err := common.LookupEncoding(name)
			if err == nil {
				return enc, nil
			}
			log.Printf("[WARN] ignoring code page %q in %s: %v", name, cpg, err)
		}
	}
	switch lang {
	case langKorean:
		return korean.EUCKR, nil
	case langWin1252, VersionDBase3:
		return charmap.Windows1252, nil
	}
	return charmap.ISO8859_1, nil
}

func languageDriver(enc encoding.Encoding) byte {
	switch enc {
	case korean.EUCKR:
		return langKorean
	case charmap.Windows1252:
		return langWin1252
	}
	return 0
}

// Header returns the parsed header. It must not be modified.
func (d *File) Header() *Header { return d.header }

// Encoding returns the text encoding in use.
func (d *File) Encoding() encoding.Encoding { return d.enc }

// Fields returns the field descriptors.
func (d *File) Fields() []Field { return d.header.Fields }

// Schema returns one column per field.
func (d *File) Schema() common.Schema {
	s := make(common.Schema, len(d.header.Fields))
	for i, f := range d.header.Fields {
		s[i] = f.SQLField()
	}
	return s
}

// RowCount returns the number of records, deleted ones included.
func (d *File) RowCount() int64 { return d.header.RecordCount }

// Row reads and decodes record rowID.
func (d *File) Row(rowID int64) (common.Result, error) {
	if d.closed {
		return common.Result{}, common.IOError("dbf.read", d.path, os.ErrClosed)
	}
	if rowID < 0 || rowID >= d.header.RecordCount {
		return common.Result{}, common.RangeError("dbf.read", rowID, d.header.RecordCount)
	}
	if _, err := d.f.ReadAt(d.buf, d.header.Offset(rowID)); err != nil {
		if errors.Is(err, io.EOF) {
			return common.Result{}, common.FormatError("dbf.read", "record %d is truncated", rowID).WithPath(d.path)
		}
		return common.Result{}, common.IOError("dbf.read", d.path, err)
	}
	if d.buf[0] == deletedMarker {
		return common.Result{State: common.StateDeleted}, nil
	}

	dec := d.enc.NewDecoder()
	row := make(common.Row, len(d.header.Fields))
	for i := range d.header.Fields {
		f := &d.header.Fields[i]
		v, err := f.decode(d.buf[f.offset:f.offset+f.Length], dec)
		if err != nil {
			return common.Result{}, common.FormatError("dbf.read", "row %d field %s: %v", rowID, f.Name, err).WithPath(d.path)
		}
		row[i] = v
	}
	return common.Result{State: common.StateRow, Row: row}, nil
}

// InsertRow appends a record holding values, one per field.
func (d *File) InsertRow(values common.Row) error {
	if d.closed {
		return common.IOError("dbf.write", d.path, os.ErrClosed)
	}
	if !d.writable {
		return common.IOError("dbf.write", d.path, errors.New("file is opened read-only"))
	}
	if len(values) != len(d.header.Fields) {
		return common.SchemaError("dbf.write", "got %d values for %d fields", len(values), len(d.header.Fields))
	}
	d.buf[0] = liveMarker
	enc := d.enc.NewEncoder()
	for i := range d.header.Fields {
		f := &d.header.Fields[i]
		if err := f.encode(d.buf[f.offset:f.offset+f.Length], values[i], enc); err != nil {
			return err
		}
	}
	if _, err := d.f.WriteAt(d.buf, d.header.Offset(d.header.RecordCount)); err != nil {
		return common.IOError("dbf.write", d.path, err)
	}
	d.header.RecordCount++
	d.dirty = true
	return nil
}

// Close finalises the header and end-of-file marker of a written file and
// releases it. Calling Close again is a no-op.
func (d *File) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true

	var result *multierror.Error
	if d.writable && d.dirty {
		if err := d.finish(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := d.f.Close(); err != nil {
		result = multierror.Append(result, common.IOError("dbf.close", d.path, err))
	}
	if d.cleanup != nil {
		if err := d.cleanup(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (d *File) finish() error {
	d.header.LastUpdate = timeNow()
	if _, err := d.f.WriteAt(d.header.Bytes(), 0); err != nil {
		return common.IOError("dbf.close", d.path, err)
	}
	end := d.header.Offset(d.header.RecordCount)
	if _, err := d.f.WriteAt([]byte{eofMarker}, end); err != nil {
		return common.IOError("dbf.close", d.path, err)
	}
	if err := d.f.Truncate(end + 1); err != nil {
		return common.IOError("dbf.close", d.path, err)
	}
	return nil
}
