// Package dbf reads and writes dBase III attribute files.
package dbf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/darianmavgo/geoio/converters/common"
)

const (
	VersionDBase3 = 0x03

	prefixLen   = 32
	descLen     = 32
	terminator  = 0x0D
	eofMarker   = 0x1A
	nameLen     = 11
	MaxNameLen  = nameLen - 1
	MaxCharLen  = 254
	minHeadLen  = prefixLen + 1
	langKorean  = 0x4F
	langWin1252 = 0x57

	deletedMarker = '*'
	liveMarker    = ' '
)

var timeNow = time.Now

// versions accepted on read: dBase III, dBase III with memo, dBase IV with memo.
var readableVersions = map[byte]bool{0x03: true, 0x83: true, 0x8B: true}

// Field is one column descriptor.
type Field struct {
	Name     string
	Type     byte // C N F L D O
	Length   int
	Decimals int
	offset   int // position within the record, after the deletion marker
}

// Header is the fixed preamble of a dBase file.
type Header struct {
	Version        byte
	LastUpdate     time.Time
	RecordCount    int64
	HeaderLength   int
	RecordLength   int
	LanguageDriver byte
	Fields         []Field
}

// Offset returns the byte position of record rowID.
func (h *Header) Offset(rowID int64) int64 {
	return int64(h.HeaderLength) + rowID*int64(h.RecordLength)
}

// NewHeader lays out fields and computes header and record lengths.
// Zero-length fields are dropped.
func NewHeader(fields []Field) (*Header, error) {
	h := &Header{Version: VersionDBase3, LastUpdate: timeNow(), RecordLength: 1}
	seen := map[string]bool{}
	for _, f := range fields {
		if f.Length == 0 {
			continue
		}
		if err := validateField(f); err != nil {
			return nil, err
		}
		key := strings.ToUpper(f.Name)
		if seen[key] {
			return nil, common.SchemaError("dbf.header", "duplicate field name %q", f.Name)
		}
		seen[key] = true
		f.offset = h.RecordLength
		h.RecordLength += f.Length
		h.Fields = append(h.Fields, f)
	}
	if h.RecordLength > 0xFFFF {
		return nil, common.SchemaError("dbf.header", "record length %d exceeds 65535", h.RecordLength)
	}
	h.HeaderLength = minHeadLen + descLen*len(h.Fields)
	if h.HeaderLength > 0xFFFF {
		return nil, common.SchemaError("dbf.header", "too many fields: %d", len(h.Fields))
	}
	return h, nil
}

func validateField(f Field) error {
	if f.Name == "" || len(f.Name) > MaxNameLen {
		return common.SchemaError("dbf.header", "field name %q must be 1 to %d bytes", f.Name, MaxNameLen)
	}
	if f.Length < 0 || f.Length > 255 {
		return common.SchemaError("dbf.header", "field %s: length %d out of range", f.Name, f.Length)
	}
	switch f.Type {
	case 'C':
		if f.Length > MaxCharLen {
			return common.SchemaError("dbf.header", "field %s: character length %d exceeds %d", f.Name, f.Length, MaxCharLen)
		}
	case 'N', 'F', 'O':
		if f.Decimals < 0 || (f.Decimals > 0 && f.Decimals >= f.Length-1) {
			return common.SchemaError("dbf.header", "field %s: %d decimals do not fit length %d", f.Name, f.Decimals, f.Length)
		}
	case 'L':
		if f.Length != 1 {
			return common.SchemaError("dbf.header", "field %s: logical length must be 1", f.Name)
		}
	case 'D':
		if f.Length != 8 {
			return common.SchemaError("dbf.header", "field %s: date length must be 8", f.Name)
		}
	default:
		return common.SchemaError("dbf.header", "field %s: unsupported type %q", f.Name, f.Type)
	}
	return nil
}

// ReadHeader parses the header and field descriptors from r, leaving r
// positioned at the first record.
func ReadHeader(r io.Reader) (*Header, error) {
	var pre [prefixLen]byte
	if _, err := io.ReadFull(r, pre[:]); err != nil {
		return nil, common.FormatError("dbf.header", "short header: %v", err)
	}
	if !readableVersions[pre[0]] {
		return nil, common.FormatError("dbf.header", "unsupported version byte 0x%02X", pre[0])
	}
	h := &Header{
		Version:        pre[0],
		LastUpdate:     decodeDate(pre[1], pre[2], pre[3]),
		RecordCount:    int64(binary.LittleEndian.Uint32(pre[4:8])),
		HeaderLength:   int(binary.LittleEndian.Uint16(pre[8:10])),
		RecordLength:   int(binary.LittleEndian.Uint16(pre[10:12])),
		LanguageDriver: pre[29],
	}
	if h.HeaderLength < minHeadLen {
		return nil, common.FormatError("dbf.header", "header length %d below minimum %d", h.HeaderLength, minHeadLen)
	}

	if (h.HeaderLength-minHeadLen)%descLen != 0 {
		return nil, common.FormatError("dbf.header", "header length %d is not 33 + 32n", h.HeaderLength)
	}

	rest := make([]byte, h.HeaderLength-prefixLen)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, common.FormatError("dbf.header", "short field table: %v", err)
	}
	n := (h.HeaderLength - minHeadLen) / descLen
	if rest[n*descLen] != terminator {
		return nil, common.FormatError("dbf.header", "field table terminator not at offset %d", h.HeaderLength-1)
	}

	recLen := 1
	for i := 0; i < n; i++ {
		d := rest[i*descLen : (i+1)*descLen]
		if d[0] == terminator {
			return nil, common.FormatError("dbf.header", "field table terminator at descriptor %d of %d", i, n)
		}
		f := Field{
			Name:     decodeName(d[:nameLen]),
			Type:     d[11],
			Length:   int(d[16]),
			Decimals: int(d[17]),
			offset:   recLen,
		}
		switch f.Type {
		case 'C', 'N', 'F', 'L', 'D', 'O':
		default:
			return nil, common.FormatError("dbf.header", "field %q has unknown type %q", f.Name, f.Type)
		}
		recLen += f.Length
		if f.Length == 0 {
			continue
		}
		h.Fields = append(h.Fields, f)
	}
	if recLen != h.RecordLength {
		return nil, common.FormatError("dbf.header", "record length %d does not match field table (%d)", h.RecordLength, recLen)
	}
	return h, nil
}

// Bytes encodes the header and field table, including the terminator.
func (h *Header) Bytes() []byte {
	buf := make([]byte, h.HeaderLength)
	buf[0] = h.Version
	y, m, d := h.LastUpdate.Date()
	buf[1], buf[2], buf[3] = byte(y%100), byte(m), byte(d)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.RecordCount))
	binary.LittleEndian.PutUint16(buf[8:10], uint16(h.HeaderLength))
	binary.LittleEndian.PutUint16(buf[10:12], uint16(h.RecordLength))
	buf[29] = h.LanguageDriver

	for i, f := range h.Fields {
		d := buf[prefixLen+i*descLen : prefixLen+(i+1)*descLen]
		copy(d[:nameLen-1], f.Name)
		d[11] = f.Type
		d[16] = byte(f.Length)
		d[17] = byte(f.Decimals)
	}
	buf[prefixLen+len(h.Fields)*descLen] = terminator
	return buf
}

// WriteTo writes the encoded header to w.
func (h *Header) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(h.Bytes())
	return int64(n), err
}

func decodeName(raw []byte) string {
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(string(raw))
}

func decodeDate(yy, mm, dd byte) time.Time {
	year := 2000 + int(yy)
	if yy > 90 {
		year = 1900 + int(yy)
	}
	if mm < 1 || mm > 12 || dd < 1 || dd > 31 {
		return time.Time{}
	}
	return time.Date(year, time.Month(mm), int(dd), 0, 0, 0, 0, time.UTC)
}

// String describes the header for logs.
func (h *Header) String() string {
	return fmt.Sprintf("dbf v0x%02X rows=%d header=%d record=%d fields=%d",
		h.Version, h.RecordCount, h.HeaderLength, h.RecordLength, len(h.Fields))
}
