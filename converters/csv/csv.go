// Package csv imports and exports delimited text (CSV and TSV).
package csv

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/darianmavgo/geoio/converters/common"
)

// Reader is a Source over delimited text. The first record is the header.
type Reader struct {
	csvReader *csv.Reader
	schema    common.Schema
	typed     bool
	input     *common.InputFile // nil when reading a plain io.Reader
	progress  common.Progress
	rows      int64
}

var _ common.Source = (*Reader)(nil)

// ReaderOptions configures NewReader.
type ReaderOptions struct {
	Delimiter rune          // 0 means ',', common.AutoDelimiter guesses
	Encoding  string        // "" means UTF-8; a UTF-8 BOM is dropped either way
	Schema    common.Schema // explicit column types, by position
}

// NewReader reads the header of r and prepares to stream its records.
func NewReader(r io.Reader, opts ReaderOptions) (*Reader, error) {
	decoded, err := decodeInput(r, opts.Encoding)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReaderSize(decoded, 65536)

	delim := opts.Delimiter
	if delim == common.AutoDelimiter {
		peekBytes, _ := br.Peek(2048)
		sample := string(peekBytes)
		if idx := strings.IndexAny(sample, "\r\n"); idx != -1 {
			sample = sample[:idx]
		}
		delim = common.DetectDelimiter(sample)
	} else if delim == 0 {
		delim = ','
	}

	reader := csv.NewReader(br)
	reader.Comma = delim
	reader.ReuseRecord = true
	// the header fixes the number of fields of every later record
	reader.FieldsPerRecord = 0

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, common.FormatError("csv.open", "file is empty")
		}
		return nil, common.FormatError("csv.open", "failed to read headers: %v", err)
	}
	names := common.GenColumnNames(headers)

	c := &Reader{csvReader: reader, progress: common.NoProgress}
	if len(opts.Schema) > 0 {
		if len(opts.Schema) != len(names) {
			return nil, common.SchemaError("csv.open", "schema has %d columns, header has %d", len(opts.Schema), len(names))
		}
		for _, f := range opts.Schema {
			if f.Type == common.TypeGeometry {
				return nil, common.SchemaError("csv.open", "column %s: geometry cannot be read from text", f.Name)
			}
		}
		c.schema = append(common.Schema(nil), opts.Schema...)
		c.typed = true
	} else {
		c.schema = make(common.Schema, len(names))
		for i, n := range names {
			c.schema[i] = common.Field{Name: n, Type: common.TypeText}
		}
	}
	return c, nil
}

func decodeInput(r io.Reader, name string) (io.Reader, error) {
	enc, err := common.LookupEncoding(name)
	if err != nil {
		return nil, err
	}
	return transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder())), nil
}

// Open opens path, decompressing by suffix, and reads its header.
func Open(path string, opts ReaderOptions, progress common.Progress) (*Reader, error) {
	in, err := common.OpenInput(path)
	if err != nil {
		return nil, err
	}
	c, err := NewReader(in, opts)
	if err != nil {
		in.Close()
		var e *common.Error
		if errors.As(err, &e) {
			return nil, e.WithPath(path)
		}
		return nil, err
	}
	c.input = in
	if progress != nil {
		c.progress = progress
	}
	return c, nil
}

func (c *Reader) Tables() []common.TableDef {
	return []common.TableDef{{Schema: c.schema}}
}

// Next returns the next record. A record with the wrong number of fields
// is a FormatError naming its line.
func (c *Reader) Next() (common.Result, error) {
	record, err := c.csvReader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			c.reportProgress(true)
			return common.Result{State: common.StateEnd}, nil
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return common.Result{}, common.FormatError("csv.read", "line %d: %v", pe.Line, pe.Err)
		}
		return common.Result{}, common.IOError("csv.read", "", err)
	}

	row := make(common.Row, len(record))
	for i, val := range record {
		if val == "" {
			continue
		}
		if !c.typed {
			row[i] = strings.Clone(val)
			continue
		}
		v, err := parseValue(c.schema[i], val)
		if err != nil {
			line, _ := c.csvReader.FieldPos(i)
			return common.Result{}, common.FormatError("csv.read", "line %d column %s: %v", line, c.schema[i].Name, err)
		}
		row[i] = v
	}
	c.rows++
	if c.rows%1000 == 0 {
		c.reportProgress(false)
	}
	return common.Result{State: common.StateRow, Row: row}, nil
}

func (c *Reader) reportProgress(done bool) {
	switch {
	case done:
		c.progress.ProgressTo(1)
	case c.input != nil:
		c.progress.ProgressTo(c.input.Fraction())
	}
}

func (c *Reader) Close() error {
	if c.input == nil {
		return nil
	}
	err := c.input.Close()
	c.input = nil
	return err
}

func parseValue(f common.Field, s string) (any, error) {
	switch f.Type {
	case common.TypeInteger, common.TypeBigInt:
		return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	case common.TypeDouble:
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	case common.TypeBoolean:
		return strconv.ParseBool(strings.TrimSpace(s))
	case common.TypeDate:
		return time.Parse(time.DateOnly, strings.TrimSpace(s))
	}
	return strings.Clone(s), nil
}

// FormatValue renders v the way the writer puts it in a cell.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(time.DateOnly)
		}
		return x.Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}
