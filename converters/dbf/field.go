package dbf

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding"

	"github.com/darianmavgo/geoio/converters/common"
)

const dateLayout = "20060102"

// decode turns the raw bytes of f into a row value. nil means null.
func (f *Field) decode(raw []byte, dec *encoding.Decoder) (any, error) {
	switch f.Type {
	case 'C':
		if len(raw) == 0 || raw[0] == 0 {
			return nil, nil
		}
		if i := bytes.IndexByte(raw, 0); i >= 0 {
			raw = raw[:i]
		}
		s, err := dec.Bytes(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode text: %w", err)
		}
		return strings.TrimSpace(string(s)), nil
	case 'N':
		s := strings.TrimSpace(string(raw))
		if s == "" || s[0] == '*' || raw[0] == 0 {
			return nil, nil
		}
		if f.Decimals == 0 {
			v, err := strconv.ParseInt(s, 10, 64)
			if err == nil {
				return v, nil
			}
			// some writers put decimals in N fields declared with none
			fv, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil || fv != math.Trunc(fv) {
				return nil, fmt.Errorf("invalid number %q", s)
			}
			return int64(fv), nil
		}
		return parseFloat(s)
	case 'F', 'O':
		s := strings.TrimSpace(string(raw))
		if s == "" || s[0] == '*' || raw[0] == 0 {
			return nil, nil
		}
		return parseFloat(s)
	case 'L':
		switch raw[0] {
		case 'T', 't', 'Y', 'y':
			return true, nil
		case 'F', 'f', 'N', 'n':
			return false, nil
		case '?', ' ', 0:
			return nil, nil
		}
		return nil, fmt.Errorf("invalid logical %q", raw[0])
	case 'D':
		s := strings.TrimSpace(string(bytes.TrimRight(raw, "\x00")))
		if s == "" || s == "00000000" {
			return nil, nil
		}
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q", s)
		}
		return t, nil
	}
	return nil, fmt.Errorf("unsupported type %q", f.Type)
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}

// encode writes v into dst, which is exactly f.Length bytes.
func (f *Field) encode(dst []byte, v any, enc *encoding.Encoder) error {
	if v == nil {
		fill := byte('*')
		switch f.Type {
		case 'C':
			fill = 0
		case 'L':
			fill = '?'
		case 'D':
			fill = '0'
		}
		for i := range dst {
			dst[i] = fill
		}
		return nil
	}

	switch f.Type {
	case 'C':
		var s string
		switch x := v.(type) {
		case string:
			s = x
		case []byte:
			s = string(x)
		case fmt.Stringer:
			s = x.String()
		case int64, int, float64, bool:
			s = fmt.Sprint(x)
		case time.Time:
			s = x.Format(time.DateOnly)
		default:
			return common.SchemaError("dbf.write", "field %s: cannot store %T as character", f.Name, v)
		}
		b, err := fitText(s, len(dst), enc)
		if err != nil {
			return common.SchemaError("dbf.write", "field %s: %v", f.Name, err)
		}
		n := copy(dst, b)
		for i := n; i < len(dst); i++ {
			dst[i] = ' '
		}
	case 'N', 'F', 'O':
		s, err := f.formatNumber(v, f.Decimals)
		if err != nil {
			return err
		}
		// large values keep their integer digits at the cost of decimals
		for d := f.Decimals - 1; len(s) > len(dst) && d >= 0; d-- {
			if s, err = f.formatNumber(v, d); err != nil {
				return err
			}
		}
		if len(s) > len(dst) {
			return common.SchemaError("dbf.write", "field %s: value %s overflows width %d", f.Name, s, f.Length)
		}
		pad := len(dst) - len(s)
		for i := 0; i < pad; i++ {
			dst[i] = ' '
		}
		copy(dst[pad:], s)
	case 'L':
		b, ok := v.(bool)
		if !ok {
			return common.SchemaError("dbf.write", "field %s: cannot store %T as logical", f.Name, v)
		}
		dst[0] = 'F'
		if b {
			dst[0] = 'T'
		}
	case 'D':
		t, ok := v.(time.Time)
		if !ok {
			return common.SchemaError("dbf.write", "field %s: cannot store %T as date", f.Name, v)
		}
		copy(dst, t.Format(dateLayout))
	default:
		return common.SchemaError("dbf.write", "field %s: unsupported type %q", f.Name, f.Type)
	}
	return nil
}

// fitText encodes s and drops trailing characters until the result
// fits in width bytes.
func fitText(s string, width int, enc *encoding.Encoder) ([]byte, error) {
	b, err := enc.Bytes([]byte(s))
	if err != nil {
		return nil, err
	}
	for len(b) > width {
		_, size := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-size]
		if b, err = enc.Bytes([]byte(s)); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (f *Field) formatNumber(v any, decimals int) (string, error) {
	var fv float64
	switch x := v.(type) {
	case int64:
		if decimals == 0 {
			return strconv.FormatInt(x, 10), nil
		}
		fv = float64(x)
	case int:
		if decimals == 0 {
			return strconv.Itoa(x), nil
		}
		fv = float64(x)
	case int32:
		return f.formatNumber(int64(x), decimals)
	case float32:
		fv = float64(x)
	case float64:
		fv = x
	default:
		return "", common.SchemaError("dbf.write", "field %s: cannot store %T as number", f.Name, v)
	}
	if math.IsNaN(fv) || math.IsInf(fv, 0) {
		return "", common.SchemaError("dbf.write", "field %s: cannot store %v", f.Name, fv)
	}
	return strconv.FormatFloat(fv, 'f', decimals, 64), nil
}

// SQLField maps a dBase descriptor to a column.
func (f Field) SQLField() common.Field {
	c := common.Field{Name: f.Name, Length: f.Length, Decimals: f.Decimals}
	switch f.Type {
	case 'L':
		c.Type = common.TypeBoolean
	case 'C':
		c.Type = common.TypeText
	case 'D':
		c.Type = common.TypeDate
	case 'N':
		switch {
		case f.Decimals > 0:
			c.Type = common.TypeDouble
		case f.Length < 10:
			c.Type = common.TypeInteger
		default:
			c.Type = common.TypeBigInt
		}
	default:
		c.Type = common.TypeDouble
	}
	return c
}

// FieldFor maps a column to a dBase descriptor. ok is false for columns
// dBase cannot hold (geometry).
func FieldFor(c common.Field) (f Field, ok bool) {
	f.Name = c.Name
	switch c.Type {
	case common.TypeBoolean:
		f.Type, f.Length = 'L', 1
	case common.TypeDate:
		f.Type, f.Length = 'D', 8
	case common.TypeDouble:
		f.Type, f.Length, f.Decimals = 'F', 20, 10
		if c.Length > 0 {
			f.Length = min(20, c.Length+1)
			f.Decimals = min(18, c.Decimals)
		}
	case common.TypeInteger:
		f.Type, f.Length = 'N', 10
	case common.TypeBigInt:
		f.Type, f.Length = 'N', 18
	case common.TypeText:
		f.Type, f.Length = 'C', MaxCharLen
		if c.Length > 0 {
			f.Length = min(MaxCharLen, c.Length)
		}
	default:
		return f, false
	}
	return f, true
}
