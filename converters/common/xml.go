package common

import (
	"encoding/xml"
	"errors"
	"io"

	"golang.org/x/net/html/charset"
)

// NewXMLDecoder returns a strict decoder that honours the charset declared
// in the XML prolog.
func NewXMLDecoder(r io.Reader) *xml.Decoder {
	dec := xml.NewDecoder(r)
	dec.Strict = true
	dec.CharsetReader = charset.NewReaderLabel
	return dec
}

// XMLError turns a decoder failure into a FormatError carrying the line.
func XMLError(op string, err error) *Error {
	var se *xml.SyntaxError
	if errors.As(err, &se) {
		return FormatError(op, "line %d: %s", se.Line, se.Msg)
	}
	return FormatError(op, "%v", err)
}
