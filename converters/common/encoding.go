package common

import (
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/unicode"
)

// DefaultEncoding is used when neither the caller nor the file names one.
var DefaultEncoding encoding.Encoding = unicode.UTF8

var encodingAliases = map[string]encoding.Encoding{
	"ms949":      korean.EUCKR,
	"cp949":      korean.EUCKR,
	"cp1252":     charmap.Windows1252,
	"latin1":     charmap.ISO8859_1,
	"iso-8859-1": charmap.ISO8859_1,
	"iso8859-1":  charmap.ISO8859_1,
	"iso 8859-1": charmap.ISO8859_1,
	"iso88591":   charmap.ISO8859_1,
	"88591":      charmap.ISO8859_1,
	"utf8":       unicode.UTF8,
}

// LookupEncoding resolves a charset name such as "UTF-8", "windows-1252"
// or "MS949". An empty name returns DefaultEncoding.
func LookupEncoding(name string) (encoding.Encoding, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return DefaultEncoding, nil
	}
	if enc, ok := encodingAliases[key]; ok {
		return enc, nil
	}
	enc, err := htmlindex.Get(key)
	if err != nil {
		return nil, FormatError("encoding", "unknown encoding %q", name)
	}
	return enc, nil
}

// EncodingName returns the canonical name of enc for sidecar files.
func EncodingName(enc encoding.Encoding) string {
	if enc == nil || enc == unicode.UTF8 {
		return "UTF-8"
	}
	if enc == korean.EUCKR {
		return "EUC-KR"
	}
	if name, err := htmlindex.Name(enc); err == nil {
		return strings.ToUpper(name)
	}
	if cm, ok := enc.(*charmap.Charmap); ok {
		return cm.String()
	}
	return "UTF-8"
}
