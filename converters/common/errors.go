package common

import (
	"errors"
	"fmt"
)

// Kind classifies a driver error.
type Kind int

const (
	KindFormat Kind = iota + 1
	KindRange
	KindSchema
	KindIO
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindFormat:
		return "format"
	case KindRange:
		return "range"
	case KindSchema:
		return "schema"
	case KindIO:
		return "io"
	case KindCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrFormat    = errors.New("geoio: format error")
	ErrRange     = errors.New("geoio: row id out of range")
	ErrSchema    = errors.New("geoio: schema mismatch")
	ErrIO        = errors.New("geoio: i/o error")
	ErrCancelled = errors.New("geoio: cancelled")
)

// Error carries the kind of failure plus where it happened.
type Error struct {
	Kind Kind
	Op   string // operation, e.g. "dbf.open"
	Path string // file involved, if any
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (k Kind) sentinel() error {
	switch k {
	case KindFormat:
		return ErrFormat
	case KindRange:
		return ErrRange
	case KindSchema:
		return ErrSchema
	case KindIO:
		return ErrIO
	case KindCancelled:
		return ErrCancelled
	}
	return nil
}

// WithPath returns a copy of e bound to path.
func (e *Error) WithPath(path string) *Error {
	c := *e
	c.Path = path
	return &c
}

func newError(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// FormatError reports a malformed file, unknown tag or unsupported extension.
func FormatError(op, format string, args ...any) *Error {
	return newError(KindFormat, op, format, args...)
}

// RangeError reports a row id outside [0, rowCount).
func RangeError(op string, rowID, rowCount int64) *Error {
	return newError(KindRange, op, "row %d not in [0, %d)", rowID, rowCount)
}

// SchemaError reports an arity or type mismatch.
func SchemaError(op, format string, args ...any) *Error {
	return newError(KindSchema, op, format, args...)
}

// IOError wraps a failed read, write, open or close.
func IOError(op, path string, err error) *Error {
	return &Error{Kind: KindIO, Op: op, Path: path, Err: err}
}

// CancelledError reports a cooperative stop. cause may be nil.
func CancelledError(op string, cause error) *Error {
	if cause == nil {
		cause = errors.New("cancelled by request")
	}
	return &Error{Kind: KindCancelled, Op: op, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
