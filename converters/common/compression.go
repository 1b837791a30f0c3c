package common

import (
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Compression identifies the compression wrapper of a file.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGZ
	CompressionBZ2
	CompressionXZ
	CompressionZSTD
)

// Extension returns the suffix of c including the dot.
func (c Compression) Extension() string {
	switch c {
	case CompressionGZ:
		return ".gz"
	case CompressionBZ2:
		return ".bz2"
	case CompressionXZ:
		return ".xz"
	case CompressionZSTD:
		return ".zst"
	}
	return ""
}

// CompressedVariants returns ext followed by ext+".gz" etc. for each given
// compression.
func CompressedVariants(ext string, cs ...Compression) []string {
	out := []string{ext}
	for _, c := range cs {
		out = append(out, ext+c.Extension())
	}
	return out
}

// DetectCompression detects the compression type from a file path.
func DetectCompression(path string) Compression {
	path = strings.ToLower(path)
	switch {
	case strings.HasSuffix(path, ".gz"):
		return CompressionGZ
	case strings.HasSuffix(path, ".bz2"):
		return CompressionBZ2
	case strings.HasSuffix(path, ".xz"):
		return CompressionXZ
	case strings.HasSuffix(path, ".zst"):
		return CompressionZSTD
	}
	return CompressionNone
}

// NewReader wraps r with a decompressor for c. The returned close func
// releases the decompressor only.
func NewReader(r io.Reader, c Compression) (io.Reader, func() error, error) {
	switch c {
	case CompressionNone:
		return r, func() error { return nil }, nil
	case CompressionGZ:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gz, gz.Close, nil
	case CompressionBZ2:
		return bzip2.NewReader(r), func() error { return nil }, nil
	case CompressionXZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		return xr, func() error { return nil }, nil
	case CompressionZSTD:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return dec, func() error { dec.Close(); return nil }, nil
	}
	return nil, nil, fmt.Errorf("unsupported compression for reading: %d", c)
}

// NewWriter wraps w with a compressor for c.
func NewWriter(w io.Writer, c Compression) (io.Writer, func() error, error) {
	switch c {
	case CompressionNone:
		return w, func() error { return nil }, nil
	case CompressionGZ:
		gz := gzip.NewWriter(w)
		return gz, gz.Close, nil
	case CompressionBZ2:
		return nil, nil, errors.New("bzip2 compression is not supported for writing")
	case CompressionXZ:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create xz writer: %w", err)
		}
		return xw, xw.Close, nil
	case CompressionZSTD:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		return enc, enc.Close, nil
	}
	return nil, nil, fmt.Errorf("unsupported compression for writing: %d", c)
}

// InputFile is an opened, possibly compressed, input stream.
type InputFile struct {
	io.Reader
	// Counter counts raw (compressed) bytes read from disk.
	Counter *CountingReader
	Size    int64
	closers []func() error
}

// Fraction returns the share of the file consumed so far.
func (f *InputFile) Fraction() float64 {
	if f.Size <= 0 {
		return 0
	}
	return float64(f.Counter.N()) / float64(f.Size)
}

// Close releases the decompressor and the file.
func (f *InputFile) Close() error {
	var result *multierror.Error
	for i := len(f.closers) - 1; i >= 0; i-- {
		if err := f.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	f.closers = nil
	return result.ErrorOrNil()
}

// OpenInput opens path and wraps it with the decompressor its suffix names.
func OpenInput(path string) (*InputFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, IOError("open", path, err)
	}
	st, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, IOError("stat", path, err)
	}
	counter := NewCountingReader(file)
	r, closeDec, err := NewReader(counter, DetectCompression(path))
	if err != nil {
		file.Close()
		return nil, FormatError("open", "%v", err).WithPath(path)
	}
	return &InputFile{
		Reader:  r,
		Counter: counter,
		Size:    st.Size(),
		closers: []func() error{file.Close, closeDec},
	}, nil
}

// OutputFile is a created, possibly compressed, output stream.
type OutputFile struct {
	io.Writer
	closers []func() error
}

// Close flushes the compressor and closes the file.
func (f *OutputFile) Close() error {
	var result *multierror.Error
	for i := len(f.closers) - 1; i >= 0; i-- {
		if err := f.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	f.closers = nil
	return result.ErrorOrNil()
}

// CreateOutput creates path, refusing to replace an existing file unless
// overwrite is set, and wraps it with the compressor its suffix names.
func CreateOutput(path string, overwrite bool) (*OutputFile, error) {
	if err := CheckDestination(path, overwrite); err != nil {
		return nil, err
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, IOError("create", path, err)
	}
	w, closeEnc, err := NewWriter(file, DetectCompression(path))
	if err != nil {
		file.Close()
		return nil, FormatError("create", "%v", err).WithPath(path)
	}
	return &OutputFile{Writer: w, closers: []func() error{file.Close, closeEnc}}, nil
}

// CheckDestination fails when path exists and overwrite is false. With
// overwrite it removes the existing file.
func CheckDestination(path string, overwrite bool) error {
	if _, err := os.Stat(path); err == nil {
		if !overwrite {
			return IOError("export", path, errors.New("file already exists"))
		}
		if err := os.Remove(path); err != nil {
			return IOError("remove", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return IOError("stat", path, err)
	}
	return nil
}

// CountingReader counts the bytes read through it.
type CountingReader struct {
	r io.Reader
	n int64
}

func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{r: r}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// N returns the number of bytes read so far.
func (c *CountingReader) N() int64 { return c.n }
