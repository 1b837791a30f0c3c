package common

import (
	"path/filepath"
	"strings"
)

// Capability tells which directions a driver supports.
type Capability int

const (
	ImportCapable Capability = 1 << iota
	ExportCapable
	Both = ImportCapable | ExportCapable
)

// Descriptor is the immutable capability record of a driver.
type Descriptor struct {
	Name       string
	Capability Capability
	imports    []string
	exports    []string
	spatial    map[string]bool
	desc       map[string]string
}

// DescriptorInfo is the literal form used to build a Descriptor.
type DescriptorInfo struct {
	Name         string
	Imports      []string          // e.g. "dbf", "dbf.gz"
	Exports      []string          // same form as Imports
	Spatial      bool              // applies to every listed extension
	Descriptions map[string]string // by extension; "" is the fallback
}

// NewDescriptor builds a Descriptor. Capability is derived from which
// format lists are non-empty.
func NewDescriptor(info DescriptorInfo) *Descriptor {
	d := &Descriptor{
		Name:    info.Name,
		imports: lowerAll(info.Imports),
		exports: lowerAll(info.Exports),
		spatial: map[string]bool{},
		desc:    map[string]string{},
	}
	if len(d.imports) > 0 {
		d.Capability |= ImportCapable
	}
	if len(d.exports) > 0 {
		d.Capability |= ExportCapable
	}
	for _, ext := range append(append([]string{}, d.imports...), d.exports...) {
		if info.Spatial {
			d.spatial[ext] = true
		}
	}
	for k, v := range info.Descriptions {
		d.desc[strings.ToLower(k)] = v
	}
	return d
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(strings.TrimPrefix(s, "."))
	}
	return out
}

// ImportFormats returns the accepted import extensions.
func (d *Descriptor) ImportFormats() []string { return append([]string(nil), d.imports...) }

// ExportFormats returns the accepted export extensions.
func (d *Descriptor) ExportFormats() []string { return append([]string(nil), d.exports...) }

func (d *Descriptor) CanImport() bool { return d.Capability&ImportCapable != 0 }
func (d *Descriptor) CanExport() bool { return d.Capability&ExportCapable != 0 }

// IsSpatialFormat reports whether ext carries geometry.
func (d *Descriptor) IsSpatialFormat(ext string) bool {
	return d.spatial[strings.ToLower(strings.TrimPrefix(ext, "."))]
}

// Description returns the human readable name of ext.
func (d *Descriptor) Description(ext string) string {
	if s, ok := d.desc[strings.ToLower(strings.TrimPrefix(ext, "."))]; ok {
		return s
	}
	return d.desc[""]
}

// CheckImport returns the matched import extension of path or a FormatError.
func (d *Descriptor) CheckImport(path string) (string, error) {
	if !d.CanImport() {
		return "", FormatError(d.Name+".import", "driver %s cannot import", d.Name)
	}
	ext := MatchExtension(path, d.imports)
	if ext == "" {
		return "", FormatError(d.Name+".import", "unsupported extension %q, expected one of %v",
			filepath.Ext(path), d.imports).WithPath(path)
	}
	return ext, nil
}

// CheckExport returns the matched export extension of path or a FormatError.
func (d *Descriptor) CheckExport(path string) (string, error) {
	if !d.CanExport() {
		return "", FormatError(d.Name+".export", "driver %s cannot export", d.Name)
	}
	ext := MatchExtension(path, d.exports)
	if ext == "" {
		return "", FormatError(d.Name+".export", "unsupported extension %q, expected one of %v",
			filepath.Ext(path), d.exports).WithPath(path)
	}
	return ext, nil
}

// MatchExtension returns the longest entry of exts that path ends with
// (as ".ext", case-insensitive), or "".
func MatchExtension(path string, exts []string) string {
	lower := strings.ToLower(filepath.Base(path))
	best := ""
	for _, ext := range exts {
		if strings.HasSuffix(lower, "."+ext) && len(ext) > len(best) {
			best = ext
		}
	}
	return best
}
