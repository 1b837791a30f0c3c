// Package zip imports the files packed in a ZIP archive, such as a zipped
// shapefile with its .shx, .dbf and .prj members.
package zip

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/darianmavgo/geoio/converters/common"
)

// Resolver picks the driver that imports an extracted member.
type Resolver interface {
	ForImport(path string) (common.DriverFunction, error)
}

// Driver extracts an archive to a temporary directory and imports every
// member some other driver accepts.
type Driver struct {
	desc     *common.Descriptor
	resolver Resolver
}

var _ common.DriverFunction = (*Driver)(nil)

// New returns a zip driver that hands members to resolver.
func New(resolver Resolver) *Driver {
	return &Driver{
		resolver: resolver,
		desc: common.NewDescriptor(common.DescriptorInfo{
			Name:         "zip",
			Imports:      []string{"zip"},
			Descriptions: map[string]string{"": "ZIP archive of importable files"},
		}),
	}
}

func (d *Driver) Descriptor() *common.Descriptor { return d.desc }

type member struct {
	path   string
	driver common.DriverFunction
}

// ImportFile imports the members of path. A single importable member goes
// to table; several go to table_<member name>.
func (d *Driver) ImportFile(ctx context.Context, engine common.TableEngine, path, table string, opts common.ImportOptions, progress common.Progress) error {
	if _, err := d.desc.CheckImport(path); err != nil {
		return err
	}
	if progress == nil {
		progress = common.NoProgress
	}
	dir, err := os.MkdirTemp("", "geoio-zip-*")
	if err != nil {
		return common.IOError("zip.extract", "", err)
	}
	defer os.RemoveAll(dir)

	files, err := extract(path, dir, progress)
	if err != nil {
		return err
	}
	members := d.importable(files)
	if len(members) == 0 {
		return common.FormatError("zip.import", "archive holds no importable file").WithPath(path)
	}

	names := make([]string, len(members))
	if len(members) == 1 {
		names[0] = table
	} else {
		stems := make([]string, len(members))
		for i, m := range members {
			stems[i] = stem(m.path)
		}
		for i, s := range common.GenTableNames(stems) {
			names[i] = table + "_" + s
		}
	}
	for i, m := range members {
		if progress.IsCancelled() {
			return common.CancelledError("zip.import", common.CancelCause(progress))
		}
		rel, _ := filepath.Rel(dir, m.path)
		log.Printf("[DEBUG] %s: importing member %s with %s into %s", path, rel, m.driver.Descriptor().Name, names[i])
		if err := m.driver.ImportFile(ctx, engine, m.path, names[i], opts, progress); err != nil {
			return fmt.Errorf("failed to import %s from %s: %w", rel, filepath.Base(path), err)
		}
	}
	return nil
}

func (d *Driver) ExportTable(ctx context.Context, engine common.TableEngine, table, path string, opts common.ExportOptions, progress common.Progress) error {
	_, err := d.desc.CheckExport(path)
	return err
}

// importable keeps the members another driver imports. Nested archives and
// the .dbf of a shapefile are left out.
func (d *Driver) importable(files []string) []member {
	shapes := map[string]bool{}
	for _, f := range files {
		if strings.EqualFold(filepath.Ext(f), ".shp") {
			shapes[strings.ToLower(strings.TrimSuffix(f, filepath.Ext(f)))] = true
		}
	}
	var out []member
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f))
		if ext == ".dbf" && shapes[strings.ToLower(strings.TrimSuffix(f, filepath.Ext(f)))] {
			continue
		}
		drv, err := d.resolver.ForImport(f)
		if err != nil || drv.Descriptor().Name == d.desc.Name {
			continue
		}
		out = append(out, member{path: f, driver: drv})
	}
	return out
}

func stem(p string) string {
	base := filepath.Base(p)
	if i := strings.IndexByte(base, '.'); i > 0 {
		return base[:i]
	}
	return base
}

// progressReader reports the share of uncompressed bytes extracted so far.
type progressReader struct {
	r     io.Reader
	done  int64
	total int64
	fn    func(float64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.total > 0 {
		p.done += int64(n)
		p.fn(float64(p.done) / float64(p.total))
	}
	return n, err
}

// extract writes every regular member of the archive at src below dir and
// returns their paths in archive order. Names escaping dir are rejected.
func extract(src, dir string, progress common.Progress) ([]string, error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, common.IOError("zip.open", src, err)
		}
		return nil, common.FormatError("zip.open", "%v", err).WithPath(src)
	}
	defer zr.Close()

	var total uint64
	for _, f := range zr.File {
		total += f.UncompressedSize64
	}
	log.Printf("[DEBUG] %s: %d members, %s uncompressed", src, len(zr.File), humanize.Bytes(total))

	pr := &progressReader{total: int64(total), fn: progress.ProgressTo}
	var files []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := path.Clean(strings.ReplaceAll(f.Name, `\`, "/"))
		if !filepath.IsLocal(filepath.FromSlash(name)) {
			return nil, common.FormatError("zip.extract", "member %q escapes the archive", f.Name).WithPath(src)
		}
		if progress.IsCancelled() {
			return nil, common.CancelledError("zip.extract", common.CancelCause(progress))
		}
		dst := filepath.Join(dir, filepath.FromSlash(name))
		if err := extractFile(f, dst, pr); err != nil {
			return nil, err
		}
		files = append(files, dst)
	}
	return files, nil
}

func extractFile(f *zip.File, dst string, pr *progressReader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return common.IOError("zip.extract", dst, err)
	}
	rc, err := f.Open()
	if err != nil {
		return common.FormatError("zip.extract", "member %s: %v", f.Name, err)
	}
	defer rc.Close()
	out, err := os.Create(dst)
	if err != nil {
		return common.IOError("zip.extract", dst, err)
	}
	pr.r = rc
	if _, err := io.Copy(out, pr); err != nil {
		out.Close()
		return common.FormatError("zip.extract", "member %s: %v", f.Name, err)
	}
	if err := out.Close(); err != nil {
		return common.IOError("zip.extract", dst, err)
	}
	return nil
}
