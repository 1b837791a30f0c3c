package dbf

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/darianmavgo/geoio/converters"
	"github.com/darianmavgo/geoio/converters/common"
)

// Driver imports and exports dBase files.
type Driver struct {
	desc *common.Descriptor
}

var _ common.DriverFunction = (*Driver)(nil)

func New() *Driver {
	return &Driver{desc: common.NewDescriptor(common.DescriptorInfo{
		Name:         "dbf",
		Imports:      []string{"dbf", "dbf.gz"},
		Exports:      []string{"dbf"},
		Descriptions: map[string]string{"": "dBase III format"},
	})}
}

func (d *Driver) Descriptor() *common.Descriptor { return d.desc }

// ImportFile loads path into table. A .dbf.gz input is decompressed to a
// temporary file first.
func (d *Driver) ImportFile(ctx context.Context, engine common.TableEngine, path, table string, opts common.ImportOptions, progress common.Progress) error {
	ext, err := d.desc.CheckImport(path)
	if err != nil {
		return err
	}
	file, err := openImport(path, ext, opts.Encoding)
	if err != nil {
		return err
	}
	log.Printf("[DEBUG] %s: %s, encoding %s", path, file.Header(), common.EncodingName(file.Encoding()))
	_, err = converters.Import(ctx, engine, common.StoreSource(file, progress), table, opts, progress)
	return err
}

func openImport(path, ext, encoding string) (*File, error) {
	if ext != "dbf.gz" {
		return Open(path, Options{Encoding: encoding})
	}
	plain := path[:len(path)-len(".gz")]
	if encoding == "" {
		if cpg := common.FindSidecar(plain, ".cpg"); cpg != "" {
			encoding, _ = common.ReadCodePage(cpg)
		}
	}
	tmp, err := decompress(path)
	if err != nil {
		return nil, err
	}
	file, err := Open(tmp, Options{Encoding: encoding})
	if err != nil {
		os.Remove(tmp)
		return nil, err
	}
	file.cleanup = func() error { return os.Remove(tmp) }
	return file, nil
}

func decompress(path string) (string, error) {
	in, err := common.OpenInput(path)
	if err != nil {
		return "", err
	}
	defer in.Close()
	out, err := os.CreateTemp("", "geoio-*.dbf")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", common.IOError("dbf.decompress", path, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", common.IOError("dbf.decompress", path, err)
	}
	return out.Name(), nil
}

// ExportTable writes the non-geometry columns of table to path, plus a .cpg
// sidecar naming the encoding.
func (d *Driver) ExportTable(ctx context.Context, engine common.TableEngine, table, path string, opts common.ExportOptions, progress common.Progress) error {
	if _, err := d.desc.CheckExport(path); err != nil {
		return err
	}
	schema, err := engine.TableSchema(ctx, table)
	if err != nil {
		return err
	}
	fields, columns := FieldsFor(schema)
	if err := common.CheckDestination(path, opts.DeleteExisting); err != nil {
		return err
	}
	file, err := Create(path, fields, Options{Encoding: opts.Encoding})
	if err != nil {
		return err
	}
	if err := common.WriteCodePage(common.SidecarPath(path, ".cpg"), common.EncodingName(file.Encoding())); err != nil {
		file.Close()
		return err
	}
	_, err = converters.Export(ctx, engine, table, common.ProjectSink(file, columns), opts, progress)
	return err
}

// FieldsFor maps the columns of schema dBase can hold to field descriptors
// with names that fit 10 bytes and stay unique. columns holds the schema
// index of each field.
func FieldsFor(schema common.Schema) (fields []Field, columns []int) {
	var names []string
	for i, c := range schema {
		f, ok := FieldFor(c)
		if !ok {
			continue
		}
		fields = append(fields, f)
		columns = append(columns, i)
		names = append(names, c.Name)
	}
	for i, n := range FieldNames(names) {
		fields[i].Name = n
	}
	return fields, columns
}

// FieldNames truncates names to MaxNameLen bytes and renames collisions
// by replacing the tail with a counter.
func FieldNames(names []string) []string {
	out := make([]string, len(names))
	seen := map[string]bool{}
	for i, n := range names {
		n = truncate(n, MaxNameLen)
		cand := n
		for k := 1; seen[strings.ToUpper(cand)]; k++ {
			suffix := fmt.Sprintf("_%d", k)
			cand = truncate(n, MaxNameLen-len(suffix)) + suffix
		}
		seen[strings.ToUpper(cand)] = true
		out[i] = cand
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
