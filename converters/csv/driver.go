package csv

import (
	"context"
	"log"

	"github.com/darianmavgo/geoio/converters"
	"github.com/darianmavgo/geoio/converters/common"
)

var (
	readCompressions  = []common.Compression{common.CompressionGZ, common.CompressionBZ2, common.CompressionXZ, common.CompressionZSTD}
	writeCompressions = []common.Compression{common.CompressionGZ, common.CompressionXZ, common.CompressionZSTD}
)

// Driver imports and exports one flavour of delimited text.
type Driver struct {
	desc      *common.Descriptor
	delimiter rune
}

var _ common.DriverFunction = (*Driver)(nil)

// New returns the comma separated values driver.
func New() *Driver {
	return newDriver("csv", ',', "CSV file (Comma Separated Values)")
}

// NewTSV returns the tab separated values driver.
func NewTSV() *Driver {
	return newDriver("tsv", '\t', "TSV file (Tab Separated Values)")
}

func newDriver(ext string, delimiter rune, description string) *Driver {
	return &Driver{
		delimiter: delimiter,
		desc: common.NewDescriptor(common.DescriptorInfo{
			Name:         ext,
			Imports:      common.CompressedVariants(ext, readCompressions...),
			Exports:      common.CompressedVariants(ext, writeCompressions...),
			Descriptions: map[string]string{"": description},
		}),
	}
}

func (d *Driver) Descriptor() *common.Descriptor { return d.desc }

// ImportFile loads path into table. Without an explicit schema every column
// is text and empty fields are null.
func (d *Driver) ImportFile(ctx context.Context, engine common.TableEngine, path, table string, opts common.ImportOptions, progress common.Progress) error {
	if _, err := d.desc.CheckImport(path); err != nil {
		return err
	}
	delim := opts.Delimiter
	if delim == 0 {
		delim = d.delimiter
	}
	r, err := Open(path, ReaderOptions{Delimiter: delim, Encoding: opts.Encoding, Schema: opts.Schema}, progress)
	if err != nil {
		return err
	}
	log.Printf("[DEBUG] %s: delimiter %q, %d columns", path, r.csvReader.Comma, len(r.schema))
	_, err = converters.Import(ctx, engine, r, table, opts, progress)
	return err
}

func (d *Driver) ExportTable(ctx context.Context, engine common.TableEngine, table, path string, opts common.ExportOptions, progress common.Progress) error {
	if _, err := d.desc.CheckExport(path); err != nil {
		return err
	}
	schema, err := engine.TableSchema(ctx, table)
	if err != nil {
		return err
	}
	delim := opts.Delimiter
	if delim == 0 || delim == common.AutoDelimiter {
		delim = d.delimiter
	}
	w, err := Create(path, schema, delim, opts.Encoding, opts.DeleteExisting)
	if err != nil {
		return err
	}
	_, err = converters.Export(ctx, engine, table, w, opts, progress)
	return err
}
