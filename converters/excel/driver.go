package excel

import (
	"context"

	"github.com/darianmavgo/geoio/converters"
	"github.com/darianmavgo/geoio/converters/common"
)

// Driver imports and exports xlsx workbooks.
type Driver struct {
	desc *common.Descriptor
}

var _ common.DriverFunction = (*Driver)(nil)

func New() *Driver {
	return &Driver{desc: common.NewDescriptor(common.DescriptorInfo{
		Name:         "xlsx",
		Imports:      []string{"xlsx"},
		Exports:      []string{"xlsx"},
		Descriptions: map[string]string{"": "Excel workbook"},
	})}
}

func (d *Driver) Descriptor() *common.Descriptor { return d.desc }

// ImportFile loads every sheet of path. All columns are text.
func (d *Driver) ImportFile(ctx context.Context, engine common.TableEngine, path, table string, opts common.ImportOptions, progress common.Progress) error {
	if _, err := d.desc.CheckImport(path); err != nil {
		return err
	}
	r, err := Open(path, progress)
	if err != nil {
		return err
	}
	_, err = converters.Import(ctx, engine, r, table, opts, progress)
	return err
}

// ExportTable writes table to a single sheet workbook.
func (d *Driver) ExportTable(ctx context.Context, engine common.TableEngine, table, path string, opts common.ExportOptions, progress common.Progress) error {
	if _, err := d.desc.CheckExport(path); err != nil {
		return err
	}
	schema, err := engine.TableSchema(ctx, table)
	if err != nil {
		return err
	}
	if err := common.CheckDestination(path, opts.DeleteExisting); err != nil {
		return err
	}
	w, err := Create(path, table, schema)
	if err != nil {
		return err
	}
	_, err = converters.Export(ctx, engine, table, w, opts, progress)
	return err
}
