package kml

import (
	"context"
	"log"

	"github.com/darianmavgo/geoio/converters"
	"github.com/darianmavgo/geoio/converters/common"
)

// Driver exports KML and KMZ. It cannot import.
type Driver struct {
	desc *common.Descriptor
}

var _ common.DriverFunction = (*Driver)(nil)

func New() *Driver {
	return &Driver{desc: common.NewDescriptor(common.DescriptorInfo{
		Name:    "kml",
		Exports: []string{"kml", "kmz"},
		Spatial: true,
		Descriptions: map[string]string{
			"":    "KML 2.2",
			"kmz": "KML 2.2, zipped",
		},
	})}
}

func (d *Driver) Descriptor() *common.Descriptor { return d.desc }

// ImportFile always fails: KML is export only.
func (d *Driver) ImportFile(ctx context.Context, engine common.TableEngine, path, table string, opts common.ImportOptions, progress common.Progress) error {
	_, err := d.desc.CheckImport(path)
	return err
}

// ExportTable writes table as one Folder of Placemarks. The geometry
// column must be in WGS 84 or carry no SRID.
func (d *Driver) ExportTable(ctx context.Context, engine common.TableEngine, table, path string, opts common.ExportOptions, progress common.Progress) error {
	ext, err := d.desc.CheckExport(path)
	if err != nil {
		return err
	}
	schema, err := engine.TableSchema(ctx, table)
	if err != nil {
		return err
	}
	w, err := Create(path, table, schema, opts.DeleteExisting)
	if err != nil {
		return err
	}
	stats, err := converters.Export(ctx, engine, table, w, opts, progress)
	if err != nil {
		return err
	}
	log.Printf("[DEBUG] %s: %d placemarks as %s", path, stats.Rows, ext)
	return nil
}
