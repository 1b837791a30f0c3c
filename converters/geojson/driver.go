package geojson

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

// Driver imports and exports GeoJSON FeatureCollections.
type Driver struct {
	desc *common.Descriptor
}

var _ common.DriverFunction = (*Driver)(nil)

func New() *Driver {
	return &Driver{desc: common.NewDescriptor(common.DescriptorInfo{
		Name:         "geojson",
		Imports:      common.CompressedVariants("geojson", readCompressions...),
		Exports:      common.CompressedVariants("geojson", writeCompressions...),
		Spatial:      true,
		Descriptions: map[string]string{"": "GeoJSON 1.0"},
	})}
}

func (d *Driver) Descriptor() *common.Descriptor { return d.desc }

// ImportFile loads the features of path into table. The file is read twice:
// once to collect every property, once to stream the rows.
func (d *Driver) ImportFile(ctx context.Context, engine common.TableEngine, path, table string, opts common.ImportOptions, progress common.Progress) error {
	if _, err := d.desc.CheckImport(path); err != nil {
		return err
	}
	r, err := Open(path, progress)
	if err != nil {
		return err
	}
	g := r.Schema()[0]
	log.Printf("[DEBUG] %s: %d properties, geometry %s srid %d", path, len(r.Schema())-1, g.GeometryKind, g.SRID)
	_, err = converters.Import(ctx, engine, r, table, opts, progress)
	return err
}

// ExportTable writes table as a FeatureCollection. The table needs a
// geometry column.
func (d *Driver) ExportTable(ctx context.Context, engine common.TableEngine, table, path string, opts common.ExportOptions, progress common.Progress) error {
	if _, err := d.desc.CheckExport(path); err != nil {
		return err
	}
	schema, err := engine.TableSchema(ctx, table)
	if err != nil {
		return err
	}
	w, err := Create(path, schema, opts.DeleteExisting)
	if err != nil {
		return err
	}
	_, err = converters.Export(ctx, engine, table, w, opts, progress)
	return err
}
