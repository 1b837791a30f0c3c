package osm

import (
	"context"
	"log"

	"github.com/darianmavgo/geoio/converters"
	"github.com/darianmavgo/geoio/converters/common"
)

// Driver imports OpenStreetMap XML. It cannot export.
type Driver struct {
	desc *common.Descriptor
}

var _ common.DriverFunction = (*Driver)(nil)

func New() *Driver {
	return &Driver{desc: common.NewDescriptor(common.DescriptorInfo{
		Name: "osm",
		Imports: common.CompressedVariants("osm",
			common.CompressionGZ, common.CompressionBZ2, common.CompressionXZ, common.CompressionZSTD),
		Spatial:      true,
		Descriptions: map[string]string{"": "OSM file"},
	})}
}

func (d *Driver) Descriptor() *common.Descriptor { return d.desc }

// ImportFile loads path into table_node, table_way, table_relation and
// their tag, way node and member tables.
func (d *Driver) ImportFile(ctx context.Context, engine common.TableEngine, path, table string, opts common.ImportOptions, progress common.Progress) error {
	if _, err := d.desc.CheckImport(path); err != nil {
		return err
	}
	p, err := Open(path, progress)
	if err != nil {
		return err
	}
	stats, err := converters.Import(ctx, engine, p, table, opts, progress)
	if err != nil {
		return err
	}
	log.Printf("[DEBUG] %s: %d nodes, %d ways, %d relations", path,
		stats.Rows[table+tableDefs[tableNode].Suffix],
		stats.Rows[table+tableDefs[tableWay].Suffix],
		stats.Rows[table+tableDefs[tableRelation].Suffix])
	return nil
}

// ExportTable always fails: OSM is import only.
func (d *Driver) ExportTable(ctx context.Context, engine common.TableEngine, table, path string, opts common.ExportOptions, progress common.Progress) error {
	_, err := d.desc.CheckExport(path)
	return err
}
