package gpx

import (
	"context"
	"log"

	"github.com/darianmavgo/geoio/converters"
	"github.com/darianmavgo/geoio/converters/common"
)

// Driver imports GPX documents. It cannot export.
type Driver struct {
	desc *common.Descriptor
}

var _ common.DriverFunction = (*Driver)(nil)

func New() *Driver {
	return &Driver{desc: common.NewDescriptor(common.DescriptorInfo{
		Name:         "gpx",
		Imports:      common.CompressedVariants("gpx", common.CompressionGZ, common.CompressionBZ2),
		Spatial:      true,
		Descriptions: map[string]string{"": "GPX file"},
	})}
}

func (d *Driver) Descriptor() *common.Descriptor { return d.desc }

// ImportFile loads path into the tables table_waypoint, table_route,
// table_routepoint, table_track, table_tracksegment and table_trackpoint.
// Encoding comes from the XML prolog; opts.Encoding is not consulted.
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
	log.Printf("[DEBUG] %s: %d waypoints, %d routes, %d tracks", path,
		stats.Rows[table+tableSuffixes[tableWaypoint]],
		stats.Rows[table+tableSuffixes[tableRoute]],
		stats.Rows[table+tableSuffixes[tableTrack]])
	return nil
}

// ExportTable always fails: GPX is import only.
func (d *Driver) ExportTable(ctx context.Context, engine common.TableEngine, table, path string, opts common.ExportOptions, progress common.Progress) error {
	_, err := d.desc.CheckExport(path)
	return err
}
