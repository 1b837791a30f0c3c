package shp

import (
	"context"
	"log"

	"github.com/darianmavgo/geoio/converters"
	"github.com/darianmavgo/geoio/converters/common"
	"github.com/darianmavgo/geoio/converters/dbf"
	"github.com/darianmavgo/geoio/converters/geom"
)

// Driver imports and exports ESRI shapefiles.
type Driver struct {
	desc *common.Descriptor
}

var _ common.DriverFunction = (*Driver)(nil)

func New() *Driver {
	return &Driver{desc: common.NewDescriptor(common.DescriptorInfo{
		Name:         "shp",
		Imports:      []string{"shp"},
		Exports:      []string{"shp"},
		Spatial:      true,
		Descriptions: map[string]string{"": "ESRI shapefile"},
	})}
}

func (d *Driver) Descriptor() *common.Descriptor { return d.desc }

func (d *Driver) ImportFile(ctx context.Context, engine common.TableEngine, path, table string, opts common.ImportOptions, progress common.Progress) error {
	if _, err := d.desc.CheckImport(path); err != nil {
		return err
	}
	srid := 0
	if prj := common.FindSidecar(path, ".prj"); prj != "" {
		srid = ReadSRID(prj)
	}
	file, err := Open(path, Options{Encoding: opts.Encoding, SRID: srid})
	if err != nil {
		return err
	}
	log.Printf("[DEBUG] %s: %v, %d records, srid %d", path, file.ShapeType(), file.RowCount(), srid)
	_, err = converters.Import(ctx, engine, common.StoreSource(file, progress), table, opts, progress)
	return err
}

// ExportTable writes table to path. The shape type follows the most
// frequent geometry kind of the first geometry column; rows of another
// kind fail the export.
func (d *Driver) ExportTable(ctx context.Context, engine common.TableEngine, table, path string, opts common.ExportOptions, progress common.Progress) error {
	if _, err := d.desc.CheckExport(path); err != nil {
		return err
	}
	schema, err := engine.TableSchema(ctx, table)
	if err != nil {
		return err
	}
	gi := schema.GeometryIndex()
	if gi < 0 {
		return common.SchemaError("shp.export", "table %s has no geometry column", table)
	}
	profile, err := converters.ProfileGeometry(ctx, engine, table, gi)
	if err != nil {
		return err
	}
	kind := profile.Dominant()
	if kind == 0 {
		if k, ok := geom.ParseKind(schema[gi].GeometryKind); ok {
			kind = k
		} else {
			return common.SchemaError("shp.export", "table %s: cannot infer a shape type from column %s", table, schema[gi].Name)
		}
	}
	if kind == geom.KindPoint && profile.Kinds[geom.KindMultiPoint] > 0 {
		kind = geom.KindMultiPoint
	}
	st, err := ShapeTypeFor(kind, profile.Layout)
	if err != nil {
		return common.SchemaError("shp.export", "%v", err)
	}
	srid := profile.SRID
	if srid == 0 {
		srid = schema[gi].SRID
	}

	var attrs common.Schema
	var attrIdx []int
	for i, f := range schema {
		if i != gi && f.Type != common.TypeGeometry {
			attrs = append(attrs, f)
			attrIdx = append(attrIdx, i)
		}
	}
	fields, kept := dbf.FieldsFor(attrs)
	columns := []int{gi}
	for _, k := range kept {
		columns = append(columns, attrIdx[k])
	}

	if err := common.CheckDestination(path, opts.DeleteExisting); err != nil {
		return err
	}
	file, err := Create(path, st, fields, Options{Encoding: opts.Encoding, SRID: srid})
	if err != nil {
		return err
	}
	if err := common.WriteCodePage(common.SidecarPath(path, ".cpg"), common.EncodingName(file.Attributes().Encoding())); err != nil {
		file.Close()
		return err
	}
	if err := WritePRJ(common.SidecarPath(path, ".prj"), srid); err != nil {
		file.Close()
		return err
	}
	log.Printf("[DEBUG] exporting %s as %v (%d of %d rows %v)", table, st, profile.Kinds[kind], sum(profile.Kinds), kind)
	_, err = converters.Export(ctx, engine, table, common.ProjectSink(file, columns), opts, progress)
	return err
}

func sum(m map[geom.Kind]int64) int64 {
	var n int64
	for _, v := range m {
		n += v
	}
	return n
}
