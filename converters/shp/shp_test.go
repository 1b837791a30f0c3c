package shp

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darianmavgo/geoio/converters"
	"github.com/darianmavgo/geoio/converters/common"
	"github.com/darianmavgo/geoio/converters/dbf"
	"github.com/darianmavgo/geoio/converters/geom"
)

// cw returns a clockwise closed square.
func cw(x0, y0, size float64) []geom.Coord {
	return []geom.Coord{{X: x0, Y: y0}, {X: x0, Y: y0 + size}, {X: x0 + size, Y: y0 + size}, {X: x0 + size, Y: y0}, {X: x0, Y: y0}}
}

var nameField = []dbf.Field{{Name: "NAME", Type: 'C', Length: 16}}

func readGeometry(t *testing.T, res common.Result) *geom.Geometry {
	t.Helper()
	require.Equal(t, common.StateRow, res.State)
	if res.Row[0] == nil {
		return nil
	}
	g, err := geom.UnmarshalWKB(res.Row[0].([]byte))
	require.NoError(t, err)
	return g
}

func TestPolygonRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "parcels.shp")

	f, err := Create(path, Polygon, nameField, Options{})
	require.NoError(t, err)
	holed := geom.NewMultiPolygon(geom.XY, [][][]geom.Coord{
		{cw(0, 0, 10), geom.Reverse(cw(2, 2, 2))},
		{cw(20, 20, 5)},
	})
	require.NoError(t, f.InsertRow(common.Row{holed, "holed"}))
	// a ccw shell is rewritten clockwise
	single := geom.NewPolygon(geom.XY, [][]geom.Coord{geom.Reverse(cw(-5, -5, 1))})
	require.NoError(t, f.InsertRow(common.Row{single, "single"}))
	require.NoError(t, f.InsertRow(common.Row{nil, "empty"}))
	require.NoError(t, f.Close())

	f, err = Open(path, Options{})
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, int64(3), f.RowCount())
	assert.Equal(t, Polygon, f.ShapeType())
	assert.Equal(t, BBox{XMin: -5, YMin: -5, XMax: 25, YMax: 25}, f.Header().BBox)

	schema := f.Schema()
	assert.Equal(t, []string{"the_geom", "NAME"}, schema.Names())
	assert.Equal(t, common.TypeGeometry, schema[0].Type)
	assert.Equal(t, "MULTIPOLYGON", schema[0].GeometryKind)

	res, err := f.Row(0)
	require.NoError(t, err)
	g := readGeometry(t, res)
	assert.Equal(t, geom.KindMultiPolygon, g.Kind)
	require.Len(t, g.Polygons, 2)
	require.Len(t, g.Polygons[0], 2)
	assert.Equal(t, cw(0, 0, 10), g.Polygons[0][0])
	assert.True(t, geom.IsCCW(g.Polygons[0][1]))
	assert.Equal(t, "holed", res.Row[1])

	res, err = f.Row(1)
	require.NoError(t, err)
	g = readGeometry(t, res)
	require.Len(t, g.Polygons, 1)
	assert.False(t, geom.IsCCW(g.Polygons[0][0]))

	res, err = f.Row(2)
	require.NoError(t, err)
	assert.Nil(t, readGeometry(t, res))
	assert.Equal(t, "empty", res.Row[1])

	_, err = f.Row(3)
	assert.ErrorIs(t, err, common.ErrRange)
}

func TestPointZAndMultiPoint(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	path := filepath.Join(dir, "z.shp")
	f, err := Create(path, PointZ, nameField, Options{})
	require.NoError(t, err)
	require.NoError(t, f.InsertRow(common.Row{geom.NewPoint(geom.XYZ, geom.Coord{X: 1, Y: 2, Z: 3}), "a"}))
	require.NoError(t, f.Close())

	f, err = Open(path, Options{SRID: 4326})
	require.NoError(t, err)
	g, err := f.Geometry(0)
	require.NoError(t, err)
	assert.Equal(t, "POINT Z (1 2 3)", g.String())
	assert.Equal(t, 4326, g.SRID)
	assert.Equal(t, 3.0, f.Header().BBox.ZMax)
	require.NoError(t, f.Close())

	path = filepath.Join(dir, "mp.shp")
	f, err = Create(path, MultiPoint, nameField, Options{})
	require.NoError(t, err)
	require.NoError(t, f.InsertRow(common.Row{geom.NewPoint(geom.XY, geom.Coord{X: 1, Y: 1}), "promoted"}))
	mp := geom.NewMultiPoint(geom.XY, []geom.Coord{{X: 1, Y: 2}, {X: 3, Y: 4}})
	require.NoError(t, f.InsertRow(common.Row{mp, "two"}))
	err = f.InsertRow(common.Row{geom.NewLineString(geom.XY, []geom.Coord{{}, {X: 1, Y: 1}}), "line"})
	assert.ErrorIs(t, err, common.ErrSchema)
	require.NoError(t, f.Close())

	f, err = Open(path, Options{})
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, int64(2), f.RowCount())
	g, err = f.Geometry(1)
	require.NoError(t, err)
	assert.Equal(t, "MULTIPOINT ((1 2), (3 4))", g.String())
}

func TestPolyLineFromWKB(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "roads.shp")
	f, err := Create(path, PolyLineM, nameField, Options{})
	require.NoError(t, err)
	line := geom.NewLineString(geom.XYM, []geom.Coord{{X: 0, Y: 0, M: 1}, {X: 5, Y: 5, M: 2}})
	wkb, err := geom.MarshalWKB(line)
	require.NoError(t, err)
	require.NoError(t, f.InsertRow(common.Row{wkb, "a1"}))
	require.NoError(t, f.Close())

	f, err = Open(path, Options{})
	require.NoError(t, err)
	defer f.Close()
	g, err := f.Geometry(0)
	require.NoError(t, err)
	assert.Equal(t, "MULTILINESTRING M ((0 0 1, 5 5 2))", g.String())
}

func le32(v int32) []byte { return binary.LittleEndian.AppendUint32(nil, uint32(v)) }
func le64(v float64) []byte {
	return binary.LittleEndian.AppendUint64(nil, math.Float64bits(v))
}

func polygonBody(rings ...[]geom.Coord) []byte {
	b := le32(int32(Polygon))
	b = append(b, make([]byte, 32)...)
	n := 0
	for _, r := range rings {
		n += len(r)
	}
	b = append(b, le32(int32(len(rings)))...)
	b = append(b, le32(int32(n))...)
	start := 0
	for _, r := range rings {
		b = append(b, le32(int32(start))...)
		start += len(r)
	}
	for _, r := range rings {
		for _, c := range r {
			b = append(b, le64(c.X)...)
			b = append(b, le64(c.Y)...)
		}
	}
	return b
}

func TestDecodePolygonRings(t *testing.T) {
	t.Parallel()

	t.Run("orphan hole becomes a shell", func(t *testing.T) {
		g, err := DecodeShape(polygonBody(geom.Reverse(cw(0, 0, 1))), Polygon)
		require.NoError(t, err)
		require.Len(t, g.Polygons, 1)
		assert.False(t, geom.IsCCW(g.Polygons[0][0]))
	})

	t.Run("open ring is closed and short ring dropped", func(t *testing.T) {
		open := cw(0, 0, 4)[:4]
		short := []geom.Coord{{X: 9, Y: 9}, {X: 9, Y: 10}}
		g, err := DecodeShape(polygonBody(open, short), Polygon)
		require.NoError(t, err)
		require.Len(t, g.Polygons, 1)
		assert.Equal(t, cw(0, 0, 4), g.Polygons[0][0])
	})

	t.Run("hole joins the smallest containing shell", func(t *testing.T) {
		g, err := DecodeShape(polygonBody(cw(0, 0, 100), cw(10, 10, 20), geom.Reverse(cw(15, 15, 2))), Polygon)
		require.NoError(t, err)
		require.Len(t, g.Polygons, 2)
		assert.Len(t, g.Polygons[0], 1)
		assert.Len(t, g.Polygons[1], 2)
	})
}

func TestDecodeShapeErrors(t *testing.T) {
	t.Parallel()

	_, err := DecodeShape(polygonBody(cw(0, 0, 1)), Point)
	assert.ErrorIs(t, err, common.ErrFormat, "type mismatch")

	body := polygonBody(cw(0, 0, 1))
	_, err = DecodeShape(body[:len(body)-4], Polygon)
	assert.ErrorIs(t, err, common.ErrFormat, "truncated")

	_, err = DecodeShape(nil, Polygon)
	assert.ErrorIs(t, err, common.ErrFormat, "empty")

	g, err := DecodeShape(le32(0), Polygon)
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestReadHeaderErrors(t *testing.T) {
	t.Parallel()
	h := &Header{FileLength: 100, ShapeType: Point}
	good := h.Bytes()

	got, err := ReadHeader(bytes.NewReader(good))
	require.NoError(t, err)
	assert.Equal(t, Point, got.ShapeType)

	bad := append([]byte(nil), good...)
	binary.BigEndian.PutUint32(bad[0:4], 1234)
	_, err = ReadHeader(bytes.NewReader(bad))
	assert.ErrorIs(t, err, common.ErrFormat)

	patch := (&Header{FileLength: 100, ShapeType: MultiPatch}).Bytes()
	_, err = ReadHeader(bytes.NewReader(patch))
	assert.ErrorIs(t, err, common.ErrFormat)
}

func TestOpenChecksCompanions(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "pts.shp")
	f, err := Create(path, Point, nameField, Options{})
	require.NoError(t, err)
	require.NoError(t, f.InsertRow(common.Row{geom.NewPoint(geom.XY, geom.Coord{X: 1, Y: 1}), "a"}))
	require.NoError(t, f.InsertRow(common.Row{geom.NewPoint(geom.XY, geom.Coord{X: 2, Y: 2}), "b"}))
	require.NoError(t, f.Close())

	// companions are found ignoring case
	require.NoError(t, os.Rename(filepath.Join(dir, "pts.shx"), filepath.Join(dir, "PTS.SHX")))
	f, err = Open(path, Options{})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	d, err := dbf.Create(filepath.Join(dir, "pts.dbf"), nameField, dbf.Options{})
	require.NoError(t, err)
	require.NoError(t, d.InsertRow(common.Row{"only"}))
	require.NoError(t, d.Close())
	_, err = Open(path, Options{})
	assert.ErrorIs(t, err, common.ErrFormat)

	require.NoError(t, os.Remove(filepath.Join(dir, "PTS.SHX")))
	_, err = Open(path, Options{})
	assert.ErrorIs(t, err, common.ErrIO)
}

func TestInsertRowKeepsPartsAligned(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "pts.shp")
	pt := geom.NewPoint(geom.XY, geom.Coord{X: 1, Y: 1})

	f, err := Create(path, Point, nameField, Options{})
	require.NoError(t, err)
	require.NoError(t, f.InsertRow(common.Row{pt, "a"}))
	assert.ErrorIs(t, f.InsertRow(common.Row{pt, "b", "extra"}), common.ErrSchema)
	assert.Equal(t, int64(1), f.RowCount())
	assert.Equal(t, int64(1), f.attrs.RowCount())
	require.NoError(t, f.Close())

	// the rejected record is not left behind
	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(headerLen+recHeadLen+20), st.Size())
	st, err = os.Stat(filepath.Join(dir, "pts.shx"))
	require.NoError(t, err)
	assert.Equal(t, int64(headerLen+indexEntry), st.Size())

	f, err = Create(filepath.Join(dir, "broken.shp"), Point, nameField, Options{})
	require.NoError(t, err)
	require.NoError(t, f.shp.Close())
	assert.ErrorIs(t, f.InsertRow(common.Row{pt, "a"}), common.ErrIO)
	assert.Zero(t, f.RowCount())
	assert.Zero(t, f.attrs.RowCount())
	assert.Error(t, f.Close())
}

func TestGeometryRejectsOversizedRecord(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "pts.shp")
	f, err := Create(path, Point, nameField, Options{})
	require.NoError(t, err)
	require.NoError(t, f.InsertRow(common.Row{geom.NewPoint(geom.XY, geom.Coord{X: 1, Y: 1}), "a"}))
	require.NoError(t, f.Close())

	shx := filepath.Join(dir, "pts.shx")
	raw, err := os.ReadFile(shx)
	require.NoError(t, err)
	binary.BigEndian.PutUint32(raw[headerLen+4:], math.MaxInt32)
	require.NoError(t, os.WriteFile(shx, raw, 0o644))

	f, err = Open(path, Options{})
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Row(0)
	assert.ErrorIs(t, err, common.ErrFormat)
}

func TestReadSRID(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	wgs := filepath.Join(dir, "wgs.prj")
	require.NoError(t, WritePRJ(wgs, 4326))
	assert.Equal(t, 4326, ReadSRID(wgs))

	lambert := filepath.Join(dir, "l93.prj")
	require.NoError(t, os.WriteFile(lambert, []byte(`PROJCS["RGF93 / Lambert-93",GEOGCS["RGF93"],AUTHORITY["EPSG","2154"]]`), 0o644))
	assert.Equal(t, 2154, ReadSRID(lambert))
	assert.Equal(t, 0, ReadSRID(filepath.Join(dir, "missing.prj")))
}

func TestDriverRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	src := filepath.Join(dir, "zones.shp")
	f, err := Create(src, Polygon, []dbf.Field{
		{Name: "NAME", Type: 'C', Length: 16},
		{Name: "POP", Type: 'N', Length: 9},
	}, Options{})
	require.NoError(t, err)
	require.NoError(t, f.InsertRow(common.Row{geom.NewPolygon(geom.XY, [][]geom.Coord{cw(0, 0, 10)}), "north", int64(1200)}))
	require.NoError(t, f.InsertRow(common.Row{geom.NewPolygon(geom.XY, [][]geom.Coord{cw(10, 0, 10)}), "south", int64(800)}))
	require.NoError(t, f.Close())
	require.NoError(t, WritePRJ(common.SidecarPath(src, ".prj"), 4326))

	engine, err := converters.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer engine.Close()

	d := New()
	assert.True(t, d.Descriptor().IsSpatialFormat("SHP"))
	require.NoError(t, d.ImportFile(ctx, engine, src, "zones", common.ImportOptions{}, nil))

	schema, err := engine.TableSchema(ctx, "zones")
	require.NoError(t, err)
	assert.Equal(t, common.TypeGeometry, schema[0].Type)
	assert.Equal(t, 4326, schema[0].SRID)
	assert.Equal(t, "MULTIPOLYGON", schema[0].GeometryKind)

	out := filepath.Join(dir, "copy.shp")
	require.NoError(t, d.ExportTable(ctx, engine, "zones", out, common.ExportOptions{}, nil))
	assert.FileExists(t, filepath.Join(dir, "copy.prj"))
	assert.FileExists(t, filepath.Join(dir, "copy.cpg"))

	f, err = Open(out, Options{})
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, Polygon, f.ShapeType())
	require.Equal(t, int64(2), f.RowCount())
	res, err := f.Row(1)
	require.NoError(t, err)
	g := readGeometry(t, res)
	assert.Equal(t, cw(10, 0, 10), g.Polygons[0][0])
	assert.Equal(t, "south", res.Row[1])
	assert.Equal(t, int64(800), res.Row[2])

	err = d.ExportTable(ctx, engine, "zones", out, common.ExportOptions{}, nil)
	assert.ErrorIs(t, err, common.ErrIO)
}
