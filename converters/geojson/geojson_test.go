package geojson

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darianmavgo/geoio/converters"
	"github.com/darianmavgo/geoio/converters/common"
	"github.com/darianmavgo/geoio/converters/geom"
)

const sampleCollection = `{"type":"FeatureCollection",
 "crs":{"type":"name","properties":{"name":"urn:ogc:def:crs:EPSG::2154"}},
 "features":[
  {"type":"Feature","geometry":{"type":"Point","coordinates":[1,2,3]},
   "properties":{"Name":"a","pop":10,"area":1.5,"ok":true,"tags":["x"]}},
  {"type":"Feature","geometry":null,
   "properties":{"Name":"b","pop":null,"area":2,"extra":"late"}},
  {"type":"Feature","geometry":{"type":"Point","coordinates":[4,5]},"properties":null}
 ],
 "bbox":[0,0,5,5]}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readAll(t *testing.T, r *Reader) []common.Row {
	t.Helper()
	var rows []common.Row
	for {
		res, err := r.Next()
		require.NoError(t, err)
		if res.State == common.StateEnd {
			return rows
		}
		rows = append(rows, res.Row)
	}
}

func decode(t *testing.T, v any) *geom.Geometry {
	t.Helper()
	b, ok := v.([]byte)
	require.True(t, ok, "geometry is %T", v)
	g, err := geom.UnmarshalWKB(b)
	require.NoError(t, err)
	return g
}

func TestReaderSchema(t *testing.T) {
	r, err := Open(writeFile(t, "a.geojson", sampleCollection), nil)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, common.Schema{
		{Name: "the_geom", Type: common.TypeGeometry, GeometryKind: "POINT", SRID: 2154},
		{Name: "name", Type: common.TypeText},
		{Name: "pop", Type: common.TypeBigInt},
		{Name: "area", Type: common.TypeDouble},
		{Name: "ok", Type: common.TypeBoolean},
		{Name: "tags", Type: common.TypeText},
		{Name: "extra", Type: common.TypeText},
	}, r.Schema())
	require.Len(t, r.Tables(), 1)
	assert.Equal(t, "", r.Tables()[0].Suffix)
}

func TestReaderRows(t *testing.T) {
	r, err := Open(writeFile(t, "a.geojson", sampleCollection), nil)
	require.NoError(t, err)
	defer r.Close()

	rows := readAll(t, r)
	require.Len(t, rows, 3)

	g := decode(t, rows[0][0])
	assert.Equal(t, geom.KindPoint, g.Kind)
	assert.Equal(t, geom.XYZ, g.Layout)
	assert.Equal(t, geom.Coord{X: 1, Y: 2, Z: 3}, g.Points[0])
	assert.Equal(t, common.Row{"a", int64(10), 1.5, true, `["x"]`, nil}, rows[0][1:])

	assert.Equal(t, common.Row{nil, "b", nil, float64(2), nil, nil, "late"}, rows[1])

	g = decode(t, rows[2][0])
	assert.Equal(t, geom.XY, g.Layout)
	assert.Equal(t, geom.Coord{X: 4, Y: 5}, g.Points[0])
	assert.Equal(t, common.Row{nil, nil, nil, nil, nil, nil}, rows[2][1:])

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
}

func TestReaderDefaultsAndMixedKinds(t *testing.T) {
	doc := `{"features":[
	  {"type":"Feature","geometry":{"type":"LineString","coordinates":[[0,0],[1,1,9]]},"properties":{"v":"x"}},
	  {"type":"Feature","geometry":{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,0]]]]},"properties":{"v":3}}
	],"type":"FeatureCollection"}`
	r, err := Open(writeFile(t, "b.json.geojson", doc), nil)
	require.NoError(t, err)
	defer r.Close()

	schema := r.Schema()
	assert.Equal(t, SRID, schema[0].SRID)
	assert.Equal(t, "", schema[0].GeometryKind)
	assert.Equal(t, common.TypeText, schema[1].Type)

	rows := readAll(t, r)
	require.Len(t, rows, 2)
	line := decode(t, rows[0][0])
	assert.Equal(t, geom.XY, line.Layout)
	assert.Len(t, line.Points, 2)
	poly := decode(t, rows[1][0])
	assert.Equal(t, geom.KindMultiPolygon, poly.Kind)
	assert.Len(t, poly.Polygons[0][0], 4)
	assert.Equal(t, "3", rows[1][1])
}

func TestReaderErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"NotCollection", `{"type":"Feature","features":[]}`},
		{"NoFeatures", `{"type":"FeatureCollection"}`},
		{"NoType", `{"features":[]}`},
		{"NotFeature", `{"type":"FeatureCollection","features":[{"type":"Point"}]}`},
		{"GeometryCollection", `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"GeometryCollection","geometries":[]},"properties":{}}]}`},
		{"UnknownGeometry", `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Circle","coordinates":[0,0]},"properties":{}}]}`},
		{"ShortPosition", `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[1]},"properties":{}}]}`},
		{"NoCoordinates", `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point"},"properties":{}}]}`},
		{"Truncated", `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":null`},
		{"NotJSON", `<kml/>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "bad.geojson", tt.doc)
			r, err := Open(path, nil)
			if err == nil {
				_, err = r.Next()
				r.Close()
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrFormat)
		})
	}
}

func TestWriter(t *testing.T) {
	schema := common.Schema{
		{Name: "the_geom", Type: common.TypeGeometry, SRID: 4326},
		{Name: "name", Type: common.TypeText},
		{Name: "pop", Type: common.TypeBigInt},
	}
	var buf bytes.Buffer
	w, err := NewWriter(&buf, nil, schema)
	require.NoError(t, err)
	assert.ErrorIs(t, w.InsertRow(common.Row{nil}), common.ErrSchema)
	require.NoError(t, w.InsertRow(common.Row{geom.NewPoint(geom.XY, geom.Coord{X: 1.5, Y: -2}), `say "hi"`, int64(3)}))
	require.NoError(t, w.InsertRow(common.Row{nil, nil, nil}))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	assert.Equal(t, `{"type":"FeatureCollection","features":[`+
		`{"type":"Feature","geometry":{"type":"Point","coordinates":[1.5,-2]},"properties":{"name":"say \"hi\"","pop":3}},`+
		`{"type":"Feature","geometry":null,"properties":{"name":null,"pop":null}}]}`+"\n", buf.String())
}

func TestWriterNamesForeignCRS(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, nil, common.Schema{{Name: "g", Type: common.TypeGeometry, SRID: 2154}})
	require.NoError(t, err)
	line := geom.NewLineString(geom.XYZ, []geom.Coord{{X: 0, Y: 0, Z: 1}, {X: 2, Y: 3, Z: 4}})
	require.NoError(t, w.InsertRow(common.Row{line}))
	require.NoError(t, w.Close())
	assert.Equal(t, `{"type":"FeatureCollection",`+
		`"crs":{"type":"name","properties":{"name":"urn:ogc:def:crs:EPSG::2154"}},"features":[`+
		`{"type":"Feature","geometry":{"type":"LineString","coordinates":[[0,0,1],[2,3,4]]},"properties":{}}]}`+"\n", buf.String())
}

func TestWriterNeedsGeometry(t *testing.T) {
	_, err := NewWriter(&bytes.Buffer{}, nil, common.Schema{{Name: "a"}})
	assert.ErrorIs(t, err, common.ErrSchema)

	path := filepath.Join(t.TempDir(), "none.geojson")
	_, err = Create(path, common.Schema{{Name: "a"}}, false)
	assert.ErrorIs(t, err, common.ErrSchema)
	assert.NoFileExists(t, path)
}

func TestDriverRoundTrip(t *testing.T) {
	ctx := context.Background()
	engine, err := converters.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer engine.Close()

	d := New()
	assert.True(t, d.Descriptor().IsSpatialFormat("geojson"))
	src := writeFile(t, "towns.geojson", sampleCollection)
	require.NoError(t, d.ImportFile(ctx, engine, src, "towns", common.ImportOptions{}, nil))
	n, err := engine.RowCount(ctx, "towns")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	out := filepath.Join(filepath.Dir(src), "copy.geojson.gz")
	require.NoError(t, d.ExportTable(ctx, engine, "towns", out, common.ExportOptions{}, nil))
	err = d.ExportTable(ctx, engine, "towns", out, common.ExportOptions{}, nil)
	assert.ErrorIs(t, err, common.ErrIO)

	r, err := Open(out, nil)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 2154, r.Schema()[0].SRID)
	assert.Len(t, r.Schema(), 7)
	rows := readAll(t, r)
	require.Len(t, rows, 3)
	assert.Equal(t, geom.Coord{X: 1, Y: 2, Z: 3}, decode(t, rows[0][0]).Points[0])
	assert.Equal(t, common.Row{"a", int64(10), 1.5, true, `["x"]`, nil}, rows[0][1:])
	assert.Nil(t, rows[1][0])
	assert.Equal(t, "late", rows[1][6])
}

func TestDriverExportNeedsGeometry(t *testing.T) {
	ctx := context.Background()
	engine, err := converters.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer engine.Close()
	require.NoError(t, engine.CreateTable(ctx, "plain", common.Schema{{Name: "a", Type: common.TypeText}}))

	err = New().ExportTable(ctx, engine, "plain", filepath.Join(t.TempDir(), "plain.geojson"), common.ExportOptions{}, nil)
	assert.ErrorIs(t, err, common.ErrSchema)
}
