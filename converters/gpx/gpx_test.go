package gpx

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darianmavgo/geoio/converters"
	"github.com/darianmavgo/geoio/converters/common"
	"github.com/darianmavgo/geoio/converters/geom"
)

const sampleGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="geoio" xmlns="http://www.topografix.com/GPX/1/1">
  <metadata><name>Doc</name><time>2024-01-01T00:00:00Z</time></metadata>
  <wpt lat="45.75" lon="4.85">
    <ele>170.5</ele><name>Lyon</name><desc>City</desc>
    <link href="https://lyon.fr"><text>site</text><type>text/html</type></link>
    <sat>7</sat>
    <extensions><x:foo xmlns:x="urn:x"><x:bar>1</x:bar></x:foo></extensions>
  </wpt>
  <rte>
    <name>R1</name><number>3</number>
    <rtept lat="1" lon="2"/>
    <rtept lat="3" lon="4"><name>end</name></rtept>
  </rte>
  <trk>
    <name>T1</name>
    <trkseg>
      <trkpt lat="10" lon="20"><ele>1</ele><time>2024-05-01T10:00:00Z</time></trkpt>
      <trkpt lat="11" lon="21"><ele>2</ele></trkpt>
      <trkpt lat="12" lon="22"><ele>3</ele></trkpt>
    </trkseg>
  </trk>
</gpx>
`

func parseAll(t *testing.T, doc string) []common.Result {
	t.Helper()
	p := NewParser(strings.NewReader(doc))
	var out []common.Result
	for {
		res, err := p.Next()
		require.NoError(t, err)
		if res.State == common.StateEnd {
			return out
		}
		out = append(out, res)
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

func TestParserEmissionOrder(t *testing.T) {
	results := parseAll(t, sampleGPX)
	var tables []int
	for _, r := range results {
		tables = append(tables, r.Table)
	}
	assert.Equal(t, []int{
		tableWaypoint,
		tableRoutePoint, tableRoutePoint, tableRoute,
		tableTrackPoint, tableTrackPoint, tableTrackPoint, tableTrackSegment, tableTrack,
	}, tables)

	for _, r := range results {
		assert.Len(t, r.Row, len(tableDefs[r.Table].Schema), "table %d", r.Table)
	}
}

func TestParserWaypoint(t *testing.T) {
	wpt := parseAll(t, sampleGPX)[0].Row
	assert.Equal(t, int64(1), wpt[colID])
	assert.Equal(t, 45.75, wpt[colLat])
	assert.Equal(t, 4.85, wpt[colLon])
	assert.Equal(t, 170.5, wpt[colEle])
	assert.Equal(t, "Lyon", wpt[colName])
	assert.Equal(t, "City", wpt[colDesc])
	assert.Equal(t, "https://lyon.fr", wpt[colHref])
	assert.Equal(t, "site", wpt[colHrefTitle])
	assert.Nil(t, wpt[colType])
	assert.Equal(t, int64(7), wpt[colSat])
	assert.Equal(t, true, wpt[colExtensions])
	assert.Nil(t, wpt[colTime])

	g := decode(t, wpt[colGeom])
	assert.Equal(t, geom.KindPoint, g.Kind)
	assert.Equal(t, geom.XYZ, g.Layout)
	assert.Equal(t, geom.Coord{X: 4.85, Y: 45.75, Z: 170.5}, g.Points[0])
}

func TestParserRouteAndTrack(t *testing.T) {
	results := parseAll(t, sampleGPX)

	rtept := results[2].Row
	assert.Equal(t, int64(2), rtept[colID])
	assert.Equal(t, "end", rtept[colName])
	assert.Equal(t, int64(1), rtept[pointColumns])
	assert.Equal(t, geom.XY, decode(t, rtept[colGeom]).Layout)

	rte := results[3].Row
	assert.Equal(t, "R1", rte[lineName])
	assert.Equal(t, int64(3), rte[lineNumber])
	assert.Equal(t, false, rte[lineExtensions])
	route := decode(t, rte[lineGeom])
	assert.Equal(t, geom.KindLineString, route.Kind)
	assert.Equal(t, []geom.Coord{{X: 2, Y: 1}, {X: 4, Y: 3}}, route.Points)

	for i, r := range results[4:7] {
		assert.Equal(t, int64(i+1), r.Row[colID])
		assert.Equal(t, int64(1), r.Row[pointColumns])
	}
	assert.Equal(t, "2024-05-01T10:00:00Z", results[4].Row[colTime])

	seg := results[7].Row
	assert.Equal(t, int64(1), seg[segID])
	assert.Equal(t, int64(1), seg[segTrackID])
	line := decode(t, seg[segGeom])
	assert.Equal(t, geom.XYZ, line.Layout)
	assert.Len(t, line.Points, 3)

	trk := results[8].Row
	assert.Equal(t, "T1", trk[lineName])
	track := decode(t, trk[lineGeom])
	assert.Equal(t, geom.KindMultiLineString, track.Kind)
	require.Len(t, track.Lines, 1)
	assert.Equal(t, geom.Coord{X: 22, Y: 12, Z: 3}, track.Lines[0][2])
}

func TestParserShortSegment(t *testing.T) {
	results := parseAll(t, `<gpx><trk><trkseg><trkpt lat="1" lon="1"/></trkseg><trkseg/></trk></gpx>`)
	require.Len(t, results, 4)
	assert.Nil(t, results[1].Row[segGeom])
	assert.Equal(t, int64(2), results[2].Row[segID])
	assert.Nil(t, results[3].Row[lineGeom])
}

func TestParserEncodingDeclaration(t *testing.T) {
	doc := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n<gpx><wpt lat=\"1\" lon=\"2\"><name>Caf\xe9</name></wpt></gpx>"
	results := parseAll(t, doc)
	require.Len(t, results, 1)
	assert.Equal(t, "Café", results[0].Row[colName])
}

func TestParserErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"MissingLat", `<gpx><wpt lon="2"/></gpx>`},
		{"BadLon", `<gpx><wpt lat="1" lon="east"/></gpx>`},
		{"BadEle", `<gpx><wpt lat="1" lon="2"><ele>high</ele></wpt></gpx>`},
		{"BadSat", `<gpx><wpt lat="1" lon="2"><sat>1.5</sat></wpt></gpx>`},
		{"Mismatched", `<gpx><wpt lat="1" lon="2"></trk></gpx>`},
		{"Unclosed", `<gpx><wpt lat="1" lon="2">`},
		{"WrongRoot", `<kml></kml>`},
		{"Empty", ``},
		{"StrayTrackPoint", `<gpx><trk><trkpt lat="1" lon="2"/></trk></gpx>`},
		{"RouteInsideTrack", `<gpx><trk><trkseg><trkpt lat="1" lon="2"/><trkpt lat="3" lon="4"/></trkseg><rte><rtept lat="1" lon="2"/></rte></trk></gpx>`},
		{"TrackInsideRoute", `<gpx><rte><trk></trk></rte></gpx>`},
		{"WaypointInsideRoute", `<gpx><rte><wpt lat="1" lon="2"/></rte></gpx>`},
		{"NestedWaypoint", `<gpx><wpt lat="1" lon="2"><wpt lat="1" lon="2"/></wpt></gpx>`},
		{"NestedSegment", `<gpx><trk><trkseg><trkseg></trkseg></trkseg></trk></gpx>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser(strings.NewReader(tt.doc))
			var err error
			for err == nil {
				var res common.Result
				res, err = p.Next()
				if err == nil && res.State == common.StateEnd {
					t.Fatal("expected an error before end of document")
				}
			}
			assert.ErrorIs(t, err, common.ErrFormat)
		})
	}
}

func TestDriverImport(t *testing.T) {
	ctx := context.Background()
	engine, err := converters.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer engine.Close()

	path := filepath.Join(t.TempDir(), "hike.gpx")
	require.NoError(t, os.WriteFile(path, []byte(sampleGPX), 0o644))

	d := New()
	require.NoError(t, d.ImportFile(ctx, engine, path, "hike", common.ImportOptions{}, nil))

	counts := map[string]int64{
		"hike_waypoint": 1, "hike_route": 1, "hike_routepoint": 2,
		"hike_track": 1, "hike_tracksegment": 1, "hike_trackpoint": 3,
	}
	for table, want := range counts {
		n, err := engine.RowCount(ctx, table)
		require.NoError(t, err, table)
		assert.Equal(t, want, n, table)
	}

	var ids []int64
	require.NoError(t, engine.Scan(ctx, "hike_trackpoint", func(r common.Row) error {
		ids = append(ids, r[colID].(int64))
		return nil
	}))
	assert.Equal(t, []int64{1, 2, 3}, ids)

	schema, err := engine.TableSchema(ctx, "hike_track")
	require.NoError(t, err)
	assert.Equal(t, common.TypeGeometry, schema[0].Type)
	assert.Equal(t, "MULTILINESTRING", schema[0].GeometryKind)
	assert.Equal(t, SRID, schema[0].SRID)

	err = d.ExportTable(ctx, engine, "hike_track", filepath.Join(t.TempDir(), "out.gpx"), common.ExportOptions{}, nil)
	assert.ErrorIs(t, err, common.ErrFormat)

	assert.True(t, d.Descriptor().IsSpatialFormat("gpx.gz"))
	assert.Equal(t, "GPX file", d.Descriptor().Description("gpx"))
}
