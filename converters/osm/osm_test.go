package osm

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darianmavgo/geoio/converters"
	"github.com/darianmavgo/geoio/converters/common"
	"github.com/darianmavgo/geoio/converters/geom"
)

const sampleOSM = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="geoio">
  <bounds minlat="45" minlon="4" maxlat="46" maxlon="5"/>
  <node id="1" lat="45.5" lon="4.5" user="ann" uid="12" visible="true" version="2" changeset="99" timestamp="2024-01-02T03:04:05Z">
    <tag k="name" v="Fourvière"/>
    <tag k="ele" v="294.5"/>
  </node>
  <node id="2" lat="45.6" lon="4.6"/>
  <node id="3" lat="45.7" lon="4.7"><tag k="ele" v="high"/></node>
  <way id="10" user="bob" version="1">
    <nd ref="1"/><nd ref="2"/><nd ref="3"/>
    <tag k="highway" v="path"/>
    <tag k="name" v="Montée"/>
  </way>
  <relation id="100">
    <member type="way" ref="10" role="outer"/>
    <member type="node" ref="2" role=""/>
    <member type="relation" ref="101"/>
    <tag k="type" v="route"/>
  </relation>
</osm>
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

func rowsOf(results []common.Result, table int) []common.Row {
	var rows []common.Row
	for _, r := range results {
		if r.Table == table {
			rows = append(rows, r.Row)
		}
	}
	return rows
}

func TestParserNodes(t *testing.T) {
	results := parseAll(t, sampleOSM)
	nodes := rowsOf(results, tableNode)
	require.Len(t, nodes, 3)

	n := nodes[0]
	assert.Equal(t, int64(1), n[0])
	assert.Equal(t, 294.5, n[2])
	assert.Equal(t, "ann", n[3])
	assert.Equal(t, int64(12), n[4])
	assert.Equal(t, true, n[5])
	assert.Equal(t, int64(2), n[6])
	assert.Equal(t, int64(99), n[7])
	assert.Equal(t, "2024-01-02T03:04:05Z", n[8])
	assert.Equal(t, "Fourvière", n[9])

	g, err := geom.UnmarshalWKB(n[1].([]byte))
	require.NoError(t, err)
	assert.Equal(t, geom.Coord{X: 4.5, Y: 45.5}, g.Points[0])

	assert.Equal(t, common.Row{int64(2), nodes[1][1], nil, nil, nil, nil, nil, nil, nil, nil}, nodes[1])
	// an unparsable ele tag leaves ele null
	assert.Nil(t, nodes[2][2])

	assert.Equal(t, []common.Row{
		{int64(1), "name", "Fourvière"},
		{int64(1), "ele", "294.5"},
		{int64(3), "ele", "high"},
	}, rowsOf(results, tableNodeTag))
}

func TestParserWaysAndRelations(t *testing.T) {
	results := parseAll(t, sampleOSM)

	ways := rowsOf(results, tableWay)
	require.Len(t, ways, 1)
	assert.Equal(t, common.Row{int64(10), "bob", nil, nil, int64(1), nil, nil, "Montée"}, ways[0])
	assert.Equal(t, []common.Row{
		{int64(10), int64(1), int64(1)},
		{int64(10), int64(2), int64(2)},
		{int64(10), int64(3), int64(3)},
	}, rowsOf(results, tableWayNode))
	assert.Len(t, rowsOf(results, tableWayTag), 2)

	rels := rowsOf(results, tableRelation)
	require.Len(t, rels, 1)
	assert.Len(t, rels[0], 7)
	assert.Equal(t, []common.Row{{int64(100), int64(10), "outer", int64(1)}}, rowsOf(results, tableWayMember))
	assert.Equal(t, []common.Row{{int64(100), int64(2), "", int64(2)}}, rowsOf(results, tableNodeMember))
	assert.Equal(t, []common.Row{{int64(100), int64(101), nil, int64(3)}}, rowsOf(results, tableRelationMember))
	assert.Equal(t, []common.Row{{int64(100), "type", "route"}}, rowsOf(results, tableRelationTag))

	// the parent row precedes its children
	var order []int
	for _, r := range results {
		if r.Table >= tableWay && r.Table <= tableWayNode {
			order = append(order, r.Table)
		}
	}
	assert.Equal(t, tableWay, order[0])
}

func TestParserMemberOrderCountsUnknownTypes(t *testing.T) {
	results := parseAll(t, `<osm><relation id="7">
  <member type="node" ref="1" role="a"/>
  <member type="area" ref="2" role="b"/>
  <member type="way" ref="3" role="c"/>
</relation></osm>`)

	assert.Equal(t, []common.Row{{int64(7), int64(1), "a", int64(1)}}, rowsOf(results, tableNodeMember))
	assert.Equal(t, []common.Row{{int64(7), int64(3), "c", int64(3)}}, rowsOf(results, tableWayMember))
	assert.Empty(t, rowsOf(results, tableRelationMember))
}

func TestParserErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"NodeWithoutID", `<osm><node lat="1" lon="2"/></osm>`},
		{"NodeWithoutLat", `<osm><node id="1" lon="2"/></osm>`},
		{"BadLon", `<osm><node id="1" lat="1" lon="x"/></osm>`},
		{"WayWithoutID", `<osm><way/></osm>`},
		{"NdWithoutRef", `<osm><way id="1"><nd/></way></osm>`},
		{"MemberWithoutRef", `<osm><relation id="1"><member type="node"/></relation></osm>`},
		{"BadVersion", `<osm><way id="1" version="v2"/></osm>`},
		{"Mismatched", `<osm><node id="1" lat="1" lon="2"></way></osm>`},
		{"Unclosed", `<osm><way id="1">`},
		{"WrongRoot", `<gpx/>`},
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

func TestDriverImportCompressed(t *testing.T) {
	ctx := context.Background()
	engine, err := converters.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer engine.Close()

	path := filepath.Join(t.TempDir(), "lyon.osm.zst")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw, err := zstd.NewWriter(f)
	require.NoError(t, err)
	_, err = zw.Write([]byte(sampleOSM))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	d := New()
	require.NoError(t, d.ImportFile(ctx, engine, path, "lyon", common.ImportOptions{BatchSize: 2}, nil))

	counts := map[string]int64{
		"lyon_node": 3, "lyon_node_tag": 3, "lyon_way": 1, "lyon_way_tag": 2, "lyon_way_node": 3,
		"lyon_relation": 1, "lyon_relation_tag": 1,
		"lyon_node_member": 1, "lyon_way_member": 1, "lyon_relation_member": 1,
	}
	for table, want := range counts {
		n, err := engine.RowCount(ctx, table)
		require.NoError(t, err, table)
		assert.Equal(t, want, n, table)
	}

	var names []any
	require.NoError(t, engine.Scan(ctx, "lyon_node", func(r common.Row) error {
		names = append(names, r[9])
		return nil
	}))
	assert.Equal(t, []any{"Fourvière", nil, nil}, names)

	err = d.ImportFile(ctx, engine, path, "lyon", common.ImportOptions{}, nil)
	assert.ErrorIs(t, err, common.ErrSchema)
	require.NoError(t, d.ImportFile(ctx, engine, path, "lyon", common.ImportOptions{DeleteExisting: true}, nil))

	assert.ErrorIs(t, d.ExportTable(ctx, engine, "lyon_node", "out.osm", common.ExportOptions{}, nil), common.ErrFormat)
}
