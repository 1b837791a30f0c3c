package converters

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darianmavgo/geoio/converters/common"
)

// mockSource replays fixed results.
type mockSource struct {
	defs    []common.TableDef
	results []common.Result
	pos     int
	failAt  int // index of the result that fails, -1 for none
	onRow   func(i int)
	closed  bool
}

var _ common.Source = (*mockSource)(nil)

func newMockSource(schema common.Schema, n int) *mockSource {
	m := &mockSource{defs: []common.TableDef{{Schema: schema}}, failAt: -1}
	for i := 0; i < n; i++ {
		m.results = append(m.results, common.Result{State: common.StateRow, Row: common.Row{int64(i), fmt.Sprintf("row%d", i)}})
	}
	return m
}

func (m *mockSource) Tables() []common.TableDef { return m.defs }

func (m *mockSource) Next() (common.Result, error) {
	if m.pos == m.failAt {
		return common.Result{}, common.FormatError("mock.read", "broken record %d", m.pos)
	}
	if m.pos >= len(m.results) {
		return common.Result{State: common.StateEnd}, nil
	}
	if m.onRow != nil {
		m.onRow(m.pos)
	}
	res := m.results[m.pos]
	m.pos++
	return res, nil
}

func (m *mockSource) Close() error {
	m.closed = true
	return nil
}

// cancelAfter reports cancellation from its n-th poll on.
type cancelAfter struct {
	n     int
	polls int
}

func (c *cancelAfter) IsCancelled() bool {
	c.polls++
	return c.polls >= c.n
}

func (c *cancelAfter) ProgressTo(float64) {}

var testSchema = common.Schema{
	{Name: "id", Type: common.TypeInteger},
	{Name: "label", Type: common.TypeText},
}

func newTestEngine(t *testing.T) *SQLiteEngine {
	t.Helper()
	engine, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func rowCount(t *testing.T, engine *SQLiteEngine, table string) int64 {
	t.Helper()
	n, err := engine.RowCount(context.Background(), table)
	require.NoError(t, err)
	return n
}

func tableExists(t *testing.T, engine *SQLiteEngine, table string) bool {
	t.Helper()
	ok, err := engine.TableExists(context.Background(), table)
	require.NoError(t, err)
	return ok
}

func TestImportBatchBoundaries(t *testing.T) {
	tests := []struct {
		rows    int
		batches int
	}{
		{99, 1},
		{100, 1},
		{101, 2},
		{0, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.rows), func(t *testing.T) {
			engine := newTestEngine(t)
			src := newMockSource(testSchema, tt.rows)
			stats, err := Import(context.Background(), engine, src, "t", common.ImportOptions{BatchSize: 100}, nil)
			require.NoError(t, err)
			assert.Equal(t, int64(tt.rows), rowCount(t, engine, "t"))
			assert.Equal(t, int64(tt.rows), stats.TotalRows())
			assert.Equal(t, tt.batches, stats.Batches)
			assert.Equal(t, []string{"t"}, stats.Tables)
			assert.True(t, src.closed)
		})
	}
}

func TestImportRowOrder(t *testing.T) {
	engine := newTestEngine(t)
	_, err := Import(context.Background(), engine, newMockSource(testSchema, 250), "t", common.ImportOptions{BatchSize: 7}, nil)
	require.NoError(t, err)

	var ids []int64
	require.NoError(t, engine.Scan(context.Background(), "t", func(r common.Row) error {
		ids = append(ids, r[0].(int64))
		return nil
	}))
	require.Len(t, ids, 250)
	for i, id := range ids {
		assert.Equal(t, int64(i), id)
	}
}

func TestImportCancelAfterBatches(t *testing.T) {
	engine := newTestEngine(t)
	src := newMockSource(testSchema, 500)
	_, err := Import(context.Background(), engine, src, "t", common.ImportOptions{BatchSize: 100}, &cancelAfter{n: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrCancelled)
	assert.Equal(t, int64(200), rowCount(t, engine, "t"))
	assert.True(t, src.closed)
}

func TestImportCancelPerRow(t *testing.T) {
	engine := newTestEngine(t)
	_, err := Import(context.Background(), engine, newMockSource(testSchema, 50), "t",
		common.ImportOptions{BatchSize: 100, CancelPerRow: true}, &cancelAfter{n: 10})
	assert.ErrorIs(t, err, common.ErrCancelled)
	// nothing was flushed, so the table created by this call is gone
	assert.False(t, tableExists(t, engine, "t"))
}

func TestImportContextCancel(t *testing.T) {
	engine := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := newMockSource(testSchema, 300)
	src.onRow = func(i int) {
		if i == 150 {
			cancel()
		}
	}
	_, err := Import(ctx, engine, src, "t", common.ImportOptions{BatchSize: 100}, common.ContextProgress(ctx))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrCancelled)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int64(100), rowCount(t, engine, "t"))
}

func TestImportSourceFailure(t *testing.T) {
	engine := newTestEngine(t)

	src := newMockSource(testSchema, 300)
	src.failAt = 250
	_, err := Import(context.Background(), engine, src, "late", common.ImportOptions{BatchSize: 100}, nil)
	assert.ErrorIs(t, err, common.ErrFormat)
	assert.Equal(t, int64(200), rowCount(t, engine, "late"))
	assert.True(t, src.closed)

	src = newMockSource(testSchema, 300)
	src.failAt = 50
	_, err = Import(context.Background(), engine, src, "early", common.ImportOptions{BatchSize: 100}, nil)
	assert.ErrorIs(t, err, common.ErrFormat)
	assert.False(t, tableExists(t, engine, "early"))
}

func TestImportExistingTable(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)
	_, err := Import(ctx, engine, newMockSource(testSchema, 10), "t", common.ImportOptions{}, nil)
	require.NoError(t, err)

	_, err = Import(ctx, engine, newMockSource(testSchema, 5), "T", common.ImportOptions{}, nil)
	assert.ErrorIs(t, err, common.ErrSchema)
	assert.Equal(t, int64(10), rowCount(t, engine, "t"))

	_, err = Import(ctx, engine, newMockSource(testSchema, 5), "t", common.ImportOptions{Append: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(15), rowCount(t, engine, "t"))

	wide := append(common.Schema{{Name: "extra", Type: common.TypeText}}, testSchema...)
	_, err = Import(ctx, engine, &mockSource{defs: []common.TableDef{{Schema: wide}}, failAt: -1}, "t", common.ImportOptions{Append: true}, nil)
	assert.ErrorIs(t, err, common.ErrSchema)

	_, err = Import(ctx, engine, newMockSource(testSchema, 3), "t", common.ImportOptions{DeleteExisting: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rowCount(t, engine, "t"))

	// a failed replacement still drops the old table
	src := newMockSource(testSchema, 3)
	src.failAt = 1
	_, err = Import(ctx, engine, src, "t", common.ImportOptions{DeleteExisting: true}, nil)
	assert.ErrorIs(t, err, common.ErrFormat)
	assert.False(t, tableExists(t, engine, "t"))
}

func TestImportSkipsDeletedRows(t *testing.T) {
	engine := newTestEngine(t)
	src := newMockSource(testSchema, 3)
	src.results = append(src.results[:1], append([]common.Result{{State: common.StateDeleted}}, src.results[1:]...)...)
	stats, err := Import(context.Background(), engine, src, "t", common.ImportOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalRows())
}

func TestImportArityMismatch(t *testing.T) {
	engine := newTestEngine(t)
	src := newMockSource(testSchema, 2)
	src.results[1].Row = common.Row{int64(1)}
	_, err := Import(context.Background(), engine, src, "t", common.ImportOptions{}, nil)
	assert.ErrorIs(t, err, common.ErrSchema)
	assert.False(t, tableExists(t, engine, "t"))
}

func TestImportMultipleTables(t *testing.T) {
	engine := newTestEngine(t)
	src := &mockSource{
		defs: []common.TableDef{
			{Suffix: "_a", Schema: testSchema},
			{Suffix: "_b", Schema: common.Schema{{Name: "v", Type: common.TypeDouble}}},
		},
		results: []common.Result{
			{Table: 1, Row: common.Row{1.5}},
			{Table: 0, Row: common.Row{int64(1), "x"}},
			{Table: 1, Row: common.Row{2.5}},
		},
		failAt: -1,
	}
	stats, err := Import(context.Background(), engine, src, "m", common.ImportOptions{BatchSize: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"m_a", "m_b"}, stats.Tables)
	assert.Equal(t, map[string]int64{"m_a": 1, "m_b": 2}, stats.Rows)

	tables, err := engine.Tables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"m_a", "m_b"}, tables)
}

func TestImportRejectsBadSchema(t *testing.T) {
	engine := newTestEngine(t)
	dup := common.Schema{{Name: "a"}, {Name: "A"}}
	src := &mockSource{defs: []common.TableDef{{Schema: dup}}, failAt: -1}
	_, err := Import(context.Background(), engine, src, "t", common.ImportOptions{}, nil)
	assert.ErrorIs(t, err, common.ErrSchema)
	assert.True(t, src.closed)

	_, err = Import(context.Background(), engine, &mockSource{failAt: -1}, "t", common.ImportOptions{}, nil)
	assert.ErrorIs(t, err, common.ErrSchema)
}

// sliceSink collects exported rows.
type sliceSink struct {
	rows   []common.Row
	closed bool
}

func (s *sliceSink) InsertRow(values common.Row) error {
	s.rows = append(s.rows, append(common.Row(nil), values...))
	return nil
}

func (s *sliceSink) Close() error {
	s.closed = true
	return nil
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)
	_, err := Import(ctx, engine, newMockSource(testSchema, 250), "t", common.ImportOptions{}, nil)
	require.NoError(t, err)

	sink := &sliceSink{}
	stats, err := Export(ctx, engine, "t", sink, common.ExportOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(250), stats.Rows)
	require.Len(t, sink.rows, 250)
	assert.Equal(t, common.Row{int64(249), "row249"}, sink.rows[249])
	assert.True(t, sink.closed)

	sink = &sliceSink{}
	_, err = Export(ctx, engine, "t", sink, common.ExportOptions{BatchSize: 100}, &cancelAfter{n: 1})
	assert.ErrorIs(t, err, common.ErrCancelled)
	assert.Len(t, sink.rows, 100)
	assert.True(t, sink.closed)

	sink = &sliceSink{}
	_, err = Export(ctx, engine, "missing", sink, common.ExportOptions{}, nil)
	assert.Error(t, err)
	assert.True(t, sink.closed)
}

func TestExportContextCancel(t *testing.T) {
	engine := newTestEngine(t)
	_, err := Import(context.Background(), engine, newMockSource(testSchema, 10), "t", common.ImportOptions{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &sliceSink{}
	_, err = Export(ctx, engine, "t", sink, common.ExportOptions{}, nil)
	assert.ErrorIs(t, err, common.ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	var e *common.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "export", e.Op)
	assert.True(t, sink.closed)
}
