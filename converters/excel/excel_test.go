package excel

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/darianmavgo/geoio/converters"
	"github.com/darianmavgo/geoio/converters/common"
)

func newEngine(t *testing.T) *converters.SQLiteEngine {
	t.Helper()
	engine, err := converters.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func writeWorkbook(t *testing.T, path string, sheets map[string][][]any) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	first := true
	for _, name := range []string{"Sheet1", "Stock 2", "Empty"} {
		rows, ok := sheets[name]
		if !ok {
			continue
		}
		if first {
			if name != "Sheet1" {
				require.NoError(t, f.SetSheetName("Sheet1", name))
			}
			first = false
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for i, r := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			row := r
			require.NoError(t, f.SetSheetRow(name, cell, &row))
		}
	}
	require.NoError(t, f.SaveAs(path))
}

func scanAll(t *testing.T, engine common.TableEngine, table string) []common.Row {
	t.Helper()
	var rows []common.Row
	require.NoError(t, engine.Scan(context.Background(), table, func(r common.Row) error {
		rows = append(rows, append(common.Row(nil), r...))
		return nil
	}))
	return rows
}

func TestImportSheets(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(t)
	path := filepath.Join(t.TempDir(), "inventory.xlsx")
	writeWorkbook(t, path, map[string][][]any{
		"Sheet1":  {{"Name", "Qty"}, {"bolt", 4}, {"nut"}},
		"Stock 2": {{"Where"}, {"shelf"}},
		"Empty":   {},
	})

	require.NoError(t, New().ImportFile(ctx, engine, path, "inv", common.ImportOptions{}, nil))

	schema, err := engine.TableSchema(ctx, "inv")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "qty"}, schema.Names())
	assert.Equal(t, []common.Row{{"bolt", "4"}, {"nut", nil}}, scanAll(t, engine, "inv"))
	assert.Equal(t, []common.Row{{"shelf"}}, scanAll(t, engine, "inv_stock_2"))

	exists, err := engine.TableExists(ctx, "inv_empty")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestImportValueBeyondHeader(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(t)
	path := filepath.Join(t.TempDir(), "wide.xlsx")
	writeWorkbook(t, path, map[string][][]any{
		"Sheet1": {{"a"}, {"1"}, {"2", "stray"}},
	})

	err := New().ImportFile(ctx, engine, path, "wide", common.ImportOptions{}, nil)
	assert.ErrorIs(t, err, common.ErrFormat)
	exists, err := engine.TableExists(ctx, "wide")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestImportErrors(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(t)
	dir := t.TempDir()

	err := New().ImportFile(ctx, engine, filepath.Join(dir, "missing.xlsx"), "t", common.ImportOptions{}, nil)
	assert.ErrorIs(t, err, common.ErrIO)

	empty := filepath.Join(dir, "empty.xlsx")
	writeWorkbook(t, empty, map[string][][]any{"Sheet1": {}})
	err = New().ImportFile(ctx, engine, empty, "t", common.ImportOptions{}, nil)
	assert.ErrorIs(t, err, common.ErrFormat)
}

func TestExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(t)
	schema := common.Schema{
		{Name: "name", Type: common.TypeText},
		{Name: "qty", Type: common.TypeInteger},
		{Name: "price", Type: common.TypeDouble},
		{Name: "seen", Type: common.TypeDate},
	}
	require.NoError(t, engine.CreateTable(ctx, "parts", schema))
	require.NoError(t, engine.InsertBatch(ctx, "parts", schema, []common.Row{
		{"a", int64(3), 0.25, time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)},
		{"b", nil, nil, nil},
	}))

	d := New()
	out := filepath.Join(t.TempDir(), "parts.xlsx")
	require.NoError(t, d.ExportTable(ctx, engine, "parts", out, common.ExportOptions{}, nil))

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"parts"}, f.GetSheetList())
	for cell, want := range map[string]string{
		"A1": "name", "D1": "seen",
		"A2": "a", "B2": "3", "C2": "0.25", "D2": "2024-03-15",
		"A3": "b", "B3": "",
	} {
		got, err := f.GetCellValue("parts", cell)
		require.NoError(t, err)
		assert.Equal(t, want, got, cell)
	}

	err = d.ExportTable(ctx, engine, "parts", out, common.ExportOptions{}, nil)
	assert.ErrorIs(t, err, common.ErrIO)

	require.NoError(t, d.ImportFile(ctx, engine, out, "copy", common.ImportOptions{}, nil))
	assert.Equal(t, []common.Row{
		{"a", "3", "0.25", "2024-03-15"},
		{"b", nil, nil, nil},
	}, scanAll(t, engine, "copy"))
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "parts", sheetName("parts"))
	assert.Equal(t, "Sheet1", sheetName(""))
	assert.Len(t, sheetName("a_very_long_table_name_that_excel_rejects"), maxSheetName)
}
