// Package excel imports and exports xlsx workbooks. Every sheet becomes
// one table whose first row is the header.
package excel

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/darianmavgo/geoio/converters/common"
)

type sheet struct {
	name   string
	schema common.Schema
}

// Reader is a Source over the sheets of a workbook. The first sheet is
// written to the requested table; each later sheet to table_<sheet name>.
type Reader struct {
	path     string
	file     *excelize.File
	sheets   []sheet
	progress common.Progress

	cur  int
	rows *excelize.Rows
	line int
}

var _ common.Source = (*Reader)(nil)

// Open opens the workbook at path and reads the header row of every
// sheet. Sheets without a header row are skipped.
func Open(path string, progress common.Progress) (*Reader, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, common.IOError("xlsx.open", path, err)
		}
		return nil, common.FormatError("xlsx.open", "failed to open workbook: %v", err).WithPath(path)
	}
	e := &Reader{path: path, file: f, progress: common.NoProgress}
	if progress != nil {
		e.progress = progress
	}

	for _, name := range f.GetSheetList() {
		header, err := e.headerRow(name)
		if err != nil {
			f.Close()
			return nil, err
		}
		if len(header) == 0 {
			log.Printf("[DEBUG] %s: sheet %q has no header row, skipped", path, name)
			continue
		}
		names := common.GenColumnNames(header)
		schema := make(common.Schema, len(names))
		for i, n := range names {
			schema[i] = common.Field{Name: n, Type: common.TypeText}
		}
		e.sheets = append(e.sheets, sheet{name: name, schema: schema})
	}
	if len(e.sheets) == 0 {
		f.Close()
		return nil, common.FormatError("xlsx.open", "no sheet has a header row").WithPath(path)
	}
	return e, nil
}

func (e *Reader) headerRow(name string) ([]string, error) {
	rows, err := e.file.Rows(name)
	if err != nil {
		return nil, common.FormatError("xlsx.open", "failed to get rows iterator for sheet %s: %v", name, err).WithPath(e.path)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, nil
	}
	cols, err := rows.Columns()
	if err != nil {
		return nil, common.FormatError("xlsx.open", "failed to read header of sheet %s: %v", name, err).WithPath(e.path)
	}
	for len(cols) > 0 && cols[len(cols)-1] == "" {
		cols = cols[:len(cols)-1]
	}
	return cols, nil
}

func (e *Reader) Tables() []common.TableDef {
	defs := make([]common.TableDef, len(e.sheets))
	var later []string
	for _, s := range e.sheets[1:] {
		later = append(later, s.name)
	}
	suffixes := common.GenTableNames(later)
	for i, s := range e.sheets {
		defs[i].Schema = s.schema
		if i > 0 {
			defs[i].Suffix = "_" + suffixes[i-1]
		}
	}
	return defs
}

// Next returns the next data row. Empty cells are null; a value to the
// right of the last header column is a FormatError.
func (e *Reader) Next() (common.Result, error) {
	for e.cur < len(e.sheets) {
		if e.rows == nil {
			rows, err := e.file.Rows(e.sheets[e.cur].name)
			if err != nil {
				return common.Result{}, common.FormatError("xlsx.read", "%v", err).WithPath(e.path)
			}
			// skip the header
			rows.Next()
			e.rows, e.line = rows, 1
		}
		if !e.rows.Next() {
			err := e.rows.Error()
			e.rows.Close()
			e.rows = nil
			if err != nil {
				return common.Result{}, common.FormatError("xlsx.read", "%v", err).WithPath(e.path)
			}
			e.cur++
			e.progress.ProgressTo(float64(e.cur) / float64(len(e.sheets)))
			continue
		}
		e.line++
		cols, err := e.rows.Columns()
		if err != nil {
			return common.Result{}, common.FormatError("xlsx.read", "sheet %s row %d: %v", e.sheets[e.cur].name, e.line, err).WithPath(e.path)
		}
		s := e.sheets[e.cur]
		row := make(common.Row, len(s.schema))
		for i, v := range cols {
			if v == "" {
				continue
			}
			if i >= len(row) {
				return common.Result{}, common.FormatError("xlsx.read", "sheet %s row %d: value %q beyond the last header column",
					s.name, e.line, v).WithPath(e.path)
			}
			row[i] = v
		}
		return common.Result{State: common.StateRow, Table: e.cur, Row: row}, nil
	}
	return common.Result{State: common.StateEnd}, nil
}

func (e *Reader) Close() error {
	if e.file == nil {
		return nil
	}
	if e.rows != nil {
		e.rows.Close()
		e.rows = nil
	}
	err := e.file.Close()
	e.file = nil
	if err != nil {
		return fmt.Errorf("failed to close workbook: %w", err)
	}
	return nil
}
