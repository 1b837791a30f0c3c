package converters

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/darianmavgo/geoio/converters/common"
)

// ImportStats summarises one Import call.
type ImportStats struct {
	Session string
	Tables  []string
	Rows    map[string]int64 // flushed rows per table
	Batches int
	Elapsed time.Duration
}

// TotalRows returns the rows flushed across all tables.
func (s ImportStats) TotalRows() int64 {
	var n int64
	for _, r := range s.Rows {
		n += r
	}
	return n
}

// ExportStats summarises one Export call.
type ExportStats struct {
	Session string
	Table   string
	Rows    int64
	Elapsed time.Duration
}

type importTarget struct {
	name    string
	schema  common.Schema
	drop    bool // exists and DeleteExisting is set
	create  bool
	created bool
	pending []common.Row
	flushed int64
}

// Import streams src into engine. Every output table of src is written to
// table plus its suffix. Rows are committed every opts.Batch() rows per
// table; on failure or cancellation the committed batches remain, the
// pending rows are discarded, and tables this call created but never wrote
// to are dropped again. src is closed before Import returns.
func Import(ctx context.Context, engine common.TableEngine, src common.Source, table string, opts common.ImportOptions, progress common.Progress) (stats ImportStats, err error) {
	if progress == nil {
		progress = common.NoProgress
	}
	start := time.Now()
	stats = ImportStats{Session: uuid.NewString(), Rows: map[string]int64{}}
	tag := stats.Session[:8]

	defer func() {
		if cerr := src.Close(); cerr != nil {
			if err == nil {
				err = common.IOError("import.close", "", cerr)
			} else {
				log.Printf("[WARN] [%s] close source: %v", tag, cerr)
			}
		}
	}()

	targets, err := planImport(ctx, engine, src.Tables(), table, opts)
	if err != nil {
		return stats, wrapContext("import", err)
	}
	for _, t := range targets {
		stats.Tables = append(stats.Tables, t.name)
	}

	defer func() {
		if err == nil {
			return
		}
		// ctx may already be done; cleanup must still run
		cleanupCtx := context.WithoutCancel(ctx)
		for _, t := range targets {
			if t.created && t.flushed == 0 {
				if dropErr := engine.DropTable(cleanupCtx, t.name); dropErr != nil {
					log.Printf("[WARN] [%s] drop empty table %s: %v", tag, t.name, dropErr)
				} else {
					log.Printf("[DEBUG] [%s] dropped empty table %s", tag, t.name)
				}
			}
		}
	}()

	for _, t := range targets {
		if t.drop {
			if err := engine.DropTable(ctx, t.name); err != nil {
				return stats, wrapContext("import", err)
			}
		}
		if t.create {
			if err := engine.CreateTable(ctx, t.name, t.schema); err != nil {
				return stats, wrapContext("import", err)
			}
			t.created = true
			log.Printf("[DEBUG] [%s] created table %s with %d columns", tag, t.name, len(t.schema))
		}
	}

	batch := opts.Batch()
	flush := func(t *importTarget) error {
		if len(t.pending) == 0 {
			return nil
		}
		if err := engine.InsertBatch(ctx, t.name, t.schema, t.pending); err != nil {
			return err
		}
		t.flushed += int64(len(t.pending))
		stats.Rows[t.name] = t.flushed
		stats.Batches++
		t.pending = t.pending[:0]
		return nil
	}
	cancelled := func() error {
		return common.CancelledError("import", common.CancelCause(progress))
	}

	for {
		if opts.CancelPerRow && progress.IsCancelled() {
			return stats, cancelled()
		}
		res, err := src.Next()
		if err != nil {
			return stats, wrapContext("import", err)
		}
		if res.State == common.StateEnd {
			break
		}
		if res.State == common.StateDeleted {
			continue
		}
		if res.Table < 0 || res.Table >= len(targets) {
			return stats, fmt.Errorf("source produced a row for unknown table %d", res.Table)
		}
		t := targets[res.Table]
		if len(res.Row) != len(t.schema) {
			return stats, common.SchemaError("import", "table %s: got %d values for %d columns", t.name, len(res.Row), len(t.schema))
		}
		t.pending = append(t.pending, res.Row)
		if len(t.pending) >= batch {
			if err := flush(t); err != nil {
				return stats, wrapContext("import", err)
			}
			if progress.IsCancelled() {
				return stats, cancelled()
			}
		}
	}

	for _, t := range targets {
		if err := flush(t); err != nil {
			return stats, wrapContext("import", err)
		}
	}
	progress.ProgressTo(1)

	stats.Elapsed = time.Since(start)
	log.Printf("[INFO] [%s] imported %s rows into %d table(s) in %d batch(es), %s",
		tag, humanize.Comma(stats.TotalRows()), len(targets), stats.Batches, stats.Elapsed.Round(time.Millisecond))
	return stats, nil
}

// planImport checks every target before anything is created or dropped.
func planImport(ctx context.Context, engine common.TableEngine, defs []common.TableDef, table string, opts common.ImportOptions) ([]*importTarget, error) {
	if len(defs) == 0 {
		return nil, common.SchemaError("import", "source has no tables")
	}
	targets := make([]*importTarget, len(defs))
	for i, def := range defs {
		t := &importTarget{name: table + def.Suffix, schema: def.Schema}
		if err := t.schema.Validate(); err != nil {
			return nil, err
		}
		exists, err := engine.TableExists(ctx, t.name)
		if err != nil {
			return nil, err
		}
		switch {
		case !exists:
			t.create = true
		case opts.DeleteExisting:
			t.drop, t.create = true, true
		case opts.Append:
			have, err := engine.TableSchema(ctx, t.name)
			if err != nil {
				return nil, err
			}
			if len(have) != len(t.schema) {
				return nil, common.SchemaError("import", "cannot append to %s: table has %d columns, file has %d",
					t.name, len(have), len(t.schema))
			}
		default:
			return nil, common.SchemaError("import", "table %s already exists", t.name)
		}
		targets[i] = t
	}
	return targets, nil
}

var errStopExport = errors.New("export cancelled")

// Export scans table in rowid order into sink and closes it. Progress is
// reported and cancellation checked once per opts.Batch() rows. The sink
// is closed on every path; a partial output is left as written.
func Export(ctx context.Context, engine common.TableEngine, table string, sink common.Sink, opts common.ExportOptions, progress common.Progress) (stats ExportStats, err error) {
	if progress == nil {
		progress = common.NoProgress
	}
	start := time.Now()
	stats = ExportStats{Session: uuid.NewString(), Table: table}
	tag := stats.Session[:8]

	defer func() {
		if cerr := sink.Close(); cerr != nil {
			if err == nil {
				err = cerr
			} else {
				log.Printf("[WARN] [%s] close output: %v", tag, cerr)
			}
		}
	}()

	total, err := engine.RowCount(ctx, table)
	if err != nil {
		return stats, wrapContext("export", err)
	}
	batch := int64(opts.Batch())
	err = engine.Scan(ctx, table, func(row common.Row) error {
		if err := sink.InsertRow(row); err != nil {
			return err
		}
		stats.Rows++
		if stats.Rows%batch == 0 {
			if total > 0 {
				progress.ProgressTo(float64(stats.Rows) / float64(total))
			}
			if progress.IsCancelled() {
				return errStopExport
			}
		}
		return nil
	})
	if errors.Is(err, errStopExport) {
		return stats, common.CancelledError("export", common.CancelCause(progress))
	}
	if err != nil {
		return stats, wrapContext("export", err)
	}
	progress.ProgressTo(1)

	stats.Elapsed = time.Since(start)
	log.Printf("[INFO] [%s] exported %s rows from %s, %s",
		tag, humanize.Comma(stats.Rows), table, stats.Elapsed.Round(time.Millisecond))
	return stats, nil
}

// wrapContext turns a context cancellation surfacing from the engine into a
// CancelledError.
func wrapContext(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if common.KindOf(err) == common.KindCancelled {
			return err
		}
		return common.CancelledError(op, err)
	}
	return err
}
