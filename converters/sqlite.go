package converters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/darianmavgo/geoio/converters/common"

	_ "modernc.org/sqlite"
)

// SQLiteEngine is a TableEngine backed by a SQLite database file.
type SQLiteEngine struct {
	db   *sql.DB
	path string
}

var _ common.TableEngine = (*SQLiteEngine)(nil)

// OpenSQLite opens (or creates) the database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLite(path string) (*SQLiteEngine, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Limit to 1 connection to avoid locking issues and keep :memory: databases whole
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA page_size = 65536; PRAGMA cache_size = -2000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set PRAGMAs: %w", err)
	}
	return &SQLiteEngine{db: db, path: path}, nil
}

// NewSQLiteEngine wraps an already opened database.
func NewSQLiteEngine(db *sql.DB) *SQLiteEngine {
	return &SQLiteEngine{db: db}
}

// DB returns the underlying handle.
func (e *SQLiteEngine) DB() *sql.DB { return e.db }

func (e *SQLiteEngine) Close() error { return e.db.Close() }

// TableExists reports whether name exists, ignoring case.
func (e *SQLiteEngine) TableExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := e.db.QueryRowContext(ctx,
		"SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ? COLLATE NOCASE", name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to look up table %s: %w", name, err)
	}
	return n > 0, nil
}

func (e *SQLiteEngine) CreateTable(ctx context.Context, name string, schema common.Schema) error {
	if len(schema) == 0 {
		return common.SchemaError("create", "table %s has no columns", name)
	}
	if err := schema.Validate(); err != nil {
		return err
	}
	if _, err := e.db.ExecContext(ctx, common.GenCreateTableSQL(name, schema)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", name, err)
	}
	return nil
}

func (e *SQLiteEngine) DropTable(ctx context.Context, name string) error {
	if _, err := e.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+common.QuoteIdent(name)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", name, err)
	}
	return nil
}

// InsertBatch inserts rows inside one transaction. Either all rows land or
// none do.
func (e *SQLiteEngine) InsertBatch(ctx context.Context, name string, schema common.Schema, rows []common.Row) (err error) {
	insertSQL, err := common.GenInsertSQL(name, schema)
	if err != nil {
		return fmt.Errorf("failed to generate insert statement for table %s: %w", name, err)
	}
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				log.Printf("[WARN] rollback of %s failed: %v", name, rbErr)
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement for table %s: %w", name, err)
	}
	defer stmt.Close()

	args := make([]any, len(schema))
	for _, row := range rows {
		if len(row) != len(schema) {
			return common.SchemaError("insert", "table %s: got %d values for %d columns", name, len(row), len(schema))
		}
		for i, v := range row {
			args[i] = bindValue(schema[i], v)
		}
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert row in table %s: %w", name, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction for table %s: %w", name, err)
	}
	return nil
}

// Scan yields every row of name in rowid order, with values normalised to
// the column types.
func (e *SQLiteEngine) Scan(ctx context.Context, name string, yield func(common.Row) error) error {
	schema, err := e.TableSchema(ctx, name)
	if err != nil {
		return err
	}
	rows, err := e.db.QueryContext(ctx, common.GenSelectSQL(name, schema))
	if err != nil {
		return fmt.Errorf("failed to query table %s: %w", name, err)
	}
	defer rows.Close()

	raw := make([]any, len(schema))
	ptrs := make([]any, len(schema))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("failed to scan row of %s: %w", name, err)
		}
		row := make(common.Row, len(schema))
		for i, v := range raw {
			if row[i], err = normalizeValue(schema[i], v); err != nil {
				return fmt.Errorf("table %s column %s: %w", name, schema[i].Name, err)
			}
		}
		if err := yield(row); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read table %s: %w", name, err)
	}
	return nil
}

// TableSchema reads the declared columns of name.
func (e *SQLiteEngine) TableSchema(ctx context.Context, name string) (common.Schema, error) {
	rows, err := e.db.QueryContext(ctx, "PRAGMA table_info("+common.QuoteIdent(name)+")")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema of %s: %w", name, err)
	}
	defer rows.Close()

	var schema common.Schema
	for rows.Next() {
		var (
			cid     int
			col     string
			decl    string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &col, &decl, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to read schema of %s: %w", name, err)
		}
		schema = append(schema, common.ParseSQLType(col, decl))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read schema of %s: %w", name, err)
	}
	if len(schema) == 0 {
		return nil, common.SchemaError("schema", "table %s does not exist", name)
	}
	return schema, nil
}

func (e *SQLiteEngine) RowCount(ctx context.Context, name string) (int64, error) {
	var n int64
	if err := e.db.QueryRowContext(ctx, "SELECT count(*) FROM "+common.QuoteIdent(name)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows of %s: %w", name, err)
	}
	return n, nil
}

// Tables lists user tables in name order.
func (e *SQLiteEngine) Tables(ctx context.Context) ([]string, error) {
	rows, err := e.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to list tables: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func bindValue(f common.Field, v any) any {
	switch x := v.(type) {
	case time.Time:
		if f.Type == common.TypeDate {
			return x.Format(time.DateOnly)
		}
		return x.Format(time.RFC3339Nano)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

// normalizeValue maps what the driver hands back to the Go type of the
// column. DECIMAL and BOOLEAN columns have numeric affinity, so an integral
// double may come back as int64.
func normalizeValue(f common.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Type {
	case common.TypeInteger, common.TypeBigInt:
		switch x := v.(type) {
		case int64:
			return x, nil
		case float64:
			return int64(x), nil
		case string:
			return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		case []byte:
			return strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64)
		}
	case common.TypeDouble:
		switch x := v.(type) {
		case float64:
			return x, nil
		case int64:
			return float64(x), nil
		case string:
			return strconv.ParseFloat(strings.TrimSpace(x), 64)
		case []byte:
			return strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
		}
	case common.TypeBoolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		case float64:
			return x != 0, nil
		case string:
			return strconv.ParseBool(x)
		}
	case common.TypeDate:
		switch x := v.(type) {
		case time.Time:
			y, m, d := x.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		case string:
			return parseDate(x)
		case []byte:
			return parseDate(string(x))
		}
	case common.TypeGeometry:
		switch x := v.(type) {
		case []byte:
			return x, nil
		case string:
			return []byte(x), nil
		}
	default:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		case time.Time:
			return x.Format(time.RFC3339Nano), nil
		default:
			return fmt.Sprint(x), nil
		}
	}
	return nil, fmt.Errorf("unexpected %T for %s column", v, f.Type)
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 10 {
		if t, err := time.Parse(time.DateOnly, s[:10]); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
