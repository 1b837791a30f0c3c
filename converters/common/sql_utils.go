package common

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	TBPRE = "tb"
	CLPRE = "cl"
)

var (
	space   = regexp.MustCompile(`\s+`)
	reg     = regexp.MustCompile(`[^a-zA-Z0-9 _]+`)
	sqlDecl = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9_ ]*?)\s*(?:\(\s*([^)]*)\))?\s*$`)
)

/*
GenCompliantNames generates names that are safe as SQL identifiers.

Names are trimmed, stripped of disallowed characters, snake cased and lower
cased. If that leaves nothing usable the name becomes {prefix}{idx}; a
leading digit gets the same prefix. Collisions get a numeric suffix.
*/
func GenCompliantNames(rawnames []string, prefix string) []string {
	gorgeous := make([]string, len(rawnames))

	counter := map[string]int{}
	for idx, item := range rawnames {
		item = strings.TrimSpace(item)
		item = reg.ReplaceAllString(item, "")
		item = space.ReplaceAllString(item, "_")
		item = strings.ToLower(item)

		if len(item) == 0 {
			item = fmt.Sprintf("%s%d", prefix, idx)
		} else if item[0] >= '0' && item[0] <= '9' {
			item = fmt.Sprintf("%s%d%s", prefix, idx, item)
		}

		counter[item]++
		if counter[item] == 1 {
			gorgeous[idx] = item
		} else {
			gorgeous[idx] = fmt.Sprintf("%s%d", item, counter[item])
		}
	}
	return gorgeous
}

// GenColumnNames generates sanitized SQL column names from raw headers
// if columns are complete junk it will return cl0, cl1, cl2, etc.
func GenColumnNames(rawheaders []string) []string {
	return GenCompliantNames(rawheaders, CLPRE)
}

// GenTableNames generates sanitized SQL table names from raw table names.
// if table names are complete junk it will return tb0, tb1, tb2, etc.
func GenTableNames(rawtables []string) []string {
	return GenCompliantNames(rawtables, TBPRE)
}

// QuoteIdent double-quotes an SQL identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// SQLType renders the declared column type of f.
func SQLType(f Field) string {
	switch f.Type {
	case TypeInteger:
		return "INTEGER"
	case TypeBigInt:
		return "BIGINT"
	case TypeDouble:
		if f.Length > 0 {
			return fmt.Sprintf("DECIMAL(%d,%d)", f.Length, f.Decimals)
		}
		return "DOUBLE"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeDate:
		return "DATE"
	case TypeGeometry:
		// SQLite type names only take numeric arguments, so the kind is a
		// second word: GEOMETRY POINT(4326).
		decl := "GEOMETRY"
		if f.GeometryKind != "" {
			decl += " " + f.GeometryKind
		}
		if f.SRID > 0 {
			decl += fmt.Sprintf("(%d)", f.SRID)
		}
		return decl
	default:
		if f.Length > 0 {
			return fmt.Sprintf("VARCHAR(%d)", f.Length)
		}
		return "TEXT"
	}
}

// ParseSQLType maps a declared column type back to a Field. Unknown
// declarations are text.
func ParseSQLType(name, decl string) Field {
	f := Field{Name: name, Type: TypeText}
	m := sqlDecl.FindStringSubmatch(decl)
	if m == nil {
		return f
	}
	base := strings.ToUpper(strings.TrimSpace(m[1]))
	var args []string
	if m[2] != "" {
		for _, a := range strings.Split(m[2], ",") {
			args = append(args, strings.TrimSpace(a))
		}
	}
	atoi := func(i int) int {
		if i >= len(args) {
			return 0
		}
		n, _ := strconv.Atoi(args[i])
		return n
	}

	if strings.HasPrefix(base, "GEOMETRY") {
		f.Type = TypeGeometry
		f.GeometryKind = strings.TrimSpace(strings.TrimPrefix(base, "GEOMETRY"))
		f.SRID = atoi(0)
		return f
	}

	switch base {
	case "INT", "INTEGER", "INT4", "MEDIUMINT", "SMALLINT", "INT2", "TINYINT":
		f.Type = TypeInteger
	case "BIGINT", "INT8":
		f.Type = TypeBigInt
	case "DOUBLE", "DOUBLE PRECISION", "FLOAT", "FLOAT8", "FLOAT4", "REAL", "NUMERIC", "DECIMAL":
		f.Type = TypeDouble
		f.Length, f.Decimals = atoi(0), atoi(1)
	case "BOOLEAN", "BOOL":
		f.Type = TypeBoolean
	case "DATE":
		f.Type = TypeDate
	case "VARCHAR", "CHAR", "CHARACTER", "CHARACTER VARYING", "NVARCHAR", "NCHAR":
		f.Length = atoi(0)
	}
	return f
}

// GenCreateTableSQL generates a CREATE TABLE statement for schema.
func GenCreateTableSQL(tableName string, schema Schema) string {
	var builder strings.Builder
	builder.Grow(len(tableName) + len(schema)*24)

	builder.WriteString("CREATE TABLE ")
	builder.WriteString(QuoteIdent(tableName))
	builder.WriteString(" (")
	for i, f := range schema {
		if i > 0 {
			builder.WriteString(", ")
		}
		builder.WriteString(QuoteIdent(f.Name))
		builder.WriteByte(' ')
		builder.WriteString(SQLType(f))
	}
	builder.WriteByte(')')
	return builder.String()
}

// GenInsertSQL generates a prepared INSERT for every column of schema.
func GenInsertSQL(tableName string, schema Schema) (string, error) {
	if tableName == "" || len(schema) == 0 {
		return "", fmt.Errorf("table name and fields are required")
	}
	cols := make([]string, len(schema))
	for i, f := range schema {
		cols[i] = QuoteIdent(f.Name)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		QuoteIdent(tableName),
		strings.Join(cols, ", "),
		strings.Repeat("?, ", len(schema)-1)+"?",
	), nil
}

// GenSelectSQL generates a SELECT of every column of schema in rowid order.
func GenSelectSQL(tableName string, schema Schema) string {
	cols := make([]string, len(schema))
	for i, f := range schema {
		cols[i] = QuoteIdent(f.Name)
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", strings.Join(cols, ", "), QuoteIdent(tableName))
}
