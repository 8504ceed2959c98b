// Package relational implements replace-on-write export of a snapshot into a
// SQL database through database/sql. Backend packages (mysql, sqlite, mssql)
// only supply a Dialect and a DSN; postgres reuses the DDL builders with its
// own COPY-based loader.
package relational

import (
	"fmt"
	"strings"

	"filmetl/internal/dataset"
)

// ColumnKind is the inferred SQL type family of a dataset column.
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindInt
	KindFloat
	KindBool
)

// Dialect captures the SQL differences between backends.
type Dialect struct {
	// Name is the store name used in messages and errors ("mysql").
	Name string

	// Driver is the database/sql driver name.
	Driver string

	QuoteIdent func(string) string

	// Placeholder returns the bind marker for the i-th (1-based) argument.
	Placeholder func(i int) string

	// Types maps column kinds to SQL column types.
	Types map[ColumnKind]string

	// TransactionalDDL is true when DROP/CREATE can run inside the same
	// transaction as the inserts.
	TransactionalDDL bool

	// MaxParams caps bind parameters per statement; MaxRows caps rows per
	// VALUES list. Zero means unlimited.
	MaxParams int
	MaxRows   int

	// EnsureSchema returns the statement creating schema if missing, or ""
	// when the backend needs none.
	EnsureSchema func(schema string) string
}

// QualifiedName returns the quoted schema.table, or the quoted table when
// schema is empty.
func (d Dialect) QualifiedName(schema, table string) string {
	if schema == "" {
		return d.QuoteIdent(table)
	}
	return d.QuoteIdent(schema) + "." + d.QuoteIdent(table)
}

// QuoteBacktick quotes MySQL identifiers.
func QuoteBacktick(id string) string {
	return "`" + strings.ReplaceAll(id, "`", "``") + "`"
}

// QuoteDouble quotes ANSI identifiers (SQLite, Postgres).
func QuoteDouble(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// QuoteBracket quotes SQL Server identifiers.
func QuoteBracket(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

// QuestionMark is the positional placeholder of MySQL and SQLite.
func QuestionMark(int) string { return "?" }

// InferKinds derives the column kind of every column from its cell values.
// Integers mixed with floats widen to float; any other mix, and all-null
// columns, are text.
func InferKinds(t dataset.Table) []ColumnKind {
	kinds := make([]ColumnKind, len(t.Columns))
	for c := range t.Columns {
		kinds[c] = inferColumn(t.Rows, c)
	}
	return kinds
}

func inferColumn(rows [][]any, col int) ColumnKind {
	seen := false
	kind := KindText
	for _, r := range rows {
		var k ColumnKind
		switch r[col].(type) {
		case nil:
			continue
		case int64, int, int32:
			k = KindInt
		case float64, float32:
			k = KindFloat
		case bool:
			k = KindBool
		default:
			return KindText
		}
		switch {
		case !seen:
			kind, seen = k, true
		case kind == k:
		case (kind == KindInt && k == KindFloat) || (kind == KindFloat && k == KindInt):
			kind = KindFloat
		default:
			return KindText
		}
	}
	return kind
}

// NormalizeRows returns rows whose cells match kinds: ints in float columns
// become float64 and non-string values in text columns are formatted.
func NormalizeRows(rows [][]any, kinds []ColumnKind) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		nr := make([]any, len(r))
		for c, v := range r {
			nr[c] = normalizeCell(v, kinds[c])
		}
		out[i] = nr
	}
	return out
}

func normalizeCell(v any, kind ColumnKind) any {
	if v == nil {
		return nil
	}
	switch kind {
	case KindFloat:
		switch n := v.(type) {
		case int64:
			return float64(n)
		case int:
			return float64(n)
		case int32:
			return float64(n)
		case float32:
			return float64(n)
		}
	case KindInt:
		switch n := v.(type) {
		case int:
			return int64(n)
		case int32:
			return int64(n)
		}
	case KindText:
		if _, ok := v.(string); !ok {
			return fmt.Sprint(v)
		}
	}
	return v
}

// DropTableSQL returns the DROP statement of a qualified table.
func (d Dialect) DropTableSQL(qualified string) string {
	return "DROP TABLE IF EXISTS " + qualified
}

// CreateTableSQL returns the CREATE statement for t under qualified, one
// column per dataset column and no extra index column.
func (d Dialect) CreateTableSQL(qualified string, t dataset.Table, kinds []ColumnKind) (string, error) {
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("dataset %s has no columns", t.Name)
	}
	parts := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		typ, ok := d.Types[kinds[i]]
		if !ok {
			return "", fmt.Errorf("%s: no column type for kind %d", d.Name, kinds[i])
		}
		parts[i] = d.QuoteIdent(c) + " " + typ
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", qualified, strings.Join(parts, ",\n  ")), nil
}

// RowsPerStatement returns how many rows fit into one INSERT given the
// configured batch size and the dialect's parameter and row limits.
func (d Dialect) RowsPerStatement(batchSize, columns int) int {
	n := batchSize
	if n <= 0 {
		n = 1000
	}
	if d.MaxParams > 0 && columns > 0 {
		if byParams := d.MaxParams / columns; byParams < n {
			n = byParams
		}
	}
	if d.MaxRows > 0 && d.MaxRows < n {
		n = d.MaxRows
	}
	if n < 1 {
		n = 1
	}
	return n
}

// InsertSQL builds a multi-row INSERT for rows and returns the flattened
// arguments.
func (d Dialect) InsertSQL(qualified string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(qualified)
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.QuoteIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	n := 0
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			n++
			b.WriteString(d.Placeholder(n))
		}
		b.WriteByte(')')
		args = append(args, row...)
	}
	return b.String(), args
}
