// Package dataset holds the tabular film datasets moved by an import run and
// the providers that load them.
package dataset

import "fmt"

// Logical dataset names. They double as document collection names.
const (
	Basics  = "basics"
	Ratings = "ratings"
	Dates   = "dates"
)

// Table is a uniformly shaped tabular dataset.
//
// Every row has len(Columns) cells. Cell values are nil, string, int64,
// float64 or bool.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Rows) }

// Validate checks that every row matches the column count and that column
// names are unique and non-empty.
func (t Table) Validate() error {
	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		if c == "" {
			return fmt.Errorf("dataset %s: empty column name", t.Name)
		}
		if _, dup := seen[c]; dup {
			return fmt.Errorf("dataset %s: duplicate column %q", t.Name, c)
		}
		seen[c] = struct{}{}
	}
	for i, r := range t.Rows {
		if len(r) != len(t.Columns) {
			return fmt.Errorf("dataset %s: row %d has %d cells, want %d", t.Name, i+1, len(r), len(t.Columns))
		}
	}
	return nil
}

// Field is one key/value pair of a record, kept in column order.
type Field struct {
	Key   string
	Value any
}

// Records converts every row to an ordered record (column -> value).
// Null cells are kept as explicit nil values.
func (t Table) Records() [][]Field {
	out := make([][]Field, 0, len(t.Rows))
	for _, r := range t.Rows {
		rec := make([]Field, len(t.Columns))
		for i, c := range t.Columns {
			rec[i] = Field{Key: c, Value: r[i]}
		}
		out = append(out, rec)
	}
	return out
}

// Snapshot is one temporal pull of the three film datasets. Exporters only
// ever receive a whole Snapshot, so basics, ratings and dates always come
// from the same pull.
type Snapshot struct {
	Basics  Table
	Ratings Table
	Dates   Table
}

// Tables returns the datasets in export order: basics, ratings, dates.
func (s Snapshot) Tables() []Table {
	return []Table{s.Basics, s.Ratings, s.Dates}
}

// Rows returns the total number of rows across the three datasets.
func (s Snapshot) Rows() int {
	return s.Basics.Len() + s.Ratings.Len() + s.Dates.Len()
}

// Datasets is the provider output: the previously imported snapshot and the
// current one.
type Datasets struct {
	Previous Snapshot
	Current  Snapshot
}
