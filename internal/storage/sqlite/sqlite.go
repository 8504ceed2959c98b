// Package sqlite registers the "sqlite" relational backend, a single database
// file handy for local runs.
package sqlite

import (
	"fmt"

	_ "modernc.org/sqlite"

	"filmetl/internal/storage"
	"filmetl/internal/storage/relational"
)

// Kind is the store name selected with -db sqlite.
const Kind = "sqlite"

// Dialect is the SQLite flavor of replace-on-write. SQLite has no BOOLEAN
// storage class; booleans are stored as 0/1 integers.
var Dialect = relational.Dialect{
	Name:        Kind,
	Driver:      "sqlite",
	QuoteIdent:  relational.QuoteDouble,
	Placeholder: relational.QuestionMark,
	Types: map[relational.ColumnKind]string{
		relational.KindText:  "TEXT",
		relational.KindInt:   "INTEGER",
		relational.KindFloat: "REAL",
		relational.KindBool:  "INTEGER",
	},
	TransactionalDDL: true,
	MaxParams:        32766,
}

func init() {
	storage.Register(Kind, New)
}

// New builds the SQLite exporter for SQLITE_PATH. The file is the whole
// database, so tables are not schema-qualified.
func New(opts storage.Options) (storage.Exporter, error) {
	cfg := opts.Config
	if cfg.SQLitePath == "" {
		return nil, fmt.Errorf("sqlite: SQLITE_PATH is empty")
	}
	return relational.NewExporter(Dialect, cfg.SQLitePath, "", cfg, opts.Writer()), nil
}
