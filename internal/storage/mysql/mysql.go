// Package mysql registers the "mysql" relational backend.
package mysql

import (
	_ "github.com/go-sql-driver/mysql"

	"filmetl/internal/storage"
	"filmetl/internal/storage/relational"
)

// Kind is the store name selected with -db mysql.
const Kind = "mysql"

// Dialect is the MySQL flavor of replace-on-write.
//
// MySQL commits implicitly around DDL, so DROP/CREATE run outside the insert
// transaction.
var Dialect = relational.Dialect{
	Name:        Kind,
	Driver:      "mysql",
	QuoteIdent:  relational.QuoteBacktick,
	Placeholder: relational.QuestionMark,
	Types: map[relational.ColumnKind]string{
		relational.KindText:  "TEXT",
		relational.KindInt:   "BIGINT",
		relational.KindFloat: "DOUBLE",
		relational.KindBool:  "BOOLEAN",
	},
	TransactionalDDL: false,
	MaxParams:        65535,
}

func init() {
	storage.Register(Kind, New)
}

// New builds the MySQL exporter. Tables live in the DATABASE schema.
func New(opts storage.Options) (storage.Exporter, error) {
	cfg := opts.Config
	return relational.NewExporter(Dialect, cfg.MySQLDSN(), cfg.Database, cfg, opts.Writer()), nil
}
