// Package mssql registers the "mssql" relational backend (SQL Server).
package mssql

import (
	"fmt"
	"strconv"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"filmetl/internal/storage"
	"filmetl/internal/storage/relational"
)

// Kind is the store name selected with -db mssql.
const Kind = "mssql"

// Dialect is the SQL Server flavor of replace-on-write. SQL Server allows 2100
// parameters per request and 1000 rows per VALUES list.
var Dialect = relational.Dialect{
	Name:        Kind,
	Driver:      "sqlserver",
	QuoteIdent:  relational.QuoteBracket,
	Placeholder: func(i int) string { return "@p" + strconv.Itoa(i) },
	Types: map[relational.ColumnKind]string{
		relational.KindText:  "NVARCHAR(MAX)",
		relational.KindInt:   "BIGINT",
		relational.KindFloat: "FLOAT",
		relational.KindBool:  "BIT",
	},
	TransactionalDDL: true,
	MaxParams:        2000,
	MaxRows:          1000,
	EnsureSchema:     ensureSchemaSQL,
}

func ensureSchemaSQL(schema string) string {
	lit := strings.ReplaceAll(schema, "'", "''")
	inner := strings.ReplaceAll("CREATE SCHEMA "+relational.QuoteBracket(schema), "'", "''")
	return fmt.Sprintf("IF SCHEMA_ID(N'%s') IS NULL EXEC(N'%s')", lit, inner)
}

func init() {
	storage.Register(Kind, New)
}

// New builds the SQL Server exporter from MSSQL_DSN. Tables live in the
// DATABASE schema, created on first use.
func New(opts storage.Options) (storage.Exporter, error) {
	cfg := opts.Config
	if cfg.MSSQLDSN == "" {
		return nil, fmt.Errorf("mssql: MSSQL_DSN is not set")
	}
	return relational.NewExporter(Dialect, cfg.MSSQLDSN, cfg.Database, cfg, opts.Writer()), nil
}
