// Package postgres registers the "postgres" relational backend. It shares the
// DDL of internal/storage/relational but loads rows with COPY through pgx.
package postgres

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"filmetl/internal/config"
	"filmetl/internal/dataset"
	"filmetl/internal/metrics"
	"filmetl/internal/storage"
	"filmetl/internal/storage/relational"
)

// Kind is the store name selected with -db postgres.
const Kind = "postgres"

// Dialect is used for DDL only; rows go through CopyFrom.
var Dialect = relational.Dialect{
	Name:        Kind,
	Driver:      "pgx",
	QuoteIdent:  relational.QuoteDouble,
	Placeholder: func(i int) string { return "$" + strconv.Itoa(i) },
	Types: map[relational.ColumnKind]string{
		relational.KindText:  "TEXT",
		relational.KindInt:   "BIGINT",
		relational.KindFloat: "DOUBLE PRECISION",
		relational.KindBool:  "BOOLEAN",
	},
	TransactionalDDL: true,
	EnsureSchema: func(schema string) string {
		return "CREATE SCHEMA IF NOT EXISTS " + relational.QuoteDouble(schema)
	},
}

func init() {
	storage.Register(Kind, New)
}

// Exporter replaces the three tables inside one transaction each, using
// DROP + CREATE + COPY.
type Exporter struct {
	DSN    string
	Schema string
	Tables config.Tables
	Out    io.Writer

	connect func(ctx context.Context, dsn string) (*pgxpool.Pool, error)
}

// New builds the Postgres exporter from POSTGRES_DSN; tables live in the
// DATABASE schema.
func New(opts storage.Options) (storage.Exporter, error) {
	cfg := opts.Config
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres: POSTGRES_DSN is not set")
	}
	return &Exporter{
		DSN:     cfg.PostgresDSN,
		Schema:  cfg.Database,
		Tables:  cfg.Tables,
		Out:     opts.Writer(),
		connect: connectPool,
	}, nil
}

func connectPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pcfg.MaxConns = 1
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Export implements storage.Exporter.
func (e *Exporter) Export(ctx context.Context, snap dataset.Snapshot) error {
	out := e.Out
	if out == nil {
		out = io.Discard
	}
	fmt.Fprintf(out, "Processing %s data...\n", Kind)

	pool, err := e.connect(ctx, e.DSN)
	if err != nil {
		return &storage.ConnectionError{Store: Kind, Err: err}
	}
	defer pool.Close()

	if e.Schema != "" {
		if _, err := pool.Exec(ctx, Dialect.EnsureSchema(e.Schema)); err != nil {
			return &storage.WriteError{Store: Kind, Target: e.Schema, Err: fmt.Errorf("ensure schema: %w", err)}
		}
	}

	for _, tg := range []struct {
		table string
		data  dataset.Table
	}{
		{e.Tables.Basics, snap.Basics},
		{e.Tables.Ratings, snap.Ratings},
		{e.Tables.Dates, snap.Dates},
	} {
		n, err := e.replace(ctx, pool, tg.table, tg.data)
		if err != nil {
			return &storage.WriteError{Store: Kind, Target: Dialect.QualifiedName(e.Schema, tg.table), Err: err}
		}
		metrics.RecordRows(tg.data.Name, int(n))
	}

	fmt.Fprintln(out, "Tables inserted")
	return nil
}

func (e *Exporter) replace(ctx context.Context, pool *pgxpool.Pool, table string, t dataset.Table) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	qualified := Dialect.QualifiedName(e.Schema, table)
	kinds := relational.InferKinds(t)
	createSQL, err := Dialect.CreateTableSQL(qualified, t, kinds)
	if err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, Dialect.DropTableSQL(qualified)); err != nil {
		return 0, fmt.Errorf("drop: %w", err)
	}
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, fmt.Errorf("create: %w", err)
	}

	n, err := tx.CopyFrom(ctx, copyTarget(e.Schema, table), t.Columns, pgx.CopyFromRows(relational.NormalizeRows(t.Rows, kinds)))
	if err != nil {
		return 0, fmt.Errorf("copy: %w", err)
	}
	metrics.IncCounter(metrics.BatchesTotal, 1, nil)

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

func copyTarget(schema, table string) pgx.Identifier {
	if schema == "" {
		return pgx.Identifier{table}
	}
	return pgx.Identifier{schema, table}
}
