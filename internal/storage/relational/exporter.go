package relational

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"

	"filmetl/internal/config"
	"filmetl/internal/dataset"
	"filmetl/internal/metrics"
	"filmetl/internal/storage"
)

// OpenFunc opens a ready-to-use database handle.
type OpenFunc func(ctx context.Context) (*sql.DB, error)

// Exporter replaces three tables with the rows of a snapshot.
type Exporter struct {
	Dialect   Dialect
	Schema    string
	Tables    config.Tables
	BatchSize int
	Out       io.Writer

	Open OpenFunc
}

// NewExporter wires an Exporter for dialect from the resolved configuration.
// schema may differ from cfg.Database (SQLite has none).
func NewExporter(d Dialect, dsn, schema string, cfg *config.Config, out io.Writer) *Exporter {
	return &Exporter{
		Dialect:   d,
		Schema:    schema,
		Tables:    cfg.Tables,
		BatchSize: cfg.InsertBatchSize,
		Out:       out,
		Open:      SQLOpener(d.Driver, dsn),
	}
}

// SQLOpener returns an OpenFunc that opens driver/dsn and pings it.
func SQLOpener(driver, dsn string) OpenFunc {
	return func(ctx context.Context) (*sql.DB, error) {
		db, err := sql.Open(driver, dsn)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(1)
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}
}

// Export implements storage.Exporter. Tables are replaced in order basics,
// ratings, dates; a failure stops the export and leaves earlier tables
// replaced.
func (e *Exporter) Export(ctx context.Context, snap dataset.Snapshot) error {
	out := e.Out
	if out == nil {
		out = io.Discard
	}
	fmt.Fprintf(out, "Processing %s data...\n", e.Dialect.Name)

	db, err := e.Open(ctx)
	if err != nil {
		return &storage.ConnectionError{Store: e.Dialect.Name, Err: err}
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("%s: close: %v", e.Dialect.Name, err)
		}
	}()

	if e.Dialect.EnsureSchema != nil && e.Schema != "" {
		if stmt := e.Dialect.EnsureSchema(e.Schema); stmt != "" {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return &storage.WriteError{Store: e.Dialect.Name, Target: e.Schema, Err: fmt.Errorf("ensure schema: %w", err)}
			}
		}
	}

	targets := []struct {
		table string
		data  dataset.Table
	}{
		{e.Tables.Basics, snap.Basics},
		{e.Tables.Ratings, snap.Ratings},
		{e.Tables.Dates, snap.Dates},
	}
	for _, tg := range targets {
		qualified := e.Dialect.QualifiedName(e.Schema, tg.table)
		n, err := e.replace(ctx, db, qualified, tg.data)
		if err != nil {
			return &storage.WriteError{Store: e.Dialect.Name, Target: qualified, Err: err}
		}
		metrics.RecordRows(tg.data.Name, int(n))
	}

	fmt.Fprintln(out, "Tables inserted")
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// replace drops and recreates qualified and loads t into it. The inserts run
// in one transaction; DROP/CREATE join it when the dialect allows.
func (e *Exporter) replace(ctx context.Context, db *sql.DB, qualified string, t dataset.Table) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	kinds := InferKinds(t)
	createSQL, err := e.Dialect.CreateTableSQL(qualified, t, kinds)
	if err != nil {
		return 0, err
	}

	ddl := func(x execer) error {
		if _, err := x.ExecContext(ctx, e.Dialect.DropTableSQL(qualified)); err != nil {
			return fmt.Errorf("drop: %w", err)
		}
		if _, err := x.ExecContext(ctx, createSQL); err != nil {
			return fmt.Errorf("create: %w", err)
		}
		return nil
	}

	if !e.Dialect.TransactionalDDL {
		if err := ddl(db); err != nil {
			return 0, err
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if e.Dialect.TransactionalDDL {
		if err := ddl(tx); err != nil {
			return 0, err
		}
	}

	n, err := e.insertAll(ctx, tx, qualified, t.Columns, NormalizeRows(t.Rows, kinds))
	if err != nil {
		return n, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

func (e *Exporter) insertAll(ctx context.Context, x execer, qualified string, columns []string, rows [][]any) (int64, error) {
	per := e.Dialect.RowsPerStatement(e.BatchSize, len(columns))

	var total int64
	for start := 0; start < len(rows); start += per {
		end := min(start+per, len(rows))
		q, args := e.Dialect.InsertSQL(qualified, columns, rows[start:end])
		if _, err := x.ExecContext(ctx, q, args...); err != nil {
			return total, fmt.Errorf("insert rows %d-%d: %w", start+1, end, err)
		}
		total += int64(end - start)
		metrics.IncCounter(metrics.BatchesTotal, 1, nil)
	}
	return total, nil
}
