// Package app drives one import run: load the datasets, pick the snapshot
// for the selected store and export it.
package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"filmetl/internal/dataset"
	"filmetl/internal/metrics"
	"filmetl/internal/storage"
)

// ExporterFactory builds the exporter of one store kind.
type ExporterFactory func(kind string) (storage.Exporter, error)

// Runner wires a dataset provider to exactly one exporter per run.
type Runner struct {
	Provider    dataset.Provider
	NewExporter ExporterFactory

	// Out receives the elapsed-time line. Nil discards it.
	Out io.Writer

	Verbose bool

	now func() time.Time
}

// Run provides the datasets once and exports the snapshot that belongs to
// mode: the previous one for relational stores, the current one for the
// document store.
func (r *Runner) Run(ctx context.Context, mode Mode) error {
	now := r.now
	if now == nil {
		now = time.Now
	}
	out := r.Out
	if out == nil {
		out = io.Discard
	}

	start := now()

	exp, err := r.NewExporter(string(mode))
	if err != nil {
		return fmt.Errorf("build %s exporter: %w", mode, err)
	}

	ds, err := r.Provider.Provide(ctx)
	metrics.RecordStep("provide", start, err)
	if err != nil {
		return fmt.Errorf("provide datasets: %w", err)
	}

	snap := ds.Current
	if mode.Relational() {
		snap = ds.Previous
	}
	if r.Verbose {
		log.Printf("app: mode=%s basics=%d ratings=%d dates=%d",
			mode, snap.Basics.Len(), snap.Ratings.Len(), snap.Dates.Len())
	}

	exportStart := now()
	err = exp.Export(ctx, snap)
	metrics.RecordStep("export_"+string(mode), exportStart, err)
	if err != nil {
		return fmt.Errorf("export %s: %w", mode, err)
	}

	fmt.Fprintf(out, "Time consumed by processing with import_data %.3f seconds\n", now().Sub(start).Seconds())
	return nil
}
