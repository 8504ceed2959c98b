// Package mongo registers the "mongodb" document backend. Every row becomes a
// document appended to the basics, ratings and dates collections.
package mongo

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"filmetl/internal/config"
	"filmetl/internal/dataset"
	"filmetl/internal/metrics"
	"filmetl/internal/storage"
)

// Kind is the store name selected with -db mongodb.
const Kind = "mongodb"

const disconnectTimeout = 5 * time.Second

func init() {
	storage.Register(Kind, New)
}

// Exporter appends a snapshot to the document store. Running it twice on the
// same data doubles the documents.
type Exporter struct {
	Config *config.Config
	Out    io.Writer

	// connect is a test seam; nil means NewClient.
	connect func(ctx context.Context, cfg *config.Config) (*Client, error)
}

// New builds the MongoDB exporter.
func New(opts storage.Options) (storage.Exporter, error) {
	return &Exporter{Config: opts.Config, Out: opts.Writer()}, nil
}

// Export implements storage.Exporter. A connection or authentication failure
// is returned before anything is written.
func (e *Exporter) Export(ctx context.Context, snap dataset.Snapshot) error {
	out := e.Out
	if out == nil {
		out = io.Discard
	}
	fmt.Fprintf(out, "Processing %s data...\n", Kind)

	connect := e.connect
	if connect == nil {
		connect = NewClient
	}
	cl, err := connect(ctx, e.Config)
	if err != nil {
		log.Printf("mongodb: connect %s: %v", e.Config.MongoHost(), err)
		return &storage.ConnectionError{Store: Kind, Err: err}
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		if err := cl.Close(dctx); err != nil {
			log.Printf("mongodb: disconnect: %v", err)
		}
	}()

	for _, tg := range []struct {
		collection string
		data       dataset.Table
	}{
		{dataset.Basics, snap.Basics},
		{dataset.Ratings, snap.Ratings},
		{dataset.Dates, snap.Dates},
	} {
		n, err := cl.InsertTable(ctx, tg.collection, tg.data)
		if err != nil {
			return &storage.WriteError{Store: Kind, Target: tg.collection, Err: err}
		}
		if n > 0 {
			metrics.RecordRows(tg.collection, n)
			metrics.IncCounter(metrics.BatchesTotal, 1, nil)
		}
	}

	fmt.Fprintln(out, "Documents inserted")
	return nil
}
