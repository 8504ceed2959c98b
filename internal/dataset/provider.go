package dataset

import (
	"archive/zip"
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
)

// Provider produces the previous and current snapshots of one run.
type Provider interface {
	Provide(ctx context.Context) (Datasets, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (Datasets, error)

// Provide implements Provider.
func (f ProviderFunc) Provide(ctx context.Context) (Datasets, error) { return f(ctx) }

// File name prefixes of the two snapshots.
const (
	PreviousPrefix = "old_"
	CurrentPrefix  = "recent_"
)

// LoadError reports a dataset file that could not be loaded.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load dataset %s: %v", e.File, e.Err) }

func (e *LoadError) Unwrap() error { return e.Err }

// FileProvider loads six prepared dataset files:
//
//	old_basics, old_ratings, old_dates        -> Previous
//	recent_basics, recent_ratings, recent_dates -> Current
//
// each with extension ".tsv" when the delimiter is a tab and ".csv" otherwise.
// Source is either a directory or a .zip archive containing the files at its
// root.
type FileProvider struct {
	Source  string
	Options ReadOptions

	// open is a test seam; nil means openSource.
	open func(source string) (fs.FS, func() error, error)
}

// NewFileProvider returns a provider reading from source.
func NewFileProvider(source string, opt ReadOptions) *FileProvider {
	return &FileProvider{Source: source, Options: opt}
}

// Provide implements Provider.
func (p *FileProvider) Provide(ctx context.Context) (Datasets, error) {
	open := p.open
	if open == nil {
		open = openSource
	}
	fsys, closeFn, err := open(p.Source)
	if err != nil {
		return Datasets{}, &LoadError{File: p.Source, Err: err}
	}
	defer func() {
		if err := closeFn(); err != nil {
			log.Printf("dataset: close %s: %v", p.Source, err)
		}
	}()

	var out Datasets
	if out.Previous, err = p.loadSnapshot(ctx, fsys, PreviousPrefix); err != nil {
		return Datasets{}, err
	}
	if out.Current, err = p.loadSnapshot(ctx, fsys, CurrentPrefix); err != nil {
		return Datasets{}, err
	}
	return out, nil
}

func (p *FileProvider) loadSnapshot(ctx context.Context, fsys fs.FS, prefix string) (Snapshot, error) {
	var s Snapshot
	for _, item := range []struct {
		name string
		dst  *Table
	}{
		{Basics, &s.Basics},
		{Ratings, &s.Ratings},
		{Dates, &s.Dates},
	} {
		t, err := p.loadTable(ctx, fsys, item.name, prefix+item.name+p.ext())
		if err != nil {
			return Snapshot{}, err
		}
		*item.dst = t
	}
	return s, nil
}

func (p *FileProvider) loadTable(ctx context.Context, fsys fs.FS, name, file string) (Table, error) {
	f, err := fsys.Open(file)
	if err != nil {
		return Table{}, &LoadError{File: file, Err: err}
	}
	defer f.Close()

	t, err := ReadTable(ctx, name, f, p.Options)
	if err != nil {
		return Table{}, &LoadError{File: file, Err: err}
	}
	return Coerce(t, p.Options.TextColumns...), nil
}

func (p *FileProvider) ext() string {
	if p.Options.comma() == '\t' {
		return ".tsv"
	}
	return ".csv"
}

func openSource(source string) (fs.FS, func() error, error) {
	if strings.TrimSpace(source) == "" {
		return nil, nil, fmt.Errorf("empty data source")
	}
	if strings.HasSuffix(strings.ToLower(source), ".zip") {
		zr, err := zip.OpenReader(source)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	}
	st, err := os.Stat(source)
	if err != nil {
		return nil, nil, err
	}
	if !st.IsDir() {
		return nil, nil, fmt.Errorf("%s is neither a directory nor a .zip archive", source)
	}
	return os.DirFS(source), func() error { return nil }, nil
}
