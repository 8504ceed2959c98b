// Package storage defines the export capability shared by every destination
// store and the registry that maps a store kind to its implementation.
//
// Backend packages register themselves from init(); the command imports
// internal/storage/all so every backend is available at run time.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"filmetl/internal/config"
	"filmetl/internal/dataset"
)

// Exporter writes one snapshot into a destination store.
//
// Implementations open their connection inside Export and release it before
// returning, on every path.
type Exporter interface {
	Export(ctx context.Context, snap dataset.Snapshot) error
}

// Options is what a backend factory receives.
type Options struct {
	Config *config.Config

	// Out receives the user-facing progress lines. Nil discards them.
	Out io.Writer
}

// Writer returns Out, or io.Discard when Out is nil.
func (o Options) Writer() io.Writer {
	if o.Out == nil {
		return io.Discard
	}
	return o.Out
}

// Factory constructs an Exporter. It must not connect to the store.
type Factory func(opts Options) (Exporter, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind ("mysql", "mongodb", ...).
//
// Panics if kind is empty, f is nil, or kind is already registered; a
// duplicate registration is a programming error.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New constructs the Exporter registered under kind.
func New(kind string, opts Options) (Exporter, error) {
	if kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("storage: nil config for kind=%s", kind)
	}

	mu.RLock()
	f := factories[kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported kind=%s", kind)
	}
	return f(opts)
}

// Kinds lists the registered backend kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Error taxonomy shared by all backends.
var (
	ErrStoreConnection = errors.New("store connection failure")
	ErrWrite           = errors.New("write failure")
)

// ConnectionError reports a store that could not be reached or authenticated.
type ConnectionError struct {
	Store string
	Err   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: connect: %v", e.Store, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrStoreConnection }

// WriteError reports a failed table replace or document insert. Targets
// written before the failing one keep their new contents.
type WriteError struct {
	Store  string
	Target string
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s: write %s: %v", e.Store, e.Target, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) Is(target error) bool { return target == ErrWrite }
