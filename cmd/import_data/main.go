package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"filmetl/internal/app"
	"filmetl/internal/config"
	"filmetl/internal/dataset"
	"filmetl/internal/metrics"
	"filmetl/internal/metrics/datadog"
	"filmetl/internal/storage"

	// register every destination store with the storage factory.
	_ "filmetl/internal/storage/all"
)

const jobName = "import_data"

// appDeps are the side-effecting collaborators of runMain. Tests replace them
// to exercise the CLI contract without files, stores or metrics.
type appDeps struct {
	loadConfig  func(envFile string) (*config.Config, error)
	newProvider func(source string, opt dataset.ReadOptions) dataset.Provider
	newExporter func(kind string, opts storage.Options) (storage.Exporter, error)
	initMetrics func(ctx context.Context, backendName string, tags []string) (func(), error)
}

func defaultDeps() appDeps {
	return appDeps{
		loadConfig: func(envFile string) (*config.Config, error) {
			return config.Load(envFile)
		},
		newProvider: func(source string, opt dataset.ReadOptions) dataset.Provider {
			return dataset.NewFileProvider(source, opt)
		},
		newExporter: storage.New,
		initMetrics: initMetrics,
	}
}

// main loads the environment, imports the film datasets into the store
// selected with -db and exits with the code returned by runMain.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

// runMain returns 0 on success, 1 on a runtime failure and 2 on a usage
// error. Usage errors are detected before any file, store or metrics access.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	fs := flag.NewFlagSet("import_data", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		dbFlag         string
		dataDir        string
		delimiter      string
		encoding       string
		envFile        string
		metricsBackend string
		textColumns    string
		verbose        bool
	)
	fs.StringVar(&dbFlag, "db", "", "destination store: "+modeNames())
	fs.StringVar(&dataDir, "data", "data", "dataset directory or .zip archive")
	fs.StringVar(&delimiter, "delimiter", `\t`, "field delimiter of the dataset files")
	fs.StringVar(&encoding, "encoding", "utf-8", "text encoding of the dataset files")
	fs.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	fs.StringVar(&metricsBackend, "metrics-backend", "", "metrics backend (none, datadog); overrides env METRICS_BACKEND")
	fs.StringVar(&textColumns, "text-columns", "", "comma-separated columns kept as text (no numeric coercion)")
	fs.BoolVar(&verbose, "v", false, "enable verbose logs")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	mode, err := app.ParseMode(dbFlag)
	if err != nil {
		fmt.Fprintf(stderr, "usage: import_data -db <%s>: %v\n", modeNames(), err)
		return 2
	}
	comma, err := parseDelimiter(delimiter)
	if err != nil {
		fmt.Fprintf(stderr, "usage: import_data -delimiter: %v\n", err)
		return 2
	}

	cfg, err := deps.loadConfig(envFile)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}

	// Decide metrics backend: flag -> env -> none.
	backendName := metricsBackend
	if backendName == "" {
		backendName = cfg.MetricsBackend
	}
	cleanup, err := deps.initMetrics(ctx, backendName, datadog.ParseTagsCSV(cfg.MetricsTags))
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	if verbose {
		log.Printf("import_data: mode=%s data=%s delimiter=%q encoding=%s", mode, dataDir, comma, encoding)
	}

	r := &app.Runner{
		Provider: deps.newProvider(dataDir, dataset.ReadOptions{
			Comma:       comma,
			Encoding:    encoding,
			TextColumns: splitList(textColumns),
		}),
		NewExporter: func(kind string) (storage.Exporter, error) {
			return deps.newExporter(kind, storage.Options{Config: cfg, Out: stdout})
		},
		Out:     stdout,
		Verbose: verbose,
	}
	if err := r.Run(ctx, mode); err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}
	return 0
}

// parseDelimiter accepts a single character, or the escapes `\t` and "tab".
func parseDelimiter(s string) (rune, error) {
	switch s {
	case `\t`, "tab", "\t":
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("delimiter must be one character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return 0, fmt.Errorf("invalid delimiter %q", s)
	}
	return r, nil
}

// splitList splits a comma-separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func modeNames() string {
	ms := app.Modes()
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = string(m)
	}
	return strings.Join(names, "|")
}

// metricsBackend is what cleanup needs from a constructed backend.
type metricsBackend interface {
	Close() error
}

// Seams for initMetrics tests.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	setMetricsBackend = func(b any) {
		if mb, ok := b.(metrics.Backend); ok {
			metrics.SetBackend(mb)
		}
	}
	logPrintf = log.Printf
)

// initMetrics installs the named metrics backend and returns its cleanup.
// cleanup is never nil. An unknown backend name disables metrics.
func initMetrics(ctx context.Context, backendName string, tags []string) (func(), error) {
	switch strings.ToLower(strings.TrimSpace(backendName)) {
	case "", "none", "noop":
		return func() {}, nil

	case "datadog", "dd":
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    jobName,
			Tags:       tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			return func() {}, err
		}
		setMetricsBackend(b)
		// Close stops the flush loop and submits what is still buffered.
		return func() {
			if err := b.Close(); err != nil {
				logPrintf("metrics: datadog close error: %v", err)
			}
		}, nil

	default:
		logPrintf("metrics: unknown backend %q; metrics disabled", backendName)
		return func() {}, nil
	}
}
