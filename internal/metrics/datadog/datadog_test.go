package datadog

import (
	"context"
	"errors"
	"net/http"
	"os"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"filmetl/internal/metrics"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// fakeSubmitter captures payloads submitted by Backend.Flush().
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSubmitter) last() (datadogV2.MetricPayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return datadogV2.MetricPayload{}, false
	}
	return f.payloads[len(f.payloads)-1], true
}

func quietOptions(fs *fakeSubmitter) Options {
	return Options{
		JobName:    "job1",
		FlushEvery: 24 * time.Hour,
		submitter:  fs,
		now:        func() time.Time { return time.Unix(1000, 0) },
		newTicker:  func(d time.Duration) *time.Ticker { return time.NewTicker(24 * time.Hour) },
	}
}

func metricNames(p datadogV2.MetricPayload) []string {
	out := make([]string, 0, len(p.Series))
	for _, s := range p.Series {
		out = append(out, s.Metric)
	}
	return out
}

func contains[T comparable](xs []T, v T) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func TestResolveEnvTag(t *testing.T) {
	oldENV, hadENV := os.LookupEnv("ENV")
	oldDDENV, hadDDENV := os.LookupEnv("DD_ENV")
	t.Cleanup(func() {
		restore := func(k, v string, had bool) {
			if had {
				_ = os.Setenv(k, v)
			} else {
				_ = os.Unsetenv(k)
			}
		}
		restore("ENV", oldENV, hadENV)
		restore("DD_ENV", oldDDENV, hadDDENV)
	})

	tests := []struct {
		name string
		env  string
		dd   string
		want string
	}{
		{name: "ENV_wins", env: "prod", dd: "stage", want: "env:prod"},
		{name: "DD_ENV_fallback", env: "", dd: "stage", want: "env:stage"},
		{name: "whitespace_ignored", env: "  ", dd: "\t", want: "env:unknown"},
		{name: "default_unknown", want: "env:unknown"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_ = os.Setenv("ENV", tc.env)
			_ = os.Setenv("DD_ENV", tc.dd)
			if got := resolveEnvTag(); got != tc.want {
				t.Fatalf("resolveEnvTag()=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestWrapInitErr(t *testing.T) {
	if got := wrapInitErr(nil); got != nil {
		t.Fatalf("wrapInitErr(nil)=%v, want nil", got)
	}
	in := errors.New("boom")
	got := wrapInitErr(in)
	if !errors.Is(got, in) || !strings.Contains(got.Error(), "datadog metrics init:") {
		t.Fatalf("wrapInitErr(err)=%v", got)
	}
}

func TestStepStatusKeyRoundTrip(t *testing.T) {
	for _, tc := range []struct{ step, status string }{
		{"export_mysql", "ok"},
		{"", "ok"},
		{"provide", ""},
	} {
		step, status := splitStepStatusKey(stepStatusKey(tc.step, tc.status))
		if step != tc.step || status != tc.status {
			t.Fatalf("roundtrip got=(%q,%q), want=(%q,%q)", step, status, tc.step, tc.status)
		}
	}

	step, status := splitStepStatusKey("no-sep")
	if step != "no-sep" || status != "unknown" {
		t.Fatalf("splitStepStatusKey(no-sep)=(%q,%q)", step, status)
	}
}

func TestWithTags_DoesNotAliasBase(t *testing.T) {
	base := []string{"env:test", "job:etl"}
	got := withTags(base, "step:provide")
	if !reflect.DeepEqual(got, []string{"env:test", "job:etl", "step:provide"}) {
		t.Fatalf("withTags()=%v", got)
	}
	got[0] = "env:mutated"
	if base[0] != "env:test" {
		t.Fatalf("withTags output aliases base")
	}
}

func TestBuildSeries_DurationSummary(t *testing.T) {
	b := &Backend{baseTags: []string{"env:test"}}
	in := []float64{0.5, 2, 1.5}
	s := snapshot{durationSamples: map[string][]float64{
		stepStatusKey("export_mysql", "ok"): in,
	}}

	series := b.buildSeries(s, 99)

	want := map[string]float64{
		"filmetl.step.duration_seconds.max":   2,
		"filmetl.step.duration_seconds.sum":   4,
		"filmetl.step.duration_seconds.count": 3,
	}
	if len(series) != len(want) {
		t.Fatalf("series.len=%d, want %d", len(series), len(want))
	}
	for _, ms := range series {
		v, ok := want[ms.Metric]
		if !ok || *ms.Points[0].Value != v {
			t.Fatalf("series %s=%v, want %v", ms.Metric, *ms.Points[0].Value, v)
		}
		if *ms.Points[0].Timestamp != 99 {
			t.Fatalf("timestamp=%d", *ms.Points[0].Timestamp)
		}
		if !contains(ms.Tags, "step:export_mysql") || !contains(ms.Tags, "status:ok") || !contains(ms.Tags, "env:test") {
			t.Fatalf("tags=%v", ms.Tags)
		}
	}
	if !reflect.DeepEqual(in, []float64{0.5, 2, 1.5}) {
		t.Fatalf("samples mutated: %v", in)
	}
}

func TestNewBackend_Defaults(t *testing.T) {
	fs := &fakeSubmitter{}
	opts := quietOptions(fs)
	opts.JobName = ""
	opts.FlushEvery = 0
	opts.Tags = []string{"service:filmetl"}

	b, err := NewBackend(context.Background(), opts)
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	defer func() { _ = b.Close() }()

	if !contains(b.baseTags, "job:import_data") || !contains(b.baseTags, "service:filmetl") {
		t.Fatalf("baseTags=%v", b.baseTags)
	}
	if b.flushEvery != defaultFlushEvery {
		t.Fatalf("flushEvery=%s, want %s", b.flushEvery, defaultFlushEvery)
	}
}

func TestFlush_SubmitsAndResets(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), quietOptions(fs))
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	defer func() { _ = b.Close() }()

	ok := metrics.Labels{"step": "export_mysql", "status": "ok"}
	b.IncCounter(metrics.StepTotal, 1, ok)
	b.IncCounter(metrics.RecordsTotal, 3, metrics.Labels{"kind": "basics"})
	b.IncCounter(metrics.BatchesTotal, 2, nil)
	b.ObserveHistogram(metrics.StepDurationSeconds, 0.5, ok)

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v", err)
	}
	if fs.count() != 1 {
		t.Fatalf("submit calls=%d, want 1", fs.count())
	}
	if len(b.stepCounts) != 0 || len(b.recordCounts) != 0 || b.batchCount != 0 || len(b.durationSamples) != 0 {
		t.Fatalf("buffers not reset after Flush")
	}

	payload, _ := fs.last()
	names := metricNames(payload)
	for _, w := range []string{
		"filmetl.step.total",
		"filmetl.records.total",
		"filmetl.batches.total",
		"filmetl.step.duration_seconds.max",
		"filmetl.step.duration_seconds.sum",
		"filmetl.step.duration_seconds.count",
	} {
		if !contains(names, w) {
			t.Fatalf("payload missing %q; got=%v", w, names)
		}
	}
	for _, s := range payload.Series {
		if s.Metric == "filmetl.records.total" && !contains(s.Tags, "kind:basics") {
			t.Fatalf("records series tags=%v, want kind:basics", s.Tags)
		}
	}
}

func TestFlush_NoDataDoesNotSubmit(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), quietOptions(fs))
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	defer func() { _ = b.Close() }()

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v", err)
	}
	if fs.count() != 0 {
		t.Fatalf("submit calls=%d, want 0", fs.count())
	}
}

func TestFlush_SubmitErrorIsWrappedAndBuffersReset(t *testing.T) {
	fs := &fakeSubmitter{err: errors.New("403")}
	b, err := NewBackend(context.Background(), quietOptions(fs))
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	defer func() { _ = b.Close() }()

	b.IncCounter(metrics.BatchesTotal, 1, nil)
	err = b.Flush()
	if err == nil || !strings.Contains(err.Error(), "datadog submit") {
		t.Fatalf("Flush() err=%v, want datadog submit error", err)
	}
	if b.batchCount != 0 {
		t.Fatalf("batchCount=%v, want reset after failed submit", b.batchCount)
	}
}

func TestIgnoredSamples(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), quietOptions(fs))
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	defer func() { _ = b.Close() }()

	b.IncCounter(metrics.BatchesTotal, 0, nil)
	b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{})
	b.IncCounter("unknown_total", 1, nil)
	b.ObserveHistogram(metrics.StepDurationSeconds, -1, nil)
	b.ObserveHistogram("unknown_seconds", 1, nil)

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v", err)
	}
	if fs.count() != 0 {
		t.Fatalf("submit calls=%d, want 0 (all samples ignored)", fs.count())
	}
}

func TestLoopAndClose(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), Options{
		JobName:    "job1",
		FlushEvery: 5 * time.Millisecond,
		submitter:  fs,
		now:        func() time.Time { return time.Unix(2000, 0) },
	})
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}

	b.IncCounter(metrics.BatchesTotal, 1, nil)
	deadline := time.Now().Add(250 * time.Millisecond)
	for time.Now().Before(deadline) && fs.count() < 1 {
		time.Sleep(2 * time.Millisecond)
	}
	if fs.count() < 1 {
		_ = b.Close()
		t.Fatalf("expected a background flush; got %d", fs.count())
	}

	b.IncCounter(metrics.BatchesTotal, 1, nil)
	if err := b.Close(); err != nil {
		t.Fatalf("Close() err=%v", err)
	}
	if fs.count() < 2 {
		t.Fatalf("expected final flush on Close; got %d submissions", fs.count())
	}

	// A second Close must not panic.
	if err := b.Close(); err != nil {
		t.Fatalf("second Close() err=%v", err)
	}
}

func TestParseTagsCSV(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty_returns_nil", in: "", want: nil},
		{name: "trims_and_skips_empty", in: " env:prod , ,service:filmetl ", want: []string{"env:prod", "service:filmetl"}},
		{name: "single_tag", in: "team:data", want: []string{"team:data"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ParseTagsCSV(tc.in); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ParseTagsCSV(%q)=%v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
