package datadog

import (
	"context"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"salesdw/internal/metrics"
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

func newTestBackend(t *testing.T, sub *fakeSubmitter) *Backend {
	t.Helper()
	b, err := NewBackend(context.Background(), Options{
		JobName:    "test",
		FlushEvery: time.Hour, // ticker never fires during tests
		now:        func() time.Time { return time.Unix(1700000000, 0) },
		submitter:  sub,
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	return b
}

func TestResolveEnvTag(t *testing.T) {
	oldENV := os.Getenv("ENV")
	oldDDENV := os.Getenv("DD_ENV")
	t.Cleanup(func() {
		_ = os.Setenv("ENV", oldENV)
		_ = os.Setenv("DD_ENV", oldDDENV)
	})

	tests := []struct {
		name string
		env  string
		dd   string
		want string
	}{
		{name: "ENV_wins", env: "prod", dd: "stage", want: "env:prod"},
		{name: "DD_ENV_used_when_ENV_empty", env: "", dd: "stage", want: "env:stage"},
		{name: "whitespace_ignored", env: "   ", dd: "\n\t", want: "env:unknown"},
		{name: "default_unknown", env: "", dd: "", want: "env:unknown"},
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

func TestPhaseStatusKeyRoundTrip(t *testing.T) {
	phase, status := splitPhaseStatusKey(phaseStatusKey("fact_loading", "success"))
	if phase != "fact_loading" || status != "success" {
		t.Fatalf("round trip = %q/%q", phase, status)
	}
	phase, status = splitPhaseStatusKey("bare")
	if phase != "bare" || status != "unknown" {
		t.Fatalf("bare key = %q/%q", phase, status)
	}
}

func TestFlushSubmitsBufferedSeries(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)
	defer b.Close()

	b.IncCounter("dw_phase_total", 1, metrics.Labels{"phase": "extracting", "status": "success"})
	b.IncCounter("dw_records_total", 3, metrics.Labels{"kind": "extracted"})
	b.IncCounter("dw_batches_total", 2, nil)
	b.ObserveHistogram("dw_phase_duration_seconds", 0.25, metrics.Labels{"phase": "extracting", "status": "success"})

	if err := b.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	payload, ok := sub.last()
	if !ok {
		t.Fatal("nothing submitted")
	}

	names := map[string]bool{}
	for _, s := range payload.Series {
		names[s.Metric] = true
	}
	for _, want := range []string{
		"salesdw.phase.total",
		"salesdw.records.total",
		"salesdw.batches.total",
		"salesdw.phase.duration_seconds.p50",
		"salesdw.phase.duration_seconds.max",
	} {
		if !names[want] {
			t.Fatalf("series %q missing from %v", want, names)
		}
	}

	// Buffers reset: a second flush submits nothing.
	if err := b.Flush(); err != nil {
		t.Fatalf("second flush: %v", err)
	}
	if sub.count() != 1 {
		t.Fatalf("payloads = %d, want 1", sub.count())
	}
}

func TestFlushEmptyIsNoop(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)
	defer b.Close()

	if err := b.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if sub.count() != 0 {
		t.Fatalf("payloads = %d, want 0", sub.count())
	}
}

func TestUnknownMetricsDropped(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)
	defer b.Close()

	b.IncCounter("something_else", 1, nil)
	b.ObserveHistogram("something_else_seconds", 1, nil)

	if err := b.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if sub.count() != 0 {
		t.Fatalf("payloads = %d, want 0", sub.count())
	}
}

func TestCloseFlushesTail(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	b.IncCounter("dw_records_total", 1, metrics.Labels{"kind": "loaded"})
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if sub.count() != 1 {
		t.Fatalf("payloads = %d, want 1", sub.count())
	}
}

func TestPercentileNearestRank(t *testing.T) {
	s := []float64{1, 2, 3, 4, 5}
	if got := percentileNearestRank(s, 0.5); got != 3 {
		t.Fatalf("p50 = %v", got)
	}
	if got := percentileNearestRank(s, 1); got != 5 {
		t.Fatalf("p100 = %v", got)
	}
	if got := percentileNearestRank(nil, 0.5); got != 0 {
		t.Fatalf("empty = %v", got)
	}
}

func TestParseTagsCSV(t *testing.T) {
	got := ParseTagsCSV(" env:prod , service:dw ,, ")
	if len(got) != 2 || got[0] != "env:prod" || got[1] != "service:dw" {
		t.Fatalf("tags = %v", got)
	}
	if ParseTagsCSV("") != nil {
		t.Fatal("empty input must return nil")
	}
}
