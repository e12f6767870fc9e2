package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryerSucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	var slept []time.Duration
	r := Retryer{
		Attempts: 5,
		Initial:  100 * time.Millisecond,
		Max:      time.Second,
		sleep:    func(d time.Duration) { slept = append(slept, d) },
	}

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(slept) != len(want) || slept[0] != want[0] || slept[1] != want[1] {
		t.Fatalf("slept = %v, want %v", slept, want)
	}
}

func TestRetryerExhaustsAttempts(t *testing.T) {
	t.Parallel()

	r := Retryer{Attempts: 3, Initial: time.Millisecond, sleep: func(time.Duration) {}}
	calls := 0
	sentinel := errors.New("down")
	err := r.Do(context.Background(), func() error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want wrapped sentinel", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryerBackoffCapped(t *testing.T) {
	t.Parallel()

	var slept []time.Duration
	r := Retryer{
		Attempts: 5,
		Initial:  400 * time.Millisecond,
		Max:      500 * time.Millisecond,
		sleep:    func(d time.Duration) { slept = append(slept, d) },
	}
	_ = r.Do(context.Background(), func() error { return errors.New("x") })

	for _, d := range slept {
		if d > 500*time.Millisecond {
			t.Fatalf("backoff %v exceeds cap", d)
		}
	}
}

func TestRetryerStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := Retryer{Attempts: 5, Initial: time.Millisecond, sleep: func(time.Duration) {}}
	calls := 0
	err := r.Do(ctx, func() error {
		calls++
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestNormalizeKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "ana@example.com", "ana@example.com"},
		{"bytes", []byte("WIDGET"), "WIDGET"},
		{"int64", int64(42), "42"},
		{"int", 7, "7"},
		{"date", time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), "2024-03-02"},
		{"timestamp truncates to day", time.Date(2024, 3, 2, 15, 4, 5, 0, time.UTC), "2024-03-02"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeKey(tt.in); got != tt.want {
				t.Fatalf("NormalizeKey(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
