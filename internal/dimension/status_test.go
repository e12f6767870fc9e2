package dimension

import (
	"context"
	"testing"

	"salesdw/internal/sales"
)

func TestStatusLoaderEnsureStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	l := NewStatusLoader(store, testClock, nil)

	id, err := l.EnsureStatus(ctx, " pending ")
	if err != nil || id == 0 {
		t.Fatalf("ensure = %d, %v", id, err)
	}
	row := store.row("dim_status", id)
	if row["name"] != "PENDING" {
		t.Fatalf("name = %v", row["name"])
	}
	if row["description"] != "Status PENDING" {
		t.Fatalf("description = %v", row["description"])
	}
	if row["active"] != true {
		t.Fatalf("active = %v", row["active"])
	}

	again, err := l.EnsureStatus(ctx, "PENDING")
	if err != nil || again != id {
		t.Fatalf("second ensure = %d, %v; want %d", again, err, id)
	}
	if store.inserts != 1 {
		t.Fatalf("inserts = %d, want 1", store.inserts)
	}
}

func TestStatusLoaderBlankFallsBackToDefault(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	l := NewStatusLoader(store, testClock, nil)

	id, err := l.EnsureStatus(ctx, "")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if got := store.row("dim_status", id)["name"]; got != sales.DefaultStatus {
		t.Fatalf("name = %v, want %s", got, sales.DefaultStatus)
	}

	resolved, ok := l.Resolve(sales.DefaultStatus)
	if !ok || resolved != id {
		t.Fatalf("resolve = %d, %v", resolved, ok)
	}
}
