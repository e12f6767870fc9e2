package dimension

import (
	"context"
	"testing"
	"time"

	"salesdw/internal/clock"
	"salesdw/internal/sales"
)

var testClock = clock.Fixed{T: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}

func TestCustomerLoaderInsertThenSkipUnchanged(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	l := NewCustomerLoader(store, testClock, nil, 0)

	recs := []sales.CustomerRecord{
		{SourceID: 1, Name: "ana", Surname: "torres", Email: "Ana@Example.com", City: "lima", Country: "pe"},
		{SourceID: 2, Name: "bob", Email: "bob@example.com"},
	}
	ins, upd, err := l.LoadBatch(ctx, recs)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ins != 2 || upd != 0 {
		t.Fatalf("ins=%d upd=%d, want 2/0", ins, upd)
	}

	id, ok := l.Resolve("ANA@example.com")
	if !ok || id == 0 {
		t.Fatalf("resolve after load: id=%d ok=%v", id, ok)
	}

	// Same batch again: nothing inserted, nothing touched.
	ins, upd, err = l.LoadBatch(ctx, recs)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if ins != 0 || upd != 0 {
		t.Fatalf("reload ins=%d upd=%d, want 0/0", ins, upd)
	}
	if store.updates != 0 {
		t.Fatalf("updates = %d, want 0", store.updates)
	}

	id2, _ := l.Resolve("ana@example.com")
	if id2 != id {
		t.Fatalf("surrogate key changed: %d -> %d", id, id2)
	}
}

func TestCustomerLoaderOverwritesChangedAttributes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	l := NewCustomerLoader(store, testClock, nil, 0)

	if _, _, err := l.LoadBatch(ctx, []sales.CustomerRecord{
		{SourceID: 1, Name: "ana", Email: "ana@example.com", City: "lima"},
	}); err != nil {
		t.Fatalf("load: %v", err)
	}
	id, _ := l.Resolve("ana@example.com")

	ins, upd, err := l.LoadBatch(ctx, []sales.CustomerRecord{
		{SourceID: 1, Name: "ana", Email: "ana@example.com", City: "cusco"},
	})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if ins != 0 || upd != 1 {
		t.Fatalf("ins=%d upd=%d, want 0/1", ins, upd)
	}

	id2, _ := l.Resolve("ana@example.com")
	if id2 != id {
		t.Fatalf("overwrite must keep the surrogate key: %d -> %d", id, id2)
	}
	if got := store.row("dim_customer", id)["city"]; got != "CUSCO" {
		t.Fatalf("city = %v, want CUSCO", got)
	}
	if store.row("dim_customer", id)["updated_at"] == nil {
		t.Fatal("updated_at not set")
	}
}

func TestCustomerKeyPlaceholderForMissingEmail(t *testing.T) {
	t.Parallel()

	got := CustomerKey(sales.CustomerRecord{SourceID: 7, Name: "X"})
	if got != "no-email-7@sales.local" {
		t.Fatalf("key = %q", got)
	}
	if CustomerKey(sales.CustomerRecord{Email: "  A@B.Com "}) != "a@b.com" {
		t.Fatal("email not normalized")
	}
}

func TestCustomerLoaderUnknownIDMemoized(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	l := NewCustomerLoader(store, testClock, nil, 0)
	if err := l.Prime(ctx); err != nil {
		t.Fatalf("prime: %v", err)
	}

	id, err := l.UnknownID(ctx)
	if err != nil || id == 0 {
		t.Fatalf("unknown id = %d, %v", id, err)
	}
	again, err := l.UnknownID(ctx)
	if err != nil || again != id {
		t.Fatalf("memoized id = %d, %v; want %d", again, err, id)
	}
	if store.inserts != 1 {
		t.Fatalf("inserts = %d, want 1", store.inserts)
	}
}
