package sales

import "testing"

func TestDeduplicateKeepsFirstOccurrence(t *testing.T) {
	t.Parallel()

	in := []Record{
		{OrderID: "A", Quantity: 1},
		{OrderID: "B", Quantity: 1},
		{OrderID: "A", Quantity: 99},
		{OrderID: "C", Quantity: 1},
		{OrderID: "A", Quantity: 7},
	}
	out, removed := Deduplicate(in)

	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if len(out) != 3 {
		t.Fatalf("survivors = %d, want 3", len(out))
	}
	if out[0].OrderID != "A" || out[1].OrderID != "B" || out[2].OrderID != "C" {
		t.Fatalf("order = %v", out)
	}
	// The survivor for A is the lowest-index record.
	if out[0].Quantity != 1 {
		t.Fatalf("survivor quantity = %d, want 1", out[0].Quantity)
	}
}

func TestDeduplicateEmpty(t *testing.T) {
	t.Parallel()

	out, removed := Deduplicate(nil)
	if out != nil || removed != 0 {
		t.Fatalf("got %v, %d", out, removed)
	}
}
