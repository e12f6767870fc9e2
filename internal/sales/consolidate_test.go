package sales

import (
	"testing"
	"time"
)

func TestConsolidateJoinsBySourceID(t *testing.T) {
	t.Parallel()

	date := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	details := []OrderDetail{
		{OrderID: "ORD-1", CustomerID: 1, ProductID: 10, Quantity: 2, Price: 3.5, SaleDate: date, Status: "PENDING"},
		{OrderID: "ORD-2", CustomerID: 99, ProductID: 88, Quantity: 1, Price: 1, SaleDate: date},
	}
	customers := []CustomerRecord{
		{SourceID: 1, Name: "Ana", Surname: "Torres", Email: "ana@example.com"},
	}
	products := []ProductRecord{
		{SourceID: 10, Name: "Widget", Category: "Tools"},
	}

	out := Consolidate(details, customers, products)
	if len(out) != 2 {
		t.Fatalf("records = %d, want 2", len(out))
	}

	r := out[0]
	if r.CustomerName != "Ana" || r.CustomerEmail != "ana@example.com" {
		t.Fatalf("joined customer = %+v", r)
	}
	if r.ProductName != "Widget" || r.Category != "Tools" {
		t.Fatalf("joined product = %+v", r)
	}
	if r.Quantity != 2 || r.Price != 3.5 || r.Status != "PENDING" {
		t.Fatalf("line fields = %+v", r)
	}

	// Unmatched foreign keys degrade to placeholders, never fail the row.
	u := out[1]
	if u.CustomerName != UnknownName || u.ProductName != UnknownName {
		t.Fatalf("placeholders = %+v", u)
	}
	if u.CustomerEmail != "" {
		t.Fatalf("email = %q, want empty", u.CustomerEmail)
	}
}

func TestConsolidateFirstSourceRowWins(t *testing.T) {
	t.Parallel()

	details := []OrderDetail{{OrderID: "ORD-1", CustomerID: 1, ProductID: 1, Quantity: 1, Price: 1}}
	customers := []CustomerRecord{
		{SourceID: 1, Name: "First"},
		{SourceID: 1, Name: "Second"},
	}
	products := []ProductRecord{
		{SourceID: 1, Name: "P-First"},
		{SourceID: 1, Name: "P-Second"},
	}

	out := Consolidate(details, customers, products)
	if out[0].CustomerName != "First" || out[0].ProductName != "P-First" {
		t.Fatalf("join picked %q/%q, want first rows", out[0].CustomerName, out[0].ProductName)
	}
}

func TestConsolidateEmptyDetails(t *testing.T) {
	t.Parallel()

	if out := Consolidate(nil, []CustomerRecord{{SourceID: 1}}, nil); out != nil {
		t.Fatalf("got %v, want nil", out)
	}
}
