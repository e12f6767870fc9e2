// Package sales holds the pre-dimensional sale record types and the pure
// record transforms (normalization, validation, deduplication, consolidation)
// that run between extraction and dimensional loading.
package sales

import "time"

// Record is the "wide" sale row produced by extraction/consolidation and
// consumed by normalization. One Record corresponds to one order line as
// reported by a source; the same order may arrive from several sources.
type Record struct {
	OrderID         string
	CustomerName    string
	CustomerSurname string
	CustomerEmail   string
	ProductName     string
	Category        string
	Quantity        int
	Price           float64
	SaleDate        time.Time
	Status          string
}

// Total is the derived line total.
func (r Record) Total() float64 { return float64(r.Quantity) * r.Price }

// CustomerRecord is a customer row from a customer source (CSV / API / DB).
// SourceID is the source system's customer key, used only during
// consolidation; the warehouse natural key is the lower-cased email.
type CustomerRecord struct {
	SourceID int64
	Name     string
	Surname  string
	Email    string
	Phone    string
	City     string
	Country  string
}

// ProductRecord is a product row from a product source.
type ProductRecord struct {
	SourceID  int64
	Name      string
	Category  string
	BasePrice float64
	Stock     int
}

// OrderDetail is a denormalized order line that references customers and
// products only by source ID. Consolidation joins it against the extracted
// customer/product sets to synthesize a full Record.
type OrderDetail struct {
	OrderID    string
	CustomerID int64
	ProductID  int64
	Quantity   int
	Price      float64
	SaleDate   time.Time
	Status     string
}

// FactCandidate is a fully dimension-resolved fact row, ready for the fact
// loader. All four surrogate keys are resolved; the loader only re-checks
// membership against the persisted key sets.
type FactCandidate struct {
	OrderID    string
	CustomerID int64
	ProductID  int64
	TimeID     int64
	StatusID   int64
	Quantity   int
	UnitPrice  float64
	Total      float64
}
