package sales

import (
	"fmt"
	"strings"
	"time"
)

// Sentinel values applied by normalization. UnknownName doubles as the
// attribute of the "unknown" dimension rows, so the whole engine shares one
// placeholder string.
const (
	UnknownName   = "UNKNOWN"
	NoCategory    = "NO CATEGORY"
	DefaultStatus = "COMPLETED"

	// MinPrice replaces non-positive prices during normalization.
	MinPrice = 0.01
)

// MinSaleDate is the oldest sale date the warehouse accepts.
var MinSaleDate = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// Normalize returns a cleaned copy of r: text fields trimmed, name/status
// fields upper-cased, email lower-cased, missing names defaulted to the
// UNKNOWN sentinel, missing category defaulted, and non-positive quantity and
// price coerced to minimal positive values. The input is not modified.
func Normalize(r Record) Record {
	out := r

	out.OrderID = strings.TrimSpace(r.OrderID)
	out.CustomerName = upperOr(r.CustomerName, UnknownName)
	out.CustomerSurname = strings.ToUpper(strings.TrimSpace(r.CustomerSurname))
	out.CustomerEmail = strings.ToLower(strings.TrimSpace(r.CustomerEmail))
	out.ProductName = trimOr(r.ProductName, UnknownName)
	out.Category = trimOr(r.Category, NoCategory)
	out.Status = upperOr(r.Status, DefaultStatus)

	if out.Quantity <= 0 {
		out.Quantity = 1
	}
	if out.Price <= 0 {
		out.Price = MinPrice
	}
	return out
}

// Validate checks r against the business rules and returns every violated
// rule, not just the first. Records are rejected, never repaired: callers
// validate the record as extracted, independent of what Normalize would
// coerce. The clock's "now" anchors the future-date rule; a sale dated up to
// one day ahead is accepted.
func Validate(r Record, now time.Time) []string {
	var errs []string

	if strings.TrimSpace(r.OrderID) == "" {
		errs = append(errs, "order id is required")
	}
	if strings.TrimSpace(r.CustomerName) == "" {
		errs = append(errs, "customer name is required")
	}
	if strings.TrimSpace(r.ProductName) == "" {
		errs = append(errs, "product name is required")
	}
	if r.Quantity <= 0 {
		errs = append(errs, "quantity must be greater than 0")
	}
	if r.Price <= 0 {
		errs = append(errs, "price must be greater than 0")
	}
	if r.SaleDate.After(now.AddDate(0, 0, 1)) {
		errs = append(errs, fmt.Sprintf("sale date too far in the future: %s", r.SaleDate.Format("2006-01-02")))
	}
	if r.SaleDate.Before(MinSaleDate) {
		errs = append(errs, fmt.Sprintf("sale date before %s: %s", MinSaleDate.Format("2006-01-02"), r.SaleDate.Format("2006-01-02")))
	}

	return errs
}

func trimOr(s, def string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}

func upperOr(s, def string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return def
	}
	return s
}
