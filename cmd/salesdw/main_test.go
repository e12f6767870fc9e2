package main

import (
	"testing"

	"salesdw/internal/config"
)

func TestBuildSources(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Warehouse: config.Warehouse{Kind: "sqlite", DSN: ":memory:"},
		Sources: config.Sources{
			SalesCSV:     "sales.csv",
			CustomersCSV: "customers.csv",
			SalesAPIURL:  "http://example.com/sales",
			HTMLReport:   "report.html",
		},
	}

	srcs, cleanup, err := buildSources(cfg)
	if err != nil {
		t.Fatalf("build sources: %v", err)
	}
	defer cleanup()

	if srcs.PrimarySales == nil || srcs.PrimarySales.Name() != "sales_csv:sales.csv" {
		t.Fatalf("primary = %v", srcs.PrimarySales)
	}
	if len(srcs.OptionalSales) != 2 {
		t.Fatalf("optional sales sources = %d, want 2 (api + html)", len(srcs.OptionalSales))
	}
	if len(srcs.Customers) != 1 || len(srcs.Products) != 0 || len(srcs.OrderDetails) != 0 {
		t.Fatalf("customers=%d products=%d details=%d", len(srcs.Customers), len(srcs.Products), len(srcs.OrderDetails))
	}
}
