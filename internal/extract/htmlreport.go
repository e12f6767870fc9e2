package extract

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"salesdw/internal/sales"
)

// SalesHTMLReport extracts sale records from the legacy intranet report, a
// static HTML page with one <table> of sales. Cells are positional:
// order, customer, email, product, category, quantity, price, date, status.
// A missing file is an empty source, matching the CSV extractors.
type SalesHTMLReport struct {
	Path string
}

func (h SalesHTMLReport) Name() string { return "sales_html:" + h.Path }

func (h SalesHTMLReport) Extract(ctx context.Context) ([]sales.Record, error) {
	f, err := os.Open(h.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", h.Path, err)
	}

	var out []sales.Record
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 9 {
			return // header or malformed row
		}
		cell := func(i int) string {
			return strings.TrimSpace(cells.Eq(i).Text())
		}
		qty, _ := strconv.Atoi(cell(5))
		price, _ := strconv.ParseFloat(cell(6), 64)
		out = append(out, sales.Record{
			OrderID:       cell(0),
			CustomerName:  cell(1),
			CustomerEmail: cell(2),
			ProductName:   cell(3),
			Category:      cell(4),
			Quantity:      qty,
			Price:         price,
			SaleDate:      parseAPIDate(cell(7)),
			Status:        cell(8),
		})
	})
	return out, nil
}
