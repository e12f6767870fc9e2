package extract

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"salesdw/internal/sales"
)

// CSVOptions configure file extraction. Legacy exports from the point-of-sale
// system are windows-1252 encoded; everything newer is UTF-8.
type CSVOptions struct {
	Windows1252 bool
}

func openCSV(path string, opts CSVOptions) (*csv.Reader, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	var r io.Reader = f
	if opts.Windows1252 {
		r = transform.NewReader(f, charmap.Windows1252.NewDecoder())
	}
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	return cr, f, nil
}

// readCSV streams path row by row through fn, passing a header-name -> index
// map. A missing file yields zero rows and no error.
func readCSV(path string, opts CSVOptions, fn func(col map[string]int, row []string) error) error {
	cr, closer, err := openCSV(path, opts)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer closer.Close()

	header, err := cr.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}

	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(col, row); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
}

func field(col map[string]int, row []string, name string) string {
	i, ok := col[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func intField(col map[string]int, row []string, name string) int {
	n, _ := strconv.Atoi(field(col, row, name))
	return n
}

func int64Field(col map[string]int, row []string, name string) int64 {
	n, _ := strconv.ParseInt(field(col, row, name), 10, 64)
	return n
}

func floatField(col map[string]int, row []string, name string) float64 {
	f, _ := strconv.ParseFloat(field(col, row, name), 64)
	return f
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "02/01/2006"}

func dateField(col map[string]int, row []string, name string) time.Time {
	s := field(col, row, name)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// SalesCSV extracts wide sale records, the primary source.
type SalesCSV struct {
	Path string
	Opts CSVOptions

	// Required marks the file as the primary source: a missing file is an
	// error instead of an empty source.
	Required bool
}

func (s SalesCSV) Name() string { return "sales_csv:" + s.Path }

func (s SalesCSV) Extract(ctx context.Context) ([]sales.Record, error) {
	if s.Required {
		if _, err := os.Stat(s.Path); err != nil {
			return nil, fmt.Errorf("sales csv %s: %w", s.Path, err)
		}
	}
	var out []sales.Record
	err := readCSV(s.Path, s.Opts, func(col map[string]int, row []string) error {
		out = append(out, sales.Record{
			OrderID:         field(col, row, "order_id"),
			CustomerName:    field(col, row, "customer_name"),
			CustomerSurname: field(col, row, "customer_surname"),
			CustomerEmail:   field(col, row, "email"),
			ProductName:     field(col, row, "product"),
			Category:        field(col, row, "category"),
			Quantity:        intField(col, row, "quantity"),
			Price:           floatField(col, row, "price"),
			SaleDate:        dateField(col, row, "date"),
			Status:          field(col, row, "status"),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sales csv %s: %w", s.Path, err)
	}
	return out, nil
}

// CustomersCSV extracts source customer rows.
type CustomersCSV struct {
	Path string
	Opts CSVOptions
}

func (c CustomersCSV) Name() string { return "customers_csv:" + c.Path }

func (c CustomersCSV) Extract(ctx context.Context) ([]sales.CustomerRecord, error) {
	var out []sales.CustomerRecord
	err := readCSV(c.Path, c.Opts, func(col map[string]int, row []string) error {
		out = append(out, sales.CustomerRecord{
			SourceID: int64Field(col, row, "customer_id"),
			Name:     field(col, row, "name"),
			Surname:  field(col, row, "surname"),
			Email:    field(col, row, "email"),
			Phone:    field(col, row, "phone"),
			City:     field(col, row, "city"),
			Country:  field(col, row, "country"),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("customers csv %s: %w", c.Path, err)
	}
	return out, nil
}

// ProductsCSV extracts source product rows.
type ProductsCSV struct {
	Path string
	Opts CSVOptions
}

func (p ProductsCSV) Name() string { return "products_csv:" + p.Path }

func (p ProductsCSV) Extract(ctx context.Context) ([]sales.ProductRecord, error) {
	var out []sales.ProductRecord
	err := readCSV(p.Path, p.Opts, func(col map[string]int, row []string) error {
		out = append(out, sales.ProductRecord{
			SourceID:  int64Field(col, row, "product_id"),
			Name:      field(col, row, "name"),
			Category:  field(col, row, "category"),
			BasePrice: floatField(col, row, "price"),
			Stock:     intField(col, row, "stock"),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("products csv %s: %w", p.Path, err)
	}
	return out, nil
}

// OrderDetailsCSV extracts line items that reference customers and products
// by source id instead of carrying names.
type OrderDetailsCSV struct {
	Path string
	Opts CSVOptions
}

func (o OrderDetailsCSV) Name() string { return "order_details_csv:" + o.Path }

func (o OrderDetailsCSV) Extract(ctx context.Context) ([]sales.OrderDetail, error) {
	var out []sales.OrderDetail
	err := readCSV(o.Path, o.Opts, func(col map[string]int, row []string) error {
		out = append(out, sales.OrderDetail{
			OrderID:    field(col, row, "order_id"),
			CustomerID: int64Field(col, row, "customer_id"),
			ProductID:  int64Field(col, row, "product_id"),
			Quantity:   intField(col, row, "quantity"),
			Price:      floatField(col, row, "price"),
			SaleDate:   dateField(col, row, "date"),
			Status:     field(col, row, "status"),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("order details csv %s: %w", o.Path, err)
	}
	return out, nil
}
