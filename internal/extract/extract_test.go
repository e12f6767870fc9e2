package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"salesdw/internal/sales"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestSalesCSVExtract(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "sales.csv", []byte(
		"order_id,customer_name,customer_surname,email,product,category,quantity,price,date,status\n"+
			"ORD-1,Ana,Torres,ana@example.com,Widget,Tools,2,9.99,2024-03-02,completed\n"+
			"ORD-2,Bob,,bob@example.com,Bolt,,1,0.5,2024-03-03,\n"))

	recs, err := SalesCSV{Path: path}.Extract(context.Background())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	r := recs[0]
	if r.OrderID != "ORD-1" || r.CustomerEmail != "ana@example.com" || r.Quantity != 2 || r.Price != 9.99 {
		t.Fatalf("record = %+v", r)
	}
	if !r.SaleDate.Equal(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date = %v", r.SaleDate)
	}
}

func TestSalesCSVMissingFileIsEmptySource(t *testing.T) {
	t.Parallel()

	recs, err := SalesCSV{Path: filepath.Join(t.TempDir(), "absent.csv")}.Extract(context.Background())
	if err != nil {
		t.Fatalf("missing file must not fail: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("records = %d, want 0", len(recs))
	}
}

func TestSalesCSVRequiredMissingFileFails(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "absent.csv")
	_, err := SalesCSV{Path: path, Required: true}.Extract(context.Background())
	if err == nil {
		t.Fatal("required source must fail on a missing file")
	}
	if !os.IsNotExist(errors.Unwrap(err)) {
		t.Fatalf("err = %v, want a wrapped not-exist error", err)
	}
}

func TestCustomersCSVWindows1252(t *testing.T) {
	t.Parallel()

	// "José" with 0xE9, as the legacy exporter writes it.
	raw := append([]byte("customer_id,name,surname,email,phone,city,country\n1,Jos"), 0xE9)
	raw = append(raw, []byte(",Prado,jose@example.com,,Lima,PE\n")...)
	path := writeFile(t, "customers.csv", raw)

	recs, err := CustomersCSV{Path: path, Opts: CSVOptions{Windows1252: true}}.Extract(context.Background())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(recs) != 1 || recs[0].Name != "José" {
		t.Fatalf("records = %+v", recs)
	}
	if recs[0].SourceID != 1 {
		t.Fatalf("source id = %d", recs[0].SourceID)
	}
}

func TestOrderDetailsCSVExtract(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "details.csv", []byte(
		"order_id,customer_id,product_id,quantity,price,date,status\n"+
			"ORD-7,3,9,4,2.5,2024-05-01,PENDING\n"))

	recs, err := OrderDetailsCSV{Path: path}.Extract(context.Background())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d", len(recs))
	}
	d := recs[0]
	if d.OrderID != "ORD-7" || d.CustomerID != 3 || d.ProductID != 9 || d.Quantity != 4 {
		t.Fatalf("detail = %+v", d)
	}
}

func TestSalesAPIRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[{"order_id":"ORD-1","customer_name":"Ana","email":"ana@example.com",` +
			`"product":"Widget","quantity":1,"price":5,"date":"2024-03-02","status":"COMPLETED"}]`))
	}))
	defer srv.Close()

	api := SalesAPI{URL: srv.URL, Retries: 3, sleep: func(time.Duration) {}}
	recs, err := api.Extract(context.Background())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	if len(recs) != 1 || recs[0].OrderID != "ORD-1" || recs[0].ProductName != "Widget" {
		t.Fatalf("records = %+v", recs)
	}
}

func TestSalesAPIGivesUpAfterRetryBudget(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	api := SalesAPI{URL: srv.URL, Retries: 2, sleep: func(time.Duration) {}}
	if _, err := api.Extract(context.Background()); err == nil {
		t.Fatal("want error after retry budget")
	}
}

func TestSalesHTMLReportExtract(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "report.html", []byte(`<html><body><table>
		<tr><th>Order</th><th>Customer</th><th>Email</th><th>Product</th><th>Category</th>
			<th>Qty</th><th>Price</th><th>Date</th><th>Status</th></tr>
		<tr><td>ORD-5</td><td>Ana</td><td>ana@example.com</td><td>Widget</td><td>Tools</td>
			<td>3</td><td>7.50</td><td>2024-04-01</td><td>PENDING</td></tr>
		</table></body></html>`))

	recs, err := SalesHTMLReport{Path: path}.Extract(context.Background())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	r := recs[0]
	if r.OrderID != "ORD-5" || r.Quantity != 3 || r.Price != 7.50 || r.Status != "PENDING" {
		t.Fatalf("record = %+v", r)
	}
}

type stubExtractor struct {
	name string
	recs []sales.Record
	err  error
}

func (s stubExtractor) Name() string { return s.name }
func (s stubExtractor) Extract(context.Context) ([]sales.Record, error) {
	return s.recs, s.err
}

func TestRunCapturesPerSourceOutcomes(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	outcomes := Run(context.Background(), nil, []Extractor[sales.Record]{
		stubExtractor{name: "a", recs: []sales.Record{{OrderID: "1"}}},
		stubExtractor{name: "b", err: boom},
		stubExtractor{name: "c", recs: []sales.Record{{OrderID: "2"}, {OrderID: "3"}}},
	})

	if len(outcomes) != 3 {
		t.Fatalf("outcomes = %d", len(outcomes))
	}
	// Registration order is preserved regardless of completion order.
	if outcomes[0].Source != "a" || outcomes[1].Source != "b" || outcomes[2].Source != "c" {
		t.Fatalf("order = %s,%s,%s", outcomes[0].Source, outcomes[1].Source, outcomes[2].Source)
	}
	if outcomes[1].Err == nil || !errors.Is(outcomes[1].Err, boom) {
		t.Fatalf("err = %v", outcomes[1].Err)
	}
	if len(outcomes[0].Records)+len(outcomes[2].Records) != 3 {
		t.Fatal("records lost")
	}
}
