package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"salesdw/internal/sales"
)

// SalesAPI extracts sale records from the remote sales endpoint. The endpoint
// returns a JSON array; transient failures (network errors and 5xx) are
// retried with exponential backoff before the source is declared failed.
type SalesAPI struct {
	URL     string
	Client  *http.Client
	Retries int

	// sleep is injectable so tests run without real waits.
	sleep func(time.Duration)
}

func (a SalesAPI) Name() string { return "sales_api:" + a.URL }

type apiSale struct {
	OrderID         string  `json:"order_id"`
	CustomerName    string  `json:"customer_name"`
	CustomerSurname string  `json:"customer_surname"`
	Email           string  `json:"email"`
	Product         string  `json:"product"`
	Category        string  `json:"category"`
	Quantity        int     `json:"quantity"`
	Price           float64 `json:"price"`
	Date            string  `json:"date"`
	Status          string  `json:"status"`
}

func (a SalesAPI) Extract(ctx context.Context) ([]sales.Record, error) {
	body, err := a.fetch(ctx)
	if err != nil {
		return nil, err
	}

	var raw []apiSale
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", a.URL, err)
	}

	out := make([]sales.Record, 0, len(raw))
	for _, r := range raw {
		out = append(out, sales.Record{
			OrderID:         r.OrderID,
			CustomerName:    r.CustomerName,
			CustomerSurname: r.CustomerSurname,
			CustomerEmail:   r.Email,
			ProductName:     r.Product,
			Category:        r.Category,
			Quantity:        r.Quantity,
			Price:           r.Price,
			SaleDate:        parseAPIDate(r.Date),
			Status:          r.Status,
		})
	}
	return out, nil
}

func parseAPIDate(s string) time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func (a SalesAPI) fetch(ctx context.Context) ([]byte, error) {
	client := a.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	retries := a.Retries
	if retries <= 0 {
		retries = 3
	}
	sleep := a.sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	backoff := 500 * time.Millisecond
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if attempt > 1 {
			sleep(backoff)
			backoff *= 2
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("%s: status %d", a.URL, resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%s: status %d", a.URL, resp.StatusCode)
		}
		return body, nil
	}
	return nil, fmt.Errorf("fetch %s: %w", a.URL, lastErr)
}
