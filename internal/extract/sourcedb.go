package extract

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"salesdw/internal/sales"
)

// OrderDetailsDB extracts order lines from the operational database. The
// caller owns the *sql.DB (driver and DSN are deployment concerns); the query
// joins the source order and order-line tables into one row per line.
type OrderDetailsDB struct {
	DB     *sql.DB
	Source string
}

func (o OrderDetailsDB) Name() string { return "order_details_db:" + o.Source }

const orderDetailsQuery = `SELECT o.order_ref, l.customer_id, l.product_id,
		l.quantity, l.unit_price, o.sale_date, o.status
	FROM order_lines l
	JOIN orders o ON o.id = l.order_id
	ORDER BY o.id, l.id`

func (o OrderDetailsDB) Extract(ctx context.Context) ([]sales.OrderDetail, error) {
	rows, err := o.DB.QueryContext(ctx, orderDetailsQuery)
	if err != nil {
		return nil, fmt.Errorf("query order details: %w", err)
	}
	defer rows.Close()

	var out []sales.OrderDetail
	for rows.Next() {
		var d sales.OrderDetail
		var saleDate any
		if err := rows.Scan(&d.OrderID, &d.CustomerID, &d.ProductID,
			&d.Quantity, &d.Price, &saleDate, &d.Status); err != nil {
			return nil, fmt.Errorf("scan order detail: %w", err)
		}
		d.SaleDate = coerceTime(saleDate)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read order details: %w", err)
	}
	return out, nil
}

// coerceTime handles the scan types different drivers produce for date
// columns.
func coerceTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		return parseAPIDate(t)
	case []byte:
		return parseAPIDate(string(t))
	default:
		return time.Time{}
	}
}
