// Package facts loads fact_sales and verifies the result. The loader is
// idempotent at two levels: it filters order keys already in the warehouse,
// and the insert itself ignores conflicts on order_id, so a rerun of the same
// input loads nothing twice.
package facts

import (
	"context"
	"fmt"

	"salesdw/internal/clock"
	"salesdw/internal/metrics"
	"salesdw/internal/sales"
	"salesdw/internal/storage"
)

// Logger is the minimal logging facility this package uses.
type Logger interface {
	Printf(format string, v ...any)
}

type discardLogger struct{}

func (discardLogger) Printf(string, ...any) {}

// DefaultBatchSize caps fact rows per insert statement.
const DefaultBatchSize = 1000

// LoadStats summarizes one fact load.
type LoadStats struct {
	// Loaded is the number of fact rows actually inserted.
	Loaded int
	// AlreadyLoaded counts candidates whose order key was in the warehouse
	// before this run.
	AlreadyLoaded int
	// BadRefs counts candidates rejected because a surrogate key did not
	// exist in its dimension.
	BadRefs int
}

// Loader writes fact rows.
type Loader struct {
	store storage.Store
	clk   clock.Clock
	log   Logger
	batch int
}

func NewLoader(store storage.Store, clk clock.Clock, log Logger, batch int) *Loader {
	if log == nil {
		log = discardLogger{}
	}
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &Loader{store: store, clk: clk, log: log, batch: batch}
}

var factCols = []string{"order_id", "customer_id", "product_id", "time_id", "status_id", "quantity", "unit_price", "total", "loaded_at"}

// Load inserts the candidates that survive the idempotency and referential
// guards. Every surrogate key is checked against the dimension's current key
// set before insert; a fact row never points at a missing dimension row.
func (l *Loader) Load(ctx context.Context, cands []sales.FactCandidate) (LoadStats, error) {
	var stats LoadStats
	if len(cands) == 0 {
		return stats, nil
	}

	existing, err := l.store.SelectStringSet(ctx, storage.TableFact, storage.ColOrderID)
	if err != nil {
		return stats, fmt.Errorf("load existing order keys: %w", err)
	}
	customerIDs, err := l.store.SelectIDSet(ctx, storage.TableCustomer, storage.ColCustomerID)
	if err != nil {
		return stats, fmt.Errorf("load customer keys: %w", err)
	}
	productIDs, err := l.store.SelectIDSet(ctx, storage.TableProduct, storage.ColProductID)
	if err != nil {
		return stats, fmt.Errorf("load product keys: %w", err)
	}
	timeIDs, err := l.store.SelectIDSet(ctx, storage.TableTime, storage.ColTimeID)
	if err != nil {
		return stats, fmt.Errorf("load time keys: %w", err)
	}
	statusIDs, err := l.store.SelectIDSet(ctx, storage.TableStatus, storage.ColStatusID)
	if err != nil {
		return stats, fmt.Errorf("load status keys: %w", err)
	}

	now := l.clk.Now()
	var rows [][]any
	seen := make(map[string]struct{}, len(cands))
	for _, c := range cands {
		if _, dup := seen[c.OrderID]; dup {
			stats.AlreadyLoaded++
			continue
		}
		seen[c.OrderID] = struct{}{}

		if _, ok := existing[c.OrderID]; ok {
			stats.AlreadyLoaded++
			continue
		}
		if !validRef(customerIDs, c.CustomerID) || !validRef(productIDs, c.ProductID) ||
			!validRef(timeIDs, c.TimeID) || !validRef(statusIDs, c.StatusID) {
			stats.BadRefs++
			l.log.Printf("stage=facts skip=bad_ref order=%s customer=%d product=%d time=%d status=%d",
				c.OrderID, c.CustomerID, c.ProductID, c.TimeID, c.StatusID)
			continue
		}
		rows = append(rows, []any{
			c.OrderID, c.CustomerID, c.ProductID, c.TimeID, c.StatusID,
			c.Quantity, c.UnitPrice, c.Total, now,
		})
	}

	for start := 0; start < len(rows); start += l.batch {
		chunk := rows[start:min(start+l.batch, len(rows))]
		n, err := l.store.InsertRows(ctx, storage.TableFact, factCols, chunk, []string{storage.ColOrderID})
		if err != nil {
			return stats, fmt.Errorf("insert facts: %w", err)
		}
		stats.Loaded += int(n)
		metrics.RecordBatches(1)
	}

	l.log.Printf("stage=facts loaded=%d already_loaded=%d bad_refs=%d",
		stats.Loaded, stats.AlreadyLoaded, stats.BadRefs)
	return stats, nil
}

func validRef(set map[int64]struct{}, id int64) bool {
	_, ok := set[id]
	return ok
}
