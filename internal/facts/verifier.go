package facts

import (
	"context"
	"fmt"

	"salesdw/internal/storage"
)

// Report is the post-load verification result.
type Report struct {
	Facts     int64
	Customers int64
	Products  int64
	Dates     int64
	Statuses  int64

	OrphanCustomers int64
	OrphanProducts  int64

	ByStatus []storage.StatusTotal
	ByMonth  []storage.MonthTotal
}

// OK reports whether the warehouse passed: no fact row may reference a
// missing customer or product.
func (r Report) OK() bool {
	return r.OrphanCustomers == 0 && r.OrphanProducts == 0
}

// Verifier runs the post-load integrity checks and aggregates.
type Verifier struct {
	store storage.Store
	log   Logger
}

func NewVerifier(store storage.Store, log Logger) *Verifier {
	if log == nil {
		log = discardLogger{}
	}
	return &Verifier{store: store, log: log}
}

func (v *Verifier) Verify(ctx context.Context) (Report, error) {
	var r Report
	var err error

	counts := []struct {
		table string
		dst   *int64
	}{
		{storage.TableFact, &r.Facts},
		{storage.TableCustomer, &r.Customers},
		{storage.TableProduct, &r.Products},
		{storage.TableTime, &r.Dates},
		{storage.TableStatus, &r.Statuses},
	}
	for _, c := range counts {
		if *c.dst, err = v.store.CountRows(ctx, c.table); err != nil {
			return r, fmt.Errorf("verify counts: %w", err)
		}
	}

	if r.OrphanCustomers, err = v.store.CountOrphanFacts(ctx, storage.ColCustomerID, storage.TableCustomer, storage.ColCustomerID); err != nil {
		return r, fmt.Errorf("verify customer orphans: %w", err)
	}
	if r.OrphanProducts, err = v.store.CountOrphanFacts(ctx, storage.ColProductID, storage.TableProduct, storage.ColProductID); err != nil {
		return r, fmt.Errorf("verify product orphans: %w", err)
	}

	if r.ByStatus, err = v.store.SalesByStatus(ctx); err != nil {
		return r, fmt.Errorf("verify status totals: %w", err)
	}
	if r.ByMonth, err = v.store.SalesByMonth(ctx); err != nil {
		return r, fmt.Errorf("verify month totals: %w", err)
	}

	v.log.Printf("stage=verify facts=%d customers=%d products=%d dates=%d statuses=%d orphans=%d/%d ok=%t",
		r.Facts, r.Customers, r.Products, r.Dates, r.Statuses,
		r.OrphanCustomers, r.OrphanProducts, r.OK())
	return r, nil
}
