package dimension

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"salesdw/internal/clock"
	"salesdw/internal/sales"
	"salesdw/internal/storage"
)

// UnknownCustomerEmail keys the sentinel row facts fall back to when a sale
// has no resolvable customer.
const UnknownCustomerEmail = "unknown@sales.local"

var customerAttrCols = []string{"first_name", "last_name", "phone", "city", "country"}

// CustomerLoader maintains dim_customer, keyed by lowercased email.
type CustomerLoader struct {
	store storage.Store
	clk   clock.Clock
	log   Logger
	batch int

	cache     map[string]storage.DimRow
	unknownID int64
}

func NewCustomerLoader(store storage.Store, clk clock.Clock, log Logger, batch int) *CustomerLoader {
	if log == nil {
		log = discardLogger{}
	}
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &CustomerLoader{store: store, clk: clk, log: log, batch: batch}
}

// Prime loads the whole dimension into the cache. Call once per run before
// LoadBatch or Resolve.
func (l *CustomerLoader) Prime(ctx context.Context) error {
	rows, err := l.store.SelectDimAll(ctx, storage.TableCustomer, storage.ColEmail, storage.ColCustomerID, storage.ColRowHash)
	if err != nil {
		return fmt.Errorf("prime customers: %w", err)
	}
	l.cache = rows
	l.unknownID = 0
	if row, ok := rows[UnknownCustomerEmail]; ok {
		l.unknownID = row.ID
	}
	return nil
}

// CustomerKey returns the natural key for a source customer record. Records
// without an email get a deterministic placeholder derived from the source
// row id, so reruns key the same customer identically.
func CustomerKey(r sales.CustomerRecord) string {
	email := strings.ToLower(strings.TrimSpace(r.Email))
	if email != "" {
		return email
	}
	return "no-email-" + strconv.FormatInt(r.SourceID, 10) + "@sales.local"
}

// LoadBatch upserts source customers: unseen keys are inserted, known keys
// with changed attributes are overwritten in place, unchanged keys are left
// alone. Returns inserted and updated counts.
func (l *CustomerLoader) LoadBatch(ctx context.Context, recs []sales.CustomerRecord) (inserted, updated int, err error) {
	if l.cache == nil {
		if err := l.Prime(ctx); err != nil {
			return 0, 0, err
		}
	}
	now := l.clk.Now()

	type pending struct {
		key  string
		rec  sales.CustomerRecord
		hash string
	}
	var newRows []pending
	var changed []pending
	seen := make(map[string]struct{}, len(recs))

	for _, r := range recs {
		key := CustomerKey(r)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		name := strings.ToUpper(strings.TrimSpace(r.Name))
		if name == "" {
			name = sales.UnknownName
		}
		p := pending{key: key, rec: r}
		p.rec.Name = name
		p.rec.Surname = strings.ToUpper(strings.TrimSpace(r.Surname))
		p.rec.Phone = strings.TrimSpace(r.Phone)
		p.rec.City = strings.ToUpper(strings.TrimSpace(r.City))
		p.rec.Country = strings.ToUpper(strings.TrimSpace(r.Country))
		p.hash = attrHash(p.rec.Name, p.rec.Surname, p.rec.Phone, p.rec.City, p.rec.Country)

		if row, ok := l.cache[key]; ok {
			if row.Hash != p.hash {
				changed = append(changed, p)
			}
			continue
		}
		newRows = append(newRows, p)
	}

	if len(newRows) > 0 {
		cols := []string{"email", "first_name", "last_name", "phone", "city", "country", "row_hash", "created_at"}
		rows := make([][]any, len(newRows))
		keys := make([]any, len(newRows))
		for i, p := range newRows {
			rows[i] = []any{p.key, p.rec.Name, p.rec.Surname, p.rec.Phone, p.rec.City, p.rec.Country, p.hash, now}
			keys[i] = p.key
		}
		for _, chunk := range chunkRows(rows, l.batch) {
			n, err := l.store.InsertRows(ctx, storage.TableCustomer, cols, chunk, []string{storage.ColEmail})
			if err != nil {
				return inserted, updated, fmt.Errorf("insert customers: %w", err)
			}
			inserted += int(n)
		}
		ids, err := l.store.SelectKeyIDByKeys(ctx, storage.TableCustomer, storage.ColEmail, storage.ColCustomerID, keys)
		if err != nil {
			return inserted, updated, fmt.Errorf("refresh customer keys: %w", err)
		}
		for _, p := range newRows {
			id, ok := ids[p.key]
			if !ok {
				return inserted, updated, fmt.Errorf("customer key %q missing after insert", p.key)
			}
			l.cache[p.key] = storage.DimRow{ID: id, Hash: p.hash}
		}
	}

	for _, p := range changed {
		row := l.cache[p.key]
		vals := []any{p.rec.Name, p.rec.Surname, p.rec.Phone, p.rec.City, p.rec.Country, p.hash, now}
		cols := append(append([]string{}, customerAttrCols...), storage.ColRowHash, "updated_at")
		if err := l.store.UpdateByID(ctx, storage.TableCustomer, storage.ColCustomerID, row.ID, cols, vals); err != nil {
			return inserted, updated, fmt.Errorf("update customer %s: %w", p.key, err)
		}
		l.cache[p.key] = storage.DimRow{ID: row.ID, Hash: p.hash}
		updated++
	}

	l.log.Printf("stage=dimension table=%s inserted=%d updated=%d cached=%d",
		storage.TableCustomer, inserted, updated, len(l.cache))
	return inserted, updated, nil
}

// Resolve returns the surrogate key for an email, if loaded.
func (l *CustomerLoader) Resolve(email string) (int64, bool) {
	row, ok := l.cache[strings.ToLower(strings.TrimSpace(email))]
	return row.ID, ok
}

// UnknownID returns the sentinel customer's surrogate key, creating the row
// on first use. The id is memoized for the run.
func (l *CustomerLoader) UnknownID(ctx context.Context) (int64, error) {
	if l.unknownID != 0 {
		return l.unknownID, nil
	}
	now := l.clk.Now()
	hash := attrHash(sales.UnknownName, "", "", "", "")
	_, err := l.store.InsertRows(ctx, storage.TableCustomer,
		[]string{"email", "first_name", "last_name", "phone", "city", "country", "row_hash", "created_at"},
		[][]any{{UnknownCustomerEmail, sales.UnknownName, "", "", "", "", hash, now}},
		[]string{storage.ColEmail})
	if err != nil {
		return 0, fmt.Errorf("insert unknown customer: %w", err)
	}
	ids, err := l.store.SelectKeyIDByKeys(ctx, storage.TableCustomer, storage.ColEmail, storage.ColCustomerID, []any{UnknownCustomerEmail})
	if err != nil {
		return 0, fmt.Errorf("resolve unknown customer: %w", err)
	}
	id, ok := ids[UnknownCustomerEmail]
	if !ok {
		return 0, fmt.Errorf("unknown customer missing after insert")
	}
	l.unknownID = id
	if l.cache != nil {
		l.cache[UnknownCustomerEmail] = storage.DimRow{ID: id, Hash: hash}
	}
	return id, nil
}
