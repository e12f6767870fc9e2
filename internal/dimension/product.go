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

// ProductLoader maintains dim_product, keyed by lowercased product name.
//
// Product names are not unique at the database level; when the table holds
// duplicates the cache keeps the first row, so resolution is stable across
// runs without rewriting history.
type ProductLoader struct {
	store storage.Store
	clk   clock.Clock
	log   Logger
	batch int

	cache     map[string]storage.DimRow
	unknownID int64
}

func NewProductLoader(store storage.Store, clk clock.Clock, log Logger, batch int) *ProductLoader {
	if log == nil {
		log = discardLogger{}
	}
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &ProductLoader{store: store, clk: clk, log: log, batch: batch}
}

func (l *ProductLoader) Prime(ctx context.Context) error {
	rows, err := l.store.SelectDimAll(ctx, storage.TableProduct, storage.ColProductName, storage.ColProductID, storage.ColRowHash)
	if err != nil {
		return fmt.Errorf("prime products: %w", err)
	}
	// Stored names are upper-cased; the cache is keyed by the case-folded
	// form so lookups hit rows written by earlier runs. On a case collision
	// the lowest surrogate key wins, keeping first-match resolution stable.
	cache := make(map[string]storage.DimRow, len(rows))
	for name, row := range rows {
		key := productKey(name)
		if cur, ok := cache[key]; !ok || row.ID < cur.ID {
			cache[key] = row
		}
	}
	l.cache = cache
	l.unknownID = 0
	if row, ok := cache[productKey(sales.UnknownName)]; ok {
		l.unknownID = row.ID
	}
	return nil
}

func productKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// LoadBatch upserts source products by name. Duplicate names within the batch
// collapse to the first occurrence.
func (l *ProductLoader) LoadBatch(ctx context.Context, recs []sales.ProductRecord) (inserted, updated int, err error) {
	if l.cache == nil {
		if err := l.Prime(ctx); err != nil {
			return 0, 0, err
		}
	}
	now := l.clk.Now()

	type pending struct {
		key  string
		rec  sales.ProductRecord
		hash string
	}
	var newRows []pending
	var changed []pending
	seen := make(map[string]struct{}, len(recs))

	for _, r := range recs {
		name := strings.ToUpper(strings.TrimSpace(r.Name))
		if name == "" {
			name = sales.UnknownName
		}
		key := productKey(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		p := pending{key: key, rec: r}
		p.rec.Name = name
		p.rec.Category = strings.ToUpper(strings.TrimSpace(r.Category))
		if p.rec.Category == "" {
			p.rec.Category = sales.NoCategory
		}
		p.hash = attrHash(p.rec.Category, formatPrice(p.rec.BasePrice), strconv.Itoa(p.rec.Stock))

		if row, ok := l.cache[key]; ok {
			if row.Hash != p.hash {
				changed = append(changed, p)
			}
			continue
		}
		newRows = append(newRows, p)
	}

	if len(newRows) > 0 {
		cols := []string{"name", "category", "base_price", "stock", "row_hash", "created_at"}
		rows := make([][]any, len(newRows))
		keys := make([]any, len(newRows))
		for i, p := range newRows {
			rows[i] = []any{p.rec.Name, p.rec.Category, p.rec.BasePrice, p.rec.Stock, p.hash, now}
			keys[i] = p.rec.Name
		}
		for _, chunk := range chunkRows(rows, l.batch) {
			n, err := l.store.InsertRows(ctx, storage.TableProduct, cols, chunk, nil)
			if err != nil {
				return inserted, updated, fmt.Errorf("insert products: %w", err)
			}
			inserted += int(n)
		}
		ids, err := l.store.SelectKeyIDByKeys(ctx, storage.TableProduct, storage.ColProductName, storage.ColProductID, keys)
		if err != nil {
			return inserted, updated, fmt.Errorf("refresh product keys: %w", err)
		}
		for _, p := range newRows {
			id, ok := ids[storage.NormalizeKey(p.rec.Name)]
			if !ok {
				return inserted, updated, fmt.Errorf("product key %q missing after insert", p.rec.Name)
			}
			l.cache[p.key] = storage.DimRow{ID: id, Hash: p.hash}
		}
	}

	for _, p := range changed {
		row := l.cache[p.key]
		cols := []string{"category", "base_price", "stock", storage.ColRowHash, "updated_at"}
		vals := []any{p.rec.Category, p.rec.BasePrice, p.rec.Stock, p.hash, now}
		if err := l.store.UpdateByID(ctx, storage.TableProduct, storage.ColProductID, row.ID, cols, vals); err != nil {
			return inserted, updated, fmt.Errorf("update product %s: %w", p.key, err)
		}
		l.cache[p.key] = storage.DimRow{ID: row.ID, Hash: p.hash}
		updated++
	}

	l.log.Printf("stage=dimension table=%s inserted=%d updated=%d cached=%d",
		storage.TableProduct, inserted, updated, len(l.cache))
	return inserted, updated, nil
}

// Resolve returns the surrogate key for a product name, if loaded.
func (l *ProductLoader) Resolve(name string) (int64, bool) {
	row, ok := l.cache[productKey(name)]
	return row.ID, ok
}

// UnknownID returns the sentinel product's surrogate key, creating the row on
// first use.
func (l *ProductLoader) UnknownID(ctx context.Context) (int64, error) {
	if l.unknownID != 0 {
		return l.unknownID, nil
	}
	now := l.clk.Now()
	hash := attrHash(sales.NoCategory, formatPrice(0), "0")
	_, err := l.store.InsertRows(ctx, storage.TableProduct,
		[]string{"name", "category", "base_price", "stock", "row_hash", "created_at"},
		[][]any{{sales.UnknownName, sales.NoCategory, 0.0, int64(0), hash, now}}, nil)
	if err != nil {
		return 0, fmt.Errorf("insert unknown product: %w", err)
	}
	ids, err := l.store.SelectKeyIDByKeys(ctx, storage.TableProduct, storage.ColProductName, storage.ColProductID, []any{sales.UnknownName})
	if err != nil {
		return 0, fmt.Errorf("resolve unknown product: %w", err)
	}
	id, ok := ids[sales.UnknownName]
	if !ok {
		return 0, fmt.Errorf("unknown product missing after insert")
	}
	l.unknownID = id
	if l.cache != nil {
		l.cache[productKey(sales.UnknownName)] = storage.DimRow{ID: id, Hash: hash}
	}
	return id, nil
}
