// Package storage defines the backend-agnostic warehouse store used by the
// dimension loaders, the fact loader and the verifier, plus the backend
// registry. Concrete backends live in subpackages (postgres, sqlite, mssql)
// and register themselves via init().
package storage

import (
	"context"
	"fmt"
	"sync"
)

// Config is the minimal configuration needed to open a Store.
type Config struct {
	Kind string
	DSN  string
}

// DimRow is a dimension row as seen by the per-run caches: the assigned
// surrogate key plus the stored attribute hash (empty for dimensions that do
// not track one).
type DimRow struct {
	ID   int64
	Hash string
}

// StatusTotal is the per-status sales aggregate reported by the verifier.
type StatusTotal struct {
	Status string
	Count  int64
	Total  float64
}

// MonthTotal is the per-year/month sales aggregate reported by the verifier.
type MonthTotal struct {
	Year      int
	Month     int
	MonthName string
	Count     int64
	Total     float64
}

// Store is the relational warehouse as the loading engine sees it: bulk reads
// of full tables, chunked idempotent inserts, targeted attribute updates and
// the count/aggregate queries verification needs.
//
// Each backend implements the idempotent-insert semantics its engine offers
// (Postgres ON CONFLICT DO NOTHING, SQLite INSERT OR IGNORE, MSSQL
// NOT EXISTS guard). Unique constraints on the dimension natural keys and the
// fact order key are the last-resort integrity backstop; the engine's own
// guards run first.
type Store interface {
	// Close releases backend resources. Call once at shutdown.
	Close()

	// EnsureSchema creates the warehouse tables and constraints if missing.
	// Idempotent.
	EnsureSchema(ctx context.Context) error

	// SelectDimAll reads a full dimension table into a natural-key -> row
	// mapping. hashCol may be empty for dimensions without an attribute hash.
	// Map keys are NormalizeKey(raw key); the first row wins when keys
	// collide, so duplicated product names resolve stably.
	SelectDimAll(ctx context.Context, table, keyCol, idCol, hashCol string) (map[string]DimRow, error)

	// SelectKeyIDByKeys resolves surrogate keys for a specific key set,
	// chunked to bound statement size.
	SelectKeyIDByKeys(ctx context.Context, table, keyCol, idCol string, keys []any) (map[string]int64, error)

	// InsertRows bulk-inserts rows. When conflictCols is non-empty the insert
	// is idempotent on those columns; the returned count reflects rows
	// actually inserted.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any, conflictCols []string) (int64, error)

	// UpdateByID overwrites the given columns of one row (SCD1 overwrite).
	UpdateByID(ctx context.Context, table, idCol string, id int64, columns []string, values []any) error

	// SelectStringSet reads a full string column as a set (fact order keys).
	SelectStringSet(ctx context.Context, table, col string) (map[string]struct{}, error)

	// SelectIDSet reads a full surrogate-key column as a set.
	SelectIDSet(ctx context.Context, table, col string) (map[int64]struct{}, error)

	// CountRows returns the row count of a table.
	CountRows(ctx context.Context, table string) (int64, error)

	// CountOrphanFacts counts fact rows whose fkCol has no matching row in
	// dimTable. Should be zero given the loader's referential guard.
	CountOrphanFacts(ctx context.Context, fkCol, dimTable, dimIDCol string) (int64, error)

	// SalesByStatus aggregates fact totals per status label.
	SalesByStatus(ctx context.Context) ([]StatusTotal, error)

	// SalesByMonth aggregates fact totals per calendar year/month, ordered
	// chronologically.
	SalesByMonth(ctx context.Context) ([]MonthTotal, error)
}

type factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
// Called from backend init() functions; registering a kind twice panics so an
// ambiguous backend selection fails fast.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Open constructs a Store using the registered backend factory for cfg.Kind.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
