package dimension

import (
	"context"
	"fmt"
	"strings"

	"salesdw/internal/clock"
	"salesdw/internal/sales"
	"salesdw/internal/storage"
)

// StatusLoader maintains dim_status, keyed by the uppercased status label.
// The dimension is append-only: labels are created on first sight and never
// updated or deleted by the pipeline.
type StatusLoader struct {
	store storage.Store
	clk   clock.Clock
	log   Logger

	cache map[string]int64
}

func NewStatusLoader(store storage.Store, clk clock.Clock, log Logger) *StatusLoader {
	if log == nil {
		log = discardLogger{}
	}
	return &StatusLoader{store: store, clk: clk, log: log}
}

func (l *StatusLoader) Prime(ctx context.Context) error {
	rows, err := l.store.SelectDimAll(ctx, storage.TableStatus, storage.ColStatusName, storage.ColStatusID, "")
	if err != nil {
		return fmt.Errorf("prime statuses: %w", err)
	}
	l.cache = make(map[string]int64, len(rows))
	for k, row := range rows {
		l.cache[k] = row.ID
	}
	return nil
}

func statusKey(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// EnsureStatus resolves a status label to its surrogate key, creating the row
// on first sight. Blank labels map to the default status.
func (l *StatusLoader) EnsureStatus(ctx context.Context, name string) (int64, error) {
	if l.cache == nil {
		if err := l.Prime(ctx); err != nil {
			return 0, err
		}
	}
	key := statusKey(name)
	if key == "" {
		key = sales.DefaultStatus
	}
	if id, ok := l.cache[key]; ok {
		return id, nil
	}

	now := l.clk.Now()
	_, err := l.store.InsertRows(ctx, storage.TableStatus,
		[]string{"name", "description", "active", "created_at"},
		[][]any{{key, "Status " + key, true, now}},
		[]string{storage.ColStatusName})
	if err != nil {
		return 0, fmt.Errorf("insert status %s: %w", key, err)
	}
	ids, err := l.store.SelectKeyIDByKeys(ctx, storage.TableStatus, storage.ColStatusName, storage.ColStatusID, []any{key})
	if err != nil {
		return 0, fmt.Errorf("resolve status %s: %w", key, err)
	}
	id, ok := ids[key]
	if !ok {
		return 0, fmt.Errorf("status %s missing after insert", key)
	}
	l.cache[key] = id
	l.log.Printf("stage=dimension table=%s created=%s id=%d", storage.TableStatus, key, id)
	return id, nil
}

// Resolve returns the surrogate key for a label, if loaded.
func (l *StatusLoader) Resolve(name string) (int64, bool) {
	id, ok := l.cache[statusKey(name)]
	return id, ok
}
