package dimension

import (
	"context"
	"fmt"

	"salesdw/internal/storage"
)

// fakeStore is an in-memory Store for loader tests. Rows keep insert order
// and an auto-assigned surrogate key; conflict columns enforce idempotent
// inserts the way the real backends do.
type fakeStore struct {
	tables  map[string][]fakeRow
	nextID  int64
	updates int
	inserts int
}

type fakeRow struct {
	id   int64
	vals map[string]any
}

func newFakeStore() *fakeStore {
	return &fakeStore{tables: map[string][]fakeRow{}}
}

func (f *fakeStore) Close()                                  {}
func (f *fakeStore) EnsureSchema(ctx context.Context) error { return nil }

func (f *fakeStore) SelectDimAll(ctx context.Context, table, keyCol, idCol, hashCol string) (map[string]storage.DimRow, error) {
	out := map[string]storage.DimRow{}
	for _, r := range f.tables[table] {
		key := storage.NormalizeKey(r.vals[keyCol])
		if _, seen := out[key]; seen {
			continue
		}
		row := storage.DimRow{ID: r.id}
		if hashCol != "" {
			row.Hash, _ = r.vals[hashCol].(string)
		}
		out[key] = row
	}
	return out, nil
}

func (f *fakeStore) SelectKeyIDByKeys(ctx context.Context, table, keyCol, idCol string, keys []any) (map[string]int64, error) {
	want := map[string]struct{}{}
	for _, k := range keys {
		want[storage.NormalizeKey(k)] = struct{}{}
	}
	out := map[string]int64{}
	for _, r := range f.tables[table] {
		key := storage.NormalizeKey(r.vals[keyCol])
		if _, ok := want[key]; !ok {
			continue
		}
		if _, seen := out[key]; !seen {
			out[key] = r.id
		}
	}
	return out, nil
}

func (f *fakeStore) InsertRows(ctx context.Context, table string, columns []string, rows [][]any, conflictCols []string) (int64, error) {
	var n int64
next:
	for _, row := range rows {
		if len(row) != len(columns) {
			return n, fmt.Errorf("row width %d != %d columns", len(row), len(columns))
		}
		vals := map[string]any{}
		for i, c := range columns {
			vals[c] = row[i]
		}
		for _, existing := range f.tables[table] {
			match := len(conflictCols) > 0
			for _, c := range conflictCols {
				if storage.NormalizeKey(existing.vals[c]) != storage.NormalizeKey(vals[c]) {
					match = false
					break
				}
			}
			if match {
				continue next
			}
		}
		f.nextID++
		f.tables[table] = append(f.tables[table], fakeRow{id: f.nextID, vals: vals})
		f.inserts++
		n++
	}
	return n, nil
}

func (f *fakeStore) UpdateByID(ctx context.Context, table, idCol string, id int64, columns []string, values []any) error {
	for i, r := range f.tables[table] {
		if r.id == id {
			for j, c := range columns {
				f.tables[table][i].vals[c] = values[j]
			}
			f.updates++
			return nil
		}
	}
	return fmt.Errorf("no row id=%d in %s", id, table)
}

func (f *fakeStore) SelectStringSet(ctx context.Context, table, col string) (map[string]struct{}, error) {
	out := map[string]struct{}{}
	for _, r := range f.tables[table] {
		out[fmt.Sprint(r.vals[col])] = struct{}{}
	}
	return out, nil
}

func (f *fakeStore) SelectIDSet(ctx context.Context, table, col string) (map[int64]struct{}, error) {
	out := map[int64]struct{}{}
	for _, r := range f.tables[table] {
		switch v := r.vals[col].(type) {
		case int64:
			out[v] = struct{}{}
		default:
			out[r.id] = struct{}{}
		}
	}
	return out, nil
}

// SelectIDSet above is only meaningful for surrogate-key columns; the fake
// treats any other column as the row id.

func (f *fakeStore) CountRows(ctx context.Context, table string) (int64, error) {
	return int64(len(f.tables[table])), nil
}

func (f *fakeStore) CountOrphanFacts(ctx context.Context, fkCol, dimTable, dimIDCol string) (int64, error) {
	dimIDs := map[int64]struct{}{}
	for _, r := range f.tables[dimTable] {
		dimIDs[r.id] = struct{}{}
	}
	var n int64
	for _, r := range f.tables[storage.TableFact] {
		fk, _ := r.vals[fkCol].(int64)
		if _, ok := dimIDs[fk]; !ok {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) SalesByStatus(ctx context.Context) ([]storage.StatusTotal, error) {
	return nil, nil
}

func (f *fakeStore) SalesByMonth(ctx context.Context) ([]storage.MonthTotal, error) {
	return nil, nil
}

func (f *fakeStore) row(table string, id int64) map[string]any {
	for _, r := range f.tables[table] {
		if r.id == id {
			return r.vals
		}
	}
	return nil
}
