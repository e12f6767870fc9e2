// Package sqlite implements the warehouse Store on SQLite. It exists for
// local development and tests; the storage contract matches the server
// backends, with INSERT OR IGNORE standing in for ON CONFLICT DO NOTHING.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"salesdw/internal/storage"
)

func init() {
	storage.Register("sqlite", New)
}

type Store struct {
	db    *sql.DB
	retry storage.Retryer
}

// New opens a SQLite-backed Store. cfg.DSN is a file path or ":memory:".
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; one connection avoids table-lock errors
	// under the engine's batched writes.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() { s.db.Close() }

func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, ddl := range schemaDDL {
		if err := s.exec(ctx, ddl); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Dates and timestamps are stored as TEXT: dates as 2006-01-02 so natural-key
// lookups round-trip byte-for-byte, timestamps as RFC3339Nano.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS dim_customer (
		customer_id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT '',
		row_hash TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT,
		UNIQUE (email)
	);`,
	`CREATE TABLE IF NOT EXISTS dim_product (
		product_id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		base_price REAL NOT NULL DEFAULT 0,
		stock INTEGER NOT NULL DEFAULT 0,
		row_hash TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS dim_time (
		time_id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		day INTEGER NOT NULL,
		quarter INTEGER NOT NULL,
		month_name TEXT NOT NULL,
		weekday TEXT NOT NULL,
		is_weekend INTEGER NOT NULL,
		is_holiday INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (date)
	);`,
	`CREATE TABLE IF NOT EXISTS dim_status (
		status_id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT,
		UNIQUE (name)
	);`,
	`CREATE TABLE IF NOT EXISTS fact_sales (
		sale_id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id TEXT NOT NULL,
		customer_id INTEGER NOT NULL REFERENCES dim_customer (customer_id),
		product_id INTEGER NOT NULL REFERENCES dim_product (product_id),
		time_id INTEGER NOT NULL REFERENCES dim_time (time_id),
		status_id INTEGER NOT NULL REFERENCES dim_status (status_id),
		quantity INTEGER NOT NULL,
		unit_price REAL NOT NULL,
		total REAL NOT NULL,
		loaded_at TEXT NOT NULL,
		UNIQUE (order_id)
	);`,
}

func (s *Store) SelectDimAll(ctx context.Context, table, keyCol, idCol, hashCol string) (map[string]storage.DimRow, error) {
	if table == "" || keyCol == "" || idCol == "" {
		return nil, fmt.Errorf("SelectDimAll: table, keyCol, idCol are required")
	}

	cols := sqlIdent(keyCol) + ", " + sqlIdent(idCol)
	if hashCol != "" {
		cols += ", " + sqlIdent(hashCol)
	}
	// Surrogate-key order makes first-row-wins deterministic when the table
	// holds duplicate keys (dim_product has no unique name constraint).
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", cols, table, sqlIdent(idCol))

	out := make(map[string]storage.DimRow)
	err := s.do(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, q)
		if err != nil {
			return err
		}
		defer rows.Close()

		clear(out)
		for rows.Next() {
			var k any
			var row storage.DimRow
			if hashCol != "" {
				if err := rows.Scan(&k, &row.ID, &row.Hash); err != nil {
					return err
				}
			} else {
				if err := rows.Scan(&k, &row.ID); err != nil {
					return err
				}
			}
			// First row wins on duplicate keys (duplicate product names).
			key := storage.NormalizeKey(k)
			if _, seen := out[key]; !seen {
				out[key] = row
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("SelectDimAll: %s: %w", table, err)
	}
	return out, nil
}

func (s *Store) SelectKeyIDByKeys(ctx context.Context, table, keyCol, idCol string, keys []any) (map[string]int64, error) {
	if len(keys) == 0 {
		return map[string]int64{}, nil
	}

	const chunk = 500
	out := make(map[string]int64, len(keys))

	for start := 0; start < len(keys); start += chunk {
		part := keys[start:min(start+chunk, len(keys))]

		q := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s IN (%s) ORDER BY %s",
			sqlIdent(keyCol), sqlIdent(idCol), table, sqlIdent(keyCol),
			placeholders(len(part)), sqlIdent(idCol))

		args := make([]any, len(part))
		for i, k := range part {
			args[i] = convertArg(k)
		}

		err := s.do(ctx, func() error {
			rows, err := s.db.QueryContext(ctx, q, args...)
			if err != nil {
				return err
			}
			defer rows.Close()

			for rows.Next() {
				var k any
				var id int64
				if err := rows.Scan(&k, &id); err != nil {
					return err
				}
				// First row wins, same as SelectDimAll.
				key := storage.NormalizeKey(k)
				if _, seen := out[key]; !seen {
					out[key] = id
				}
			}
			return rows.Err()
		})
		if err != nil {
			return nil, fmt.Errorf("SelectKeyIDByKeys: %s: %w", table, err)
		}
	}
	return out, nil
}

func (s *Store) InsertRows(ctx context.Context, table string, columns []string, rows [][]any, conflictCols []string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if table == "" || len(columns) == 0 {
		return 0, fmt.Errorf("InsertRows: table and columns are required")
	}

	sqlText, args := buildInsertSQL(table, columns, rows, len(conflictCols) > 0)

	var affected int64
	err := s.do(ctx, func() error {
		res, err := s.db.ExecContext(ctx, sqlText, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("InsertRows: %s: %w", table, err)
	}
	return affected, nil
}

// buildInsertSQL constructs one multi-row INSERT. SQLite has no ON CONFLICT
// column targets for DO NOTHING across arbitrary constraints; OR IGNORE keys
// off whatever unique constraint trips, which matches how the engine uses it.
func buildInsertSQL(table string, columns []string, rows [][]any, ignore bool) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT ")
	if ignore {
		b.WriteString("OR IGNORE ")
	}
	b.WriteString("INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	rowPart := "(" + placeholders(len(columns)) + ")"
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(rowPart)
		for j := range columns {
			args = append(args, convertArg(row[j]))
		}
	}
	b.WriteString(";")
	return b.String(), args
}

func (s *Store) UpdateByID(ctx context.Context, table, idCol string, id int64, columns []string, values []any) error {
	if len(columns) == 0 || len(columns) != len(values) {
		return fmt.Errorf("UpdateByID: columns/values mismatch")
	}

	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(table)
	b.WriteString(" SET ")

	args := make([]any, 0, len(values)+1)
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
		b.WriteString(" = ?")
		args = append(args, convertArg(values[i]))
	}
	b.WriteString(" WHERE ")
	b.WriteString(sqlIdent(idCol))
	b.WriteString(" = ?")
	args = append(args, id)

	err := s.do(ctx, func() error {
		_, err := s.db.ExecContext(ctx, b.String(), args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("UpdateByID: %s: %w", table, err)
	}
	return nil
}

func (s *Store) SelectStringSet(ctx context.Context, table, col string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	q := fmt.Sprintf("SELECT %s FROM %s", sqlIdent(col), table)

	err := s.do(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, q)
		if err != nil {
			return err
		}
		defer rows.Close()

		clear(out)
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				return err
			}
			out[v] = struct{}{}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("SelectStringSet: %s: %w", table, err)
	}
	return out, nil
}

func (s *Store) SelectIDSet(ctx context.Context, table, col string) (map[int64]struct{}, error) {
	out := make(map[int64]struct{})
	q := fmt.Sprintf("SELECT %s FROM %s", sqlIdent(col), table)

	err := s.do(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, q)
		if err != nil {
			return err
		}
		defer rows.Close()

		clear(out)
		for rows.Next() {
			var v int64
			if err := rows.Scan(&v); err != nil {
				return err
			}
			out[v] = struct{}{}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("SelectIDSet: %s: %w", table, err)
	}
	return out, nil
}

func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	err := s.do(ctx, func() error {
		return s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("CountRows: %s: %w", table, err)
	}
	return n, nil
}

func (s *Store) CountOrphanFacts(ctx context.Context, fkCol, dimTable, dimIDCol string) (int64, error) {
	q := fmt.Sprintf(
		"SELECT COUNT(*) FROM fact_sales f LEFT JOIN %s d ON f.%s = d.%s WHERE d.%s IS NULL",
		dimTable, sqlIdent(fkCol), sqlIdent(dimIDCol), sqlIdent(dimIDCol),
	)

	var n int64
	err := s.do(ctx, func() error {
		return s.db.QueryRowContext(ctx, q).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("CountOrphanFacts: %s: %w", dimTable, err)
	}
	return n, nil
}

func (s *Store) SalesByStatus(ctx context.Context) ([]storage.StatusTotal, error) {
	const q = `SELECT st.name, COUNT(*), COALESCE(SUM(f.total), 0)
		FROM fact_sales f JOIN dim_status st ON f.status_id = st.status_id
		GROUP BY st.name ORDER BY st.name`

	var out []storage.StatusTotal
	err := s.do(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, q)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var t storage.StatusTotal
			if err := rows.Scan(&t.Status, &t.Count, &t.Total); err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("SalesByStatus: %w", err)
	}
	return out, nil
}

func (s *Store) SalesByMonth(ctx context.Context) ([]storage.MonthTotal, error) {
	const q = `SELECT t.year, t.month, t.month_name, COUNT(*), COALESCE(SUM(f.total), 0)
		FROM fact_sales f JOIN dim_time t ON f.time_id = t.time_id
		GROUP BY t.year, t.month, t.month_name ORDER BY t.year, t.month`

	var out []storage.MonthTotal
	err := s.do(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, q)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var t storage.MonthTotal
			if err := rows.Scan(&t.Year, &t.Month, &t.MonthName, &t.Count, &t.Total); err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("SalesByMonth: %w", err)
	}
	return out, nil
}

func (s *Store) exec(ctx context.Context, sqlText string, args ...any) error {
	return s.do(ctx, func() error {
		_, err := s.db.ExecContext(ctx, sqlText, args...)
		return err
	})
}

func (s *Store) do(ctx context.Context, op func() error) error {
	return s.retry.Do(ctx, op)
}

// convertArg maps Go values onto SQLite's text representations. A midnight
// UTC time.Time is a calendar date; anything else with a clock is a
// timestamp.
func convertArg(v any) any {
	switch t := v.(type) {
	case time.Time:
		u := t.UTC()
		if u.Hour() == 0 && u.Minute() == 0 && u.Second() == 0 && u.Nanosecond() == 0 {
			return u.Format("2006-01-02")
		}
		return u.Format(time.RFC3339Nano)
	default:
		return v
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
