// Package postgres implements the warehouse Store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"salesdw/internal/storage"
)

func init() {
	storage.Register("postgres", New)
}

// Store implements storage.Store for Postgres. Idempotent inserts use
// INSERT ... ON CONFLICT (...) DO NOTHING; transient failures are retried at
// this layer with bounded backoff before they become fatal to the run.
type Store struct {
	pool  *pgxpool.Pool
	retry storage.Retryer
}

// New opens a Postgres-backed Store.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() { s.pool.Close() }

// EnsureSchema creates the star-schema tables if missing. Idempotent.
//
// Unique constraints exist on every dimension natural key except the product
// name (first-match semantics collapse duplicates in-process) and on the fact
// order key; they are the last-resort backstop behind the engine's guards.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, ddl := range schemaDDL {
		if err := s.exec(ctx, ddl); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS dim_customer (
		customer_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		email TEXT NOT NULL,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT '',
		row_hash TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ,
		UNIQUE (email)
	);`,
	`CREATE TABLE IF NOT EXISTS dim_product (
		product_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		base_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		stock BIGINT NOT NULL DEFAULT 0,
		row_hash TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ
	);`,
	`CREATE TABLE IF NOT EXISTS dim_time (
		time_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		date DATE NOT NULL,
		year BIGINT NOT NULL,
		month BIGINT NOT NULL,
		day BIGINT NOT NULL,
		quarter BIGINT NOT NULL,
		month_name TEXT NOT NULL,
		weekday TEXT NOT NULL,
		is_weekend BOOLEAN NOT NULL,
		is_holiday BOOLEAN NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (date)
	);`,
	`CREATE TABLE IF NOT EXISTS dim_status (
		status_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ,
		UNIQUE (name)
	);`,
	`CREATE TABLE IF NOT EXISTS fact_sales (
		sale_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		order_id TEXT NOT NULL,
		customer_id BIGINT NOT NULL REFERENCES dim_customer (customer_id),
		product_id BIGINT NOT NULL REFERENCES dim_product (product_id),
		time_id BIGINT NOT NULL REFERENCES dim_time (time_id),
		status_id BIGINT NOT NULL REFERENCES dim_status (status_id),
		quantity BIGINT NOT NULL,
		unit_price DOUBLE PRECISION NOT NULL,
		total DOUBLE PRECISION NOT NULL,
		loaded_at TIMESTAMPTZ NOT NULL,
		UNIQUE (order_id)
	);`,
}

// SelectDimAll reads a full dimension table into a key -> row mapping.
func (s *Store) SelectDimAll(ctx context.Context, table, keyCol, idCol, hashCol string) (map[string]storage.DimRow, error) {
	if table == "" || keyCol == "" || idCol == "" {
		return nil, fmt.Errorf("SelectDimAll: table, keyCol, idCol are required")
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(pgIdent(keyCol))
	b.WriteString(", ")
	b.WriteString(pgIdent(idCol))
	if hashCol != "" {
		b.WriteString(", ")
		b.WriteString(pgIdent(hashCol))
	}
	b.WriteString(" FROM ")
	b.WriteString(table)
	// Surrogate-key order makes first-row-wins deterministic when the table
	// holds duplicate keys (dim_product has no unique name constraint).
	b.WriteString(" ORDER BY ")
	b.WriteString(pgIdent(idCol))

	out := make(map[string]storage.DimRow)
	err := s.do(ctx, func() error {
		rows, err := s.pool.Query(ctx, b.String())
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

// SelectKeyIDByKeys resolves surrogate keys for a specific key set.
//
// A parameterized IN (...) list (chunked) is used instead of ANY($1) arrays to
// avoid driver array-typing edge cases for mixed key types.
func (s *Store) SelectKeyIDByKeys(ctx context.Context, table, keyCol, idCol string, keys []any) (map[string]int64, error) {
	if len(keys) == 0 {
		return map[string]int64{}, nil
	}

	const chunk = 2000
	out := make(map[string]int64, len(keys))

	for start := 0; start < len(keys); start += chunk {
		part := keys[start:min(start+chunk, len(keys))]

		var b strings.Builder
		b.WriteString("SELECT ")
		b.WriteString(pgIdent(keyCol))
		b.WriteString(", ")
		b.WriteString(pgIdent(idCol))
		b.WriteString(" FROM ")
		b.WriteString(table)
		b.WriteString(" WHERE ")
		b.WriteString(pgIdent(keyCol))
		b.WriteString(" IN (")

		args := make([]any, 0, len(part))
		for i, k := range part {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", i+1)
			args = append(args, k)
		}
		b.WriteString(") ORDER BY ")
		b.WriteString(pgIdent(idCol))

		err := s.do(ctx, func() error {
			rows, err := s.pool.Query(ctx, b.String(), args...)
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

// InsertRows bulk-inserts rows in a single statement per call. The caller
// chunks; this method only guards the parameter count indirectly through that
// contract.
func (s *Store) InsertRows(ctx context.Context, table string, columns []string, rows [][]any, conflictCols []string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if table == "" || len(columns) == 0 {
		return 0, fmt.Errorf("InsertRows: table and columns are required")
	}

	sql, args := buildInsertSQL(table, columns, rows, conflictCols)

	var affected int64
	err := s.do(ctx, func() error {
		cmd, err := s.pool.Exec(ctx, sql, args...)
		if err != nil {
			return err
		}
		affected = cmd.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("InsertRows: %s: %w", table, err)
	}
	return affected, nil
}

// buildInsertSQL constructs a single INSERT statement and its args.
//
// It is pure and deterministic so placeholder numbering and ON CONFLICT
// behavior can be unit tested without a database.
func buildInsertSQL(table string, columns []string, rows [][]any, conflictCols []string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	if len(conflictCols) > 0 {
		b.WriteString(" ON CONFLICT (")
		for i, c := range conflictCols {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pgIdent(c))
		}
		b.WriteString(") DO NOTHING")
	}

	b.WriteString(";")
	return b.String(), args
}

// UpdateByID overwrites the given columns of one row.
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
		b.WriteString(pgIdent(c))
		fmt.Fprintf(&b, " = $%d", i+1)
		args = append(args, values[i])
	}
	fmt.Fprintf(&b, " WHERE %s = $%d", pgIdent(idCol), len(values)+1)
	args = append(args, id)

	err := s.do(ctx, func() error {
		_, err := s.pool.Exec(ctx, b.String(), args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("UpdateByID: %s: %w", table, err)
	}
	return nil
}

// SelectStringSet reads a full string column as a set.
func (s *Store) SelectStringSet(ctx context.Context, table, col string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	q := fmt.Sprintf("SELECT %s FROM %s", pgIdent(col), table)

	err := s.do(ctx, func() error {
		rows, err := s.pool.Query(ctx, q)
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

// SelectIDSet reads a full surrogate-key column as a set.
func (s *Store) SelectIDSet(ctx context.Context, table, col string) (map[int64]struct{}, error) {
	out := make(map[int64]struct{})
	q := fmt.Sprintf("SELECT %s FROM %s", pgIdent(col), table)

	err := s.do(ctx, func() error {
		rows, err := s.pool.Query(ctx, q)
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

// CountRows returns the row count of a table.
func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	err := s.do(ctx, func() error {
		return s.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("CountRows: %s: %w", table, err)
	}
	return n, nil
}

// CountOrphanFacts counts fact rows whose foreign key has no matching
// dimension row.
func (s *Store) CountOrphanFacts(ctx context.Context, fkCol, dimTable, dimIDCol string) (int64, error) {
	q := fmt.Sprintf(
		"SELECT COUNT(*) FROM fact_sales f LEFT JOIN %s d ON f.%s = d.%s WHERE d.%s IS NULL",
		dimTable, pgIdent(fkCol), pgIdent(dimIDCol), pgIdent(dimIDCol),
	)

	var n int64
	err := s.do(ctx, func() error {
		return s.pool.QueryRow(ctx, q).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("CountOrphanFacts: %s: %w", dimTable, err)
	}
	return n, nil
}

// SalesByStatus aggregates fact totals per status label.
func (s *Store) SalesByStatus(ctx context.Context) ([]storage.StatusTotal, error) {
	const q = `SELECT st.name, COUNT(*), COALESCE(SUM(f.total), 0)
		FROM fact_sales f JOIN dim_status st ON f.status_id = st.status_id
		GROUP BY st.name ORDER BY st.name`

	var out []storage.StatusTotal
	err := s.do(ctx, func() error {
		rows, err := s.pool.Query(ctx, q)
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

// SalesByMonth aggregates fact totals per calendar year/month.
func (s *Store) SalesByMonth(ctx context.Context) ([]storage.MonthTotal, error) {
	const q = `SELECT t.year, t.month, t.month_name, COUNT(*), COALESCE(SUM(f.total), 0)
		FROM fact_sales f JOIN dim_time t ON f.time_id = t.time_id
		GROUP BY t.year, t.month, t.month_name ORDER BY t.year, t.month`

	var out []storage.MonthTotal
	err := s.do(ctx, func() error {
		rows, err := s.pool.Query(ctx, q)
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

func (s *Store) exec(ctx context.Context, sql string, args ...any) error {
	return s.do(ctx, func() error {
		_, err := s.pool.Exec(ctx, sql, args...)
		return err
	})
}

// do applies the store-level retry budget to one operation.
func (s *Store) do(ctx context.Context, op func() error) error {
	return s.retry.Do(ctx, op)
}

func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
