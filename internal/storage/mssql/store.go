// Package mssql implements the warehouse Store on SQL Server.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"salesdw/internal/storage"
)

func init() {
	storage.Register("mssql", New)
}

type Store struct {
	db    *sql.DB
	retry storage.Retryer
}

func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
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

var schemaDDL = []string{
	`IF OBJECT_ID('dim_customer', 'U') IS NULL
	CREATE TABLE dim_customer (
		customer_id BIGINT IDENTITY(1,1) PRIMARY KEY,
		email NVARCHAR(320) NOT NULL,
		first_name NVARCHAR(200) NOT NULL,
		last_name NVARCHAR(200) NOT NULL DEFAULT '',
		phone NVARCHAR(50) NOT NULL DEFAULT '',
		city NVARCHAR(200) NOT NULL DEFAULT '',
		country NVARCHAR(200) NOT NULL DEFAULT '',
		row_hash NVARCHAR(32) NOT NULL DEFAULT '',
		created_at DATETIME2 NOT NULL,
		updated_at DATETIME2 NULL,
		CONSTRAINT uq_dim_customer_email UNIQUE (email)
	);`,
	`IF OBJECT_ID('dim_product', 'U') IS NULL
	CREATE TABLE dim_product (
		product_id BIGINT IDENTITY(1,1) PRIMARY KEY,
		name NVARCHAR(400) NOT NULL,
		category NVARCHAR(200) NOT NULL DEFAULT '',
		base_price FLOAT NOT NULL DEFAULT 0,
		stock BIGINT NOT NULL DEFAULT 0,
		row_hash NVARCHAR(32) NOT NULL DEFAULT '',
		created_at DATETIME2 NOT NULL,
		updated_at DATETIME2 NULL
	);`,
	`IF OBJECT_ID('dim_time', 'U') IS NULL
	CREATE TABLE dim_time (
		time_id BIGINT IDENTITY(1,1) PRIMARY KEY,
		date DATE NOT NULL,
		year BIGINT NOT NULL,
		month BIGINT NOT NULL,
		day BIGINT NOT NULL,
		quarter BIGINT NOT NULL,
		month_name NVARCHAR(20) NOT NULL,
		weekday NVARCHAR(20) NOT NULL,
		is_weekend BIT NOT NULL,
		is_holiday BIT NOT NULL,
		created_at DATETIME2 NOT NULL,
		CONSTRAINT uq_dim_time_date UNIQUE (date)
	);`,
	`IF OBJECT_ID('dim_status', 'U') IS NULL
	CREATE TABLE dim_status (
		status_id BIGINT IDENTITY(1,1) PRIMARY KEY,
		name NVARCHAR(100) NOT NULL,
		description NVARCHAR(400) NOT NULL DEFAULT '',
		active BIT NOT NULL DEFAULT 1,
		created_at DATETIME2 NOT NULL,
		updated_at DATETIME2 NULL,
		CONSTRAINT uq_dim_status_name UNIQUE (name)
	);`,
	`IF OBJECT_ID('fact_sales', 'U') IS NULL
	CREATE TABLE fact_sales (
		sale_id BIGINT IDENTITY(1,1) PRIMARY KEY,
		order_id NVARCHAR(100) NOT NULL,
		customer_id BIGINT NOT NULL REFERENCES dim_customer (customer_id),
		product_id BIGINT NOT NULL REFERENCES dim_product (product_id),
		time_id BIGINT NOT NULL REFERENCES dim_time (time_id),
		status_id BIGINT NOT NULL REFERENCES dim_status (status_id),
		quantity BIGINT NOT NULL,
		unit_price FLOAT NOT NULL,
		total FLOAT NOT NULL,
		loaded_at DATETIME2 NOT NULL,
		CONSTRAINT uq_fact_sales_order UNIQUE (order_id)
	);`,
}

func (s *Store) SelectDimAll(ctx context.Context, table, keyCol, idCol, hashCol string) (map[string]storage.DimRow, error) {
	if table == "" || keyCol == "" || idCol == "" {
		return nil, fmt.Errorf("SelectDimAll: table, keyCol, idCol are required")
	}

	cols := msIdent(keyCol) + ", " + msIdent(idCol)
	if hashCol != "" {
		cols += ", " + msIdent(hashCol)
	}
	// Surrogate-key order makes first-row-wins deterministic when the table
	// holds duplicate keys (dim_product has no unique name constraint).
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", cols, table, msIdent(idCol))

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

	// SQL Server caps a statement at 2100 parameters.
	const chunk = 2000
	out := make(map[string]int64, len(keys))

	for start := 0; start < len(keys); start += chunk {
		part := keys[start:min(start+chunk, len(keys))]

		var b strings.Builder
		fmt.Fprintf(&b, "SELECT %s, %s FROM %s WHERE %s IN (",
			msIdent(keyCol), msIdent(idCol), table, msIdent(keyCol))
		args := make([]any, 0, len(part))
		for i, k := range part {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", i+1)
			args = append(args, k)
		}
		fmt.Fprintf(&b, ") ORDER BY %s", msIdent(idCol))

		err := s.do(ctx, func() error {
			rows, err := s.db.QueryContext(ctx, b.String(), args...)
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

// InsertRows bulk-inserts rows. With conflictCols set, each row is inserted
// through a NOT EXISTS guard on those columns; SQL Server has no portable
// INSERT ... ON CONFLICT form.
func (s *Store) InsertRows(ctx context.Context, table string, columns []string, rows [][]any, conflictCols []string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if table == "" || len(columns) == 0 {
		return 0, fmt.Errorf("InsertRows: table and columns are required")
	}

	var total int64
	if len(conflictCols) == 0 {
		sqlText, args := buildInsertSQL(table, columns, rows)
		err := s.do(ctx, func() error {
			res, err := s.db.ExecContext(ctx, sqlText, args...)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			total = n
			return err
		})
		if err != nil {
			return 0, fmt.Errorf("InsertRows: %s: %w", table, err)
		}
		return total, nil
	}

	sqlText := buildGuardedInsertSQL(table, columns, conflictCols)
	for _, row := range rows {
		args := guardedArgs(columns, conflictCols, row)
		err := s.do(ctx, func() error {
			res, err := s.db.ExecContext(ctx, sqlText, args...)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			total += n
			return err
		})
		if err != nil {
			return 0, fmt.Errorf("InsertRows: %s: %w", table, err)
		}
	}
	return total, nil
}

func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(msIdent(c))
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
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	b.WriteString(";")
	return b.String(), args
}

// buildGuardedInsertSQL emits a single-row insert that is a no-op when a row
// with the same conflict-column values already exists.
func buildGuardedInsertSQL(table string, columns, conflictCols []string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(msIdent(c))
	}
	b.WriteString(") SELECT ")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "@p%d", i+1)
	}
	fmt.Fprintf(&b, " WHERE NOT EXISTS (SELECT 1 FROM %s WHERE ", table)
	p := len(columns) + 1
	for i, c := range conflictCols {
		if i > 0 {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(&b, "%s = @p%d", msIdent(c), p)
		p++
	}
	b.WriteString(");")
	return b.String()
}

func guardedArgs(columns, conflictCols []string, row []any) []any {
	args := make([]any, 0, len(row)+len(conflictCols))
	args = append(args, row...)
	for _, c := range conflictCols {
		for i, col := range columns {
			if col == c {
				args = append(args, row[i])
				break
			}
		}
	}
	return args
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
		fmt.Fprintf(&b, "%s = @p%d", msIdent(c), i+1)
		args = append(args, values[i])
	}
	fmt.Fprintf(&b, " WHERE %s = @p%d", msIdent(idCol), len(values)+1)
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
	q := fmt.Sprintf("SELECT %s FROM %s", msIdent(col), table)

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
	q := fmt.Sprintf("SELECT %s FROM %s", msIdent(col), table)

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
		dimTable, msIdent(fkCol), msIdent(dimIDCol), msIdent(dimIDCol),
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

func msIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}
