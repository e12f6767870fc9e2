package postgres

import (
	"reflect"
	"testing"
)

func TestBuildInsertSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		table        string
		columns      []string
		rows         [][]any
		conflictCols []string
		wantSQL      string
		wantArgs     []any
	}{
		{
			name:    "single row no conflict clause",
			table:   "dim_product",
			columns: []string{"name", "category"},
			rows:    [][]any{{"WIDGET", "TOOLS"}},
			wantSQL: `INSERT INTO dim_product ("name", "category") VALUES ($1, $2);`,
			wantArgs: []any{
				"WIDGET", "TOOLS",
			},
		},
		{
			name:         "multi row numbers placeholders across rows",
			table:        "dim_status",
			columns:      []string{"name", "active"},
			rows:         [][]any{{"COMPLETED", true}, {"PENDING", true}},
			conflictCols: []string{"name"},
			wantSQL:      `INSERT INTO dim_status ("name", "active") VALUES ($1, $2), ($3, $4) ON CONFLICT ("name") DO NOTHING;`,
			wantArgs: []any{
				"COMPLETED", true, "PENDING", true,
			},
		},
		{
			name:         "fact insert ignores duplicate order keys",
			table:        "fact_sales",
			columns:      []string{"order_id", "total"},
			rows:         [][]any{{"ORD-1", 10.5}},
			conflictCols: []string{"order_id"},
			wantSQL:      `INSERT INTO fact_sales ("order_id", "total") VALUES ($1, $2) ON CONFLICT ("order_id") DO NOTHING;`,
			wantArgs: []any{
				"ORD-1", 10.5,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gotSQL, gotArgs := buildInsertSQL(tt.table, tt.columns, tt.rows, tt.conflictCols)
			if gotSQL != tt.wantSQL {
				t.Fatalf("sql\n got: %s\nwant: %s", gotSQL, tt.wantSQL)
			}
			if !reflect.DeepEqual(gotArgs, tt.wantArgs) {
				t.Fatalf("args got %v want %v", gotArgs, tt.wantArgs)
			}
		})
	}
}

func TestPGIdent(t *testing.T) {
	t.Parallel()

	if got := pgIdent("order_id"); got != `"order_id"` {
		t.Fatalf("got %s", got)
	}
	if got := pgIdent(`bad"col`); got != `"bad""col"` {
		t.Fatalf("got %s", got)
	}
}
