package export

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"ageofrisk/internal/records"
)

// Dataset is one table to write into the SQLite database.
type Dataset struct {
	Name    string
	Columns []records.Column
	Rows    [][]any
	// Indexes lists the columns to index, one index per entry.
	Indexes [][]string
}

// NewDataset captures rows of one typed table. Every table is indexed on
// (country, year) since that is how the view layer slices it.
func NewDataset[T Table](name string, rows []T) Dataset {
	var zero T
	d := Dataset{Name: name, Columns: zero.Columns(), Rows: make([][]any, len(rows))}
	for i, r := range rows {
		d.Rows[i] = r.Values()
	}
	d.Indexes = [][]string{{"country", "year"}}
	return d
}

// WriteSQLite replaces the database at path with the given tables.
func WriteSQLite(ctx context.Context, path string, tables ...Dataset) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()

	for _, t := range tables {
		if err := writeTable(ctx, db, t); err != nil {
			return fmt.Errorf("table %s: %w", t.Name, err)
		}
	}
	return nil
}

func writeTable(ctx context.Context, db *sql.DB, t Dataset) error {
	var defs, names []string
	for _, c := range t.Columns {
		defs = append(defs, fmt.Sprintf("%q %s", c.Name, c.SQLType))
		names = append(names, fmt.Sprintf("%q", c.Name))
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q`, t.Name)); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE %q (%s)`, t.Name, strings.Join(defs, ","))); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	ph := strings.TrimRight(strings.Repeat("?,", len(t.Columns)), ",")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`, t.Name, strings.Join(names, ","), ph))
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, row := range t.Rows {
		args := make([]any, len(row))
		for i, v := range row {
			args[i] = sqliteValue(v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	for _, cols := range t.Indexes {
		idx := fmt.Sprintf("idx_%s_%s", t.Name, strings.Join(cols, "_"))
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q(%s)`, idx, t.Name, strings.Join(cols, ","))); err != nil {
			return err
		}
	}
	return nil
}

func sqliteValue(v any) any {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) {
			return nil
		}
		return t
	default:
		return t
	}
}
