package sqlengine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// CreateTextTable replaces table with one TEXT column per name.
func CreateTextTable(ctx context.Context, db *sql.DB, d Dialect, table string, columns []string) error {
	if len(columns) == 0 {
		return fmt.Errorf("create %s: no columns", table)
	}
	if err := DropTable(ctx, db, d, table); err != nil {
		return err
	}
	textType := "TEXT"
	if d == SQLServer {
		textType = "NVARCHAR(MAX)"
	}
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = d.QuoteIdent(c) + " " + textType
	}
	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", d.QuoteIdent(table), strings.Join(defs, ", "))
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}
	return nil
}

// InsertRows loads rows in one transaction. Short rows are padded with NULL.
func InsertRows(ctx context.Context, db *sql.DB, d Dialect, table string, columns []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	quoted := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.QuoteIdent(c)
		marks[i] = d.Placeholder(i + 1)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.QuoteIdent(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	defer func() { _ = tx.Rollback() }()

	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return fmt.Errorf("prepare insert %s: %w", table, err)
	}
	defer prepared.Close()

	args := make([]any, len(columns))
	for _, r := range rows {
		for i := range columns {
			if i < len(r) && r[i] != "" {
				args[i] = r[i]
			} else {
				args[i] = nil
			}
		}
		if _, err := prepared.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func DropTable(ctx context.Context, db *sql.DB, d Dialect, table string) error {
	stmt := "DROP TABLE IF EXISTS " + d.QuoteIdent(table)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("drop %s: %w", table, err)
	}
	return nil
}
