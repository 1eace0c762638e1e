package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sagarc03/sigv4gate"
	"github.com/sagarc03/sigv4gate/database/internal/schema"
)

// Timestamps are stored as RFC 3339 text.
var columnTypes = map[string]string{
	"id":   "text",
	"text": "text",
	"time": "text",
}

// ValidateSchema checks every table in tables against the layout Migrate creates.
func ValidateSchema(ctx context.Context, db *sql.DB, tables sigv4gate.Tables) error {
	for _, table := range []schema.Table{schema.KeysTable(tables.Keys, columnTypes)} {
		if err := validateTable(ctx, db, table); err != nil {
			return fmt.Errorf("validate schema %s: %w", table.Name, err)
		}
	}
	return nil
}

func validateTable(ctx context.Context, db *sql.DB, table schema.Table) error {
	if !sigv4gate.IsValidTableName(table.Name) {
		return fmt.Errorf("validate table schema: invalid table name: %s", table.Name)
	}

	columns, err := tableColumns(ctx, db, table.Name)
	if err != nil {
		return fmt.Errorf("validate table schema: %w", err)
	}
	return table.Check(columns)
}

// tableColumns reads PRAGMA table_info, which yields no rows for a missing table.
func tableColumns(ctx context.Context, db *sql.DB, tableName string) (map[string]schema.Column, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdentifier(tableName)))
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns := make(map[string]schema.Column)
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, dataType   string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns[name] = schema.Column{Name: name, Type: dataType, Nullable: notNull == 0}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	return columns, nil
}
