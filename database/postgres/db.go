package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sagarc03/sigv4gate"
	"github.com/sagarc03/sigv4gate/database/internal/schema"
)

var columnTypes = map[string]string{
	"id":   "uuid",
	"text": "text",
	"time": "timestamp with time zone",
}

// ValidateSchema checks every table in tables against the layout Migrate creates.
func ValidateSchema(ctx context.Context, pool *pgxpool.Pool, tables sigv4gate.Tables) error {
	for _, table := range []schema.Table{schema.KeysTable(tables.Keys, columnTypes)} {
		if err := validateTable(ctx, pool, table); err != nil {
			return fmt.Errorf("validate schema %s: %w", table.Name, err)
		}
	}
	return nil
}

func validateTable(ctx context.Context, pool *pgxpool.Pool, table schema.Table) error {
	if !sigv4gate.IsValidTableName(table.Name) {
		return fmt.Errorf("validate table schema: invalid table name: %s", table.Name)
	}

	columns, err := tableColumns(ctx, pool, table.Name)
	if err != nil {
		return fmt.Errorf("validate table schema: %w", err)
	}
	return table.Check(columns)
}

// tableColumns lists the columns of tableName in the connection's current
// schema. A missing table has none.
func tableColumns(ctx context.Context, pool *pgxpool.Pool, tableName string) (map[string]schema.Column, error) {
	const query = `
		SELECT column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
	`

	rows, err := pool.Query(ctx, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	columns := make(map[string]schema.Column)
	for rows.Next() {
		var c schema.Column
		if err := rows.Scan(&c.Name, &c.Type, &c.Nullable); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns[c.Name] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	return columns, nil
}
