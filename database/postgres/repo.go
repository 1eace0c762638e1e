// Package postgres implements sigv4gate.KeyRepo using PostgreSQL
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sagarc03/sigv4gate"
)

type Repo struct {
	pool      *pgxpool.Pool
	tableName string
}

func NewRepo(pool *pgxpool.Pool, tables sigv4gate.Tables) (*Repo, error) {
	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("new repo: %w", err)
	}

	return &Repo{pool: pool, tableName: pgx.Identifier{tables.Keys}.Sanitize()}, nil
}

// Ping verifies database connectivity
func (r *Repo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

const selectColumns = `id, access_key, secret_key, principal_type, principal_partition, account_id,
	principal_path, name, namespace, created_at, updated_at, disabled_at`

func scanRecord(row pgx.Row) (sigv4gate.KeyRecord, error) {
	var k sigv4gate.KeyRecord
	var principalType string

	err := row.Scan(
		&k.ID, &k.AccessKey, &k.SecretKey, &principalType, &k.Principal.Partition, &k.Principal.AccountID,
		&k.Principal.Path, &k.Principal.Name, &k.Principal.Namespace, &k.CreatedAt, &k.UpdatedAt, &k.DisabledAt,
	)
	if err != nil {
		return sigv4gate.KeyRecord{}, err
	}

	k.Principal.Type = sigv4gate.PrincipalType(principalType)
	k.Principal.AccessKey = k.AccessKey
	return k, nil
}

func (r *Repo) Lookup(ctx context.Context, accessKey string) (sigv4gate.Credential, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE access_key = $1 AND disabled_at IS NULL
	`, selectColumns, r.tableName)

	k, err := scanRecord(r.pool.QueryRow(ctx, query, accessKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return sigv4gate.Credential{}, sigv4gate.ErrNotFound
		}
		return sigv4gate.Credential{}, fmt.Errorf("lookup: %w", err)
	}

	return k.Credential(), nil
}

func (r *Repo) Get(ctx context.Context, accessKey string) (sigv4gate.KeyRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE access_key = $1`, selectColumns, r.tableName)

	k, err := scanRecord(r.pool.QueryRow(ctx, query, accessKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return sigv4gate.KeyRecord{}, sigv4gate.ErrNotFound
		}
		return sigv4gate.KeyRecord{}, fmt.Errorf("get: %w", err)
	}

	return k, nil
}

func (r *Repo) Upsert(ctx context.Context, entry sigv4gate.KeyEntry) (sigv4gate.KeyRecord, bool, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (access_key, secret_key, principal_type, principal_partition, account_id,
			principal_path, name, namespace)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (access_key) DO UPDATE
		SET secret_key = EXCLUDED.secret_key,
			principal_type = EXCLUDED.principal_type,
			principal_partition = EXCLUDED.principal_partition,
			account_id = EXCLUDED.account_id,
			principal_path = EXCLUDED.principal_path,
			name = EXCLUDED.name,
			namespace = EXCLUDED.namespace,
			updated_at = NOW(),
			disabled_at = NULL
		RETURNING %s, (xmax = 0) AS inserted
	`, r.tableName, selectColumns)

	p := entry.Principal
	row := r.pool.QueryRow(ctx, query,
		entry.AccessKey, entry.SecretKey, string(p.Type), p.Partition, p.AccountID, p.Path, p.Name, p.Namespace,
	)

	var k sigv4gate.KeyRecord
	var principalType string
	var inserted bool
	err := row.Scan(
		&k.ID, &k.AccessKey, &k.SecretKey, &principalType, &k.Principal.Partition, &k.Principal.AccountID,
		&k.Principal.Path, &k.Principal.Name, &k.Principal.Namespace, &k.CreatedAt, &k.UpdatedAt, &k.DisabledAt,
		&inserted,
	)
	if err != nil {
		return sigv4gate.KeyRecord{}, false, fmt.Errorf("upsert: %w", err)
	}
	k.Principal.Type = sigv4gate.PrincipalType(principalType)
	k.Principal.AccessKey = k.AccessKey

	return k, inserted, nil
}

func (r *Repo) Disable(ctx context.Context, accessKey string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET disabled_at = NOW(), updated_at = NOW()
		WHERE access_key = $1 AND disabled_at IS NULL
	`, r.tableName)

	result, err := r.pool.Exec(ctx, query, accessKey)
	if err != nil {
		return fmt.Errorf("disable: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("disable: %w", sigv4gate.ErrNotFound)
	}

	return nil
}

func (r *Repo) Delete(ctx context.Context, accessKey string) error {
	result, err := r.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE access_key = $1`, r.tableName), accessKey)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("delete: %w", sigv4gate.ErrNotFound)
	}

	return nil
}

func (r *Repo) List(ctx context.Context, q sigv4gate.KeyListQuery) (sigv4gate.KeyListResult, error) {
	if q.Limit <= 0 {
		return sigv4gate.KeyListResult{}, fmt.Errorf("list: limit must be positive: %w", sigv4gate.ErrInvalidInput)
	}

	cursor, err := sigv4gate.DecodeCursor(q.Cursor)
	if err != nil {
		return sigv4gate.KeyListResult{}, fmt.Errorf("list: %w", err)
	}

	whereCondition := "disabled_at IS NULL"
	if q.IncludeDisabled {
		whereCondition = "TRUE"
	}
	escapedPrefix := sigv4gate.EscapeLikePattern(q.Prefix)

	var query string
	var args []any

	if q.Cursor == "" {
		query = fmt.Sprintf(`
			SELECT %s
			FROM %s
			WHERE %s AND access_key LIKE $1 || '%%'
			ORDER BY created_at, access_key
			LIMIT $2
		`, selectColumns, r.tableName, whereCondition)
		args = []any{escapedPrefix, q.Limit + 1}
	} else {
		query = fmt.Sprintf(`
			SELECT %s
			FROM %s
			WHERE %s AND access_key LIKE $1 || '%%' AND (created_at, access_key) > ($2, $3)
			ORDER BY created_at, access_key
			LIMIT $4
		`, selectColumns, r.tableName, whereCondition)
		args = []any{escapedPrefix, cursor.CreatedAt, cursor.AccessKey, q.Limit + 1}
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return sigv4gate.KeyListResult{}, fmt.Errorf("list: %w", err)
	}
	defer rows.Close()

	items := make([]sigv4gate.KeyRecord, 0, q.Limit)
	for rows.Next() {
		k, err := scanRecord(rows)
		if err != nil {
			return sigv4gate.KeyListResult{}, fmt.Errorf("list: scan: %w", err)
		}
		items = append(items, k)
	}

	if err := rows.Err(); err != nil {
		return sigv4gate.KeyListResult{}, fmt.Errorf("list: rows: %w", err)
	}

	var nextCursor string
	if len(items) > q.Limit {
		// Cursor points to the last item of the current page
		lastItem := items[q.Limit-1]
		nextCursor = sigv4gate.EncodeCursor(lastItem.CreatedAt, lastItem.AccessKey)
		items = items[:q.Limit]
	}

	return sigv4gate.KeyListResult{Items: items, NextCursor: nextCursor}, nil
}
