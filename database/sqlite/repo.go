// Package sqlite implements sigv4gate.KeyRepo using SQLite
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sagarc03/sigv4gate"
)

// timestampFormat is fixed width so stored timestamps sort as text.
const timestampFormat = "2006-01-02T15:04:05.000000000Z07:00"

type repo struct {
	db        *sql.DB
	tableName string
}

const selectColumns = `id, access_key, secret_key, principal_type, principal_partition, account_id,
	principal_path, name, namespace, created_at, updated_at, disabled_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (sigv4gate.KeyRecord, error) {
	var k sigv4gate.KeyRecord
	var idStr, principalType, createdAt, updatedAt string
	var disabledAt sql.NullString

	err := s.Scan(
		&idStr, &k.AccessKey, &k.SecretKey, &principalType, &k.Principal.Partition, &k.Principal.AccountID,
		&k.Principal.Path, &k.Principal.Name, &k.Principal.Namespace, &createdAt, &updatedAt, &disabledAt,
	)
	if err != nil {
		return sigv4gate.KeyRecord{}, err
	}

	k.Principal.Type = sigv4gate.PrincipalType(principalType)
	k.Principal.AccessKey = k.AccessKey

	if k.ID, err = uuid.Parse(idStr); err != nil {
		return sigv4gate.KeyRecord{}, fmt.Errorf("parse uuid: %w", err)
	}
	if k.CreatedAt, err = time.Parse(timestampFormat, createdAt); err != nil {
		return sigv4gate.KeyRecord{}, fmt.Errorf("parse created_at: %w", err)
	}
	if k.UpdatedAt, err = time.Parse(timestampFormat, updatedAt); err != nil {
		return sigv4gate.KeyRecord{}, fmt.Errorf("parse updated_at: %w", err)
	}
	if disabledAt.Valid {
		t, err := time.Parse(timestampFormat, disabledAt.String)
		if err != nil {
			return sigv4gate.KeyRecord{}, fmt.Errorf("parse disabled_at: %w", err)
		}
		k.DisabledAt = &t
	}

	return k, nil
}

func (r *repo) Lookup(ctx context.Context, accessKey string) (sigv4gate.Credential, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT %s FROM %s WHERE access_key = ? AND disabled_at IS NULL`, selectColumns, r.tableName)

	k, err := scanRecord(r.db.QueryRowContext(ctx, query, accessKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sigv4gate.Credential{}, sigv4gate.ErrNotFound
		}
		return sigv4gate.Credential{}, fmt.Errorf("lookup: %w", err)
	}

	return k.Credential(), nil
}

func (r *repo) Get(ctx context.Context, accessKey string) (sigv4gate.KeyRecord, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT %s FROM %s WHERE access_key = ?`, selectColumns, r.tableName)

	k, err := scanRecord(r.db.QueryRowContext(ctx, query, accessKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sigv4gate.KeyRecord{}, sigv4gate.ErrNotFound
		}
		return sigv4gate.KeyRecord{}, fmt.Errorf("get: %w", err)
	}

	return k, nil
}

func (r *repo) Upsert(ctx context.Context, entry sigv4gate.KeyEntry) (sigv4gate.KeyRecord, bool, error) {
	// Check if entry exists first to determine if this is an insert or update
	var existingID string
	checkQuery := fmt.Sprintf(`SELECT id FROM %s WHERE access_key = ?`, r.tableName) //nolint:gosec // table name is validated
	err := r.db.QueryRowContext(ctx, checkQuery, entry.AccessKey).Scan(&existingID)
	isInsert := errors.Is(err, sql.ErrNoRows)
	if err != nil && !isInsert {
		return sigv4gate.KeyRecord{}, false, fmt.Errorf("upsert: check existing: %w", err)
	}

	now := time.Now().UTC().Format(timestampFormat)
	p := entry.Principal

	if isInsert {
		insertQuery := fmt.Sprintf( //nolint:gosec // G201: table name is validated
			`INSERT INTO %s (id, access_key, secret_key, principal_type, principal_partition, account_id,
				principal_path, name, namespace, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, r.tableName)

		_, err = r.db.ExecContext(ctx, insertQuery,
			uuid.New().String(), entry.AccessKey, entry.SecretKey, string(p.Type), p.Partition, p.AccountID,
			p.Path, p.Name, p.Namespace, now, now,
		)
		if err != nil {
			return sigv4gate.KeyRecord{}, false, fmt.Errorf("upsert: insert: %w", err)
		}
	} else {
		updateQuery := fmt.Sprintf( //nolint:gosec // G201: table name is validated
			`UPDATE %s
			SET secret_key = ?, principal_type = ?, principal_partition = ?, account_id = ?,
				principal_path = ?, name = ?, namespace = ?, updated_at = ?, disabled_at = NULL
			WHERE access_key = ?`, r.tableName)

		_, err = r.db.ExecContext(ctx, updateQuery,
			entry.SecretKey, string(p.Type), p.Partition, p.AccountID,
			p.Path, p.Name, p.Namespace, now, entry.AccessKey,
		)
		if err != nil {
			return sigv4gate.KeyRecord{}, false, fmt.Errorf("upsert: update: %w", err)
		}
	}

	k, err := r.Get(ctx, entry.AccessKey)
	if err != nil {
		return sigv4gate.KeyRecord{}, false, fmt.Errorf("upsert: read back: %w", err)
	}

	return k, isInsert, nil
}

func (r *repo) Disable(ctx context.Context, accessKey string) error {
	now := time.Now().UTC().Format(timestampFormat)
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`UPDATE %s
		SET disabled_at = ?, updated_at = ?
		WHERE access_key = ? AND disabled_at IS NULL`, r.tableName)

	result, err := r.db.ExecContext(ctx, query, now, now, accessKey)
	if err != nil {
		return fmt.Errorf("disable: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("disable: rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("disable: %w", sigv4gate.ErrNotFound)
	}

	return nil
}

func (r *repo) Delete(ctx context.Context, accessKey string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE access_key = ?`, r.tableName) //nolint:gosec // table name is validated

	result, err := r.db.ExecContext(ctx, query, accessKey)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete: rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("delete: %w", sigv4gate.ErrNotFound)
	}

	return nil
}

func (r *repo) List(ctx context.Context, q sigv4gate.KeyListQuery) (sigv4gate.KeyListResult, error) {
	if q.Limit <= 0 {
		return sigv4gate.KeyListResult{}, fmt.Errorf("list: limit must be positive: %w", sigv4gate.ErrInvalidInput)
	}

	cursor, err := sigv4gate.DecodeCursor(q.Cursor)
	if err != nil {
		return sigv4gate.KeyListResult{}, fmt.Errorf("list: %w", err)
	}

	whereCondition := "disabled_at IS NULL"
	if q.IncludeDisabled {
		whereCondition = "1 = 1"
	}
	escapedPrefix := sigv4gate.EscapeLikePattern(q.Prefix)

	var query string
	var args []any

	if q.Cursor == "" {
		query = fmt.Sprintf(`
			SELECT %s
			FROM %s
			WHERE %s AND access_key LIKE ? || '%%' ESCAPE '\'
			ORDER BY created_at, access_key
			LIMIT ?
		`, selectColumns, r.tableName, whereCondition)
		args = []any{escapedPrefix, q.Limit + 1}
	} else {
		query = fmt.Sprintf(`
			SELECT %s
			FROM %s
			WHERE %s AND access_key LIKE ? || '%%' ESCAPE '\' AND (created_at, access_key) > (?, ?)
			ORDER BY created_at, access_key
			LIMIT ?
		`, selectColumns, r.tableName, whereCondition)
		args = []any{escapedPrefix, cursor.CreatedAt.UTC().Format(timestampFormat), cursor.AccessKey, q.Limit + 1}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return sigv4gate.KeyListResult{}, fmt.Errorf("list: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
