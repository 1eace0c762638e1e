package sigv4gate

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// KeyEntry is the input for creating or replacing a stored access key.
type KeyEntry struct {
	AccessKey string
	SecretKey string
	Principal Principal
}

// KeyRecord is an access key as persisted by a KeyRepo.
type KeyRecord struct {
	ID         uuid.UUID  `json:"id"`
	AccessKey  string     `json:"access_key"`
	SecretKey  string     `json:"-"`
	Principal  Principal  `json:"principal"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DisabledAt *time.Time `json:"disabled_at,omitempty"`
}

// Active reports whether the key may sign requests.
func (r KeyRecord) Active() bool {
	return r.DisabledAt == nil
}

// Credential returns the record as a Credential with the access key set on
// the principal.
func (r KeyRecord) Credential() Credential {
	p := r.Principal
	p.AccessKey = r.AccessKey
	return Credential{AccessKey: r.AccessKey, SecretKey: r.SecretKey, Principal: p}
}

// KeyListQuery selects a page of stored keys.
type KeyListQuery struct {
	Prefix          string
	Limit           int
	Cursor          string
	IncludeDisabled bool
}

type KeyListResult struct {
	Items      []KeyRecord `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// KeyRepo persists access keys. Implementations must be safe for concurrent
// use and honour context cancellation.
type KeyRepo interface {
	// Lookup returns the credential for an active access key, or ErrNotFound.
	// It makes every KeyRepo usable as a SecretStore.
	Lookup(ctx context.Context, accessKey string) (Credential, error)

	// Get returns the record for accessKey, disabled or not.
	Get(ctx context.Context, accessKey string) (KeyRecord, error)

	// Upsert creates the key or replaces its secret and principal. An
	// upserted key is always active. The bool reports whether it was created.
	Upsert(ctx context.Context, entry KeyEntry) (KeyRecord, bool, error)

	// Disable marks an active key as disabled. ErrNotFound if there is no
	// active key.
	Disable(ctx context.Context, accessKey string) error

	// Delete removes the key permanently. ErrNotFound if it does not exist.
	Delete(ctx context.Context, accessKey string) error

	// List pages through keys ordered by creation time then access key.
	List(ctx context.Context, q KeyListQuery) (KeyListResult, error)
}

// Cursor represents pagination cursor data for list operations.
type Cursor struct {
	CreatedAt time.Time
	AccessKey string
}

// EncodeCursor encodes cursor data to a base64 string for pagination.
func EncodeCursor(createdAt time.Time, accessKey string) string {
	data := createdAt.Format(time.RFC3339Nano) + "|" + accessKey
	return base64.URLEncoding.EncodeToString([]byte(data))
}

// DecodeCursor decodes a pagination cursor string back to cursor data.
func DecodeCursor(cursor string) (Cursor, error) {
	if cursor == "" {
		return Cursor{}, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return Cursor{}, fmt.Errorf("decode cursor: invalid encoding: %w: %w", err, ErrInvalidInput)
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return Cursor{}, fmt.Errorf("decode cursor: invalid format: %w", ErrInvalidInput)
	}

	if parts[1] == "" {
		return Cursor{}, fmt.Errorf("decode cursor: empty access key: %w", ErrInvalidInput)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return Cursor{}, fmt.Errorf("decode cursor: invalid timestamp: %w: %w", err, ErrInvalidInput)
	}

	return Cursor{CreatedAt: createdAt, AccessKey: parts[1]}, nil
}

// EscapeLikePattern escapes special LIKE characters (%, _, \) to prevent SQL injection.
func EscapeLikePattern(pattern string) string {
	pattern = strings.ReplaceAll(pattern, `\`, `\\`)
	pattern = strings.ReplaceAll(pattern, `%`, `\%`)
	pattern = strings.ReplaceAll(pattern, `_`, `\_`)
	return pattern
}
