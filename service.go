package sigv4gate

import (
	"context"
	"fmt"
)

// DefaultAccessKeyPrefix prefixes generated access keys.
const DefaultAccessKeyPrefix = "AKIA"

// Purger drops cached credentials. CachedSecretStore implements it.
type Purger interface {
	Purge(accessKey string)
}

// KeyService manages stored access keys on top of a KeyRepo.
type KeyService struct {
	repo   KeyRepo
	prefix string
	cache  Purger
}

// KeyServiceConfig holds configuration options for KeyService.
type KeyServiceConfig struct {
	AccessKeyPrefix string // Prefix for generated access keys (default: AKIA)
	// Cache, when set, is purged whenever a key changes. It only reaches a
	// cache in the same process: a gateway started by `sigv4gate serve` sees
	// changes made by `sigv4gate keys` once its cache entry expires.
	Cache Purger
}

func NewKeyService(repo KeyRepo, cfg KeyServiceConfig) (*KeyService, error) {
	if repo == nil {
		return nil, fmt.Errorf("new key service: repo is required: %w", ErrInvalidInput)
	}

	prefix := cfg.AccessKeyPrefix
	if prefix == "" {
		prefix = DefaultAccessKeyPrefix
	}

	return &KeyService{repo: repo, prefix: prefix, cache: cfg.Cache}, nil
}

// Create stores a new key. Missing access or secret keys are generated and a
// zero principal becomes a user named after the access key.
//
// The returned record carries the secret. It is the only time a generated
// secret is handed out.
func (s *KeyService) Create(ctx context.Context, entry KeyEntry) (KeyRecord, error) {
	if err := ctx.Err(); err != nil {
		return KeyRecord{}, fmt.Errorf("create key: %w", err)
	}

	var err error
	if entry.AccessKey == "" {
		if entry.AccessKey, err = GenerateAccessKey(s.prefix); err != nil {
			return KeyRecord{}, fmt.Errorf("create key: %w", err)
		}
	}
	if entry.SecretKey == "" {
		if entry.SecretKey, err = GenerateSecretKey(); err != nil {
			return KeyRecord{}, fmt.Errorf("create key: %w", err)
		}
	}

	if !IsValidAccessKey(entry.AccessKey) {
		return KeyRecord{}, fmt.Errorf("create key %q: invalid access key: %w", entry.AccessKey, ErrInvalidInput)
	}

	if entry.Principal.IsZero() {
		entry.Principal = Principal{Type: PrincipalUser, Name: entry.AccessKey}
	}
	if !entry.Principal.Type.IsValid() {
		return KeyRecord{}, fmt.Errorf("create key %s: invalid principal type %q: %w", entry.AccessKey, entry.Principal.Type, ErrInvalidInput)
	}

	record, _, err := s.repo.Upsert(ctx, entry)
	if err != nil {
		return KeyRecord{}, fmt.Errorf("create key %s: %w", entry.AccessKey, err)
	}
	s.purge(entry.AccessKey)

	return record, nil
}

// Disable stops a key from signing requests while keeping its record.
func (s *KeyService) Disable(ctx context.Context, accessKey string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("disable key: %w", err)
	}

	if err := s.repo.Disable(ctx, accessKey); err != nil {
		return fmt.Errorf("disable key %s: %w", accessKey, err)
	}
	s.purge(accessKey)

	return nil
}

// Remove deletes a key permanently.
func (s *KeyService) Remove(ctx context.Context, accessKey string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("remove key: %w", err)
	}

	if accessKey == "" {
		return fmt.Errorf("remove key: %w: access key cannot be empty", ErrInvalidInput)
	}

	if err := s.repo.Delete(ctx, accessKey); err != nil {
		return fmt.Errorf("remove key %s: %w", accessKey, err)
	}
	s.purge(accessKey)

	return nil
}

func (s *KeyService) List(ctx context.Context, q KeyListQuery) (KeyListResult, error) {
	if err := ctx.Err(); err != nil {
		return KeyListResult{}, fmt.Errorf("list keys: %w", err)
	}

	if q.Limit <= 0 {
		q.Limit = 100
	}

	result, err := s.repo.List(ctx, q)
	if err != nil {
		return KeyListResult{}, fmt.Errorf("list keys: %w", err)
	}

	return result, nil
}

// ListAll pages through every key matching q.
func (s *KeyService) ListAll(ctx context.Context, q KeyListQuery) ([]KeyRecord, error) {
	var all []KeyRecord
	for {
		page, err := s.List(ctx, q)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)

		if page.NextCursor == "" {
			return all, nil
		}
		q.Cursor = page.NextCursor
	}
}

func (s *KeyService) purge(accessKey string) {
	if s.cache != nil {
		s.cache.Purge(accessKey)
	}
}
