package sigv4gate

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedSecretStore keeps successful lookups from another SecretStore in a
// bounded LRU for a fixed TTL. Misses and errors are never cached.
type CachedSecretStore struct {
	store SecretStore
	cache *expirable.LRU[string, Credential]
}

// NewCachedSecretStore wraps store with a cache of at most size entries
// that expire after ttl.
func NewCachedSecretStore(store SecretStore, size int, ttl time.Duration) *CachedSecretStore {
	return &CachedSecretStore{
		store: store,
		cache: expirable.NewLRU[string, Credential](size, nil, ttl),
	}
}

func (s *CachedSecretStore) Lookup(ctx context.Context, accessKey string) (Credential, error) {
	if cred, ok := s.cache.Get(accessKey); ok {
		return cred, nil
	}

	cred, err := s.store.Lookup(ctx, accessKey)
	if err != nil {
		return Credential{}, err
	}

	s.cache.Add(accessKey, cred)
	return cred, nil
}

// Purge drops a single access key, e.g. after it was removed from the store.
func (s *CachedSecretStore) Purge(accessKey string) {
	s.cache.Remove(accessKey)
}

func (s *CachedSecretStore) Len() int {
	return s.cache.Len()
}
