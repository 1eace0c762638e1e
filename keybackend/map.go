// Package keybackend provides SecretStore implementations for key retrieval.
package keybackend

import (
	"context"

	"github.com/sagarc03/sigv4gate"
)

// MapSecretStore retrieves keys from an in-memory map.
// Suitable for configuration file-based key storage.
type MapSecretStore struct {
	creds map[string]sigv4gate.Credential
}

// NewMapSecretStore creates a new map-based secret store with the given access key to secret key mapping.
// Every key authenticates as a user principal named after the access key.
func NewMapSecretStore(keys map[string]string) *MapSecretStore {
	creds := make(map[string]sigv4gate.Credential, len(keys))
	for accessKey, secretKey := range keys {
		creds[accessKey] = sigv4gate.Credential{AccessKey: accessKey, SecretKey: secretKey}
	}
	return &MapSecretStore{creds: creds}
}

// NewCredentialStore creates a map-based secret store from full credentials.
// Later entries win on duplicate access keys.
func NewCredentialStore(creds []sigv4gate.Credential) *MapSecretStore {
	m := make(map[string]sigv4gate.Credential, len(creds))
	for _, c := range creds {
		m[c.AccessKey] = c
	}
	return &MapSecretStore{creds: m}
}

// Lookup retrieves the credential for the given access key from the map.
func (s *MapSecretStore) Lookup(_ context.Context, accessKey string) (sigv4gate.Credential, error) {
	cred, found := s.creds[accessKey]
	if !found {
		return sigv4gate.Credential{}, ErrKeyNotFound
	}
	return cred, nil
}

// Len returns the number of keys held by the store.
func (s *MapSecretStore) Len() int {
	return len(s.creds)
}
