package keybackend

import (
	"context"
	"errors"

	"github.com/sagarc03/sigv4gate"
)

// KeysConfig holds configuration for loading access keys.
type KeysConfig struct {
	Inline []KeyPair `mapstructure:"inline"` // Inline key pairs from config
	File   string    `mapstructure:"file"`   // Path to JSON or YAML file containing key pairs
}

// NewSecretStore creates a SecretStore from the given configuration.
// It loads keys from both inline config and file (if specified),
// merging them into a single store. File keys take precedence over inline keys
// if there are duplicates.
func NewSecretStore(cfg KeysConfig) (*MapSecretStore, error) {
	pairs := make([]KeyPair, 0, len(cfg.Inline))

	for _, p := range cfg.Inline {
		if p.AccessKey != "" && p.SecretKey != "" {
			pairs = append(pairs, p)
		}
	}

	if cfg.File != "" {
		filePairs, err := LoadKeysFromFile(cfg.File)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, filePairs...)
	}

	creds := make([]sigv4gate.Credential, 0, len(pairs))
	for _, p := range pairs {
		cred, err := p.Credential()
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}

	return NewCredentialStore(creds), nil
}

// ChainSecretStore asks each store in order and returns the first hit.
// A store failing with anything other than not-found stops the chain.
type ChainSecretStore struct {
	stores []sigv4gate.SecretStore
}

func NewChainSecretStore(stores ...sigv4gate.SecretStore) *ChainSecretStore {
	return &ChainSecretStore{stores: stores}
}

func (c *ChainSecretStore) Lookup(ctx context.Context, accessKey string) (sigv4gate.Credential, error) {
	for _, s := range c.stores {
		cred, err := s.Lookup(ctx, accessKey)
		if err == nil {
			return cred, nil
		}
		if !errors.Is(err, sigv4gate.ErrNotFound) {
			return sigv4gate.Credential{}, err
		}
	}
	return sigv4gate.Credential{}, ErrKeyNotFound
}
