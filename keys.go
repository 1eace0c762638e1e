package sigv4gate

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"
)

// Credential is what a SecretStore knows about an access key.
type Credential struct {
	AccessKey string
	SecretKey string
	// Principal is the identity the key authenticates as. A zero value
	// yields a user principal named after the access key.
	Principal Principal
}

// SecretStore retrieves credentials by access key.
// Implementations return an error wrapping ErrNotFound for unknown keys.
type SecretStore interface {
	Lookup(ctx context.Context, accessKey string) (Credential, error)
}

// KeyRequest describes the signing key the verifier needs for one request.
type KeyRequest struct {
	Kind         SigningKeyKind
	AccessKey    string
	SessionToken string
	Date         time.Time
	Region       string
	Service      string
}

// KeyLookup resolves the signing key material for a request, at the
// derivation stage named by KeyRequest.Kind, together with the principal
// that owns the key.
type KeyLookup interface {
	LookupSigningKey(ctx context.Context, req KeyRequest) ([]byte, Principal, error)
}

// KeyLookupFunc adapts a function to KeyLookup.
type KeyLookupFunc func(ctx context.Context, req KeyRequest) ([]byte, Principal, error)

func (f KeyLookupFunc) LookupSigningKey(ctx context.Context, req KeyRequest) ([]byte, Principal, error) {
	return f(ctx, req)
}

// StoreKeyLookup derives signing keys from the secrets held in a SecretStore.
type StoreKeyLookup struct {
	store SecretStore
}

func NewStoreKeyLookup(store SecretStore) *StoreKeyLookup {
	return &StoreKeyLookup{store: store}
}

func (l *StoreKeyLookup) LookupSigningKey(ctx context.Context, req KeyRequest) ([]byte, Principal, error) {
	cred, err := l.store.Lookup(ctx, req.AccessKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, Principal{}, fmt.Errorf("access key not found: %w", ErrUnknownSigningKey)
		}
		return nil, Principal{}, fmt.Errorf("lookup access key: %w: %w", ErrUnknownSigningKey, err)
	}

	kind := req.Kind
	if kind == "" {
		kind = KSigning
	}

	key := DeriveSigningKey(kind, cred.SecretKey, req.Date.UTC().Format(DateFormat), req.Region, req.Service)

	principal := cred.Principal
	if principal.IsZero() {
		principal = Principal{Type: PrincipalUser, Partition: DefaultPartition, Path: "/", Name: cred.AccessKey}
	}
	principal.AccessKey = cred.AccessKey

	return key, principal, nil
}

// DeriveSigningKey runs the SigV4 key derivation chain up to the stage
// named by kind. KSecret returns the raw secret.
func DeriveSigningKey(kind SigningKeyKind, secretKey, dateStamp, region, service string) []byte {
	if kind == KSecret {
		return []byte(secretKey)
	}
	key := hmacSHA256([]byte("AWS4"+secretKey), []byte(dateStamp))
	if kind == KDate {
		return key
	}
	key = hmacSHA256(key, []byte(region))
	if kind == KRegion {
		return key
	}
	key = hmacSHA256(key, []byte(service))
	if kind == KService {
		return key
	}
	return hmacSHA256(key, []byte("aws4_request"))
}

// completeSigningKey continues the derivation chain from the stage named
// by kind until the final signing key.
func completeSigningKey(kind SigningKeyKind, key []byte, dateStamp, region, service string) []byte {
	switch kind {
	case KSecret:
		key = hmacSHA256(append([]byte("AWS4"), key...), []byte(dateStamp))
		fallthrough
	case KDate:
		key = hmacSHA256(key, []byte(region))
		fallthrough
	case KRegion:
		key = hmacSHA256(key, []byte(service))
		fallthrough
	case KService:
		key = hmacSHA256(key, []byte("aws4_request"))
	}
	return key
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}
