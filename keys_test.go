package sigv4gate_test

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/sigv4gate"
)

type stubStore struct {
	creds map[string]sigv4gate.Credential
	err   error
	calls int
}

func (s *stubStore) Lookup(_ context.Context, accessKey string) (sigv4gate.Credential, error) {
	s.calls++
	if s.err != nil {
		return sigv4gate.Credential{}, s.err
	}
	cred, ok := s.creds[accessKey]
	if !ok {
		return sigv4gate.Credential{}, sigv4gate.ErrNotFound
	}
	return cred, nil
}

func TestDeriveSigningKey_KnownVector(t *testing.T) {
	t.Parallel()

	// Example from the AWS SigV4 documentation.
	key := sigv4gate.DeriveSigningKey(
		sigv4gate.KSigning,
		"wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY",
		"20120215",
		"us-east-1",
		"iam",
	)

	assert.Equal(t, "f4780e2d9f65fa895f9c67b32ce1baf0b0d8a43505a000a1a9e090d414db404d", hex.EncodeToString(key))
}

func TestDeriveSigningKey_Stages(t *testing.T) {
	t.Parallel()

	secret := "secret"
	assert.Equal(t, []byte(secret), sigv4gate.DeriveSigningKey(sigv4gate.KSecret, secret, "20260112", "us-east-1", "s3"))

	seen := map[string]sigv4gate.SigningKeyKind{}
	for _, kind := range []sigv4gate.SigningKeyKind{sigv4gate.KDate, sigv4gate.KRegion, sigv4gate.KService, sigv4gate.KSigning} {
		key := sigv4gate.DeriveSigningKey(kind, secret, "20260112", "us-east-1", "s3")
		assert.Len(t, key, 32, kind)
		prev, dup := seen[string(key)]
		assert.False(t, dup, "%s produced the same key as %s", kind, prev)
		seen[string(key)] = kind
	}
}

func TestStoreKeyLookup_LookupSigningKey(t *testing.T) {
	t.Parallel()

	service, err := sigv4gate.ServicePrincipal("billing", "internal")
	require.NoError(t, err)

	store := &stubStore{creds: map[string]sigv4gate.Credential{
		"AKIAUSER": {AccessKey: "AKIAUSER", SecretKey: "user-secret"},
		"AKIASVC":  {AccessKey: "AKIASVC", SecretKey: "svc-secret", Principal: service},
	}}
	lookup := sigv4gate.NewStoreKeyLookup(store)
	date := time.Date(2026, 1, 12, 7, 0, 0, 0, time.UTC)

	t.Run("default principal", func(t *testing.T) {
		key, p, err := lookup.LookupSigningKey(context.Background(), sigv4gate.KeyRequest{
			Kind: sigv4gate.KSigning, AccessKey: "AKIAUSER", Date: date, Region: "us-east-1", Service: "s3",
		})
		require.NoError(t, err)
		assert.Equal(t, sigv4gate.DeriveSigningKey(sigv4gate.KSigning, "user-secret", "20260112", "us-east-1", "s3"), key)
		assert.Equal(t, sigv4gate.PrincipalUser, p.Type)
		assert.Equal(t, "AKIAUSER", p.Name)
		assert.Equal(t, "AKIAUSER", p.AccessKey)
	})

	t.Run("configured principal", func(t *testing.T) {
		key, p, err := lookup.LookupSigningKey(context.Background(), sigv4gate.KeyRequest{
			Kind: sigv4gate.KDate, AccessKey: "AKIASVC", Date: date, Region: "us-east-1", Service: "s3",
		})
		require.NoError(t, err)
		assert.Equal(t, sigv4gate.DeriveSigningKey(sigv4gate.KDate, "svc-secret", "20260112", "", ""), key)
		assert.Equal(t, "billing.internal", p.String())
		assert.Equal(t, "AKIASVC", p.AccessKey)
	})

	t.Run("empty kind means signing", func(t *testing.T) {
		key, _, err := lookup.LookupSigningKey(context.Background(), sigv4gate.KeyRequest{
			AccessKey: "AKIAUSER", Date: date, Region: "us-east-1", Service: "s3",
		})
		require.NoError(t, err)
		assert.Equal(t, sigv4gate.DeriveSigningKey(sigv4gate.KSigning, "user-secret", "20260112", "us-east-1", "s3"), key)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, _, err := lookup.LookupSigningKey(context.Background(), sigv4gate.KeyRequest{AccessKey: "nope", Date: date})
		require.ErrorIs(t, err, sigv4gate.ErrUnknownSigningKey)
		assert.Equal(t, sigv4gate.ReasonUnknownSigningKey, sigv4gate.ReasonOf(err))
	})
}

func TestStoreKeyLookup_StoreFailure(t *testing.T) {
	t.Parallel()

	storeErr := errors.New("connection refused")
	lookup := sigv4gate.NewStoreKeyLookup(&stubStore{err: storeErr})

	_, _, err := lookup.LookupSigningKey(context.Background(), sigv4gate.KeyRequest{AccessKey: "AKIA"})
	require.Error(t, err)
	assert.ErrorIs(t, err, sigv4gate.ErrUnknownSigningKey)
	assert.ErrorIs(t, err, storeErr)
	assert.ErrorIs(t, err, sigv4gate.ErrUnauthorized)
}

func TestCachedSecretStore(t *testing.T) {
	t.Parallel()

	inner := &stubStore{creds: map[string]sigv4gate.Credential{
		"AKIA1": {AccessKey: "AKIA1", SecretKey: "s1"},
	}}
	cached := sigv4gate.NewCachedSecretStore(inner, 10, time.Minute)
	ctx := context.Background()

	for range 3 {
		cred, err := cached.Lookup(ctx, "AKIA1")
		require.NoError(t, err)
		assert.Equal(t, "s1", cred.SecretKey)
	}
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 1, cached.Len())

	_, err := cached.Lookup(ctx, "missing")
	require.ErrorIs(t, err, sigv4gate.ErrNotFound)
	_, err = cached.Lookup(ctx, "missing")
	require.ErrorIs(t, err, sigv4gate.ErrNotFound)
	assert.Equal(t, 3, inner.calls, "misses are not cached")

	cached.Purge("AKIA1")
	_, err = cached.Lookup(ctx, "AKIA1")
	require.NoError(t, err)
	assert.Equal(t, 4, inner.calls)
}

func TestCachedSecretStore_Expiry(t *testing.T) {
	t.Parallel()

	inner := &stubStore{creds: map[string]sigv4gate.Credential{
		"AKIA1": {AccessKey: "AKIA1", SecretKey: "s1"},
	}}
	cached := sigv4gate.NewCachedSecretStore(inner, 10, 20*time.Millisecond)
	ctx := context.Background()

	_, err := cached.Lookup(ctx, "AKIA1")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return cached.Len() == 0 }, time.Second, 10*time.Millisecond)

	_, err = cached.Lookup(ctx, "AKIA1")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}
