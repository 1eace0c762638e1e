package keybackend_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/sigv4gate"
	"github.com/sagarc03/sigv4gate/keybackend"
)

func TestMapSecretStore_Lookup(t *testing.T) {
	tests := []struct {
		name      string
		keys      map[string]string
		accessKey string
		wantKey   string
		wantErr   error
	}{
		{
			name: "returns secret key when access key exists",
			keys: map[string]string{
				"access1": "secret1",
				"access2": "secret2",
			},
			accessKey: "access1",
			wantKey:   "secret1",
			wantErr:   nil,
		},
		{
			name: "returns ErrKeyNotFound when access key does not exist",
			keys: map[string]string{
				"access1": "secret1",
			},
			accessKey: "nonexistent",
			wantKey:   "",
			wantErr:   keybackend.ErrKeyNotFound,
		},
		{
			name:      "returns ErrKeyNotFound for empty store",
			keys:      map[string]string{},
			accessKey: "anykey",
			wantKey:   "",
			wantErr:   keybackend.ErrKeyNotFound,
		},
		{
			name:      "returns ErrKeyNotFound for nil store",
			keys:      nil,
			accessKey: "anykey",
			wantKey:   "",
			wantErr:   keybackend.ErrKeyNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := keybackend.NewMapSecretStore(tt.keys)

			cred, err := store.Lookup(context.Background(), tt.accessKey)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.ErrorIs(t, err, sigv4gate.ErrNotFound)
				assert.Empty(t, cred.SecretKey)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantKey, cred.SecretKey)
				assert.Equal(t, tt.accessKey, cred.AccessKey)
				assert.True(t, cred.Principal.IsZero())
			}
		})
	}
}

func TestNewCredentialStore_LastWins(t *testing.T) {
	store := keybackend.NewCredentialStore([]sigv4gate.Credential{
		{AccessKey: "DUP", SecretKey: "first"},
		{AccessKey: "DUP", SecretKey: "second"},
	})

	cred, err := store.Lookup(context.Background(), "DUP")
	require.NoError(t, err)
	assert.Equal(t, "second", cred.SecretKey)
	assert.Equal(t, 1, store.Len())
}
