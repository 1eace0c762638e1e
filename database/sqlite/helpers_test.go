package sqlite_test

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sagarc03/sigv4gate"
	"github.com/sagarc03/sigv4gate/database/sqlite"
)

func getRandomString(t *testing.T) string {
	t.Helper()
	n, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	require.NoError(t, err, "random string")
	return fmt.Sprintf("test%x", n.Int64())
}

// setupTestRepo creates a repo with a unique table name for test isolation
func setupTestRepo(t *testing.T) sigv4gate.KeyRepo {
	t.Helper()

	ctx := context.Background()

	tableName := fmt.Sprintf("keys_%s", getRandomString(t))
	tables := sigv4gate.Tables{Keys: tableName}

	db, err := sqlite.Connect(ctx, ":memory:", tables)
	require.NoError(t, err, "failed to connect")
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate(ctx), "failed to migrate")

	return db.GetRepo()
}

func userEntry(t *testing.T, accessKey, secret string) sigv4gate.KeyEntry {
	t.Helper()
	p, err := sigv4gate.UserPrincipal("123456789012", "/team/", accessKey+"-user")
	require.NoError(t, err)
	return sigv4gate.KeyEntry{AccessKey: accessKey, SecretKey: secret, Principal: p}
}
