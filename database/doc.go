// Package database provides a unified interface for connecting to key store backends.
//
// Access keys managed by `sigv4gate keys` live in one table. Two backends are
// supported:
//
//   - PostgreSQL: shared backend for multi-replica deployments, using a pgx pool
//   - SQLite: single-node backend using modernc.org/sqlite
//
// # Usage
//
//	cfg := database.Config{
//	    Type:   "sqlite",
//	    DSN:    "sigv4gate.db",
//	    Tables: sigv4gate.Tables{Keys: "sigv4gate_keys"},
//	}
//
//	db, err := database.Open(ctx, cfg, true)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	store := sigv4gate.NewCachedSecretStore(db.GetRepo(), 1024, time.Minute)
//
// # Subpackages
//
//   - database/postgres: PostgreSQL implementation using pgx
//   - database/sqlite: SQLite implementation using modernc.org/sqlite
package database
