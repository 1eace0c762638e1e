package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sagarc03/sigv4gate"
	"github.com/sagarc03/sigv4gate/config"
	"github.com/sagarc03/sigv4gate/database"
	"github.com/sagarc03/sigv4gate/keybackend"
)

// openKeyStore builds the secret store the gateway verifies against:
// config keys first, then the database when enabled, behind an optional
// TTL cache. The returned close function releases the database.
func openKeyStore(ctx context.Context, cfg *config.Config) (sigv4gate.SecretStore, func(), error) {
	static, err := keybackend.NewSecretStore(cfg.Auth.Keys.KeysConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("load access keys: %w", err)
	}

	stores := []sigv4gate.SecretStore{static}
	closeFn := func() {}

	if cfg.Auth.Keys.Database {
		db, openErr := database.Open(ctx, cfg.Database.Config, cfg.Database.AutoMigrate)
		if openErr != nil {
			return nil, nil, fmt.Errorf("open key database: %w", openErr)
		}
		closeFn = func() { _ = db.Close() }
		stores = append(stores, db.GetRepo())
		slog.Info("connected to key database", "type", cfg.Database.Type)
	} else if static.Len() == 0 {
		slog.Warn("no access keys configured, every request will be rejected")
	}

	var store sigv4gate.SecretStore = keybackend.NewChainSecretStore(stores...)
	if cfg.Auth.Cache.Enabled {
		store = sigv4gate.NewCachedSecretStore(store, cfg.Auth.Cache.Size, cfg.Auth.Cache.TTL)
	}

	slog.Debug("key store ready", "config_keys", static.Len(), "database", cfg.Auth.Keys.Database, "cache", cfg.Auth.Cache.Enabled)

	return store, closeFn, nil
}

// openKeyRepo connects to the key database for the keys subcommands.
func openKeyRepo(ctx context.Context, cfg *config.Config) (sigv4gate.KeyRepo, func(), error) {
	db, err := database.Open(ctx, cfg.Database.Config, cfg.Database.AutoMigrate)
	if err != nil {
		return nil, nil, fmt.Errorf("open key database: %w", err)
	}
	return db.GetRepo(), func() { _ = db.Close() }, nil
}
