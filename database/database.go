package database

import (
	"context"
	"fmt"

	"github.com/sagarc03/sigv4gate"
	"github.com/sagarc03/sigv4gate/database/postgres"
	"github.com/sagarc03/sigv4gate/database/sqlite"
)

// Config holds the configuration for connecting to a key store backend.
type Config struct {
	// Type specifies the database type: "sqlite" or "postgres"
	Type string `mapstructure:"type" validate:"required,oneof=sqlite postgres"`
	// DSN is the data source name (connection string)
	DSN string `mapstructure:"dsn" validate:"required"`
	// Tables names the tables used by the backend
	Tables sigv4gate.Tables `mapstructure:"tables"`
}

// Database is a connected key store backend.
type Database interface {
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Validate(ctx context.Context) error
	GetRepo() sigv4gate.KeyRepo
	Close() error
}

// Connect opens the configured backend. It does not migrate; call Migrate
// or Validate before handing the repo to a KeyService.
func Connect(ctx context.Context, cfg Config) (Database, error) {
	if err := cfg.Tables.Validate(); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	var (
		db  Database
		err error
	)

	switch cfg.Type {
	case "sqlite":
		db, err = sqlite.Connect(ctx, cfg.DSN, cfg.Tables)
	case "postgres":
		db, err = postgres.Connect(ctx, cfg.DSN, cfg.Tables)
	default:
		return nil, fmt.Errorf("unsupported database type: %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	return db, nil
}

// Open connects, then migrates when autoMigrate is set or validates the
// existing schema otherwise.
func Open(ctx context.Context, cfg Config, autoMigrate bool) (Database, error) {
	db, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err = db.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Type, err)
	}

	if autoMigrate {
		err = db.Migrate(ctx)
	} else {
		err = db.Validate(ctx)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare %s schema: %w", cfg.Type, err)
	}

	return db, nil
}
