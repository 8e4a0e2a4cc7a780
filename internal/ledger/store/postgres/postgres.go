// Package postgres wires the schema and query layer to a real Postgres
// database: connection pool settings and migrations. Serialization
// failures are classified for retry by package store.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"go.uber.org/zap"

	"github.com/blockforest/ledgercore/internal/ledger/store"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 10 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
)

// Config holds the connection parameters for a Postgres-backed Store.
type Config struct {
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// SkipMigrations lets integration tests that manage their own schema
	// opt out of running migrations on Open.
	SkipMigrations bool
}

// Open connects to Postgres, applies pending migrations (unless
// SkipMigrations is set), and returns a ready-to-use Store.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*store.Store, func() error, error) {
	if cfg.DSN == "" {
		return nil, nil, fmt.Errorf("postgres: dsn is required")
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(orDefault(cfg.MaxOpenConns, defaultMaxOpenConns))
	db.SetMaxIdleConns(orDefault(cfg.MaxIdleConns, defaultMaxIdleConns))
	db.SetConnMaxLifetime(orDefaultDuration(cfg.ConnMaxLifetime, defaultConnMaxLifetime))
	db.SetConnMaxIdleTime(orDefaultDuration(cfg.ConnMaxIdleTime, defaultConnMaxIdleTime))

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	if !cfg.SkipMigrations {
		if err := Migrate(db, logger); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
	}

	s := store.New(db, logger)
	return s, db.Close, nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orDefaultDuration(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}
