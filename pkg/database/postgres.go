// Package database opens the PostgreSQL pool backing query history and saved
// queries, and applies the embedded schema migrations.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-nlq/pkg/config"
	"github.com/ekaya-inc/ekaya-nlq/pkg/retry"
)

// DB wraps a pgxpool connection pool.
type DB struct {
	*pgxpool.Pool
}

// Options tunes the pool beyond what the connection string carries.
type Options struct {
	MaxConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Open connects to the database described by cfg and applies pending
// migrations. It returns nil when no database host is configured. Transient
// connection failures are retried while the server starts.
func Open(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	var attempts int
	db, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*DB, error) {
		attempts++
		db, err := NewConnection(ctx, cfg.ConnectionString(), Options{MaxConnections: cfg.MaxConnections})
		if err != nil && logger != nil {
			logger.Warn("Database connection attempt failed",
				zap.Int("attempt", attempts),
				zap.String("host", cfg.Host),
				zap.Error(err))
		}
		return db, err
	})
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(db.Pool, logger); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// NewConnection creates a new database connection pool.
func NewConnection(ctx context.Context, url string, opts Options) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = opts.MaxConnections
	if poolConfig.MaxConns == 0 {
		poolConfig.MaxConns = 10
	}

	poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	if poolConfig.MaxConnLifetime == 0 {
		poolConfig.MaxConnLifetime = time.Hour
	}

	poolConfig.MaxConnIdleTime = opts.MaxConnIdleTime
	if poolConfig.MaxConnIdleTime == 0 {
		poolConfig.MaxConnIdleTime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
