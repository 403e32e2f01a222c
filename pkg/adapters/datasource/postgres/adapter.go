package postgres

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-nlq/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-nlq/pkg/logging"
	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
	"github.com/ekaya-inc/ekaya-nlq/pkg/retry"
)

// Adapter provides PostgreSQL connectivity over a pgx pool.
type Adapter struct {
	config   *Config
	logger   *zap.Logger
	retryCfg *retry.Config

	mu        sync.RWMutex
	pool      *pgxpool.Pool
	ownedPool bool // false when the pool was handed in by the caller
}

// buildConnectionString builds a PostgreSQL URL with proper escaping.
// All user-provided fields are URL-escaped so passwords containing @, /, #
// or ? survive URL parsing.
func buildConnectionString(cfg *Config) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = DefaultSSLMode()
	}

	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		url.QueryEscape(cfg.Database),
		sslMode,
	)
}

// NewAdapter creates an unconnected PostgreSQL adapter.
// If logger is nil, a no-op logger is used.
func NewAdapter(cfg *Config, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		config:   cfg,
		logger:   logger.Named("postgres"),
		retryCfg: retry.DefaultConfig(),
	}
}

// NewAdapterFromPool wraps an existing pool. Disconnect does not close it.
func NewAdapterFromPool(pool *pgxpool.Pool, database string, logger *zap.Logger) *Adapter {
	a := NewAdapter(&Config{Database: database}, logger)
	a.pool = pool
	return a
}

// Connect creates the pool and verifies it with a ping, retrying transient
// failures with backoff.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pool != nil {
		return nil
	}

	poolCfg, err := pgxpool.ParseConfig(buildConnectionString(a.config))
	if err != nil {
		return fmt.Errorf("parse postgres config: %w", err)
	}
	if a.config.MaxConnections > 0 {
		poolCfg.MaxConns = a.config.MaxConnections
	}

	var pool *pgxpool.Pool
	err = retry.DoIfRetryable(ctx, a.retryCfg, func() error {
		p, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		a.logger.Error("Failed to connect",
			zap.String("host", a.config.Host),
			zap.String("database", a.config.Database),
			zap.String("error", logging.SanitizeError(err)))
		return fmt.Errorf("connect to postgres: %w", err)
	}

	a.pool = pool
	a.ownedPool = true
	a.logger.Info("Connected",
		zap.String("host", a.config.Host),
		zap.String("database", a.config.Database))
	return nil
}

// Disconnect closes the pool. The adapter can be connected again afterwards.
func (a *Adapter) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ownedPool && a.pool != nil {
		a.pool.Close()
	}
	a.pool = nil
	a.ownedPool = false
	return nil
}

func (a *Adapter) getPool() (*pgxpool.Pool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.pool == nil {
		return nil, datasource.ErrNotConnected
	}
	return a.pool, nil
}

// TestConnection verifies the database is reachable with valid credentials.
// It checks:
// 1. Server connectivity (ping)
// 2. Database access (simple query)
// 3. Correct database name (to prevent connecting to wrong/default database)
func (a *Adapter) TestConnection(ctx context.Context) error {
	pool, err := a.getPool()
	if err != nil {
		return err
	}

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var result int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}

	var currentDB string
	if err := pool.QueryRow(ctx, "SELECT current_database()").Scan(&currentDB); err != nil {
		return fmt.Errorf("failed to get current database name: %w", err)
	}

	if !strings.EqualFold(currentDB, a.config.Database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.config.Database, currentDB)
	}

	return nil
}

// Query runs a statement with $N placeholders. pgx binds params natively.
func (a *Adapter) Query(ctx context.Context, query string, params []any) (datasource.RowCursor, error) {
	pool, err := a.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return newCursor(rows), nil
}

// Schema discovers tables, columns, foreign keys and sample values.
func (a *Adapter) Schema(ctx context.Context) (*models.Schema, error) {
	pool, err := a.getPool()
	if err != nil {
		return nil, err
	}
	return discoverSchema(ctx, pool, a.config.Schemas, a.logger)
}

// Dialect returns "postgres".
func (a *Adapter) Dialect() string {
	return "postgres"
}

// Ensure Adapter implements datasource.Adapter at compile time.
var _ datasource.Adapter = (*Adapter)(nil)
