package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"sync"

	_ "github.com/microsoft/go-mssqldb"         // SQL Server driver
	_ "github.com/microsoft/go-mssqldb/azuread" // Azure AD support
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-nlq/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-nlq/pkg/logging"
	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
	"github.com/ekaya-inc/ekaya-nlq/pkg/retry"
)

// Adapter provides SQL Server connectivity with SQL or service principal authentication.
type Adapter struct {
	config   *Config
	logger   *zap.Logger
	retryCfg *retry.Config

	mu sync.RWMutex
	db *sql.DB
}

// NewAdapter creates an unconnected SQL Server adapter.
func NewAdapter(cfg *Config, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		config:   cfg,
		logger:   logger.Named("mssql"),
		retryCfg: retry.DefaultConfig(),
	}
}

// connectionString returns the driver name and DSN for the configured auth method.
func connectionString(cfg *Config) (driver, dsn string) {
	query := url.Values{}
	query.Add("database", cfg.Database)

	if cfg.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}
	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if cfg.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", cfg.ConnectionTimeout))
	}

	if cfg.AuthMethod == AuthServicePrincipal {
		query.Add("fedauth", "ActiveDirectoryServicePrincipal")
		query.Add("user id", cfg.ClientID+"@"+cfg.TenantID)
		query.Add("password", cfg.ClientSecret)
		return "azuresql", fmt.Sprintf("sqlserver://%s:%d?%s", cfg.Host, cfg.Port, query.Encode())
	}

	return "sqlserver", fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(cfg.Username),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		query.Encode(),
	)
}

// Connect opens the pool and pings it, retrying transient failures.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.db != nil {
		return nil
	}

	driver, dsn := connectionString(a.config)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("open sql server connection: %w", err)
	}

	if err := retry.DoIfRetryable(ctx, a.retryCfg, func() error {
		return db.PingContext(ctx)
	}); err != nil {
		db.Close()
		a.logger.Error("Failed to connect",
			zap.String("host", a.config.Host),
			zap.String("database", a.config.Database),
			zap.String("error", logging.SanitizeError(err)))
		return fmt.Errorf("connection test failed: %w", err)
	}

	a.db = db
	a.logger.Info("Connected",
		zap.String("host", a.config.Host),
		zap.String("database", a.config.Database),
		zap.String("auth_method", a.config.AuthMethod))
	return nil
}

// Disconnect closes the pool.
func (a *Adapter) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

func (a *Adapter) getDB() (*sql.DB, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.db == nil {
		return nil, datasource.ErrNotConnected
	}
	return a.db, nil
}

// TestConnection verifies the database is reachable and is the configured one.
func (a *Adapter) TestConnection(ctx context.Context) error {
	db, err := a.getDB()
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var currentDB string
	if err := db.QueryRowContext(ctx, "SELECT DB_NAME()").Scan(&currentDB); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	if !strings.EqualFold(currentDB, a.config.Database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.config.Database, currentDB)
	}

	return nil
}

// Query runs a statement with @pN placeholders.
func (a *Adapter) Query(ctx context.Context, query string, params []any) (datasource.RowCursor, error) {
	db, err := a.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return datasource.NewSQLCursor(rows)
}

// Schema discovers tables, columns, foreign keys and sample values.
func (a *Adapter) Schema(ctx context.Context) (*models.Schema, error) {
	db, err := a.getDB()
	if err != nil {
		return nil, err
	}
	return discoverSchema(ctx, db, a.logger)
}

// Dialect returns "sqlserver".
func (a *Adapter) Dialect() string {
	return "sqlserver"
}

// Ensure Adapter implements datasource.Adapter at compile time.
var _ datasource.Adapter = (*Adapter)(nil)
