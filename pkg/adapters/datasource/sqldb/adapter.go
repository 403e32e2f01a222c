// Package sqldb adapts MySQL and SQLite data sources through database/sql.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-nlq/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-nlq/pkg/logging"
	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
	"github.com/ekaya-inc/ekaya-nlq/pkg/retry"
)

// catalog holds the engine-specific schema queries.
type catalog interface {
	dialect() string
	tables(ctx context.Context, db *sql.DB) ([]models.SchemaTable, error)
	columns(ctx context.Context, db *sql.DB, table models.SchemaTable) ([]models.SchemaColumn, error)
	foreignKeys(ctx context.Context, db *sql.DB, tables []models.SchemaTable) ([]datasource.ForeignKeyColumn, error)
	distinctValues(ctx context.Context, db *sql.DB, schemaName, tableName, columnName string, limit int) ([]string, error)
}

// Adapter serves any data source reachable through a database/sql driver
// with a catalog implementation.
type Adapter struct {
	config   *Config
	catalog  catalog
	logger   *zap.Logger
	retryCfg *retry.Config

	mu sync.RWMutex
	db *sql.DB
}

// NewAdapter creates an unconnected adapter for cfg.Driver.
func NewAdapter(cfg *Config, logger *zap.Logger) (*Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var cat catalog
	switch cfg.Driver {
	case DriverMySQL:
		cat = mysqlCatalog{}
	case DriverSQLite:
		cat = sqliteCatalog{}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	return &Adapter{
		config:   cfg,
		catalog:  cat,
		logger:   logger.Named(cfg.Driver),
		retryCfg: retry.DefaultConfig(),
	}, nil
}

// Connect opens the pool and pings it, retrying transient failures.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.db != nil {
		return nil
	}

	db, err := sql.Open(a.config.Driver, a.config.DSN())
	if err != nil {
		return fmt.Errorf("open %s connection: %w", a.config.Driver, err)
	}
	db.SetMaxOpenConns(a.config.MaxOpenConns)

	if err := retry.DoIfRetryable(ctx, a.retryCfg, func() error {
		return db.PingContext(ctx)
	}); err != nil {
		db.Close()
		a.logger.Error("Failed to connect", zap.String("error", logging.SanitizeError(err)))
		return fmt.Errorf("connect to %s: %w", a.config.Driver, err)
	}

	a.db = db
	a.logger.Info("Connected", zap.String("database", a.config.Database+a.config.Path))
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

// TestConnection pings the database and runs a trivial query.
func (a *Adapter) TestConnection(ctx context.Context) error {
	db, err := a.getDB()
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	return nil
}

// Query runs a statement with ? placeholders.
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

	tables, err := a.catalog.tables(ctx, db)
	if err != nil {
		return nil, err
	}
	for i := range tables {
		cols, err := a.catalog.columns(ctx, db, tables[i])
		if err != nil {
			return nil, err
		}
		tables[i].Columns = cols
	}

	schema := &models.Schema{Tables: tables}

	fks, err := a.catalog.foreignKeys(ctx, db, tables)
	if err != nil {
		return nil, err
	}
	datasource.AttachForeignKeys(schema, fks)

	distinct := func(ctx context.Context, schemaName, tableName, columnName string, limit int) ([]string, error) {
		return a.catalog.distinctValues(ctx, db, schemaName, tableName, columnName, limit)
	}
	if err := datasource.CollectSampleValues(ctx, schema, distinct, a.logger); err != nil {
		return nil, err
	}
	return schema, nil
}

// Dialect returns "mysql" or "sqlite".
func (a *Adapter) Dialect() string {
	return a.catalog.dialect()
}

// Ensure Adapter implements datasource.Adapter at compile time.
var _ datasource.Adapter = (*Adapter)(nil)

// scanStrings collects a single string column.
func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan value: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate values: %w", err)
	}
	return values, nil
}
