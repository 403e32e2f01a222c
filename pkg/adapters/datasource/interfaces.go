package datasource

import (
	"context"
	"errors"

	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

// SampleValueLimit is the largest number of distinct values a text column may
// hold for its values to be reported as schema sample values.
const SampleValueLimit = 25

// ErrNotConnected is returned by Query and Schema before Connect succeeded.
var ErrNotConnected = errors.New("data source is not connected")

// Adapter is a connection to one external data source. After Connect returns
// nil an Adapter is safe for concurrent use.
type Adapter interface {
	// Connect establishes the connection pool. Calling it again on a
	// connected adapter is a no-op.
	Connect(ctx context.Context) error

	// Disconnect releases the connection pool.
	Disconnect() error

	// TestConnection verifies the data source is reachable with valid credentials.
	TestConnection(ctx context.Context) error

	// Query runs a parameterized statement. Placeholders follow Dialect.
	// The caller must close the returned cursor.
	Query(ctx context.Context, query string, params []any) (RowCursor, error)

	// Schema describes the user tables, their columns, foreign keys and the
	// sample values of low-cardinality text columns.
	Schema(ctx context.Context) (*models.Schema, error)

	// Dialect names the SQL dialect the adapter expects.
	Dialect() string
}

// RowCursor iterates the rows of a query result one at a time so callers can
// stop early and check for cancellation between rows.
type RowCursor interface {
	Columns() []models.ColumnDescriptor
	Next() bool
	// Row returns the current row keyed by column name.
	Row() (models.Row, error)
	Err() error
	Close() error
}
