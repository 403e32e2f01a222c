package sqldb

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-nlq/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

var fixture = []string{
	`CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
	`CREATE TABLE orders (
		id INTEGER PRIMARY KEY,
		customer_id INTEGER REFERENCES customers(id),
		amount REAL,
		status VARCHAR(20)
	)`,
	`INSERT INTO customers VALUES (1, 'Ada'), (2, 'Grace')`,
	`INSERT INTO orders VALUES (1, 1, 10.5, 'shipped'), (2, 1, 99.0, 'pending'), (3, 2, 42.0, 'shipped')`,
}

func newSQLiteAdapter(t *testing.T) *Adapter {
	t.Helper()

	cfg, err := FromMap(DriverSQLite, map[string]any{
		"path": filepath.Join(t.TempDir(), "fixture.db"),
	})
	require.NoError(t, err)

	a, err := NewAdapter(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, a.Connect(context.Background()))
	t.Cleanup(func() { _ = a.Disconnect() })

	db, err := a.getDB()
	require.NoError(t, err)
	for _, stmt := range fixture {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return a
}

func collect(t *testing.T, cur datasource.RowCursor) []models.Row {
	t.Helper()
	defer cur.Close()
	var rows []models.Row
	for cur.Next() {
		row, err := cur.Row()
		require.NoError(t, err)
		rows = append(rows, row)
	}
	require.NoError(t, cur.Err())
	return rows
}

func TestSQLite_QueryWithParams(t *testing.T) {
	a := newSQLiteAdapter(t)

	cur, err := a.Query(context.Background(),
		`SELECT id, status, amount FROM orders WHERE status = ? ORDER BY amount DESC`, []any{"shipped"})
	require.NoError(t, err)

	cols := cur.Columns()
	require.Len(t, cols, 3)
	assert.Equal(t, "status", cols[1].Name)

	rows := collect(t, cur)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(3), rows[0]["id"])
	assert.Equal(t, "shipped", rows[0]["status"])
	assert.Equal(t, 42.0, rows[0]["amount"])
}

func TestSQLite_Schema(t *testing.T) {
	a := newSQLiteAdapter(t)

	schema, err := a.Schema(context.Background())
	require.NoError(t, err)
	require.Len(t, schema.Tables, 2)
	assert.Equal(t, "customers", schema.Tables[0].Name)

	orders, ok := schema.Table("orders")
	require.True(t, ok)

	id, ok := orders.Column("id")
	require.True(t, ok)
	assert.True(t, id.IsPrimaryKey)
	assert.Empty(t, id.SampleValues)

	status, ok := orders.Column("status")
	require.True(t, ok)
	assert.Equal(t, "VARCHAR(20)", status.DataType)
	assert.Equal(t, []string{"pending", "shipped"}, status.SampleValues)

	amount, ok := orders.Column("amount")
	require.True(t, ok)
	assert.Empty(t, amount.SampleValues, "numeric columns carry no samples")

	require.Len(t, orders.ForeignKeys, 1)
	fk := orders.ForeignKeys[0]
	assert.Equal(t, "customers", fk.ReferencedTable)
	assert.Equal(t, []string{"customer_id"}, fk.Columns)
	assert.Equal(t, []string{"id"}, fk.ReferencedColumns)
}

func TestSQLite_HighCardinalityColumnHasNoSamples(t *testing.T) {
	a := newSQLiteAdapter(t)
	db, err := a.getDB()
	require.NoError(t, err)

	for i := 0; i <= datasource.SampleValueLimit; i++ {
		_, err := db.Exec(`INSERT INTO customers (name) VALUES (?)`, strings.Repeat("x", i+1))
		require.NoError(t, err)
	}

	schema, err := a.Schema(context.Background())
	require.NoError(t, err)
	customers, _ := schema.Table("customers")
	name, _ := customers.Column("name")
	assert.Empty(t, name.SampleValues)
}

func TestSQLite_ConnectionLifecycle(t *testing.T) {
	a := newSQLiteAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.TestConnection(ctx))
	require.NoError(t, a.Connect(ctx), "connecting twice is a no-op")
	assert.Equal(t, "sqlite", a.Dialect())

	require.NoError(t, a.Disconnect())
	_, err := a.Query(ctx, "SELECT 1", nil)
	assert.ErrorIs(t, err, datasource.ErrNotConnected)
	assert.ErrorIs(t, a.TestConnection(ctx), datasource.ErrNotConnected)
}

func TestSQLite_QueryError(t *testing.T) {
	a := newSQLiteAdapter(t)
	_, err := a.Query(context.Background(), "SELECT * FROM missing_table", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute query")
}

func TestFromMap(t *testing.T) {
	cfg, err := FromMap(DriverMySQL, map[string]any{
		"host": "db.internal", "port": float64(3307), "user": "app", "password": "p@ss", "database": "sales",
		"params": map[string]any{"tls": "skip-verify"},
	})
	require.NoError(t, err)
	dsn := cfg.DSN()
	assert.True(t, strings.HasPrefix(dsn, "app:p@ss@tcp(db.internal:3307)/sales?"), dsn)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "tls=skip-verify")

	cfg, err = FromMap(DriverMySQL, map[string]any{"host": "localhost", "user": "u", "database": "d"})
	require.NoError(t, err)
	assert.Contains(t, cfg.DSN(), "tcp(localhost:3306)")

	_, err = FromMap(DriverMySQL, map[string]any{"host": "h", "user": "u"})
	assert.ErrorContains(t, err, "database is required")

	_, err = FromMap(DriverSQLite, map[string]any{})
	assert.ErrorContains(t, err, "path is required")

	cfg, err = FromMap(DriverSQLite, map[string]any{"database": "/tmp/x.db"})
	require.NoError(t, err)
	assert.Equal(t, "file:/tmp/x.db?_busy_timeout=5000&_foreign_keys=on", cfg.DSN())

	_, err = FromMap("oracle", map[string]any{})
	assert.ErrorContains(t, err, "unsupported driver")
}

func TestRegistry(t *testing.T) {
	types := datasource.RegisteredAdapters()
	var names []string
	for _, info := range types {
		names = append(names, info.Type)
	}
	assert.Contains(t, names, "mysql")
	assert.Contains(t, names, "sqlite")

	factory := datasource.NewAdapterFactory(nil)
	a, err := factory.NewAdapter("sqlite", map[string]any{"path": filepath.Join(t.TempDir(), "r.db")})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", a.Dialect())

	_, err = factory.NewAdapter("oracle", nil)
	assert.ErrorContains(t, err, "unsupported datasource type")
}
