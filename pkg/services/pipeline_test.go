package services

import (
	"context"
	dbsql "database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-nlq/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-nlq/pkg/adapters/datasource/sqldb"
	"github.com/ekaya-inc/ekaya-nlq/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-nlq/pkg/cache"
	"github.com/ekaya-inc/ekaya-nlq/pkg/config"
	"github.com/ekaya-inc/ekaya-nlq/pkg/executor"
	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
	"github.com/ekaya-inc/ekaya-nlq/pkg/repositories"
)

const shopID = "shop"

// shopFixture has orders referencing customers, and products and records
// with no relationship to either.
func shopFixture(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "shop.db")
	db, err := dbsql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	stmts := []string{
		`CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE orders (
			id INTEGER PRIMARY KEY,
			customer_id INTEGER REFERENCES customers(id),
			amount REAL NOT NULL
		)`,
		`CREATE TABLE products (id INTEGER PRIMARY KEY, title TEXT NOT NULL, supplier_id INTEGER)`,
		`INSERT INTO customers VALUES (1, 'Ada'), (2, 'Grace')`,
		`INSERT INTO products VALUES (1, 'Lamp', 1)`,
		`CREATE TABLE records (id INTEGER PRIMARY KEY, data TEXT)`,
		`INSERT INTO records VALUES (1, 'a'), (2, 'b')`,
	}
	for i := 1; i <= 15; i++ {
		stmts = append(stmts, fmt.Sprintf(`INSERT INTO orders VALUES (%d, %d, %d.5)`, i, i%2+1, i*10))
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return path
}

type testPipeline struct {
	PipelineService
	datasources DatasourceService
	history     repositories.QueryHistoryRepository
	saved       repositories.SavedQueryRepository
}

func newTestPipeline(t *testing.T, rels ...config.RelationshipConfig) *testPipeline {
	t.Helper()

	logger := zap.NewNop()
	exec := executor.New(executor.Config{Workers: 2}, nil, logger)
	t.Cleanup(exec.Close)

	datasources, err := NewDatasourceService([]config.DatasourceConfig{{
		ID:            shopID,
		Name:          "Shop",
		Type:          "sqlite",
		Config:        map[string]any{"path": shopFixture(t)},
		Relationships: rels,
	}}, datasource.NewAdapterFactory(logger), exec.Pool(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = datasources.Close() })

	resultCache := cache.New(cache.Config{}, nil, nil, logger)
	t.Cleanup(resultCache.Close)

	history := repositories.NewMemoryHistoryRepository()
	saved := repositories.NewMemorySavedQueryRepository()

	p := NewPipelineService(PipelineDeps{
		Datasources: datasources,
		Executor:    exec,
		Cache:       resultCache,
		History:     NewQueryHistoryService(history, logger),
		SavedQuery:  saved,
		Defaults:    models.DefaultQueryMetadata(),
	}, logger)

	return &testPipeline{PipelineService: p, datasources: datasources, history: history, saved: saved}
}

func ask(text string) QueryRequest {
	return QueryRequest{DatasourceID: shopID, Text: text, Owner: "alice"}
}

func TestPipeline_TopOrdersByAmountDescending(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	tr, err := p.Translate(ctx, ask("show top 10 orders by amount descending"))
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, tr.Model.Tables)
	assert.Equal(t, 10, tr.Model.Limit)
	assert.Equal(t, "SELECT * FROM orders ORDER BY amount DESC LIMIT 10", tr.Conversion.SQL)
	assert.Equal(t, "sqlite", tr.Conversion.Dialect)

	result, err := p.ExecuteQuery(ctx, ask("show top 10 orders by amount descending"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, result.Status)
	assert.Equal(t, 10, result.RowCount)
	assert.False(t, result.Truncated)
	assert.Equal(t, 150.5, result.Rows[0]["amount"])
	assert.Equal(t, 60.5, result.Rows[9]["amount"])
}

func TestPipeline_GenericNounsCanNameSchemaObjects(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	for _, text := range []string{"records", "show records", "show data of records"} {
		t.Run(text, func(t *testing.T) {
			tr, err := p.Translate(ctx, ask(text))
			require.NoError(t, err)
			assert.Equal(t, []string{"records"}, tr.Model.Tables)
		})
	}

	result, err := p.ExecuteQuery(ctx, ask("show records"))
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowCount)
}

func TestPipeline_EmptyTextIsValidationError(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	for _, text := range []string{"", "   ", "?!"} {
		t.Run(fmt.Sprintf("%q", text), func(t *testing.T) {
			_, err := p.ExecuteQuery(ctx, ask(text))
			require.Error(t, err)
			assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
		})
	}

	entries, err := p.history.List(ctx, shopID, 0)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing executed, nothing recorded")
}

func TestPipeline_UnknownDatasource(t *testing.T) {
	p := newTestPipeline(t)

	_, err := p.ExecuteQuery(context.Background(), QueryRequest{DatasourceID: "missing", Text: "orders"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestPipeline_UnrelatedTablesFailConversion(t *testing.T) {
	p := newTestPipeline(t)

	_, err := p.Translate(context.Background(), ask("products and customers"))
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConversion, apperrors.KindOf(err))
	assert.ErrorIs(t, err, apperrors.ErrConversion)
	assert.Contains(t, err.Error(), "products")
	assert.Contains(t, err.Error(), "customers")
}

func TestPipeline_NothingRecognisedFailsConversion(t *testing.T) {
	p := newTestPipeline(t)

	_, err := p.Translate(context.Background(), ask("weather tomorrow"))
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConversion, apperrors.KindOf(err))
}

func TestPipeline_JoinsThroughDiscoveredForeignKey(t *testing.T) {
	p := newTestPipeline(t)

	tr, err := p.Translate(context.Background(), ask("orders customers"))
	require.NoError(t, err)
	assert.False(t, tr.Model.Partial)
	require.Len(t, tr.Model.Joins, 1)
	assert.Contains(t, tr.Conversion.SQL, "INNER JOIN")
	assert.Contains(t, tr.Conversion.SQL, "customer_id")
}

func TestPipeline_JoinsThroughDeclaredRelationship(t *testing.T) {
	p := newTestPipeline(t, config.RelationshipConfig{
		SourceTable:   "products",
		SourceColumns: []string{"supplier_id"},
		TargetTable:   "customers",
		TargetColumns: []string{"id"},
		Weight:        0.8,
	})

	tr, err := p.Translate(context.Background(), ask("products and customers"))
	require.NoError(t, err)
	require.Len(t, tr.Model.Joins, 1)
	assert.Contains(t, tr.Conversion.SQL, "supplier_id")
	assert.InDelta(t, 0.8, tr.Conversion.Confidence, 1e-9)
}

func TestPipeline_HistoryInCompletionOrder(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	_, err := p.ExecuteQuery(ctx, ask("top 3 orders by amount"))
	require.NoError(t, err)
	_, err = p.ExecuteQuery(ctx, ask("customers"))
	require.NoError(t, err)
	_, err = p.ExecuteQuery(ctx, ask("products and customers"))
	require.Error(t, err, "conversion failures are not executions")

	entries, err := p.GetQueryHistory(ctx, shopID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "top 3 orders by amount", entries[0].Text)
	assert.Equal(t, []string{"orders"}, entries[0].TablesUsed)
	assert.Equal(t, 3, entries[0].RowCount)
	assert.Equal(t, models.HistoryStatusCompleted, entries[0].Status)
	assert.Equal(t, "customers", entries[1].Text)
	assert.False(t, entries[1].CompletedAt.Before(entries[0].CompletedAt))

	latest, err := p.GetQueryHistory(ctx, shopID, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "customers", latest[0].Text)
}

func TestPipeline_AsyncExecution(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	req := ask("orders")
	req.Metadata = &models.QueryMetadata{Async: true, MaxRows: 5}

	pending, err := p.ExecuteQuery(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, pending.Status)
	require.NotEmpty(t, pending.QueryID)

	result, err := p.GetResult(ctx, pending.QueryID, true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, result.Status)
	assert.Equal(t, 5, result.RowCount)
	assert.True(t, result.Truncated)

	status, err := p.GetStatus(pending.QueryID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status)
	assert.False(t, p.Cancel(pending.QueryID), "terminal executions cannot be cancelled")

	require.Eventually(t, func() bool {
		entries, err := p.GetQueryHistory(ctx, shopID, 0)
		return err == nil && len(entries) == 1 && entries[0].QueryID == pending.QueryID
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPipeline_CachedResults(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	req := ask("top 2 orders by amount descending")
	req.Metadata = &models.QueryMetadata{CacheResult: true}

	first, err := p.ExecuteQuery(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := p.ExecuteQuery(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Rows, second.Rows)

	second.Rows[0]["amount"] = -1.0
	third, err := p.ExecuteQuery(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 150.5, third.Rows[0]["amount"])

	// Cache hits point history at the execution that produced the rows.
	assert.Equal(t, first.QueryID, second.QueryID)
	entries, err := p.GetQueryHistory(ctx, shopID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, first.QueryID, e.QueryID)
		status, err := p.GetStatus(e.QueryID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, status)
	}
}

func TestPipeline_StatusOfUnknownQuery(t *testing.T) {
	p := newTestPipeline(t)

	_, err := p.GetStatus("nope")
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
	assert.False(t, p.Cancel("nope"))
}

func TestPipeline_SavedQueries(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	req := ask("top 3 orders by amount descending")
	tr, err := p.Translate(ctx, req)
	require.NoError(t, err)

	id, err := p.SaveQuery(ctx, "best orders", req, tr.Conversion)
	require.NoError(t, err)

	result, err := p.ExecuteSavedQuery(ctx, id, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, result.RowCount)

	// private to alice
	_, err = p.ExecuteSavedQuery(ctx, id, "bob")
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))
	list, err := p.ListSavedQueries(ctx, shopID, "bob")
	require.NoError(t, err)
	assert.Empty(t, list)

	public := true
	_, err = p.UpdateSavedQuery(ctx, id, "bob", models.SavedQueryUpdate{IsPublic: &public})
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))

	updated, err := p.UpdateSavedQuery(ctx, id, "alice", models.SavedQueryUpdate{IsPublic: &public})
	require.NoError(t, err)
	assert.True(t, updated.IsPublic)

	list, err = p.ListSavedQueries(ctx, shopID, "bob")
	require.NoError(t, err)
	require.Len(t, list, 1)
	_, err = p.ExecuteSavedQuery(ctx, id, "bob")
	require.NoError(t, err)

	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(p.DeleteSavedQuery(ctx, id, "bob")))
	require.NoError(t, p.DeleteSavedQuery(ctx, id, "alice"))
	_, err = p.ExecuteSavedQuery(ctx, id, "alice")
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestPipeline_SaveQueryValidation(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	conv := &models.SqlConversionResult{SQL: "SELECT * FROM orders"}

	tests := []struct {
		name string
		qn   string
		req  QueryRequest
		conv *models.SqlConversionResult
	}{
		{"missing name", " ", ask("orders"), conv},
		{"unknown datasource", "x", QueryRequest{DatasourceID: "missing"}, conv},
		{"no conversion", "x", ask("orders"), nil},
		{"multiple statements", "x", ask("orders"), &models.SqlConversionResult{SQL: "SELECT 1; DROP TABLE orders"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.SaveQuery(ctx, tt.qn, tt.req, tt.conv)
			require.Error(t, err)
			assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
		})
	}
}
