package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-nlq/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-nlq/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
	"github.com/ekaya-inc/ekaya-nlq/pkg/querymodel"
	"github.com/ekaya-inc/ekaya-nlq/pkg/services"
)

// mockPipeline records calls and returns canned values.
type mockPipeline struct {
	lastRequest services.QueryRequest
	lastOwner   string
	lastUpdate  models.SavedQueryUpdate
	lastLimit   int

	result      *models.QueryResult
	translation *services.Translation
	savedID     uuid.UUID
	saved       []*models.SavedQuery
	history     []*models.QueryHistory
	status      models.QueryStatus
	cancelled   bool
	err         error
}

var _ services.PipelineService = (*mockPipeline)(nil)

func (m *mockPipeline) ExecuteQuery(_ context.Context, req services.QueryRequest) (*models.QueryResult, error) {
	m.lastRequest = req
	return m.result, m.err
}

func (m *mockPipeline) Translate(_ context.Context, req services.QueryRequest) (*services.Translation, error) {
	m.lastRequest = req
	return m.translation, m.err
}

func (m *mockPipeline) SaveQuery(_ context.Context, _ string, req services.QueryRequest, _ *models.SqlConversionResult) (uuid.UUID, error) {
	m.lastRequest = req
	return m.savedID, m.err
}

func (m *mockPipeline) ExecuteSavedQuery(_ context.Context, _ uuid.UUID, caller string) (*models.QueryResult, error) {
	m.lastOwner = caller
	return m.result, m.err
}

func (m *mockPipeline) ListSavedQueries(_ context.Context, _ string, caller string) ([]*models.SavedQuery, error) {
	m.lastOwner = caller
	return m.saved, m.err
}

func (m *mockPipeline) UpdateSavedQuery(_ context.Context, id uuid.UUID, owner string, update models.SavedQueryUpdate) (*models.SavedQuery, error) {
	m.lastOwner = owner
	m.lastUpdate = update
	if m.err != nil {
		return nil, m.err
	}
	q := &models.SavedQuery{ID: id, Owner: owner, Name: "saved"}
	update.Apply(q)
	return q, nil
}

func (m *mockPipeline) DeleteSavedQuery(_ context.Context, _ uuid.UUID, owner string) error {
	m.lastOwner = owner
	return m.err
}

func (m *mockPipeline) GetQueryHistory(_ context.Context, _ string, limit int) ([]*models.QueryHistory, error) {
	m.lastLimit = limit
	return m.history, m.err
}

func (m *mockPipeline) GetStatus(string) (models.QueryStatus, error) {
	return m.status, m.err
}

func (m *mockPipeline) GetResult(context.Context, string, bool) (*models.QueryResult, error) {
	return m.result, m.err
}

func (m *mockPipeline) Cancel(string) bool {
	return m.cancelled
}

// mockDatasources serves a fixed list and per-id connection errors.
type mockDatasources struct {
	list    []*models.Datasource
	failing map[string]error
}

var _ services.DatasourceService = (*mockDatasources)(nil)

func (m *mockDatasources) Get(id string) (*models.Datasource, error) {
	for _, ds := range m.list {
		if ds.ID == id {
			return ds, nil
		}
	}
	return nil, apperrors.Validation("datasource", "unknown data source %q", id)
}

func (m *mockDatasources) List() []*models.Datasource { return m.list }

func (m *mockDatasources) Adapter(context.Context, string) (datasource.Adapter, error) {
	return nil, apperrors.New(apperrors.KindExecution, "datasource", "not connected")
}

func (m *mockDatasources) Schema(context.Context, string) (*models.Schema, error) {
	return &models.Schema{}, nil
}

func (m *mockDatasources) Resolver(context.Context, string) (*querymodel.Resolver, error) {
	return querymodel.NewStaticResolver(nil), nil
}

func (m *mockDatasources) RefreshSchemas(context.Context) map[string]error { return nil }

func (m *mockDatasources) TestConnection(_ context.Context, id string) error {
	return m.failing[id]
}

func (m *mockDatasources) Close() error { return nil }

// newToolServer registers every tool over the given mocks.
func newToolServer(pipeline *mockPipeline, datasources *mockDatasources) *server.MCPServer {
	s := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	deps := &QueryToolDeps{Pipeline: pipeline, Datasources: datasources}
	RegisterQueryTools(s, deps)
	RegisterSavedQueryTools(s, deps)
	RegisterHealthTool(s, "test-version", datasources)
	return s
}

type toolResponse struct {
	Result *struct {
		Content []mcp.TextContent `json:"content"`
		IsError bool              `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// callTool invokes a tool through the JSON-RPC entry point.
func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) toolResponse {
	t.Helper()
	request, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)

	raw, err := json.Marshal(s.HandleMessage(context.Background(), request))
	require.NoError(t, err)

	var resp toolResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

// decodeText unmarshals the first text content of a successful response.
func decodeText(t *testing.T, resp toolResponse, v any) {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected JSON-RPC error")
	require.NotNil(t, resp.Result)
	require.NotEmpty(t, resp.Result.Content)
	require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), v))
}
