// Package tools provides the MCP tools of ekaya-nlq.
package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
	"github.com/ekaya-inc/ekaya-nlq/pkg/services"
)

// defaultHistoryLimit bounds get_query_history when the caller sets no limit.
const defaultHistoryLimit = 50

// QueryToolDeps contains dependencies for the query tools.
type QueryToolDeps struct {
	Pipeline    services.PipelineService
	Datasources services.DatasourceService
	Logger      *zap.Logger
}

func (d *QueryToolDeps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// logFailure logs input errors at Debug and everything else at Error.
func (d *QueryToolDeps) logFailure(tool string, err error) {
	if IsInputError(err) {
		d.logger().Debug("Tool rejected input", zap.String("tool", tool), zap.Error(err))
		return
	}
	d.logger().Error("Tool failed", zap.String("tool", tool), zap.Error(err))
}

// RegisterQueryTools registers the natural-language query tools.
func RegisterQueryTools(s *server.MCPServer, deps *QueryToolDeps) {
	registerNLQueryTool(s, deps)
	registerTranslateQueryTool(s, deps)
	registerQueryStatusTool(s, deps)
	registerQueryResultTool(s, deps)
	registerCancelQueryTool(s, deps)
	registerGetQueryHistoryTool(s, deps)
	registerListDatasourcesTool(s, deps)
}

// queryResponse is the tool view of a QueryResult.
type queryResponse struct {
	QueryID         string                    `json:"query_id"`
	Status          models.QueryStatus        `json:"status"`
	Columns         []models.ColumnDescriptor `json:"columns,omitempty"`
	Rows            []models.Row              `json:"rows,omitempty"`
	RowCount        int                       `json:"row_count"`
	TotalRows       *int64                    `json:"total_rows,omitempty"`
	Truncated       bool                      `json:"truncated"`
	Cached          bool                      `json:"cached"`
	ExecutionTimeMs int64                     `json:"execution_time_ms"`
}

func newQueryResponse(r *models.QueryResult) queryResponse {
	return queryResponse{
		QueryID:         r.QueryID,
		Status:          r.Status,
		Columns:         r.Columns,
		Rows:            r.Rows,
		RowCount:        r.RowCount,
		TotalRows:       r.TotalRows,
		Truncated:       r.Truncated,
		Cached:          r.Cached,
		ExecutionTimeMs: r.ExecutionTime.Milliseconds(),
	}
}

// queryRequest reads the arguments shared by nl_query and translate_query.
func queryRequest(req mcp.CallToolRequest) (services.QueryRequest, error) {
	datasourceID, err := requireText(req, "datasource_id")
	if err != nil {
		return services.QueryRequest{}, err
	}
	question, err := requireText(req, "question")
	if err != nil {
		return services.QueryRequest{}, err
	}
	md, err := metadataFromRequest(req)
	if err != nil {
		return services.QueryRequest{}, err
	}
	return services.QueryRequest{
		DatasourceID: datasourceID,
		Text:         question,
		Parameters:   getOptionalObject(req, "parameters"),
		Metadata:     md,
		Owner:        trimString(getOptionalString(req, "owner")),
	}, nil
}

func questionOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString(
			"datasource_id",
			mcp.Required(),
			mcp.Description("The data source to query (from list_datasources)"),
		),
		mcp.WithString(
			"question",
			mcp.Required(),
			mcp.Description("The question in plain language, e.g. 'top 10 orders by amount'"),
		),
		mcp.WithObject(
			"parameters",
			mcp.Description("Named values referenced by the question"),
		),
		mcp.WithString(
			"owner",
			mcp.Description("Caller identity recorded in the query history"),
		),
	}
}

func registerNLQueryTool(s *server.MCPServer, deps *QueryToolDeps) {
	opts := []mcp.ToolOption{
		mcp.WithDescription(
			"Answer a plain-language question by translating it to SQL and running it against a data source. " +
				"Returns the rows, or with async=true a query_id to poll with query_status and query_result.",
		),
	}
	opts = append(opts, questionOptions()...)
	opts = append(opts, executionOptions()...)
	opts = append(opts,
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(mcp.NewTool("nl_query", opts...), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		qr, err := queryRequest(req)
		if err != nil {
			return toolError(err)
		}

		result, err := deps.Pipeline.ExecuteQuery(ctx, qr)
		if err != nil {
			deps.logFailure("nl_query", err)
			return toolError(err)
		}
		return jsonResult(newQueryResponse(result))
	})
}

func registerTranslateQueryTool(s *server.MCPServer, deps *QueryToolDeps) {
	opts := []mcp.ToolOption{
		mcp.WithDescription(
			"Translate a plain-language question to SQL without running it. " +
				"Returns the SQL, its bound parameters, the recognised entities and a confidence score.",
		),
	}
	opts = append(opts, questionOptions()...)
	opts = append(opts,
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(mcp.NewTool("translate_query", opts...), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		qr, err := queryRequest(req)
		if err != nil {
			return toolError(err)
		}

		tr, err := deps.Pipeline.Translate(ctx, qr)
		if err != nil {
			deps.logFailure("translate_query", err)
			return toolError(err)
		}

		response := struct {
			SQL         string                  `json:"sql"`
			Parameters  []models.BoundParameter `json:"parameters"`
			Dialect     string                  `json:"dialect"`
			Confidence  float64                 `json:"confidence"`
			Explanation string                  `json:"explanation"`
			Language    string                  `json:"language"`
			Entities    []models.EntityTag      `json:"entities"`
			Tables      []string                `json:"tables"`
		}{
			SQL:         tr.Conversion.SQL,
			Parameters:  tr.Conversion.Parameters,
			Dialect:     tr.Conversion.Dialect,
			Confidence:  tr.Conversion.Confidence,
			Explanation: tr.Conversion.Explanation,
			Language:    string(tr.Text.Language),
			Entities:    tr.Tags,
			Tables:      tr.Model.Tables,
		}
		return jsonResult(response)
	})
}

func registerQueryStatusTool(s *server.MCPServer, deps *QueryToolDeps) {
	tool := mcp.NewTool(
		"query_status",
		mcp.WithDescription("Report the status of an execution: PENDING, RUNNING, COMPLETED, FAILED or CANCELLED"),
		mcp.WithString("query_id", mcp.Required(), mcp.Description("The query_id returned by nl_query")),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		queryID, err := requireText(req, "query_id")
		if err != nil {
			return toolError(err)
		}
		status, err := deps.Pipeline.GetStatus(queryID)
		if err != nil {
			return toolError(err)
		}
		return jsonResult(map[string]any{"query_id": queryID, "status": status})
	})
}

func registerQueryResultTool(s *server.MCPServer, deps *QueryToolDeps) {
	tool := mcp.NewTool(
		"query_result",
		mcp.WithDescription("Fetch the result of an async execution. With wait=true block until it finishes."),
		mcp.WithString("query_id", mcp.Required(), mcp.Description("The query_id returned by nl_query")),
		mcp.WithBoolean("wait", mcp.Description("Wait for the execution to finish (default: false)")),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		queryID, err := requireText(req, "query_id")
		if err != nil {
			return toolError(err)
		}
		wait, _ := getOptionalBool(req, "wait")

		result, err := deps.Pipeline.GetResult(ctx, queryID, wait)
		if err != nil {
			deps.logFailure("query_result", err)
			return toolError(err)
		}
		return jsonResult(newQueryResponse(result))
	})
}

func registerCancelQueryTool(s *server.MCPServer, deps *QueryToolDeps) {
	tool := mcp.NewTool(
		"cancel_query",
		mcp.WithDescription("Cancel a pending or running execution. Reports whether the execution was cancelled."),
		mcp.WithString("query_id", mcp.Required(), mcp.Description("The query_id returned by nl_query")),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		queryID, err := requireText(req, "query_id")
		if err != nil {
			return toolError(err)
		}
		cancelled := deps.Pipeline.Cancel(queryID)
		deps.logger().Info("Cancel requested",
			zap.String("query_id", queryID),
			zap.Bool("cancelled", cancelled))
		return jsonResult(map[string]any{"query_id": queryID, "cancelled": cancelled})
	})
}

func registerGetQueryHistoryTool(s *server.MCPServer, deps *QueryToolDeps) {
	tool := mcp.NewTool(
		"get_query_history",
		mcp.WithDescription("List recent executions against a data source in the order they completed"),
		mcp.WithString("datasource_id", mcp.Required(), mcp.Description("The data source whose history to list")),
		mcp.WithNumber("limit", mcp.Description("Most recent entries to return (default: 50, max: 500)")),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		datasourceID, err := requireText(req, "datasource_id")
		if err != nil {
			return toolError(err)
		}
		limit := defaultHistoryLimit
		if v, ok := getOptionalFloat(req, "limit"); ok && v >= 1 {
			limit = int(v)
		}
		if limit > 500 {
			limit = 500
		}

		entries, err := deps.Pipeline.GetQueryHistory(ctx, datasourceID, limit)
		if err != nil {
			deps.logFailure("get_query_history", err)
			return toolError(err)
		}

		type historyItem struct {
			ID               string    `json:"id"`
			QueryID          string    `json:"query_id"`
			Question         string    `json:"question"`
			SQL              string    `json:"sql"`
			Status           string    `json:"status"`
			ErrorKind        string    `json:"error_kind,omitempty"`
			RowCount         int       `json:"row_count"`
			DurationMs       int64     `json:"duration_ms"`
			QueryType        string    `json:"query_type,omitempty"`
			TablesUsed       []string  `json:"tables_used,omitempty"`
			AggregationsUsed []string  `json:"aggregations_used,omitempty"`
			CompletedAt      time.Time `json:"completed_at"`
		}
		items := make([]historyItem, 0, len(entries))
		for _, e := range entries {
			items = append(items, historyItem{
				ID:               e.ID.String(),
				QueryID:          e.QueryID,
				Question:         e.Text,
				SQL:              e.Conversion.SQL,
				Status:           string(e.Status),
				ErrorKind:        e.ErrorKind,
				RowCount:         e.RowCount,
				DurationMs:       e.DurationMs,
				QueryType:        e.QueryType,
				TablesUsed:       e.TablesUsed,
				AggregationsUsed: e.AggregationsUsed,
				CompletedAt:      e.CompletedAt,
			})
		}
		return jsonResult(map[string]any{"datasource_id": datasourceID, "entries": items, "count": len(items)})
	})
}

func registerListDatasourcesTool(s *server.MCPServer, deps *QueryToolDeps) {
	tool := mcp.NewTool(
		"list_datasources",
		mcp.WithDescription("List the data sources questions can be asked of"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		type datasourceItem struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			Type string `json:"type"`
		}
		list := deps.Datasources.List()
		items := make([]datasourceItem, 0, len(list))
		for _, ds := range list {
			items = append(items, datasourceItem{ID: ds.ID, Name: ds.Name, Type: ds.DatasourceType})
		}
		return jsonResult(map[string]any{"datasources": items})
	})
}
