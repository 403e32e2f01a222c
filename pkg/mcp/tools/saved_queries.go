package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

// RegisterSavedQueryTools registers the tools that store and rerun translations.
func RegisterSavedQueryTools(s *server.MCPServer, deps *QueryToolDeps) {
	registerSaveQueryTool(s, deps)
	registerExecuteSavedQueryTool(s, deps)
	registerListSavedQueriesTool(s, deps)
	registerUpdateSavedQueryTool(s, deps)
	registerDeleteSavedQueryTool(s, deps)
}

type savedQueryItem struct {
	ID           string    `json:"id"`
	DatasourceID string    `json:"datasource_id"`
	Name         string    `json:"name"`
	Owner        string    `json:"owner,omitempty"`
	Question     string    `json:"question"`
	SQL          string    `json:"sql"`
	IsPublic     bool      `json:"is_public"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func newSavedQueryItem(q *models.SavedQuery) savedQueryItem {
	return savedQueryItem{
		ID:           q.ID.String(),
		DatasourceID: q.DatasourceID,
		Name:         q.Name,
		Owner:        q.Owner,
		Question:     q.Text,
		SQL:          q.Conversion.SQL,
		IsPublic:     q.IsPublic,
		UpdatedAt:    q.UpdatedAt,
	}
}

func registerSaveQueryTool(s *server.MCPServer, deps *QueryToolDeps) {
	opts := []mcp.ToolOption{
		mcp.WithDescription(
			"Translate a question and store the resulting SQL under a name so it can be rerun with execute_saved_query. " +
				"Execution options given here are stored with the query.",
		),
		mcp.WithString("name", mcp.Required(), mcp.Description("Display name of the saved query")),
		mcp.WithBoolean("is_public", mcp.Description("Let callers other than the owner run it (default: false)")),
	}
	opts = append(opts, questionOptions()...)
	opts = append(opts, executionOptions()...)
	opts = append(opts, mcp.WithDestructiveHintAnnotation(false))

	s.AddTool(mcp.NewTool("save_query", opts...), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := requireText(req, "name")
		if err != nil {
			return toolError(err)
		}
		qr, err := queryRequest(req)
		if err != nil {
			return toolError(err)
		}

		tr, err := deps.Pipeline.Translate(ctx, qr)
		if err != nil {
			deps.logFailure("save_query", err)
			return toolError(err)
		}
		id, err := deps.Pipeline.SaveQuery(ctx, name, qr, tr.Conversion)
		if err != nil {
			deps.logFailure("save_query", err)
			return toolError(err)
		}

		isPublic, _ := getOptionalBool(req, "is_public")
		if isPublic {
			if _, err := deps.Pipeline.UpdateSavedQuery(ctx, id, qr.Owner, models.SavedQueryUpdate{IsPublic: &isPublic}); err != nil {
				deps.logFailure("save_query", err)
				return toolError(err)
			}
		}

		deps.logger().Info("Saved query",
			zap.String("id", id.String()),
			zap.String("datasource_id", qr.DatasourceID))
		return jsonResult(map[string]any{
			"id":         id.String(),
			"sql":        tr.Conversion.SQL,
			"confidence": tr.Conversion.Confidence,
			"is_public":  isPublic,
		})
	})
}

func registerExecuteSavedQueryTool(s *server.MCPServer, deps *QueryToolDeps) {
	tool := mcp.NewTool(
		"execute_saved_query",
		mcp.WithDescription("Run a saved query by id with its stored execution options"),
		mcp.WithString("id", mcp.Required(), mcp.Description("The saved query id (from list_saved_queries)")),
		mcp.WithString("owner", mcp.Description("Caller identity; private queries run only for their owner")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := requireUUID(req, "id")
		if err != nil {
			return toolError(err)
		}
		result, err := deps.Pipeline.ExecuteSavedQuery(ctx, id, trimString(getOptionalString(req, "owner")))
		if err != nil {
			deps.logFailure("execute_saved_query", err)
			return toolError(err)
		}
		return jsonResult(newQueryResponse(result))
	})
}

func registerListSavedQueriesTool(s *server.MCPServer, deps *QueryToolDeps) {
	tool := mcp.NewTool(
		"list_saved_queries",
		mcp.WithDescription("List the saved queries of a data source visible to the caller, newest first"),
		mcp.WithString("datasource_id", mcp.Required(), mcp.Description("The data source whose saved queries to list")),
		mcp.WithString("owner", mcp.Description("Caller identity; private queries of other owners are hidden")),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		datasourceID, err := requireText(req, "datasource_id")
		if err != nil {
			return toolError(err)
		}
		queries, err := deps.Pipeline.ListSavedQueries(ctx, datasourceID, trimString(getOptionalString(req, "owner")))
		if err != nil {
			deps.logFailure("list_saved_queries", err)
			return toolError(err)
		}

		items := make([]savedQueryItem, 0, len(queries))
		for _, q := range queries {
			items = append(items, newSavedQueryItem(q))
		}
		return jsonResult(map[string]any{"queries": items, "count": len(items)})
	})
}

func registerUpdateSavedQueryTool(s *server.MCPServer, deps *QueryToolDeps) {
	tool := mcp.NewTool(
		"update_saved_query",
		mcp.WithDescription("Rename a saved query or change its visibility. Only the owner may update it."),
		mcp.WithString("id", mcp.Required(), mcp.Description("The saved query id")),
		mcp.WithString("owner", mcp.Description("Caller identity; must match the saved query owner")),
		mcp.WithString("name", mcp.Description("New display name")),
		mcp.WithBoolean("is_public", mcp.Description("New visibility")),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := requireUUID(req, "id")
		if err != nil {
			return toolError(err)
		}

		var update models.SavedQueryUpdate
		if name, ok := arguments(req)["name"].(string); ok {
			update.Name = &name
		}
		if isPublic, ok := getOptionalBool(req, "is_public"); ok {
			update.IsPublic = &isPublic
		}

		q, err := deps.Pipeline.UpdateSavedQuery(ctx, id, trimString(getOptionalString(req, "owner")), update)
		if err != nil {
			deps.logFailure("update_saved_query", err)
			return toolError(err)
		}
		return jsonResult(newSavedQueryItem(q))
	})
}

func registerDeleteSavedQueryTool(s *server.MCPServer, deps *QueryToolDeps) {
	tool := mcp.NewTool(
		"delete_saved_query",
		mcp.WithDescription("Delete a saved query. Only the owner may delete it."),
		mcp.WithString("id", mcp.Required(), mcp.Description("The saved query id")),
		mcp.WithString("owner", mcp.Description("Caller identity; must match the saved query owner")),
		mcp.WithDestructiveHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := requireUUID(req, "id")
		if err != nil {
			return toolError(err)
		}
		if err := deps.Pipeline.DeleteSavedQuery(ctx, id, trimString(getOptionalString(req, "owner"))); err != nil {
			deps.logFailure("delete_saved_query", err)
			return toolError(err)
		}
		return jsonResult(map[string]any{"id": id.String(), "deleted": true})
	})
}
