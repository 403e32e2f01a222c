package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-nlq/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-nlq/pkg/services"
)

type datasourceHealth struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type healthResult struct {
	Status      string             `json:"status"`
	Version     string             `json:"version"`
	Datasources []datasourceHealth `json:"datasources,omitempty"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
// The tool returns the server status and version and, when datasources is
// set, the connectivity of every data source. Any unreachable data source
// makes the status "degraded".
func RegisterHealthTool(s *server.MCPServer, version string, datasources services.DatasourceService) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status, version and data source connectivity"),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		health := healthResult{Status: "ok", Version: version}
		if datasources != nil {
			for _, ds := range datasources.List() {
				item := datasourceHealth{ID: ds.ID, Status: "ok"}
				if err := datasources.TestConnection(ctx, ds.ID); err != nil {
					item.Status = "unreachable"
					item.Error = apperrors.MessageOf(err)
					health.Status = "degraded"
				}
				health.Datasources = append(health.Datasources, item)
			}
		}

		result, err := json.Marshal(health)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal health result: %w", err)
		}
		return mcp.NewToolResultText(string(result)), nil
	})
}
