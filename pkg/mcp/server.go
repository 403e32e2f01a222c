// Package mcp exposes the query pipeline as an MCP server.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-nlq/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-nlq/pkg/services"
)

// Server wraps the mcp-go MCPServer with the ekaya-nlq tool set.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates a new MCP server instance. A non-nil auditor observes
// every tool call.
func NewServer(name, version string, auditor *ToolAuditor, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []server.ServerOption{server.WithToolCapabilities(true)}
	if auditor != nil {
		opts = append(opts, server.WithHooks(auditor.Hooks()))
	}

	return &Server{
		mcp:    server.NewMCPServer(name, version, opts...),
		logger: logger.Named("mcp"),
	}
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// RegisterTools registers every pipeline tool and the health tool.
func (s *Server) RegisterTools(version string, pipeline services.PipelineService, datasources services.DatasourceService) {
	deps := &tools.QueryToolDeps{
		Pipeline:    pipeline,
		Datasources: datasources,
		Logger:      s.logger.Named("tools"),
	}
	tools.RegisterQueryTools(s.mcp, deps)
	tools.RegisterSavedQueryTools(s.mcp, deps)
	tools.RegisterHealthTool(s.mcp, version, datasources)
}

// NewStreamableHTTPServer creates an HTTP transport server wrapping this MCP server.
// The HTTP mux handles routing to /mcp, so no endpoint path is configured here.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}

// RegisterTool is a convenience wrapper for registering a tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}
