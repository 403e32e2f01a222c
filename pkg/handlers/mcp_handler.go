package handlers

import (
	"net/http"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-nlq/pkg/mcp"
)

// MCPHandler serves the MCP tools over streamable HTTP.
type MCPHandler struct {
	httpServer *server.StreamableHTTPServer
	logger     *zap.Logger
}

// NewMCPHandler creates a new MCP handler from an MCP server.
func NewMCPHandler(mcpServer *mcp.Server, logger *zap.Logger) *MCPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MCPHandler{
		httpServer: mcpServer.NewStreamableHTTPServer(),
		logger:     logger.Named("mcp-handler"),
	}
}

// RegisterRoutes mounts the MCP endpoint at /mcp. wrap is applied inside the
// method check, so rejected methods never reach it.
func (h *MCPHandler) RegisterRoutes(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	var handler http.Handler = h.httpServer
	if wrap != nil {
		handler = wrap(handler)
	}
	mux.Handle("/mcp", h.requirePOST(handler))
}

// requirePOST returns 405 Method Not Allowed for non-POST requests.
// The server is stateless, so there is no SSE stream to open with GET.
func (h *MCPHandler) requirePOST(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			h.logger.Debug("Rejected MCP request method", zap.String("method", r.Method))
			w.Header().Set("Allow", "POST")
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		next.ServeHTTP(w, r)
	})
}
