package mcp

import (
	"context"
	"sort"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Tool call outcomes recorded by the auditor.
const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected" // tool returned a structured error result
	outcomeFailed   = "failed"   // tool returned a Go error
)

// ToolAuditor logs every tool call and counts it by tool and outcome.
// Argument values are never logged; questions and parameters may hold
// user data.
type ToolAuditor struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	logger   *zap.Logger

	// startTimes tracks when tool calls begin, keyed by request ID.
	startTimes sync.Map
}

// NewToolAuditor creates an auditor and registers its metrics with reg.
// A nil reg leaves the metrics unregistered.
func NewToolAuditor(reg prometheus.Registerer, logger *zap.Logger) (*ToolAuditor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &ToolAuditor{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nlq",
			Subsystem: "mcp",
			Name:      "tool_calls_total",
			Help:      "Total number of MCP tool calls by tool and outcome",
		}, []string{"tool", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nlq",
			Subsystem: "mcp",
			Name:      "tool_call_duration_seconds",
			Help:      "MCP tool call latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		logger: logger.Named("mcp-audit"),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{a.calls, a.duration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return a, nil
}

// Hooks returns mcp-go Hooks configured to capture tool call events.
func (a *ToolAuditor) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(a.beforeCallTool)
	hooks.AddAfterCallTool(a.afterCallTool)
	hooks.AddOnError(a.onError)
	return hooks
}

func (a *ToolAuditor) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	a.startTimes.Store(id, time.Now())
}

func (a *ToolAuditor) afterCallTool(_ context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	elapsed := a.elapsed(id)
	outcome := outcomeOK
	if result != nil && result.IsError {
		outcome = outcomeRejected
	}
	a.observe(req.Params.Name, outcome, elapsed)

	a.logger.Info("Tool call",
		zap.String("tool", req.Params.Name),
		zap.String("outcome", outcome),
		zap.Strings("arguments", argumentNames(req.Params.Arguments)),
		zap.Duration("duration", elapsed))
}

func (a *ToolAuditor) onError(_ context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}

	elapsed := a.elapsed(id)
	a.observe(req.Params.Name, outcomeFailed, elapsed)

	a.logger.Warn("Tool call failed",
		zap.String("tool", req.Params.Name),
		zap.Strings("arguments", argumentNames(req.Params.Arguments)),
		zap.Duration("duration", elapsed),
		zap.Error(err))
}

func (a *ToolAuditor) observe(tool, outcome string, elapsed time.Duration) {
	a.calls.WithLabelValues(tool, outcome).Inc()
	a.duration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

func (a *ToolAuditor) elapsed(id any) time.Duration {
	if v, ok := a.startTimes.LoadAndDelete(id); ok {
		return time.Since(v.(time.Time))
	}
	return 0
}

// argumentNames returns the sorted argument keys of a tool call.
func argumentNames(args any) []string {
	m, ok := args.(map[string]any)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
