package tools

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/ekaya-nlq/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

const stageTool = "tool"

// trimString removes leading and trailing whitespace from a string.
func trimString(s string) string {
	return strings.TrimSpace(s)
}

func arguments(req mcp.CallToolRequest) map[string]any {
	args, _ := req.Params.Arguments.(map[string]any)
	return args
}

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	val, _ := arguments(req)[key].(string)
	return val
}

// getOptionalFloat extracts an optional number argument from the request.
func getOptionalFloat(req mcp.CallToolRequest, key string) (float64, bool) {
	val, ok := arguments(req)[key].(float64)
	return val, ok
}

// getOptionalBool extracts an optional boolean argument from the request.
func getOptionalBool(req mcp.CallToolRequest, key string) (bool, bool) {
	val, ok := arguments(req)[key].(bool)
	return val, ok
}

// getOptionalObject extracts an optional object argument from the request.
func getOptionalObject(req mcp.CallToolRequest, key string) map[string]any {
	val, _ := arguments(req)[key].(map[string]any)
	return val
}

// requireText returns a required, non-blank string argument.
func requireText(req mcp.CallToolRequest, key string) (string, error) {
	val, err := req.RequireString(key)
	if err != nil {
		return "", apperrors.Validation(stageTool, "%s is required", key)
	}
	val = trimString(val)
	if val == "" {
		return "", apperrors.Validation(stageTool, "%s cannot be empty", key)
	}
	return val, nil
}

func requireUUID(req mcp.CallToolRequest, key string) (uuid.UUID, error) {
	val, err := requireText(req, key)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, apperrors.Validation(stageTool, "invalid %s format: %q", key, val)
	}
	return id, nil
}

// metadataFromRequest reads the optional execution overrides. It returns nil
// when the caller set none so the configured defaults apply.
func metadataFromRequest(req mcp.CallToolRequest) (*models.QueryMetadata, error) {
	var md models.QueryMetadata
	set := false

	if v, ok := getOptionalBool(req, "async"); ok {
		md.Async, set = v, true
	}
	if v, ok := getOptionalBool(req, "cache_result"); ok {
		md.CacheResult, set = v, true
	}
	if v, ok := getOptionalBool(req, "return_total_rows"); ok {
		md.ReturnTotalRows, set = v, true
	}
	if v, ok := getOptionalFloat(req, "max_rows"); ok {
		if v < 1 {
			return nil, apperrors.Validation(stageTool, "max_rows must be positive, got %v", v)
		}
		md.MaxRows, set = int(v), true
	}
	if v, ok := getOptionalFloat(req, "timeout_seconds"); ok {
		if v <= 0 {
			return nil, apperrors.Validation(stageTool, "timeout_seconds must be positive, got %v", v)
		}
		md.Timeout, set = time.Duration(v*float64(time.Second)), true
	}
	if v, ok := getOptionalFloat(req, "cache_expire_seconds"); ok {
		if v < 1 {
			return nil, apperrors.Validation(stageTool, "cache_expire_seconds must be positive, got %v", v)
		}
		md.CacheExpireSeconds, set = int(v), true
	}

	if !set {
		return nil, nil
	}
	return &md, nil
}

// jsonResult marshals v into a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// executionOptions are the tool options shared by every tool that executes SQL.
func executionOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithBoolean("async", mcp.Description("Run in the background and return a query_id to poll with query_status")),
		mcp.WithBoolean("cache_result", mcp.Description("Serve and store the result in the result cache")),
		mcp.WithNumber("cache_expire_seconds", mcp.Description("Cache lifetime in seconds when cache_result is set")),
		mcp.WithNumber("max_rows", mcp.Description("Upper bound on returned rows")),
		mcp.WithNumber("timeout_seconds", mcp.Description("Execution timeout in seconds")),
		mcp.WithBoolean("return_total_rows", mcp.Description("Also count the rows beyond max_rows")),
	}
}
