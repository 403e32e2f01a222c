package tools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/ekaya-nlq/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results.
// Errors the caller can act on are returned as a successful tool result so
// the client shows the details instead of swallowing them.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for recoverable errors the caller can fix (invalid parameters,
// unknown data source, unrecognised question).
//
// Do NOT use this for system failures; those should still return Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// errInternal is returned to the client in place of errors that carry no
// user-facing kind, so driver detail never leaves the process.
var errInternal = errors.New("internal error")

// NewAppErrorResult maps a pipeline error to a tool result with code set to
// its stable kind. It returns nil for internal errors; the caller should
// return a Go error instead.
func NewAppErrorResult(err error) *mcp.CallToolResult {
	kind := apperrors.KindOf(err)
	if err == nil || kind == apperrors.KindInternal {
		return nil
	}

	var details map[string]string
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && (appErr.Stage != "" || appErr.QueryID != "") {
		details = map[string]string{}
		if appErr.Stage != "" {
			details["stage"] = appErr.Stage
		}
		if appErr.QueryID != "" {
			details["query_id"] = appErr.QueryID
		}
	}
	if details == nil {
		return NewErrorResult(string(kind), apperrors.MessageOf(err))
	}
	return NewErrorResultWithDetails(string(kind), apperrors.MessageOf(err), details)
}

// toolError converts err into the handler return pair.
func toolError(err error) (*mcp.CallToolResult, error) {
	if result := NewAppErrorResult(err); result != nil {
		return result, nil
	}
	return nil, errInternal
}

// IsInputError returns true if the error was caused by the caller's input
// rather than a server failure. Input errors are logged at Debug level.
func IsInputError(err error) bool {
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation, apperrors.KindConversion, apperrors.KindNotFound, apperrors.KindForbidden:
		return true
	}
	return false
}
