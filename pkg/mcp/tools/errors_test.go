package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-nlq/pkg/apperrors"
)

// getTextContent extracts the text string from the first text content item
func getTextContent(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	text, _ := mcp.AsTextContent(result.Content[0])
	if text == nil {
		return ""
	}
	return text.Text
}

func TestNewErrorResult(t *testing.T) {
	result := NewErrorResult("test_error", "this is a test error")

	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	assert.True(t, result.IsError)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(getTextContent(result)), &errResp))
	assert.True(t, errResp.Error, "error field should be true")
	assert.Equal(t, "test_error", errResp.Code)
	assert.Equal(t, "this is a test error", errResp.Message)
	assert.Nil(t, errResp.Details, "details should be nil when not provided")
}

func TestNewErrorResultWithDetails(t *testing.T) {
	result := NewErrorResultWithDetails("validation", "bad input", map[string]any{"field": "question"})

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(getTextContent(result)), &errResp))
	assert.Equal(t, "validation", errResp.Code)
	assert.Equal(t, map[string]any{"field": "question"}, errResp.Details)
}

func TestNewAppErrorResult(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantNil  bool
		code     string
		message  string
		hasStage bool
	}{
		{
			name:     "validation",
			err:      apperrors.Validation("preprocess", "query text is empty"),
			code:     "validation",
			message:  "query text is empty",
			hasStage: true,
		},
		{
			name:     "conversion wrapped",
			err:      fmt.Errorf("translate: %w", apperrors.Conversion("sql", "no relationship between a and b")),
			code:     "conversion",
			message:  "no relationship between a and b",
			hasStage: true,
		},
		{
			name:    "timeout keeps sanitized message only",
			err:     apperrors.Wrap(errors.New("pq: password=secret"), apperrors.KindTimeout, "", "query timed out"),
			code:    "timeout",
			message: "query timed out",
		},
		{
			name:    "plain error is internal",
			err:     errors.New("dial tcp 10.0.0.1:5432: connection refused"),
			wantNil: true,
		},
		{
			name:    "nil",
			err:     nil,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewAppErrorResult(tt.err)
			if tt.wantNil {
				assert.Nil(t, result)
				return
			}
			require.NotNil(t, result)
			assert.True(t, result.IsError)

			text := getTextContent(result)
			assert.NotContains(t, text, "secret")

			var errResp ErrorResponse
			require.NoError(t, json.Unmarshal([]byte(text), &errResp))
			assert.Equal(t, tt.code, errResp.Code)
			assert.Equal(t, tt.message, errResp.Message)
			if tt.hasStage {
				details, ok := errResp.Details.(map[string]any)
				require.True(t, ok)
				assert.NotEmpty(t, details["stage"])
			}
		})
	}
}

func TestToolError_InternalHidesDetail(t *testing.T) {
	result, err := toolError(errors.New("pq: relation secret_table does not exist"))
	assert.Nil(t, result)
	require.Error(t, err)
	assert.Equal(t, "internal error", err.Error())
}

func TestIsInputError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"validation", apperrors.Validation("tool", "x is required"), true},
		{"conversion", apperrors.Conversion("extract", "nothing recognised"), true},
		{"not found", apperrors.New(apperrors.KindNotFound, "executor", "unknown query"), true},
		{"forbidden", apperrors.New(apperrors.KindForbidden, "saved_query", "private"), true},
		{"execution", apperrors.New(apperrors.KindExecution, "executor", "driver failure"), false},
		{"timeout", apperrors.New(apperrors.KindTimeout, "executor", "timed out"), false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsInputError(tt.err))
		})
	}
}
