package models

import (
	"time"

	"github.com/google/uuid"
)

// History record statuses.
const (
	HistoryStatusCompleted = "completed"
	HistoryStatusFailed    = "failed"
	HistoryStatusCancelled = "cancelled"
)

// QueryHistory is an append-only record of a past execution.
type QueryHistory struct {
	ID           uuid.UUID           `json:"id"`
	DatasourceID string              `json:"datasource_id"`
	QueryID      string              `json:"query_id"`
	Owner        string              `json:"owner,omitempty"`
	Text         string              `json:"text"`
	Conversion   SqlConversionResult `json:"conversion"`

	Status     string `json:"status"`
	ErrorKind  string `json:"error_kind,omitempty"`
	RowCount   int    `json:"row_count"`
	DurationMs int64  `json:"duration_ms"`

	// Query classification
	QueryType        string   `json:"query_type,omitempty"`
	TablesUsed       []string `json:"tables_used,omitempty"`
	AggregationsUsed []string `json:"aggregations_used,omitempty"`

	ExecutedAt  time.Time `json:"executed_at"`
	CompletedAt time.Time `json:"completed_at"`
	CreatedAt   time.Time `json:"created_at"`
}
