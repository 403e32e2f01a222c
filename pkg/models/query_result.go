package models

import (
	"maps"
	"slices"
	"time"
)

// QueryStatus is the lifecycle state of an execution.
type QueryStatus string

const (
	StatusPending   QueryStatus = "PENDING"
	StatusRunning   QueryStatus = "RUNNING"
	StatusCompleted QueryStatus = "COMPLETED"
	StatusFailed    QueryStatus = "FAILED"
	StatusCancelled QueryStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is possible.
func (s QueryStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ColumnDescriptor describes a result column with its database type name.
type ColumnDescriptor struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Row maps column name to value.
type Row map[string]any

// QueryResult is the outcome of an execution. Truncated is true exactly when
// the row limit was reached and the data source had more rows.
type QueryResult struct {
	QueryID       string             `json:"query_id"`
	Status        QueryStatus        `json:"status"`
	Columns       []ColumnDescriptor `json:"columns"`
	Rows          []Row              `json:"rows"`
	RowCount      int                `json:"row_count"`
	TotalRows     *int64             `json:"total_rows,omitempty"`
	Truncated     bool               `json:"truncated"`
	ExecutionTime time.Duration      `json:"execution_time"`
	Cached        bool               `json:"cached"`
}

// Clone returns a copy whose column list, row list and row maps are independent of r.
func (r *QueryResult) Clone() *QueryResult {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Columns = slices.Clone(r.Columns)
	if r.Rows != nil {
		cp.Rows = make([]Row, len(r.Rows))
		for i, row := range r.Rows {
			cp.Rows[i] = maps.Clone(row)
		}
	}
	if r.TotalRows != nil {
		total := *r.TotalRows
		cp.TotalRows = &total
	}
	return &cp
}
