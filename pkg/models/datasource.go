package models

import "time"

// Datasource represents an external data connection the pipeline can query.
// Config holds adapter-specific connection details; its structure varies by type.
type Datasource struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	DatasourceType string         `json:"datasource_type"` // "postgres", "mssql", "mysql", "sqlite"
	Config         map[string]any `json:"config"`
	CreatedAt      time.Time      `json:"created_at"`
}
