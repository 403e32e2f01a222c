package models

import (
	"time"

	"github.com/google/uuid"
)

// SavedQuery is a reusable query owned by a single user.
type SavedQuery struct {
	ID           uuid.UUID           `json:"id"`
	DatasourceID string              `json:"datasource_id"`
	Name         string              `json:"name"`
	Owner        string              `json:"owner"`
	Text         string              `json:"text"`
	Conversion   SqlConversionResult `json:"conversion"`
	Metadata     QueryMetadata       `json:"metadata"`
	IsPublic     bool                `json:"is_public"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// SavedQueryUpdate lists the mutable fields of a saved query.
// Only non-nil fields are applied.
type SavedQueryUpdate struct {
	Name       *string              `json:"name,omitempty"`
	Text       *string              `json:"text,omitempty"`
	Conversion *SqlConversionResult `json:"conversion,omitempty"`
	IsPublic   *bool                `json:"is_public,omitempty"`
}

// Apply copies the non-nil fields of u onto q.
func (u SavedQueryUpdate) Apply(q *SavedQuery) {
	if u.Name != nil {
		q.Name = *u.Name
	}
	if u.Text != nil {
		q.Text = *u.Text
	}
	if u.Conversion != nil {
		q.Conversion = *u.Conversion.Clone()
	}
	if u.IsPublic != nil {
		q.IsPublic = *u.IsPublic
	}
}
