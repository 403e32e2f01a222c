package models

import (
	"fmt"
	"slices"
	"strings"
)

// Relation types for table relationships.
const (
	RelationForeignKey = "foreign_key" // Discovered from a database FK constraint
	RelationDeclared   = "declared"    // Declared in configuration
	RelationInferred   = "inferred"    // Inferred from naming or value overlap
)

// TableRelationship is a foreign-key-like link between two tables. Instances
// handed to the resolver are shared and must be treated as read-only.
type TableRelationship struct {
	SourceTable   string   `json:"source_table" yaml:"source_table"`
	SourceColumns []string `json:"source_columns" yaml:"source_columns"`
	TargetTable   string   `json:"target_table" yaml:"target_table"`
	TargetColumns []string `json:"target_columns" yaml:"target_columns"`
	RelationType  string   `json:"relation_type" yaml:"relation_type"`
	Weight        float64  `json:"weight" yaml:"weight"`       // confidence in [0,1]
	Frequency     int64    `json:"frequency" yaml:"frequency"` // observed usage count
}

// Validate checks the relationship invariants.
func (r TableRelationship) Validate() error {
	if r.Weight < 0 || r.Weight > 1 {
		return fmt.Errorf("relationship %s: weight %.3f outside [0,1]", r.Key(), r.Weight)
	}
	if r.SourceTable == "" || r.TargetTable == "" {
		return fmt.Errorf("relationship %s: source and target table are required", r.Key())
	}
	if strings.EqualFold(r.SourceTable, r.TargetTable) {
		return fmt.Errorf("relationship %s: source and target table must differ", r.Key())
	}
	if len(r.SourceColumns) == 0 || len(r.SourceColumns) != len(r.TargetColumns) {
		return fmt.Errorf("relationship %s: column lists must be non-empty and of equal length", r.Key())
	}
	return nil
}

// Connects reports whether the relationship links a and b in either direction.
func (r TableRelationship) Connects(a, b string) bool {
	return (strings.EqualFold(r.SourceTable, a) && strings.EqualFold(r.TargetTable, b)) ||
		(strings.EqualFold(r.SourceTable, b) && strings.EqualFold(r.TargetTable, a))
}

// Key is a stable textual identity, also used as the final tie-breaker when
// ordering relationships.
func (r TableRelationship) Key() string {
	return fmt.Sprintf("%s(%s)->%s(%s)",
		r.SourceTable, strings.Join(r.SourceColumns, ","),
		r.TargetTable, strings.Join(r.TargetColumns, ","))
}

// Clone returns a copy that shares no column slices with r.
func (r TableRelationship) Clone() TableRelationship {
	r.SourceColumns = slices.Clone(r.SourceColumns)
	r.TargetColumns = slices.Clone(r.TargetColumns)
	return r
}
