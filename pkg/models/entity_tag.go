package models

import "fmt"

// EntityType is the semantic role assigned to a token span.
type EntityType string

const (
	EntityTable     EntityType = "TABLE"
	EntityColumn    EntityType = "COLUMN"
	EntityValue     EntityType = "VALUE"
	EntityOperator  EntityType = "OPERATOR"
	EntityAggregate EntityType = "AGGREGATE"
	EntitySortDir   EntityType = "SORT_DIR"
)

// Operator literals carried by OPERATOR tags.
const (
	OpEqual        = "="
	OpNotEqual     = "<>"
	OpGreater      = ">"
	OpGreaterEqual = ">="
	OpLess         = "<"
	OpLessEqual    = "<="
	OpLike         = "LIKE"
	OpLimit        = "LIMIT"
	OpOrderBy      = "ORDER_BY"
	OpAnd          = "AND"
	OpOr           = "OR"
)

// Sort directions carried by SORT_DIR tags.
const (
	SortAsc  = "ASC"
	SortDesc = "DESC"
)

// EntityTag annotates the token span [Start, End) with a semantic role.
// Table and Column are set when the tag resolved to a schema object; for a
// VALUE tag they name the column whose known values matched.
type EntityTag struct {
	Start      int        `json:"start"`
	End        int        `json:"end"`
	Type       EntityType `json:"type"`
	Literal    string     `json:"literal"`
	Value      any        `json:"value,omitempty"`
	Confidence float64    `json:"confidence"`
	Table      string     `json:"table,omitempty"`
	Column     string     `json:"column,omitempty"`
	Source     string     `json:"source,omitempty"`
}

// Overlaps reports whether the two spans share at least one token.
func (t EntityTag) Overlaps(other EntityTag) bool {
	return t.Start < other.End && other.Start < t.End
}

// Validate checks the span lies within a token sequence of length n.
func (t EntityTag) Validate(n int) error {
	if t.Start < 0 || t.End > n || t.Start >= t.End {
		return fmt.Errorf("span [%d,%d) outside token sequence of length %d", t.Start, t.End, n)
	}
	if t.Confidence < 0 || t.Confidence > 1 {
		return fmt.Errorf("confidence %.3f outside [0,1]", t.Confidence)
	}
	return nil
}
