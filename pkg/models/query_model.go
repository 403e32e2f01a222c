package models

import (
	"maps"
	"slices"

	"github.com/google/uuid"
)

// FieldRef names a column of a table.
type FieldRef struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

// Field is a column referenced by the question. Projected is false for
// columns mentioned only to sort or filter by.
type Field struct {
	FieldRef
	Aggregate  string  `json:"aggregate,omitempty"` // COUNT, SUM, AVG, MIN, MAX
	Projected  bool    `json:"projected"`
	Confidence float64 `json:"confidence"`
}

// Join connects two referenced tables through a resolved relationship.
type Join struct {
	LeftTable    string   `json:"left_table"`
	LeftColumns  []string `json:"left_columns"`
	RightTable   string   `json:"right_table"`
	RightColumns []string `json:"right_columns"`
	JoinType     string   `json:"join_type"` // "INNER"
	Weight       float64  `json:"weight"`
}

// Predicate compares a field with a bound parameter.
type Predicate struct {
	Field    FieldRef `json:"field"`
	Operator string   `json:"operator"`
	Param    string   `json:"param"`
}

// FilterExpression is a flat list of predicates joined by one conjunction.
type FilterExpression struct {
	Conjunction string      `json:"conjunction"` // "AND" or "OR"
	Predicates  []Predicate `json:"predicates"`
}

// OrderBy sorts by a field in the given direction.
type OrderBy struct {
	Field     FieldRef `json:"field"`
	Direction string   `json:"direction"`
	Aggregate string   `json:"aggregate,omitempty"`
}

// TablePair is an unordered pair of tables that could not be joined.
type TablePair struct {
	A string `json:"a"`
	B string `json:"b"`
}

// QueryModel is the engine-agnostic representation of the intended query.
// Every slice and map it holds is owned by the model; Clone produces a fully
// independent copy.
type QueryModel struct {
	ID         uuid.UUID         `json:"id"`
	Name       string            `json:"name"`
	Tables     []string          `json:"tables"`
	Fields     []Field           `json:"fields"`
	Joins      []Join            `json:"joins"`
	Filter     *FilterExpression `json:"filter,omitempty"`
	GroupBy    []FieldRef        `json:"group_by"`
	OrderBy    []OrderBy         `json:"order_by"`
	Parameters map[string]any    `json:"parameters"`
	Limit      int               `json:"limit,omitempty"`

	// Confidence of table and field resolution, in [0,1].
	Confidence float64     `json:"confidence"`
	Partial    bool        `json:"partial"`
	Unresolved []TablePair `json:"unresolved,omitempty"`
}

// ProjectedFields returns the fields that belong in the select list.
func (m *QueryModel) ProjectedFields() []Field {
	var out []Field
	for _, f := range m.Fields {
		if f.Projected {
			out = append(out, f)
		}
	}
	return out
}

// HasAggregates reports whether any field is aggregated.
func (m *QueryModel) HasAggregates() bool {
	for _, f := range m.Fields {
		if f.Aggregate != "" {
			return true
		}
	}
	return false
}

// Clone returns a deep copy sharing no slices or maps with m.
func (m *QueryModel) Clone() *QueryModel {
	if m == nil {
		return nil
	}
	cp := *m
	cp.Tables = slices.Clone(m.Tables)
	cp.Fields = slices.Clone(m.Fields)
	cp.Joins = make([]Join, len(m.Joins))
	for i, j := range m.Joins {
		cp.Joins[i] = j.clone()
	}
	if m.Joins == nil {
		cp.Joins = nil
	}
	if m.Filter != nil {
		f := FilterExpression{
			Conjunction: m.Filter.Conjunction,
			Predicates:  slices.Clone(m.Filter.Predicates),
		}
		cp.Filter = &f
	}
	cp.GroupBy = slices.Clone(m.GroupBy)
	cp.OrderBy = slices.Clone(m.OrderBy)
	cp.Parameters = maps.Clone(m.Parameters)
	cp.Unresolved = slices.Clone(m.Unresolved)
	return &cp
}

func (j Join) clone() Join {
	j.LeftColumns = slices.Clone(j.LeftColumns)
	j.RightColumns = slices.Clone(j.RightColumns)
	return j
}
