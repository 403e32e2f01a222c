package models

import "slices"

// BoundParameter is a value bound to the placeholder at Position (1-based).
type BoundParameter struct {
	Name     string `json:"name"`
	Position int    `json:"position"`
	Value    any    `json:"value"`
}

// SqlConversionResult is the executable rendering of a QueryModel.
type SqlConversionResult struct {
	SQL         string           `json:"sql"`
	Parameters  []BoundParameter `json:"parameters"`
	Confidence  float64          `json:"confidence"`
	Explanation string           `json:"explanation"`
	Dialect     string           `json:"dialect"`
}

// Args returns the parameter values in placeholder order.
func (r *SqlConversionResult) Args() []any {
	args := make([]any, len(r.Parameters))
	for i, p := range r.Parameters {
		args[i] = p.Value
	}
	return args
}

// NamedArgs returns parameter values keyed by parameter name.
func (r *SqlConversionResult) NamedArgs() map[string]any {
	out := make(map[string]any, len(r.Parameters))
	for _, p := range r.Parameters {
		out[p.Name] = p.Value
	}
	return out
}

// Clone returns a copy with its own parameter slice.
func (r *SqlConversionResult) Clone() *SqlConversionResult {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Parameters = slices.Clone(r.Parameters)
	return &cp
}
