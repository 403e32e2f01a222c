package sql

import (
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-nlq/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

const stageConvert = "convert"

// Converter renders query models as parameterized SQL for one dialect.
// Values never appear in the SQL text; each predicate binds a placeholder.
type Converter struct {
	dialect Dialect
	logger  *zap.Logger
}

func NewConverter(dialect Dialect, logger *zap.Logger) *Converter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Converter{dialect: dialect, logger: logger.Named("sql-converter")}
}

// Dialect returns the dialect the converter renders.
func (c *Converter) Dialect() Dialect {
	return c.dialect
}

// Convert fails with a conversion error when the model has no tables, when
// its joins leave the tables disconnected, or when a predicate refers to a
// parameter with no value.
func (c *Converter) Convert(m *models.QueryModel) (*models.SqlConversionResult, error) {
	if m == nil || len(m.Tables) == 0 {
		return nil, apperrors.Conversion(stageConvert, "no tables could be identified in the question")
	}

	graph := newJoinGraph(m.Tables, m.Joins)
	if components := graph.components(); len(components) > 1 {
		a, b := unresolvedPair(m, components)
		return nil, apperrors.Conversion(stageConvert, "no relationship between %s and %s", a, b)
	}
	steps := graph.spanningJoins()

	r := &renderer{
		dialect: c.dialect,
		qualify: len(m.Tables) > 1,
		tables:  m.Tables,
	}
	if err := r.checkReferences(m); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if top := c.dialect.TopClause(m.Limit); top != "" {
		sb.WriteString(top)
		sb.WriteByte(' ')
	}
	sb.WriteString(r.selectList(m))
	sb.WriteString(" FROM ")
	sb.WriteString(r.quote(m.Tables[0]))

	confidence := m.Confidence
	for _, step := range steps {
		sb.WriteString(" INNER JOIN ")
		sb.WriteString(r.quote(step.table))
		sb.WriteString(" ON ")
		sb.WriteString(r.joinCondition(step.join))
		confidence *= step.join.Weight
	}

	params, where, err := r.where(m)
	if err != nil {
		return nil, err
	}
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	if len(m.GroupBy) > 0 {
		cols := make([]string, len(m.GroupBy))
		for i, g := range m.GroupBy {
			cols[i] = r.column(g)
		}
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(cols, ", "))
	}
	if len(m.OrderBy) > 0 {
		items := make([]string, len(m.OrderBy))
		for i, o := range m.OrderBy {
			items[i] = r.expression(o.Field, o.Aggregate) + " " + direction(o.Direction)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(items, ", "))
	}
	if limit := c.dialect.LimitClause(m.Limit); limit != "" {
		sb.WriteByte(' ')
		sb.WriteString(limit)
	}

	result := &models.SqlConversionResult{
		SQL:         sb.String(),
		Parameters:  params,
		Confidence:  clamp(confidence),
		Explanation: explain(m, steps),
		Dialect:     c.dialect.Name(),
	}
	c.logger.Debug("Converted query model",
		zap.String("model_id", m.ID.String()),
		zap.String("dialect", result.Dialect),
		zap.Int("parameters", len(params)),
		zap.Float64("confidence", result.Confidence))
	return result, nil
}

// unresolvedPair names two tables from different components, preferring a
// pair the builder already reported as unresolved.
func unresolvedPair(m *models.QueryModel, components [][]string) (string, string) {
	componentOf := make(map[string]int)
	for i, comp := range components {
		for _, t := range comp {
			componentOf[strings.ToLower(t)] = i
		}
	}
	for _, p := range m.Unresolved {
		if componentOf[strings.ToLower(p.A)] != componentOf[strings.ToLower(p.B)] {
			return p.A, p.B
		}
	}
	return components[0][0], components[1][0]
}

type renderer struct {
	dialect Dialect
	qualify bool
	tables  []string
}

func (r *renderer) quote(name string) string {
	return r.dialect.QuoteIdentifier(name)
}

func (r *renderer) column(f models.FieldRef) string {
	if f.Column == "*" || !r.qualify {
		return r.quote(f.Column)
	}
	return r.quote(f.Table) + "." + r.quote(f.Column)
}

func (r *renderer) expression(f models.FieldRef, aggregate string) string {
	if aggregate == "" {
		return r.column(f)
	}
	return strings.ToUpper(aggregate) + "(" + r.column(f) + ")"
}

func (r *renderer) hasTable(name string) bool {
	return slices.ContainsFunc(r.tables, func(t string) bool { return strings.EqualFold(t, name) })
}

// checkReferences rejects fields that point at a table outside the FROM clause.
func (r *renderer) checkReferences(m *models.QueryModel) error {
	refs := make([]models.FieldRef, 0, len(m.Fields)+len(m.GroupBy)+len(m.OrderBy))
	for _, f := range m.Fields {
		refs = append(refs, f.FieldRef)
	}
	refs = append(refs, m.GroupBy...)
	for _, o := range m.OrderBy {
		refs = append(refs, o.Field)
	}
	if m.Filter != nil {
		for _, p := range m.Filter.Predicates {
			refs = append(refs, p.Field)
		}
	}
	for _, ref := range refs {
		if ref.Column == "" || !r.hasTable(ref.Table) {
			return apperrors.Conversion(stageConvert, "field %s.%s does not belong to a referenced table", ref.Table, ref.Column)
		}
	}
	return nil
}

func (r *renderer) selectList(m *models.QueryModel) string {
	var items []string
	for _, f := range m.ProjectedFields() {
		item := r.expression(f.FieldRef, f.Aggregate)
		if f.Aggregate != "" {
			item += " AS " + r.quote(aggregateAlias(f))
		}
		if !slices.Contains(items, item) {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return "*"
	}
	return strings.Join(items, ", ")
}

func aggregateAlias(f models.Field) string {
	if f.Column == "*" {
		return strings.ToLower(f.Aggregate)
	}
	return strings.ToLower(f.Aggregate) + "_" + strings.ToLower(f.Column)
}

func (r *renderer) joinCondition(j models.Join) string {
	conds := make([]string, len(j.LeftColumns))
	for i := range j.LeftColumns {
		left := models.FieldRef{Table: j.LeftTable, Column: j.LeftColumns[i]}
		right := models.FieldRef{Table: j.RightTable, Column: j.RightColumns[i]}
		conds[i] = r.column(left) + " = " + r.column(right)
	}
	return strings.Join(conds, " AND ")
}

// where binds every predicate to the next positional placeholder.
func (r *renderer) where(m *models.QueryModel) ([]models.BoundParameter, string, error) {
	if m.Filter == nil || len(m.Filter.Predicates) == 0 {
		return nil, "", nil
	}
	conj := " AND "
	if strings.EqualFold(m.Filter.Conjunction, models.OpOr) {
		conj = " OR "
	}
	params := make([]models.BoundParameter, 0, len(m.Filter.Predicates))
	conds := make([]string, 0, len(m.Filter.Predicates))
	for _, p := range m.Filter.Predicates {
		value, ok := m.Parameters[p.Param]
		if !ok {
			return nil, "", apperrors.Conversion(stageConvert, "parameter %s has no value", p.Param)
		}
		if !validOperator(p.Operator) {
			return nil, "", apperrors.Conversion(stageConvert, "unsupported operator %q", p.Operator)
		}
		position := len(params) + 1
		params = append(params, models.BoundParameter{Name: p.Param, Position: position, Value: value})
		conds = append(conds, r.column(p.Field)+" "+p.Operator+" "+r.dialect.Placeholder(position))
	}
	where := strings.Join(conds, conj)
	if len(conds) > 1 && conj == " OR " {
		where = "(" + where + ")"
	}
	return params, where, nil
}

func validOperator(op string) bool {
	switch op {
	case models.OpEqual, models.OpNotEqual, models.OpGreater, models.OpGreaterEqual,
		models.OpLess, models.OpLessEqual, models.OpLike:
		return true
	}
	return false
}

func direction(dir string) string {
	if strings.EqualFold(dir, models.SortDesc) {
		return models.SortDesc
	}
	return models.SortAsc
}

func clamp(v float64) float64 {
	return min(max(v, 0), 1)
}

var operatorWords = map[string]string{
	models.OpEqual:        "equals",
	models.OpNotEqual:     "differs from",
	models.OpGreater:      "is greater than",
	models.OpGreaterEqual: "is at least",
	models.OpLess:         "is less than",
	models.OpLessEqual:    "is at most",
	models.OpLike:         "matches",
}

func explain(m *models.QueryModel, steps []joinStep) string {
	var parts []string

	projected := m.ProjectedFields()
	if len(projected) == 0 {
		parts = append(parts, "Select all columns from "+m.Tables[0])
	} else {
		names := make([]string, len(projected))
		for i, f := range projected {
			names[i] = describeField(f.FieldRef, f.Aggregate)
		}
		parts = append(parts, fmt.Sprintf("Select %s from %s", strings.Join(names, ", "), m.Tables[0]))
	}
	for _, s := range steps {
		parts = append(parts, fmt.Sprintf("joined with %s on %s", s.table, strings.Join(joinColumns(s.join), " and ")))
	}
	if m.Filter != nil && len(m.Filter.Predicates) > 0 {
		conds := make([]string, len(m.Filter.Predicates))
		for i, p := range m.Filter.Predicates {
			conds[i] = fmt.Sprintf("%s %s :%s", p.Field.Column, operatorWords[p.Operator], p.Param)
		}
		word := " and "
		if strings.EqualFold(m.Filter.Conjunction, models.OpOr) {
			word = " or "
		}
		parts = append(parts, "where "+strings.Join(conds, word))
	}
	if len(m.GroupBy) > 0 {
		cols := make([]string, len(m.GroupBy))
		for i, g := range m.GroupBy {
			cols[i] = g.Column
		}
		parts = append(parts, "grouped by "+strings.Join(cols, ", "))
	}
	for _, o := range m.OrderBy {
		word := "ascending"
		if direction(o.Direction) == models.SortDesc {
			word = "descending"
		}
		parts = append(parts, fmt.Sprintf("ordered by %s %s", describeField(o.Field, o.Aggregate), word))
	}
	if m.Limit > 0 {
		parts = append(parts, fmt.Sprintf("limited to %d rows", m.Limit))
	}
	return strings.Join(parts, ", ") + "."
}

func describeField(f models.FieldRef, aggregate string) string {
	name := f.Column
	if name == "*" {
		name = "rows"
	}
	if aggregate == "" {
		return name
	}
	return strings.ToLower(aggregate) + " of " + name
}

func joinColumns(j models.Join) []string {
	out := make([]string, len(j.LeftColumns))
	for i := range j.LeftColumns {
		out[i] = fmt.Sprintf("%s.%s = %s.%s", j.LeftTable, j.LeftColumns[i], j.RightTable, j.RightColumns[i])
	}
	return out
}
