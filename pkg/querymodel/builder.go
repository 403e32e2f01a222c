// Package querymodel assembles entity tags into an engine-agnostic query
// model and resolves the joins between the tables it references.
package querymodel

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

// partialPenalty scales the confidence of a model with unresolved table pairs.
const partialPenalty = 0.5

// JoinResolver finds the relationship used to join two tables.
type JoinResolver interface {
	Resolve(a, b string) (models.TableRelationship, bool)
}

var _ JoinResolver = (*Resolver)(nil)

// BuildContext carries the inputs a build needs besides the tags.
type BuildContext struct {
	Name       string
	Schema     *models.Schema
	Resolver   JoinResolver
	Parameters map[string]any // caller supplied; copied into the model
}

// Builder turns entity tags into a QueryModel. It holds no per-build state
// and is safe for concurrent use.
type Builder struct {
	logger *zap.Logger
}

func NewBuilder(logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{logger: logger.Named("query-model-builder")}
}

// Build classifies tags into tables, fields, predicates, aggregates and
// ordering, then resolves joins between every pair of tables. A pair with no
// known relationship is recorded in Unresolved and marks the model Partial;
// it is not an error. Nothing in the returned model aliases tags or bc.
func (b *Builder) Build(ctx context.Context, tags []models.EntityTag, bc *BuildContext) (*models.QueryModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if bc == nil {
		bc = &BuildContext{}
	}

	s := newBuildState(tags, bc, b.logger)
	s.collectTables()
	s.collectColumns()
	s.collectPredicates()
	s.attachAggregates()
	s.attachSorts()

	m := s.model()
	b.resolveJoins(m, bc.Resolver)

	b.logger.Debug("Query model built",
		zap.String("model_id", m.ID.String()),
		zap.Strings("tables", m.Tables),
		zap.Int("fields", len(m.Fields)),
		zap.Int("joins", len(m.Joins)),
		zap.Bool("partial", m.Partial),
		zap.Float64("confidence", m.Confidence))
	return m, nil
}

func (b *Builder) resolveJoins(m *models.QueryModel, resolver JoinResolver) {
	for i := 0; i < len(m.Tables); i++ {
		for j := i + 1; j < len(m.Tables); j++ {
			var (
				rel models.TableRelationship
				ok  bool
			)
			if resolver != nil {
				rel, ok = resolver.Resolve(m.Tables[i], m.Tables[j])
			}
			if !ok {
				m.Unresolved = append(m.Unresolved, models.TablePair{A: m.Tables[i], B: m.Tables[j]})
				continue
			}
			m.Joins = append(m.Joins, models.Join{
				LeftTable:    rel.SourceTable,
				LeftColumns:  slices.Clone(rel.SourceColumns),
				RightTable:   rel.TargetTable,
				RightColumns: slices.Clone(rel.TargetColumns),
				JoinType:     "INNER",
				Weight:       rel.Weight,
			})
		}
	}
	if len(m.Unresolved) > 0 {
		m.Partial = true
		m.Confidence *= partialPenalty
		b.logger.Debug("Unresolved table pairs", zap.Int("count", len(m.Unresolved)))
	}
}

// columnMention is one COLUMN tag and what the rest of the question did with it.
type columnMention struct {
	tag       int
	ref       models.FieldRef
	aggregate string
	filtered  bool
	sorted    bool
}

func (c *columnMention) plain() bool {
	return !c.filtered && !c.sorted
}

type pendingPredicate struct {
	pos   int
	field models.FieldRef
	op    string
	value any
}

type buildState struct {
	tags   []models.EntityTag
	schema *models.Schema
	name   string
	logger *zap.Logger

	tables      []string
	confidences []float64
	mentions    []*columnMention
	byTag       map[int]*columnMention
	consumed    map[int]bool

	predicates  []pendingPredicate
	conjunction string
	limit       int
	countStar   bool
	orderBy     []models.OrderBy
	params      map[string]any
}

func newBuildState(tags []models.EntityTag, bc *BuildContext, logger *zap.Logger) *buildState {
	sorted := slices.Clone(tags)
	slices.SortStableFunc(sorted, func(a, b models.EntityTag) int {
		return cmp.Compare(a.Start, b.Start)
	})
	return &buildState{
		tags:        sorted,
		schema:      bc.Schema,
		name:        bc.Name,
		logger:      logger,
		byTag:       make(map[int]*columnMention),
		consumed:    make(map[int]bool),
		conjunction: models.OpAnd,
		params:      maps.Clone(bc.Parameters),
	}
}

// addTable records a referenced table and its confidence. It reports false
// when the table was already known.
func (s *buildState) addTable(name string, confidence float64) bool {
	if name == "" || slices.ContainsFunc(s.tables, func(t string) bool { return strings.EqualFold(t, name) }) {
		return false
	}
	s.tables = append(s.tables, name)
	s.confidences = append(s.confidences, confidence)
	return true
}

func (s *buildState) collectTables() {
	for _, tag := range s.tags {
		if tag.Type == models.EntityTable {
			s.addTable(tag.Table, tag.Confidence)
		}
	}
}

func (s *buildState) collectColumns() {
	for i, tag := range s.tags {
		if tag.Type != models.EntityColumn {
			continue
		}
		table := s.tableForColumn(i)
		if table == "" {
			s.logger.Debug("Dropping column mention with no table", zap.String("column", tag.Column))
			continue
		}
		if !s.addTable(table, tag.Confidence) {
			s.confidences = append(s.confidences, tag.Confidence)
		}
		m := &columnMention{tag: i, ref: models.FieldRef{Table: table, Column: tag.Column}}
		s.mentions = append(s.mentions, m)
		s.byTag[i] = m
	}
}

// tableForColumn picks the owning table of the COLUMN tag at index i: the
// tag's own table, else the nearest preceding TABLE tag holding the column,
// else any referenced table holding it, else the first schema table holding it.
func (s *buildState) tableForColumn(i int) string {
	tag := s.tags[i]
	if tag.Table != "" {
		return tag.Table
	}
	candidates := s.schema.TablesWithColumn(tag.Column)
	holds := func(table string) bool {
		return len(candidates) == 0 || slices.ContainsFunc(candidates, func(c string) bool {
			return strings.EqualFold(c, table)
		})
	}
	for j := i - 1; j >= 0; j-- {
		if s.tags[j].Type == models.EntityTable && holds(s.tags[j].Table) {
			return s.tags[j].Table
		}
	}
	for _, t := range s.tables {
		if holds(t) {
			return t
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return ""
}

func operatorOf(tag models.EntityTag) string {
	op, _ := tag.Value.(string)
	return op
}

func (s *buildState) collectPredicates() {
	for i, tag := range s.tags {
		if tag.Type != models.EntityOperator {
			continue
		}
		op := operatorOf(tag)
		switch op {
		case models.OpOr:
			s.conjunction = models.OpOr
		case models.OpAnd, models.OpOrderBy:
		case models.OpLimit:
			s.collectLimit(i)
		default:
			s.collectComparison(i, op)
		}
	}

	// A value bound to a column with no operator in front of it reads as equality.
	for i, tag := range s.tags {
		if tag.Type != models.EntityValue || s.consumed[i] {
			continue
		}
		if tag.Column == "" || tag.Table == "" {
			s.logger.Debug("Ignoring value without operator or column", zap.Int("position", tag.Start))
			continue
		}
		s.consumed[i] = true
		s.addTable(tag.Table, tag.Confidence)
		s.predicates = append(s.predicates, pendingPredicate{
			pos:   tag.Start,
			field: models.FieldRef{Table: tag.Table, Column: tag.Column},
			op:    models.OpEqual,
			value: tag.Value,
		})
	}
}

func (s *buildState) collectLimit(i int) {
	j := i + 1
	if j >= len(s.tags) || s.tags[j].Type != models.EntityValue || s.consumed[j] {
		return
	}
	n, ok := s.tags[j].Value.(int64)
	if !ok || n <= 0 {
		return
	}
	s.consumed[j] = true
	s.limit = int(n)
}

// collectComparison pairs the operator at index i with the next unused VALUE
// before any other operator, and with the nearest preceding column mention
// (or the column the value itself is bound to).
func (s *buildState) collectComparison(i int, op string) {
	valueIdx := -1
	for j := i + 1; j < len(s.tags); j++ {
		if s.tags[j].Type == models.EntityOperator {
			break
		}
		if s.tags[j].Type == models.EntityValue && !s.consumed[j] {
			valueIdx = j
			break
		}
	}
	if valueIdx < 0 {
		s.logger.Debug("Operator without value", zap.String("operator", op))
		return
	}
	value := s.tags[valueIdx]

	var field models.FieldRef
	for j := i - 1; j >= 0; j-- {
		if m, ok := s.byTag[j]; ok {
			m.filtered = true
			field = m.ref
			break
		}
	}
	if field.Column == "" && value.Column != "" && value.Table != "" {
		field = models.FieldRef{Table: value.Table, Column: value.Column}
		s.addTable(value.Table, value.Confidence)
	}
	if field.Column == "" {
		s.logger.Debug("Operator without column", zap.String("operator", op))
		return
	}

	s.consumed[valueIdx] = true
	v := value.Value
	if op == models.OpLike {
		v = fmt.Sprintf("%%%v%%", v)
	}
	s.predicates = append(s.predicates, pendingPredicate{pos: s.tags[i].Start, field: field, op: op, value: v})
}

// attachAggregates binds each AGGREGATE tag to the nearest column mention;
// on a tie the following mention wins. COUNT directly followed by a table
// (as in "count orders by status") counts rows instead.
func (s *buildState) attachAggregates() {
	for i, tag := range s.tags {
		if tag.Type != models.EntityAggregate {
			continue
		}
		fn := operatorOf(tag)
		if fn == "COUNT" && (i+1 < len(s.tags) && s.tags[i+1].Type == models.EntityTable || len(s.mentions) == 0) {
			s.countStar = true
			continue
		}
		m := s.nearestMention(tag, true)
		if m == nil {
			continue
		}
		m.aggregate = fn
	}
}

// attachSorts binds each SORT_DIR tag to the nearest column mention; on a tie
// the preceding mention wins. With no mention the sort applies to the first
// aggregate.
func (s *buildState) attachSorts() {
	for _, tag := range s.tags {
		if tag.Type != models.EntitySortDir {
			continue
		}
		dir := operatorOf(tag)
		m := s.nearestMention(tag, false)
		var ob models.OrderBy
		switch {
		case m != nil:
			m.sorted = true
			ob = models.OrderBy{Field: m.ref, Direction: dir, Aggregate: m.aggregate}
		case s.countStar && len(s.tables) > 0:
			ob = models.OrderBy{Field: models.FieldRef{Table: s.tables[0], Column: "*"}, Direction: dir, Aggregate: "COUNT"}
		default:
			agg := s.firstAggregate()
			if agg == nil {
				continue
			}
			ob = models.OrderBy{Field: agg.ref, Direction: dir, Aggregate: agg.aggregate}
		}
		if !slices.ContainsFunc(s.orderBy, func(o models.OrderBy) bool {
			return o.Field == ob.Field && o.Aggregate == ob.Aggregate
		}) {
			s.orderBy = append(s.orderBy, ob)
		}
	}
}

func (s *buildState) firstAggregate() *columnMention {
	for _, m := range s.mentions {
		if m.aggregate != "" {
			return m
		}
	}
	return nil
}

func (s *buildState) nearestMention(tag models.EntityTag, preferFollowing bool) *columnMention {
	var (
		best     *columnMention
		bestDist int
	)
	for _, m := range s.mentions {
		col := s.tags[m.tag]
		var dist int
		following := col.Start >= tag.End
		if following {
			dist = col.Start - tag.End
		} else {
			dist = tag.Start - col.End
		}
		switch {
		case best == nil, dist < bestDist:
			best, bestDist = m, dist
		case dist == bestDist && following == preferFollowing:
			best = m
		}
	}
	return best
}

func (s *buildState) model() *models.QueryModel {
	m := &models.QueryModel{
		ID:         uuid.New(),
		Name:       s.name,
		Tables:     slices.Clone(s.tables),
		Parameters: map[string]any{},
		Limit:      s.limit,
		Confidence: mean(s.confidences),
	}
	maps.Copy(m.Parameters, s.params)

	hasAggregates := s.countStar || s.firstAggregate() != nil
	if s.countStar && len(s.tables) > 0 {
		m.Fields = append(m.Fields, models.Field{
			FieldRef:   models.FieldRef{Table: s.tables[0], Column: "*"},
			Aggregate:  "COUNT",
			Projected:  true,
			Confidence: 1,
		})
	}

	index := make(map[string]int)
	for _, mention := range s.mentions {
		key := strings.ToLower(mention.ref.Table + "." + mention.ref.Column + "|" + mention.aggregate)
		projected := mention.aggregate != "" || mention.plain() || (hasAggregates && mention.sorted)
		conf := s.tags[mention.tag].Confidence
		if i, ok := index[key]; ok {
			m.Fields[i].Projected = m.Fields[i].Projected || projected
			m.Fields[i].Confidence = max(m.Fields[i].Confidence, conf)
			continue
		}
		index[key] = len(m.Fields)
		m.Fields = append(m.Fields, models.Field{
			FieldRef:   mention.ref,
			Aggregate:  mention.aggregate,
			Projected:  projected,
			Confidence: conf,
		})
	}

	if hasAggregates {
		for _, f := range m.Fields {
			if f.Aggregate == "" && f.Projected && !slices.Contains(m.GroupBy, f.FieldRef) {
				m.GroupBy = append(m.GroupBy, f.FieldRef)
			}
		}
	}

	m.OrderBy = slices.Clone(s.orderBy)

	if len(s.predicates) > 0 {
		slices.SortStableFunc(s.predicates, func(a, b pendingPredicate) int { return cmp.Compare(a.pos, b.pos) })
		filter := &models.FilterExpression{Conjunction: s.conjunction}
		next := 1
		for _, p := range s.predicates {
			name := freeParamName(m.Parameters, &next)
			m.Parameters[name] = p.value
			filter.Predicates = append(filter.Predicates, models.Predicate{Field: p.field, Operator: p.op, Param: name})
		}
		m.Filter = filter
	}
	return m
}

// freeParamName returns the next pN name not already used by a caller parameter.
func freeParamName(params map[string]any, next *int) string {
	for {
		name := fmt.Sprintf("p%d", *next)
		*next++
		if _, taken := params[name]; !taken {
			return name
		}
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
