package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

func testSchema() *models.Schema {
	return &models.Schema{
		Tables: []models.SchemaTable{
			{
				Name: "orders",
				Columns: []models.SchemaColumn{
					{Name: "id", DataType: "integer", IsPrimaryKey: true},
					{Name: "amount", DataType: "numeric"},
					{Name: "status", DataType: "text", SampleValues: []string{"shipped", "pending", "on hold"}},
					{Name: "customer_id", DataType: "integer"},
				},
			},
			{
				Name: "customers",
				Columns: []models.SchemaColumn{
					{Name: "id", DataType: "integer", IsPrimaryKey: true},
					{Name: "name", DataType: "text"},
					{Name: "first_name", DataType: "text"},
				},
			},
			{
				Name: "order_items",
				Columns: []models.SchemaColumn{
					{Name: "id", DataType: "integer", IsPrimaryKey: true},
					{Name: "order_id", DataType: "integer"},
					{Name: "quantity", DataType: "integer"},
				},
			},
		},
	}
}

func preprocessed(tokens ...string) *models.PreprocessedText {
	out := &models.PreprocessedText{Language: models.LanguageEnglish}
	for _, t := range tokens {
		out.Tokens = append(out.Tokens, models.Token{Text: t, Class: models.TokenWord})
	}
	return out
}

// fakeExtractor returns canned tags or an error.
type fakeExtractor struct {
	name string
	tags []models.EntityTag
	err  error
}

func (f *fakeExtractor) Name() string { return f.name }

func (f *fakeExtractor) Extract(context.Context, *models.PreprocessedText, *Context) ([]models.EntityTag, error) {
	return f.tags, f.err
}

type tagSummary struct {
	Start, End int
	Type       models.EntityType
	Literal    string
}

func summarize(tags []models.EntityTag) []tagSummary {
	out := make([]tagSummary, len(tags))
	for i, t := range tags {
		out[i] = tagSummary{t.Start, t.End, t.Type, t.Literal}
	}
	return out
}

func TestComposite_DefaultExtractors(t *testing.T) {
	c := NewDefault(zap.NewNop())

	tags, err := c.Extract(context.Background(),
		preprocessed("top", "10", "orders", "by", "amount", "descending"),
		&Context{Schema: testSchema()})
	require.NoError(t, err)

	assert.Equal(t, []tagSummary{
		{0, 1, models.EntityOperator, "top"},
		{1, 2, models.EntityValue, "10"},
		{2, 3, models.EntityTable, "orders"},
		{4, 5, models.EntityColumn, "amount"},
		{5, 6, models.EntitySortDir, "descending"},
	}, summarize(tags))
	assert.Equal(t, models.OpLimit, tags[0].Value)
	assert.Equal(t, int64(10), tags[1].Value)
	assert.Equal(t, "orders", tags[3].Table)
	assert.Equal(t, models.SortDesc, tags[4].Value)
	assert.Equal(t, "schema", tags[2].Source)
}

func TestComposite_HighestConfidenceWinsOverlap(t *testing.T) {
	low := &fakeExtractor{name: "low", tags: []models.EntityTag{
		{Start: 0, End: 2, Type: models.EntityColumn, Literal: "a b", Confidence: 0.5},
	}}
	high := &fakeExtractor{name: "high", tags: []models.EntityTag{
		{Start: 1, End: 2, Type: models.EntityTable, Literal: "b", Confidence: 0.9},
	}}
	c := NewComposite(zap.NewNop(), low, high)

	tags, err := c.Extract(context.Background(), preprocessed("a", "b", "c"), nil)
	require.NoError(t, err)

	require.Len(t, tags, 1)
	assert.Equal(t, models.EntityTable, tags[0].Type)
	assert.Equal(t, "high", tags[0].Source)
}

func TestComposite_TiePrefersEarlierRegisteredExtractor(t *testing.T) {
	first := &fakeExtractor{name: "first", tags: []models.EntityTag{
		{Start: 1, End: 2, Type: models.EntityValue, Literal: "b", Confidence: 0.7},
	}}
	second := &fakeExtractor{name: "second", tags: []models.EntityTag{
		{Start: 0, End: 3, Type: models.EntityColumn, Literal: "a b c", Confidence: 0.7},
	}}

	for _, order := range [][]Extractor{{first, second}, {second, first}} {
		c := NewComposite(zap.NewNop(), order...)
		tags, err := c.Extract(context.Background(), preprocessed("a", "b", "c"), nil)
		require.NoError(t, err)
		require.Len(t, tags, 1)
		assert.Equal(t, order[0].Name(), tags[0].Source)
	}
}

func TestComposite_TieWithinExtractorPrefersLongerSpan(t *testing.T) {
	ex := &fakeExtractor{name: "schema", tags: []models.EntityTag{
		{Start: 1, End: 2, Type: models.EntityTable, Literal: "items", Confidence: 1},
		{Start: 0, End: 2, Type: models.EntityTable, Literal: "order items", Confidence: 1},
	}}
	c := NewComposite(zap.NewNop(), ex)

	tags, err := c.Extract(context.Background(), preprocessed("order", "items"), nil)
	require.NoError(t, err)
	assert.Equal(t, []tagSummary{{0, 2, models.EntityTable, "order items"}}, summarize(tags))
}

func TestComposite_FailingAndEmptyExtractorsAreAbsorbed(t *testing.T) {
	failing := &fakeExtractor{name: "broken", err: errors.New("boom")}
	c := NewComposite(zap.NewNop(), failing, Noop{}, NewOperatorMatcher())

	tags, err := c.Extract(context.Background(), preprocessed("amount", "above", "5"), nil)
	require.NoError(t, err)
	assert.Equal(t, []tagSummary{{1, 2, models.EntityOperator, "above"}}, summarize(tags))
}

func TestComposite_DropsInvalidTags(t *testing.T) {
	ex := &fakeExtractor{name: "bad", tags: []models.EntityTag{
		{Start: 2, End: 5, Type: models.EntityTable, Confidence: 1},
		{Start: 0, End: 1, Type: models.EntityTable, Confidence: 1.5},
		{Start: 1, End: 1, Type: models.EntityTable, Confidence: 1},
		{Start: 0, End: 1, Type: models.EntityColumn, Literal: "a", Confidence: 0.4},
	}}
	c := NewComposite(zap.NewNop(), ex)

	tags, err := c.Extract(context.Background(), preprocessed("a", "b"), nil)
	require.NoError(t, err)
	assert.Equal(t, []tagSummary{{0, 1, models.EntityColumn, "a"}}, summarize(tags))
}

func TestComposite_EmptyInput(t *testing.T) {
	c := NewDefault(zap.NewNop())

	tags, err := c.Extract(context.Background(), &models.PreprocessedText{}, nil)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestComposite_Deterministic(t *testing.T) {
	c := NewDefault(zap.NewNop())
	text := preprocessed("count", "orders", "where", "status", "is", "shipped", "or", "amount", "over", "100")

	first, err := c.Extract(context.Background(), text, &Context{Schema: testSchema()})
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := c.Extract(context.Background(), text, &Context{Schema: testSchema()})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
