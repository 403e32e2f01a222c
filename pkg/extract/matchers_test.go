package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

func TestSchemaMatcher(t *testing.T) {
	m := NewSchemaMatcher()
	ec := &Context{Schema: testSchema()}

	tests := []struct {
		name   string
		tokens []string
		want   models.EntityTag
	}{
		{
			name:   "exact table",
			tokens: []string{"customers"},
			want:   models.EntityTag{Start: 0, End: 1, Type: models.EntityTable, Literal: "customers", Confidence: 1, Table: "customers"},
		},
		{
			name:   "singular table",
			tokens: []string{"customer"},
			want:   models.EntityTag{Start: 0, End: 1, Type: models.EntityTable, Literal: "customer", Confidence: 0.9, Table: "customers"},
		},
		{
			name:   "multi word table",
			tokens: []string{"order", "items"},
			want:   models.EntityTag{Start: 0, End: 2, Type: models.EntityTable, Literal: "order items", Confidence: 1, Table: "order_items"},
		},
		{
			name:   "dictionary canonical table name",
			tokens: []string{"order_items"},
			want:   models.EntityTag{Start: 0, End: 1, Type: models.EntityTable, Literal: "order_items", Confidence: 1, Table: "order_items"},
		},
		{
			name:   "single token holding spaces",
			tokens: []string{"order items"},
			want:   models.EntityTag{Start: 0, End: 1, Type: models.EntityTable, Literal: "order items", Confidence: 1, Table: "order_items"},
		},
		{
			name:   "unique column",
			tokens: []string{"amount"},
			want:   models.EntityTag{Start: 0, End: 1, Type: models.EntityColumn, Literal: "amount", Confidence: 1, Table: "orders", Column: "amount"},
		},
		{
			name:   "plural column",
			tokens: []string{"quantities"},
			want:   models.EntityTag{Start: 0, End: 1, Type: models.EntityColumn, Literal: "quantities", Confidence: 0.9, Table: "order_items", Column: "quantity"},
		},
		{
			name:   "ambiguous column has no table",
			tokens: []string{"id"},
			want:   models.EntityTag{Start: 0, End: 1, Type: models.EntityColumn, Literal: "id", Confidence: 0.8, Column: "id"},
		},
		{
			name:   "multi word column",
			tokens: []string{"first", "name"},
			want:   models.EntityTag{Start: 0, End: 2, Type: models.EntityColumn, Literal: "first name", Confidence: 1, Table: "customers", Column: "first_name"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tags, err := m.Extract(context.Background(), preprocessed(tt.tokens...), ec)
			require.NoError(t, err)
			assert.Contains(t, tags, tt.want)
		})
	}
}

func TestSchemaMatcher_NoSchema(t *testing.T) {
	tags, err := NewSchemaMatcher().Extract(context.Background(), preprocessed("orders"), &Context{})
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestValueMatcher(t *testing.T) {
	m := NewValueMatcher()
	ec := &Context{Schema: testSchema()}

	tags, err := m.Extract(context.Background(),
		preprocessed("orders", "on", "hold", "amount", "above", "12.5", "name", "is", "alice", "status", "is", "amount"),
		ec)
	require.NoError(t, err)

	assert.Equal(t, []models.EntityTag{
		{Start: 1, End: 3, Type: models.EntityValue, Literal: "on hold", Value: "on hold", Confidence: 0.95, Table: "orders", Column: "status"},
		{Start: 5, End: 6, Type: models.EntityValue, Literal: "12.5", Value: 12.5, Confidence: 0.9},
		{Start: 8, End: 9, Type: models.EntityValue, Literal: "alice", Value: "alice", Confidence: 0.6},
	}, tags)
}

func TestValueMatcher_Numbers(t *testing.T) {
	tags, err := NewValueMatcher().Extract(context.Background(), preprocessed("10", "1.5.3", "x1"), nil)
	require.NoError(t, err)

	require.Len(t, tags, 1)
	assert.Equal(t, int64(10), tags[0].Value)
}

func TestOperatorMatcher(t *testing.T) {
	m := NewOperatorMatcher()

	tags, err := m.Extract(context.Background(),
		preprocessed("average", "amount", "greater", "than", "or", "equal", "to", "5", "or", "status", "is", "not", "x", "lowest", "first"),
		nil)
	require.NoError(t, err)

	got := make([]string, len(tags))
	for i, tag := range tags {
		got[i] = tag.Value.(string)
	}
	assert.Equal(t, []string{"AVG", models.OpGreaterEqual, models.OpOr, models.OpNotEqual, models.SortAsc, models.OpLimit}, got)
	assert.Equal(t, 2, tags[1].Start)
	assert.Equal(t, 7, tags[1].End)
}
