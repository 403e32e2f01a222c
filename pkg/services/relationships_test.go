package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-nlq/pkg/config"
	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
	"github.com/ekaya-inc/ekaya-nlq/pkg/querymodel"
)

func TestDeclaredRelationships(t *testing.T) {
	declared := []config.RelationshipConfig{
		{SourceTable: "orders", SourceColumns: []string{"sku"}, TargetTable: "products", TargetColumns: []string{"sku"}},
		{SourceTable: "orders", SourceColumns: []string{"store"}, TargetTable: "stores", TargetColumns: []string{"code"}, Weight: 0.4, Frequency: 12},
	}

	rels := DeclaredRelationships(declared)

	require.Len(t, rels, 2)
	assert.Equal(t, models.RelationDeclared, rels[0].RelationType)
	assert.Equal(t, 1.0, rels[0].Weight)
	assert.Equal(t, 0.4, rels[1].Weight)
	assert.Equal(t, int64(12), rels[1].Frequency)

	// The result must not alias the configuration.
	rels[0].SourceColumns[0] = "changed"
	assert.Equal(t, "sku", declared[0].SourceColumns[0])
}

func TestForeignKeyRelationships(t *testing.T) {
	provider := ForeignKeyRelationships(func(context.Context) (*models.Schema, error) {
		return shopSchema(), nil
	})

	rels, err := provider.Relationships(context.Background())
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "orders", rels[0].SourceTable)
	assert.Equal(t, "customers", rels[0].TargetTable)
	assert.Equal(t, models.RelationForeignKey, rels[0].RelationType)
}

func TestCombinedRelationships(t *testing.T) {
	declared := querymodel.StaticRelationships(DeclaredRelationships([]config.RelationshipConfig{
		{SourceTable: "orders", SourceColumns: []string{"sku"}, TargetTable: "products", TargetColumns: []string{"sku"}},
	})...)

	t.Run("concatenates providers", func(t *testing.T) {
		combined := CombinedRelationships(ForeignKeyRelationships(func(context.Context) (*models.Schema, error) {
			return shopSchema(), nil
		}), declared)

		rels, err := combined.Relationships(context.Background())
		require.NoError(t, err)
		assert.Len(t, rels, 2)
	})

	t.Run("fails when any provider fails", func(t *testing.T) {
		combined := CombinedRelationships(ForeignKeyRelationships(func(context.Context) (*models.Schema, error) {
			return nil, errors.New("schema unavailable")
		}), declared)

		_, err := combined.Relationships(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "schema unavailable")
	})
}
