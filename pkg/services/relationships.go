package services

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/ekaya-nlq/pkg/config"
	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
	"github.com/ekaya-inc/ekaya-nlq/pkg/querymodel"
)

// declaredWeight is used for declared relationships that state no weight.
const declaredWeight = 1.0

// SchemaFunc returns the current schema of a data source.
type SchemaFunc func(ctx context.Context) (*models.Schema, error)

// ForeignKeyRelationships provides the foreign keys discovered in a data
// source schema, each with full confidence.
func ForeignKeyRelationships(schema SchemaFunc) querymodel.RelationshipProvider {
	return querymodel.RelationshipProviderFunc(func(ctx context.Context) ([]models.TableRelationship, error) {
		s, err := schema(ctx)
		if err != nil {
			return nil, err
		}
		return s.Relationships(), nil
	})
}

// DeclaredRelationships converts relationships declared in configuration.
func DeclaredRelationships(declared []config.RelationshipConfig) []models.TableRelationship {
	out := make([]models.TableRelationship, 0, len(declared))
	for _, d := range declared {
		weight := d.Weight
		if weight == 0 {
			weight = declaredWeight
		}
		out = append(out, models.TableRelationship{
			SourceTable:   d.SourceTable,
			SourceColumns: append([]string(nil), d.SourceColumns...),
			TargetTable:   d.TargetTable,
			TargetColumns: append([]string(nil), d.TargetColumns...),
			RelationType:  models.RelationDeclared,
			Weight:        weight,
			Frequency:     int64(d.Frequency),
		})
	}
	return out
}

// CombinedRelationships concatenates the relationships of several providers.
// A failing provider fails the whole load so the resolver keeps its previous
// snapshot.
func CombinedRelationships(providers ...querymodel.RelationshipProvider) querymodel.RelationshipProvider {
	return querymodel.RelationshipProviderFunc(func(ctx context.Context) ([]models.TableRelationship, error) {
		var all []models.TableRelationship
		for i, p := range providers {
			rels, err := p.Relationships(ctx)
			if err != nil {
				return nil, fmt.Errorf("relationship provider %d: %w", i, err)
			}
			all = append(all, rels...)
		}
		return all, nil
	})
}
