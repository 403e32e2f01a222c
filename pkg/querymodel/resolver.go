package querymodel

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

// RelationshipProvider supplies the relationship metadata of one data source.
type RelationshipProvider interface {
	Relationships(ctx context.Context) ([]models.TableRelationship, error)
}

// RelationshipProviderFunc adapts a function to RelationshipProvider.
type RelationshipProviderFunc func(ctx context.Context) ([]models.TableRelationship, error)

func (f RelationshipProviderFunc) Relationships(ctx context.Context) ([]models.TableRelationship, error) {
	return f(ctx)
}

// StaticRelationships is a provider over a fixed list.
func StaticRelationships(rels ...models.TableRelationship) RelationshipProvider {
	return RelationshipProviderFunc(func(context.Context) ([]models.TableRelationship, error) {
		return rels, nil
	})
}

// Resolver answers join questions from an immutable snapshot of relationship
// metadata. Refresh swaps the snapshot atomically, so a Resolve call always
// sees one consistent view.
type Resolver struct {
	provider RelationshipProvider
	snapshot atomic.Pointer[snapshot]
	logger   *zap.Logger
}

type snapshot struct {
	// ranked candidates per unordered table pair, best first
	pairs map[string][]models.TableRelationship
	count int
}

// NewResolver creates a resolver with an empty snapshot. Call Refresh to load
// relationships from provider.
func NewResolver(provider RelationshipProvider, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{provider: provider, logger: logger.Named("relationship-resolver")}
	r.snapshot.Store(&snapshot{pairs: map[string][]models.TableRelationship{}})
	return r
}

// NewStaticResolver creates a resolver already loaded with rels.
func NewStaticResolver(logger *zap.Logger, rels ...models.TableRelationship) *Resolver {
	r := NewResolver(StaticRelationships(rels...), logger)
	r.snapshot.Store(r.build(rels))
	return r
}

// Refresh reloads relationships from the provider. On failure the previous
// snapshot stays in place.
func (r *Resolver) Refresh(ctx context.Context) error {
	if r.provider == nil {
		return nil
	}
	rels, err := r.provider.Relationships(ctx)
	if err != nil {
		return fmt.Errorf("load relationships: %w", err)
	}
	snap := r.build(rels)
	r.snapshot.Store(snap)
	r.logger.Debug("Relationship snapshot refreshed", zap.Int("relationships", snap.count))
	return nil
}

// Len returns the number of relationships in the current snapshot.
func (r *Resolver) Len() int {
	return r.snapshot.Load().count
}

// Resolve returns the best relationship between a and b in either direction:
// highest weight, then highest frequency, then the lexically smallest Key.
// The returned value is a private copy.
func (r *Resolver) Resolve(a, b string) (models.TableRelationship, bool) {
	ranked := r.snapshot.Load().pairs[pairKey(a, b)]
	if len(ranked) == 0 {
		return models.TableRelationship{}, false
	}
	return ranked[0].Clone(), true
}

func (r *Resolver) build(rels []models.TableRelationship) *snapshot {
	snap := &snapshot{pairs: make(map[string][]models.TableRelationship)}
	for _, rel := range rels {
		if err := rel.Validate(); err != nil {
			r.logger.Warn("Ignoring invalid relationship", zap.Error(err))
			continue
		}
		key := pairKey(rel.SourceTable, rel.TargetTable)
		snap.pairs[key] = append(snap.pairs[key], rel.Clone())
		snap.count++
	}
	for _, ranked := range snap.pairs {
		slices.SortFunc(ranked, compareRelationships)
	}
	return snap
}

func compareRelationships(x, y models.TableRelationship) int {
	if c := cmp.Compare(y.Weight, x.Weight); c != 0 {
		return c
	}
	if c := cmp.Compare(y.Frequency, x.Frequency); c != 0 {
		return c
	}
	return cmp.Compare(x.Key(), y.Key())
}

func pairKey(a, b string) string {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a > b {
		a, b = b, a
	}
	return a + "\x00" + b
}
