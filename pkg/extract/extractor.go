// Package extract tags token spans of a preprocessed question with their
// semantic role: table, column, value, operator, aggregate or sort direction.
package extract

import (
	"cmp"
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

// Context carries what extractors may match against.
type Context struct {
	Schema *models.Schema
}

// Extractor is one entity recognition strategy. Returning no tags is valid.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, text *models.PreprocessedText, ec *Context) ([]models.EntityTag, error)
}

// Composite runs every registered extractor and merges their tags.
//
// Merge rule: candidates are ranked by confidence (highest first), then by
// registration order of the extractor that produced them, then by span
// length (longest first), then by start position. Tags are accepted in rank
// order unless they overlap an already accepted tag. The result is sorted by
// start position.
type Composite struct {
	extractors []Extractor
	logger     *zap.Logger
}

var _ Extractor = (*Composite)(nil)

// NewComposite creates a composite over extractors, in registration order.
func NewComposite(logger *zap.Logger, extractors ...Extractor) *Composite {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composite{
		extractors: slices.Clone(extractors),
		logger:     logger.Named("extract"),
	}
}

// NewDefault registers the schema, value and operator matchers.
func NewDefault(logger *zap.Logger) *Composite {
	return NewComposite(logger, NewSchemaMatcher(), NewValueMatcher(), NewOperatorMatcher())
}

func (c *Composite) Name() string { return "composite" }

type candidate struct {
	tag   models.EntityTag
	order int
}

// Extract never fails because of a single extractor: errors and invalid tags
// are logged and dropped.
func (c *Composite) Extract(ctx context.Context, text *models.PreprocessedText, ec *Context) ([]models.EntityTag, error) {
	if text == nil || len(text.Tokens) == 0 {
		return nil, nil
	}
	if ec == nil {
		ec = &Context{}
	}

	var candidates []candidate
	for i, ex := range c.extractors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tags, err := ex.Extract(ctx, text, ec)
		if err != nil {
			c.logger.Warn("Extractor failed, ignoring its tags",
				zap.String("extractor", ex.Name()),
				zap.Error(err))
			continue
		}
		if len(tags) == 0 {
			c.logger.Debug("Extractor produced no tags", zap.String("extractor", ex.Name()))
			continue
		}
		for _, tag := range tags {
			if err := tag.Validate(len(text.Tokens)); err != nil {
				c.logger.Warn("Dropping invalid tag",
					zap.String("extractor", ex.Name()),
					zap.Error(err))
				continue
			}
			if tag.Source == "" {
				tag.Source = ex.Name()
			}
			candidates = append(candidates, candidate{tag: tag, order: i})
		}
	}
	return merge(candidates), nil
}

func merge(candidates []candidate) []models.EntityTag {
	slices.SortStableFunc(candidates, func(a, b candidate) int {
		if c := cmp.Compare(b.tag.Confidence, a.tag.Confidence); c != 0 {
			return c
		}
		if c := cmp.Compare(a.order, b.order); c != 0 {
			return c
		}
		if c := cmp.Compare(b.tag.End-b.tag.Start, a.tag.End-a.tag.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.tag.Start, b.tag.Start)
	})

	accepted := make([]models.EntityTag, 0, len(candidates))
	for _, cand := range candidates {
		overlaps := slices.ContainsFunc(accepted, func(t models.EntityTag) bool {
			return t.Overlaps(cand.tag)
		})
		if !overlaps {
			accepted = append(accepted, cand.tag)
		}
	}
	slices.SortFunc(accepted, func(a, b models.EntityTag) int {
		return cmp.Compare(a.Start, b.Start)
	})
	return accepted
}

// Noop recognises nothing. It stands in for capabilities that are not
// configured.
type Noop struct{}

var _ Extractor = Noop{}

func (Noop) Name() string { return "noop" }

func (Noop) Extract(context.Context, *models.PreprocessedText, *Context) ([]models.EntityTag, error) {
	return nil, nil
}
