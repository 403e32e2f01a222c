package extract

import (
	"context"
	"strings"

	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

// OperatorMatcher tags comparison, limit and connective keywords, aggregate
// functions and sort directions. Longer phrases win over their prefixes.
type OperatorMatcher struct{}

var _ Extractor = (*OperatorMatcher)(nil)

func NewOperatorMatcher() *OperatorMatcher { return &OperatorMatcher{} }

func (m *OperatorMatcher) Name() string { return "operator" }

func (m *OperatorMatcher) Extract(_ context.Context, text *models.PreprocessedText, _ *Context) ([]models.EntityTag, error) {
	tokens := text.TokenTexts()
	var tags []models.EntityTag
	for i := 0; i < len(tokens); {
		k, ok := matchKeyword(tokens, i)
		if !ok {
			i++
			continue
		}
		end := i + len(k.phrase)
		tags = append(tags, models.EntityTag{
			Start:      i,
			End:        end,
			Type:       k.typ,
			Literal:    strings.Join(tokens[i:end], " "),
			Value:      k.literal,
			Confidence: k.confidence,
		})
		i = end
	}
	return tags, nil
}
