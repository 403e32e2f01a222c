package extract

import (
	"context"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

const (
	confidenceNumber      = 0.9
	confidenceSampleValue = 0.95
	confidenceFreeValue   = 0.6
	maxSampleValueWords   = 3
)

// ValueMatcher tags literal values: numbers, known sample values of
// low-cardinality columns, and the free word following a comparison.
type ValueMatcher struct{}

var _ Extractor = (*ValueMatcher)(nil)

func NewValueMatcher() *ValueMatcher { return &ValueMatcher{} }

func (m *ValueMatcher) Name() string { return "value" }

func (m *ValueMatcher) Extract(_ context.Context, text *models.PreprocessedText, ec *Context) ([]models.EntityTag, error) {
	tokens := text.TokenTexts()
	var schema *models.Schema
	if ec != nil {
		schema = ec.Schema
	}
	samples := sampleIndex(schema)
	var names *schemaIndex
	if schema != nil {
		names = newSchemaIndex(schema)
	}
	afterComparison := comparisonEnds(tokens)

	var tags []models.EntityTag
	for i := 0; i < len(tokens); i++ {
		if v, ok := parseNumber(tokens[i]); ok {
			tags = append(tags, models.EntityTag{
				Start: i, End: i + 1, Type: models.EntityValue,
				Literal: tokens[i], Value: v, Confidence: confidenceNumber,
			})
			continue
		}
		if tag, ok := matchSample(tokens, i, samples); ok {
			tags = append(tags, tag)
			i = tag.End - 1
			continue
		}
		if afterComparison[i] && !isKeywordToken(tokens[i]) && (names == nil || !names.isName(tokens[i])) {
			tags = append(tags, models.EntityTag{
				Start: i, End: i + 1, Type: models.EntityValue,
				Literal: tokens[i], Value: tokens[i], Confidence: confidenceFreeValue,
			})
		}
	}
	return tags, nil
}

type sampleRef struct {
	value string
	refs  []models.FieldRef
}

func sampleIndex(s *models.Schema) map[string]*sampleRef {
	idx := make(map[string]*sampleRef)
	if s == nil {
		return idx
	}
	for _, t := range s.Tables {
		for _, c := range t.Columns {
			for _, v := range c.SampleValues {
				key := strings.Join(strings.Fields(strings.ToLower(v)), " ")
				if key == "" {
					continue
				}
				ref, ok := idx[key]
				if !ok {
					ref = &sampleRef{value: v}
					idx[key] = ref
				}
				ref.refs = append(ref.refs, models.FieldRef{Table: t.Name, Column: c.Name})
			}
		}
	}
	return idx
}

// matchSample finds the longest sample value starting at token i. A value
// shared by several columns is tagged without a column.
func matchSample(tokens []string, i int, samples map[string]*sampleRef) (models.EntityTag, bool) {
	for n := min(maxSampleValueWords, len(tokens)-i); n >= 1; n-- {
		literal := strings.Join(tokens[i:i+n], " ")
		ref, ok := samples[literal]
		if !ok {
			continue
		}
		tag := models.EntityTag{
			Start: i, End: i + n, Type: models.EntityValue,
			Literal: literal, Value: ref.value, Confidence: confidenceSampleValue,
		}
		if len(ref.refs) == 1 {
			tag.Table = ref.refs[0].Table
			tag.Column = ref.refs[0].Column
		}
		return tag, true
	}
	return models.EntityTag{}, false
}

// comparisonEnds marks the token positions directly after a comparison keyword.
func comparisonEnds(tokens []string) map[int]bool {
	out := make(map[int]bool)
	for i := 0; i < len(tokens); {
		k, ok := matchKeyword(tokens, i)
		if !ok {
			i++
			continue
		}
		if k.typ == models.EntityOperator && comparisonOperator(k.literal) {
			out[i+len(k.phrase)] = true
		}
		i += len(k.phrase)
	}
	return out
}

// parseNumber parses integers as int64 and anything else numeric as float64.
func parseNumber(s string) (any, bool) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	if !isNumber(s) {
		return nil, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, false
	}
	return f, true
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
