package extract

import (
	"context"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

// Confidence levels assigned by the schema matcher.
const (
	confidenceExact          = 1.0
	confidenceInflected      = 0.9
	confidenceAmbiguous      = 0.8
	confidenceAmbiguousInfl  = 0.7
	defaultMaxSchemaNameSize = 3
)

// SchemaMatcher tags mentions of table and column names. Multi-word mentions
// ("order items") match names joined by underscores or written together, and
// singular/plural variants match with slightly lower confidence.
type SchemaMatcher struct {
	maxWords int
}

var _ Extractor = (*SchemaMatcher)(nil)

func NewSchemaMatcher() *SchemaMatcher {
	return &SchemaMatcher{maxWords: defaultMaxSchemaNameSize}
}

func (m *SchemaMatcher) Name() string { return "schema" }

func (m *SchemaMatcher) Extract(_ context.Context, text *models.PreprocessedText, ec *Context) ([]models.EntityTag, error) {
	if ec == nil || ec.Schema == nil || len(ec.Schema.Tables) == 0 {
		return nil, nil
	}
	idx := newSchemaIndex(ec.Schema)
	tokens := text.TokenTexts()

	var tags []models.EntityTag
	for i := range tokens {
		for n := min(m.maxWords, len(tokens)-i); n >= 1; n-- {
			words := tokens[i : i+n]
			if n == 1 && isNumber(words[0]) {
				continue
			}
			literal := strings.Join(words, " ")
			for _, form := range nameForms(words) {
				if table, conf, ok := idx.table(form); ok {
					tags = append(tags, models.EntityTag{
						Start: i, End: i + n, Type: models.EntityTable,
						Literal: literal, Confidence: conf, Table: table,
					})
				}
				if ref, conf, ok := idx.column(form); ok {
					tags = append(tags, models.EntityTag{
						Start: i, End: i + n, Type: models.EntityColumn,
						Literal: literal, Confidence: conf, Table: ref.Table, Column: ref.Column,
					})
				}
			}
		}
	}
	return tags, nil
}

// nameForms lists the identifier spellings of a word sequence.
func nameForms(words []string) []string {
	if len(words) == 1 {
		// A canonical dictionary form may itself hold spaces.
		parts := strings.Fields(words[0])
		if len(parts) < 2 {
			return words
		}
		words = parts
	}
	return []string{strings.Join(words, "_"), strings.Join(words, "")}
}

// schemaIndex is a case-insensitive lookup over one schema.
type schemaIndex struct {
	schema  *models.Schema
	tables  map[string]string
	columns map[string][]models.FieldRef
}

func newSchemaIndex(s *models.Schema) *schemaIndex {
	idx := &schemaIndex{
		schema:  s,
		tables:  make(map[string]string, len(s.Tables)),
		columns: make(map[string][]models.FieldRef),
	}
	for _, t := range s.Tables {
		idx.tables[strings.ToLower(t.Name)] = t.Name
		for _, c := range t.Columns {
			key := strings.ToLower(c.Name)
			idx.columns[key] = append(idx.columns[key], models.FieldRef{Table: t.Name, Column: c.Name})
		}
	}
	return idx
}

func (idx *schemaIndex) table(form string) (string, float64, bool) {
	if name, ok := idx.tables[form]; ok {
		return name, confidenceExact, true
	}
	for _, v := range inflections(form) {
		if name, ok := idx.tables[v]; ok {
			return name, confidenceInflected, true
		}
	}
	return "", 0, false
}

// column resolves form to a column. When several tables share the column
// name the returned ref has no table and a lower confidence.
func (idx *schemaIndex) column(form string) (models.FieldRef, float64, bool) {
	refs, exact := idx.columns[form]
	if !exact {
		for _, v := range inflections(form) {
			if refs = idx.columns[v]; len(refs) > 0 {
				break
			}
		}
	}
	switch {
	case len(refs) == 0:
		return models.FieldRef{}, 0, false
	case len(refs) == 1 && exact:
		return refs[0], confidenceExact, true
	case len(refs) == 1:
		return refs[0], confidenceInflected, true
	case exact:
		return models.FieldRef{Column: refs[0].Column}, confidenceAmbiguous, true
	default:
		return models.FieldRef{Column: refs[0].Column}, confidenceAmbiguousInfl, true
	}
}

// isName reports whether the token is a table or column name in any form.
func (idx *schemaIndex) isName(token string) bool {
	if _, _, ok := idx.table(token); ok {
		return true
	}
	_, _, ok := idx.column(token)
	return ok
}

func inflections(form string) []string {
	var out []string
	if s := inflection.Singular(form); s != form {
		out = append(out, s)
	}
	if p := inflection.Plural(form); p != form {
		out = append(out, p)
	}
	return out
}
