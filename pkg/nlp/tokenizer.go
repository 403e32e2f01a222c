package nlp

import (
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

// SkipList removes tokens by class or by exact text. Filtering never
// reorders the remaining tokens.
type SkipList struct {
	classes map[models.TokenClass]bool
	words   map[string]bool
}

// NewSkipList creates a skip-list dropping the given token classes.
func NewSkipList(classes ...models.TokenClass) SkipList {
	s := SkipList{classes: make(map[models.TokenClass]bool), words: make(map[string]bool)}
	for _, c := range classes {
		s.classes[c] = true
	}
	return s
}

// WithWords returns a copy that additionally drops the given words.
func (s SkipList) WithWords(words ...string) SkipList {
	out := NewSkipList()
	for c := range s.classes {
		out.classes[c] = true
	}
	for w := range s.words {
		out.words[w] = true
	}
	for _, w := range words {
		out.words[strings.ToLower(w)] = true
	}
	return out
}

// Skip reports whether t is filtered out.
func (s SkipList) Skip(t models.Token) bool {
	return s.classes[t.Class] || s.words[t.Text]
}

// DefaultSkipList drops particles and request fillers.
func DefaultSkipList() SkipList {
	return NewSkipList(models.TokenParticle, models.TokenStopword)
}

// Tokenizer dispatches to a language-specific segmenter and applies a
// skip-list. It is safe for concurrent use.
type Tokenizer struct {
	segmenters map[models.Language]Segmenter
	fallback   Segmenter
	skip       SkipList
	logger     *zap.Logger
}

// TokenizerOption configures a Tokenizer.
type TokenizerOption func(*Tokenizer)

// WithSegmenter registers seg for lang, replacing any default.
func WithSegmenter(lang models.Language, seg Segmenter) TokenizerOption {
	return func(t *Tokenizer) { t.segmenters[lang] = seg }
}

// WithSkipList replaces the default skip-list.
func WithSkipList(s SkipList) TokenizerOption {
	return func(t *Tokenizer) { t.skip = s }
}

// NewTokenizer creates a tokenizer with whitespace segmentation for English
// and lexicon segmentation over the shared dictionary for Chinese.
func NewTokenizer(logger *zap.Logger, opts ...TokenizerOption) *Tokenizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tokenizer{
		segmenters: map[models.Language]Segmenter{
			models.LanguageEnglish: WhitespaceSegmenter{},
		},
		fallback: WhitespaceSegmenter{},
		skip:     DefaultSkipList(),
		logger:   logger.Named("tokenizer"),
	}
	for _, opt := range opts {
		opt(t)
	}
	if _, ok := t.segmenters[models.LanguageChinese]; !ok {
		t.segmenters[models.LanguageChinese] = NewLexiconSegmenter(nil)
	}
	return t
}

// Tokenize splits normalized text. An empty lang is detected from the text.
func (t *Tokenizer) Tokenize(text string, lang models.Language) []models.Token {
	if lang == "" {
		lang = DetectLanguage(text)
	}
	seg, ok := t.segmenters[lang]
	if !ok {
		t.logger.Debug("No segmenter for language, using whitespace", zap.String("language", string(lang)))
		seg = t.fallback
	}
	raw := seg.Segment(text)
	tokens := make([]models.Token, 0, len(raw))
	for _, tok := range raw {
		if !t.skip.Skip(tok) {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// Preprocess runs normalization, language detection and tokenization.
func (t *Tokenizer) Preprocess(raw string) *models.PreprocessedText {
	normalized := Normalize(raw)
	lang := DetectLanguage(normalized)
	return &models.PreprocessedText{
		Raw:        raw,
		Normalized: normalized,
		Language:   lang,
		Tokens:     t.Tokenize(normalized, lang),
	}
}
