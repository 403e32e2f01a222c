package nlp

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

// Segmenter splits normalized text into tokens for one language family.
// Implementations hold no per-call state.
type Segmenter interface {
	Segment(text string) []models.Token
}

// WhitespaceSegmenter splits space-delimited languages on whitespace.
type WhitespaceSegmenter struct{}

var _ Segmenter = WhitespaceSegmenter{}

func (WhitespaceSegmenter) Segment(text string) []models.Token {
	fields := strings.Fields(text)
	tokens := make([]models.Token, 0, len(fields))
	for _, f := range fields {
		tokens = append(tokens, models.Token{Text: f, Class: classifyWord(f)})
	}
	return tokens
}

func classifyWord(w string) models.TokenClass {
	if isNumber(w) {
		return models.TokenNumber
	}
	if englishStopwords[w] {
		return models.TokenStopword
	}
	return models.TokenWord
}

func isNumber(w string) bool {
	_, err := strconv.ParseFloat(w, 64)
	return err == nil && strings.IndexFunc(w, unicode.IsLetter) < 0
}

// LexiconSegmenter segments ideographic text by forward maximum matching
// against a dictionary. Runs of non-ideographic characters are split on
// whitespace and classified like English words.
type LexiconSegmenter struct {
	dict *Dictionary
}

var _ Segmenter = (*LexiconSegmenter)(nil)

// NewLexiconSegmenter creates a segmenter over dict. A nil dict selects the
// shared process-wide dictionary.
func NewLexiconSegmenter(dict *Dictionary) *LexiconSegmenter {
	if dict == nil {
		dict = SharedDictionary()
	}
	return &LexiconSegmenter{dict: dict}
}

func (s *LexiconSegmenter) Segment(text string) []models.Token {
	runes := []rune(text)
	var tokens []models.Token
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.Is(unicode.Han, r):
			tok, n := s.longestMatch(runes[i:])
			tokens = append(tokens, tok)
			i += n
		default:
			j := i
			for j < len(runes) && !unicode.IsSpace(runes[j]) && !unicode.Is(unicode.Han, runes[j]) {
				j++
			}
			w := string(runes[i:j])
			tokens = append(tokens, models.Token{Text: w, Class: classifyWord(w)})
			i = j
		}
	}
	return tokens
}

// longestMatch returns the token for the longest dictionary entry that
// prefixes runes, or a single-rune word when nothing matches.
func (s *LexiconSegmenter) longestMatch(runes []rune) (models.Token, int) {
	limit := min(s.dict.MaxLen(), hanRunLength(runes))
	for n := limit; n > 1; n-- {
		if tok, ok := s.token(string(runes[:n])); ok {
			return tok, n
		}
	}
	if tok, ok := s.token(string(runes[:1])); ok {
		return tok, 1
	}
	return models.Token{Text: string(runes[:1]), Class: models.TokenWord}, 1
}

func (s *LexiconSegmenter) token(text string) (models.Token, bool) {
	term, ok := s.dict.Lookup(text)
	if !ok {
		return models.Token{}, false
	}
	if term.Canonical != "" {
		text = term.Canonical
	}
	return models.Token{Text: text, Class: term.Class}, true
}

func hanRunLength(runes []rune) int {
	n := 0
	for n < len(runes) && unicode.Is(unicode.Han, runes[n]) {
		n++
	}
	return n
}
