package nlp

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize case-folds text, applies NFKC, turns punctuation into single
// separators, collapses whitespace and finally removes any remaining rune
// that is not a letter, digit, mark or space. A period between two digits is
// kept so decimal literals survive. Empty input is returned unchanged.
//
// Normalize is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(text string) string {
	if text == "" {
		return text
	}

	s := strings.ToLower(text)
	s = norm.NFKC.String(s)
	// NFKC can produce upper-case forms (fullwidth letters, some compatibility
	// ligatures), so fold again.
	s = strings.ToLower(s)
	s, _ = replaceRunes(s, unicode.IsPunct, true)
	s = collapseSpace(s)
	s, removed := replaceRunes(s, isResidual, false)
	if removed {
		// A dropped symbol can leave a base letter next to its combining mark.
		s = norm.NFKC.String(s)
	}
	return collapseSpace(s)
}

// replaceRunes substitutes a space for every rune matching match, or drops it
// when sep is false. A period sitting between two digits is always kept. The
// second result reports whether any rune matched.
func replaceRunes(s string, match func(rune) bool, sep bool) (string, bool) {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	matched := false
	for i, r := range runes {
		if r == '.' && isDecimalPoint(runes, i) {
			b.WriteRune(r)
			continue
		}
		if match(r) {
			matched = true
			if sep {
				b.WriteByte(' ')
			}
			continue
		}
		b.WriteRune(r)
	}
	return b.String(), matched
}

func isDecimalPoint(runes []rune, i int) bool {
	return i > 0 && i < len(runes)-1 && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1])
}

func isResidual(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsMark(r) && !unicode.IsSpace(r)
}

// collapseSpace trims and folds any whitespace run into a single ASCII space.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
