package nlp

import (
	"unicode"

	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

// DefaultLanguage is returned for empty input and for ties.
const DefaultLanguage = models.LanguageEnglish

// DetectLanguage classifies text by counting Han ideographs against Latin
// letters. The majority script wins; a tie or empty input yields DefaultLanguage.
func DetectLanguage(text string) models.Language {
	var han, latin int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			han++
		case unicode.Is(unicode.Latin, r):
			latin++
		}
	}
	switch {
	case han > latin:
		return models.LanguageChinese
	case latin > han:
		return models.LanguageEnglish
	default:
		return DefaultLanguage
	}
}
