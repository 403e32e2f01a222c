package models

// Language is a BCP-47 style language tag assigned by language detection.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageChinese Language = "zh"
)

// TokenClass is a coarse lexical class used by skip-lists.
type TokenClass string

const (
	TokenWord     TokenClass = "word"
	TokenNumber   TokenClass = "number"
	TokenParticle TokenClass = "particle"
	TokenStopword TokenClass = "stopword"
)

// Token is a single unit of the tokenized question.
type Token struct {
	Text  string     `json:"text"`
	Class TokenClass `json:"class"`
}

// PreprocessedText is the normalized question plus its detected language and tokens.
type PreprocessedText struct {
	Raw        string   `json:"raw"`
	Normalized string   `json:"normalized"`
	Language   Language `json:"language"`
	Tokens     []Token  `json:"tokens"`
}

// TokenTexts returns the token strings in order.
func (p *PreprocessedText) TokenTexts() []string {
	out := make([]string, len(p.Tokens))
	for i, t := range p.Tokens {
		out[i] = t.Text
	}
	return out
}
