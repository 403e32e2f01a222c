package nlp

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

// ErrDictionarySealed is returned when custom terms are added after the
// shared dictionary has been built.
var ErrDictionarySealed = errors.New("custom term dictionary is sealed")

// Term is a dictionary entry. Canonical, when set, replaces the surface form
// in the token stream so that, for example, a Chinese table alias can be
// matched against the English schema name.
type Term struct {
	Text      string            `yaml:"text"`
	Class     models.TokenClass `yaml:"class"`
	Canonical string            `yaml:"canonical"`
}

// Dictionary is an immutable lexicon used by the lexicon segmenter.
type Dictionary struct {
	terms  map[string]Term
	maxLen int // longest entry, in runes
}

// NewDictionary builds a dictionary from the built-in lexicon followed by
// extra; later entries override earlier ones with the same text.
func NewDictionary(extra ...Term) *Dictionary {
	d := &Dictionary{terms: make(map[string]Term, len(builtinLexicon)+len(extra))}
	for _, t := range builtinLexicon {
		d.add(t)
	}
	for _, t := range extra {
		d.add(t)
	}
	return d
}

func (d *Dictionary) add(t Term) {
	t.Text = Normalize(t.Text)
	if t.Text == "" {
		return
	}
	if t.Class == "" {
		t.Class = models.TokenWord
	}
	// Canonical forms are schema identifiers; only case is folded so that
	// underscores survive.
	t.Canonical = strings.ToLower(strings.TrimSpace(t.Canonical))
	d.terms[t.Text] = t
	if n := utf8.RuneCountInString(t.Text); n > d.maxLen {
		d.maxLen = n
	}
}

// Lookup returns the entry for text.
func (d *Dictionary) Lookup(text string) (Term, bool) {
	t, ok := d.terms[text]
	return t, ok
}

// MaxLen is the length in runes of the longest entry.
func (d *Dictionary) MaxLen() int {
	return d.maxLen
}

// Len is the number of entries.
func (d *Dictionary) Len() int {
	return len(d.terms)
}

var (
	sharedMu      sync.Mutex
	sharedPending []Term
	sharedSealed  bool
	sharedOnce    sync.Once
	sharedDict    *Dictionary
)

// AddCustomTerms queues terms for the process-wide dictionary. It must be
// called during startup, before the first call to SharedDictionary.
func AddCustomTerms(terms ...Term) error {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedSealed {
		return ErrDictionarySealed
	}
	sharedPending = append(sharedPending, terms...)
	return nil
}

// SharedDictionary returns the process-wide dictionary, building it on first
// use. After that it is read-only and safe for concurrent use.
func SharedDictionary() *Dictionary {
	sharedOnce.Do(func() {
		sharedMu.Lock()
		defer sharedMu.Unlock()
		sharedSealed = true
		sharedDict = NewDictionary(sharedPending...)
		sharedPending = nil
	})
	return sharedDict
}

type termsFile struct {
	Terms []Term `yaml:"terms"`
}

// LoadTermsFile reads custom terms from a YAML file of the form
//
//	terms:
//	  - text: 订单
//	    canonical: orders
func LoadTermsFile(path string) ([]Term, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read terms file: %w", err)
	}
	var f termsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse terms file %s: %w", path, err)
	}
	for i, t := range f.Terms {
		if t.Text == "" {
			return nil, fmt.Errorf("terms file %s: entry %d has no text", path, i)
		}
	}
	return f.Terms, nil
}
