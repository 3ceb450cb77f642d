// Package keywords maintains the curated vocabulary and injects relevant
// terminology into model-bound text.
package keywords

import (
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/paoliniluis/similarity/pkg/models"
)

// Keyword categories. Glossary entries are human-curated; LLMExtracted
// entries come from batch concept extraction and may be merged over time.
const (
	CategoryGlossary     = "Glossary"
	CategoryLLMExtracted = "LLM_Extracted"
)

// matchTerms returns the lowercased forms a keyword matches on: the keyword
// itself and its plural.
func matchTerms(keyword string) []string {
	lower := strings.ToLower(keyword)
	terms := []string{lower}
	if plural := strings.ToLower(inflection.Plural(keyword)); plural != lower {
		terms = append(terms, plural)
	}
	return terms
}

// vocabularyEntry is one matchable term with the keyword it resolves to.
// Synonym words resolve to their canonical keyword.
type vocabularyEntry struct {
	term      string
	canonical string
}

// matcher performs case-insensitive substring matching of vocabulary terms
// against free text.
type matcher struct {
	entries  []vocabularyEntry
	keywords map[string]*models.KeywordDefinition
}

func newMatcher(defs []*models.KeywordDefinition, synonyms map[string][]string) *matcher {
	m := &matcher{
		keywords: make(map[string]*models.KeywordDefinition, len(defs)),
	}
	for _, def := range defs {
		m.keywords[def.Keyword] = def
		for _, term := range matchTerms(def.Keyword) {
			m.entries = append(m.entries, vocabularyEntry{term: term, canonical: def.Keyword})
		}
		for _, word := range synonyms[def.Keyword] {
			for _, term := range matchTerms(word) {
				m.entries = append(m.entries, vocabularyEntry{term: term, canonical: def.Keyword})
			}
		}
	}
	return m
}

// match returns the keyword definitions whose terms occur in text, each
// keyword at most once, in vocabulary order.
func (m *matcher) match(text string) []*models.KeywordDefinition {
	lowered := strings.ToLower(text)

	seen := make(map[string]bool)
	var matched []*models.KeywordDefinition
	for _, entry := range m.entries {
		if seen[entry.canonical] {
			continue
		}
		if strings.Contains(lowered, entry.term) {
			seen[entry.canonical] = true
			matched = append(matched, m.keywords[entry.canonical])
		}
	}
	return matched
}
