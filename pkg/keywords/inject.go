package keywords

import (
	"sort"
	"strings"

	"github.com/paoliniluis/similarity/pkg/models"
)

// injectionHeader marks an already-enriched text. Its presence makes
// injection idempotent.
const injectionHeader = "IMPORTANT CONTEXT - Relevant Specialized Terminology:"

const injectionFooter = "Use these definitions to better understand the user's question and provide accurate, contextual answers."

// BuildInjectionBlock renders matched keywords as a terminology block,
// grouped by category. Returns "" when nothing matched.
func BuildInjectionBlock(matched []*models.KeywordDefinition) string {
	if len(matched) == 0 {
		return ""
	}

	byCategory := make(map[string][]*models.KeywordDefinition)
	var categories []string
	for _, kw := range matched {
		category := CategoryGlossary
		if kw.Category != nil && *kw.Category != "" {
			category = *kw.Category
		}
		if _, ok := byCategory[category]; !ok {
			categories = append(categories, category)
		}
		byCategory[category] = append(byCategory[category], kw)
	}
	sort.Strings(categories)

	var b strings.Builder
	b.WriteString(injectionHeader)
	b.WriteString("\n")
	for _, category := range categories {
		b.WriteString("\n--- ")
		b.WriteString(category)
		b.WriteString(" ---\n")
		for _, kw := range byCategory[category] {
			b.WriteString("• ")
			b.WriteString(kw.Keyword)
			b.WriteString(": ")
			b.WriteString(kw.Definition)
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(injectionFooter)
	return b.String()
}

// InjectIntoText prepends the terminology block for keywords matched in
// text. Text already carrying the block passes through unchanged.
func InjectIntoText(text string, matched []*models.KeywordDefinition) string {
	if strings.Contains(text, injectionHeader) {
		return text
	}
	block := BuildInjectionBlock(matched)
	if block == "" {
		return text
	}
	return block + "\n\n" + text
}
