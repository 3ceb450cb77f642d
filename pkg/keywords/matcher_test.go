package keywords

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paoliniluis/similarity/pkg/models"
)

func def(keyword, definition string) *models.KeywordDefinition {
	return &models.KeywordDefinition{Keyword: keyword, Definition: definition, IsActive: true}
}

func TestMatcher_Match(t *testing.T) {
	defs := []*models.KeywordDefinition{
		def("dashboard", "A collection of cards"),
		def("sandboxing", "Row-level data restriction"),
		def("question", "A saved query"),
	}
	m := newMatcher(defs, nil)

	t.Run("direct match", func(t *testing.T) {
		matched := m.match("My dashboard is broken")
		require.Len(t, matched, 1)
		assert.Equal(t, "dashboard", matched[0].Keyword)
	})

	t.Run("case insensitive", func(t *testing.T) {
		matched := m.match("SANDBOXING does not work")
		require.Len(t, matched, 1)
		assert.Equal(t, "sandboxing", matched[0].Keyword)
	})

	t.Run("plural form matches", func(t *testing.T) {
		matched := m.match("All my dashboards disappeared")
		require.Len(t, matched, 1)
		assert.Equal(t, "dashboard", matched[0].Keyword)
	})

	t.Run("each keyword reported once", func(t *testing.T) {
		matched := m.match("a dashboard of dashboards with questions")
		require.Len(t, matched, 2)
		assert.Equal(t, "dashboard", matched[0].Keyword)
		assert.Equal(t, "question", matched[1].Keyword)
	})

	t.Run("no match", func(t *testing.T) {
		assert.Empty(t, m.match("unrelated text"))
	})
}

func TestMatcher_SynonymsResolveToCanonical(t *testing.T) {
	defs := []*models.KeywordDefinition{
		def("question", "A saved query"),
	}
	synonyms := map[string][]string{
		"question": {"saved query", "card"},
	}
	m := newMatcher(defs, synonyms)

	matched := m.match("my card shows the wrong total")
	require.Len(t, matched, 1)
	assert.Equal(t, "question", matched[0].Keyword)

	// Canonical and synonym in the same text still yield one hit.
	matched = m.match("the card behind this question")
	require.Len(t, matched, 1)
}

func TestBuildInjectionBlock(t *testing.T) {
	t.Run("empty match yields empty block", func(t *testing.T) {
		assert.Empty(t, BuildInjectionBlock(nil))
	})

	t.Run("grouped by category", func(t *testing.T) {
		extracted := CategoryLLMExtracted
		matched := []*models.KeywordDefinition{
			def("dashboard", "A collection of cards"),
			{Keyword: "serialization", Definition: "Export of app state", Category: &extracted, IsActive: true},
		}

		block := BuildInjectionBlock(matched)
		assert.Contains(t, block, injectionHeader)
		assert.Contains(t, block, "--- Glossary ---")
		assert.Contains(t, block, "--- "+CategoryLLMExtracted+" ---")
		assert.Contains(t, block, "• dashboard: A collection of cards")
		assert.Contains(t, block, "• serialization: Export of app state")
		assert.Contains(t, block, injectionFooter)
	})
}

func TestInjectIntoText(t *testing.T) {
	matched := []*models.KeywordDefinition{def("dashboard", "A collection of cards")}

	t.Run("prepends block", func(t *testing.T) {
		got := InjectIntoText("my dashboard is slow", matched)
		assert.True(t, len(got) > len("my dashboard is slow"))
		assert.Contains(t, got, injectionHeader)
		assert.True(t, got[len(got)-len("my dashboard is slow"):] == "my dashboard is slow")
	})

	t.Run("idempotent", func(t *testing.T) {
		once := InjectIntoText("my dashboard is slow", matched)
		twice := InjectIntoText(once, matched)
		assert.Equal(t, once, twice)
	})

	t.Run("no matches passes through", func(t *testing.T) {
		assert.Equal(t, "plain text", InjectIntoText("plain text", nil))
	})
}
