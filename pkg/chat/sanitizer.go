// Package chat implements the guarded RAG chat flow: input sanitization,
// context retrieval, model interaction, output validation and a full
// audit trail.
package chat

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/corazawaf/libinjection-go"
)

// maxInputLength clamps chat input before any other processing.
const maxInputLength = 2000

var filterPatterns = []struct {
	re          *regexp.Regexp
	replacement string
}{
	// Direct instruction manipulation
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+(instructions?|prompts?)`), "[FILTERED]"},
	{regexp.MustCompile(`(?i)disregard\s+(all\s+)?(above|previous|prior)`), "[FILTERED]"},
	{regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|above)`), "[FILTERED]"},
	{regexp.MustCompile(`(?i)reset\s+(your\s+)?instructions?`), "[FILTERED]"},
	{regexp.MustCompile(`(?i)change\s+(your\s+)?instructions?`), "[FILTERED]"},

	// Role manipulation
	{regexp.MustCompile(`(?i)(you\s+are\s+now|act\s+as|pretend\s+to\s+be)`), "[FILTERED]"},
	{regexp.MustCompile(`(?i)play\s+the\s+role\s+of`), "[FILTERED]"},
	{regexp.MustCompile(`(?i)simulate\s+(being|a)`), "[FILTERED]"},

	// System/assistant impersonation
	{regexp.MustCompile(`(?i)(system|assistant|ai):\s*`), "[FILTERED]: "},

	// Code injection attempts
	{regexp.MustCompile("```[\\s\\S]*?```"), "[CODE_BLOCK_REMOVED]"},
	{regexp.MustCompile(`(?i)<script[\s\S]*?</script>`), "[SCRIPT_REMOVED]"},
	{regexp.MustCompile(`(?i)javascript:`), "[JS_REMOVED]"},

	// Prompt leakage attempts
	{regexp.MustCompile(`(?i)(show|reveal|display|print)\s+(your\s+)?(prompt|instructions?|system\s+message)`), "[FILTERED]"},
	{regexp.MustCompile(`(?i)what\s+(are\s+)?your\s+(initial\s+)?instructions?`), "[FILTERED]"},

	// Jailbreak attempts
	{regexp.MustCompile(`(?i)jailbreak`), "[FILTERED]"},
	{regexp.MustCompile(`(?i)developer\s+mode`), "[FILTERED]"},
	{regexp.MustCompile(`(?i)god\s+mode`), "[FILTERED]"},

	// Content policy bypass
	{regexp.MustCompile(`(?i)ignore\s+(content\s+)?policy`), "[FILTERED]"},
	{regexp.MustCompile(`(?i)bypass\s+(safety\s+)?filter`), "[FILTERED]"},
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	dashRun       = regexp.MustCompile(`---+`)
	equalsRun     = regexp.MustCompile(`===+`)
)

// SanitizeResult reports what sanitization did to the input.
type SanitizeResult struct {
	Text         string
	Modified     bool
	SQLInjection bool
	XSS          bool
}

// Sanitize hardens user input before it reaches the model: length clamp,
// HTML escaping, prompt-injection pattern filtering, whitespace and
// delimiter normalization. SQL injection and XSS fingerprints are detected
// and reported but do not block the request on their own.
func Sanitize(input string) SanitizeResult {
	original := input

	if sqli, _ := libinjection.IsSQLi(input); sqli {
		return sanitizeText(original, SanitizeResult{SQLInjection: true})
	}
	if libinjection.IsXSS(input) {
		return sanitizeText(original, SanitizeResult{XSS: true})
	}
	return sanitizeText(original, SanitizeResult{})
}

func sanitizeText(input string, result SanitizeResult) SanitizeResult {
	original := input

	if len(input) > maxInputLength {
		cut := maxInputLength
		for cut > 0 && !utf8.RuneStart(input[cut]) {
			cut--
		}
		input = input[:cut]
	}

	input = html.EscapeString(input)

	for _, p := range filterPatterns {
		input = p.re.ReplaceAllString(input, p.replacement)
	}

	input = whitespaceRun.ReplaceAllString(strings.TrimSpace(input), " ")
	input = dashRun.ReplaceAllString(input, "-")
	input = equalsRun.ReplaceAllString(input, "=")

	result.Text = input
	result.Modified = input != original || result.SQLInjection || result.XSS
	return result
}
