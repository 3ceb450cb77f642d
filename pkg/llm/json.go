package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ExtractJSON pulls the first balanced JSON object or array out of a model
// response, skipping any prose or markdown fences around it. Returns the
// input unchanged when no JSON payload is found.
func ExtractJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := -1
	var open, close byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			open = s[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start == -1 {
		return s
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}

// ParseJSONResponse extracts and unmarshals a JSON payload from a model
// response into T.
func ParseJSONResponse[T any](s string) (T, error) {
	var result T
	payload := ExtractJSON(s)
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return result, fmt.Errorf("failed to parse model response as JSON: %w", err)
	}
	return result, nil
}

// Matches top-level objects that may contain one level of nesting. Enough
// to salvage items from a truncated or malformed array response.
var objectFragmentPattern = regexp.MustCompile(`\{(?:[^{}]|(?:\{[^{}]*\}))*\}`)

// RecoverObjects scans a broken response for object-shaped fragments and
// returns those that unmarshal cleanly. Used when strict parsing fails.
func RecoverObjects(s string) []json.RawMessage {
	var recovered []json.RawMessage
	for _, fragment := range objectFragmentPattern.FindAllString(s, -1) {
		if json.Valid([]byte(fragment)) {
			recovered = append(recovered, json.RawMessage(fragment))
		}
	}
	return recovered
}

// LooksTruncated reports whether a model response was likely cut off
// mid-generation. Truncated payloads are skipped rather than half-parsed.
func LooksTruncated(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return true
	}
	return strings.HasSuffix(trimmed, "...") ||
		strings.HasSuffix(trimmed, `"`) && !json.Valid([]byte(trimmed)) ||
		strings.HasSuffix(trimmed, ",")
}
