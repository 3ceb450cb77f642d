package chat

import "regexp"

// Refusal texts substituted for unsafe model output.
const (
	refusalUnsafe = "I apologize, but I cannot process that request. " +
		"Please rephrase your question about Metabase in a different way."
	refusalTooLong = "I apologize, but I cannot provide a response to that request. " +
		"Please ask a more specific question about Metabase."
)

// maxOutputLength flags unusually long responses, which can indicate the
// model leaked its prompt.
const maxOutputLength = 5000

var unsafeOutputPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)as an ai language model`),
	regexp.MustCompile(`(?i)i'm (an ai|chatgpt|gpt|claude)`),
	regexp.MustCompile(`(?i)system prompt`),
	regexp.MustCompile(`(?i)ignore previous`),
	regexp.MustCompile(`(?i)my instructions (are|were)`),
	regexp.MustCompile(`(?i)i (was|am) told to`),
	regexp.MustCompile(`(?i)the user asked me to`),
	regexp.MustCompile(`(?i)jailbreak`),
	regexp.MustCompile(`(?i)developer mode`),
	regexp.MustCompile(`(?i)god mode`),
	regexp.MustCompile(`(?i)pretend to be`),
	regexp.MustCompile(`(?i)role.*play`),
	regexp.MustCompile(`(?i)as requested.*ignore`),
	regexp.MustCompile(`(?i)reset.*instructions`),
	// Signs the model is repeating the system prompt back
	regexp.MustCompile(`(?i)metabase.*business intelligence.*analytics platform`),
	regexp.MustCompile(`(?i)context information.*keywords.*documentation`),
}

// ValidateOutput checks a model response for injection signs and prompt
// leakage. Returns (false, replacement) when the response must not be
// shown to the user.
func ValidateOutput(output string) (bool, string) {
	if output == "" {
		return false, "Invalid response generated."
	}

	for _, p := range unsafeOutputPatterns {
		if p.MatchString(output) {
			return false, refusalUnsafe
		}
	}

	if len(output) > maxOutputLength {
		return false, refusalTooLong
	}

	return true, output
}
