package batch

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/paoliniluis/similarity/pkg/prompts"
	"github.com/paoliniluis/similarity/pkg/repositories"
)

// Batch operations.
const (
	OpSummarize            = "summarize"
	OpCreateQuestions      = "create-questions"
	OpQuestionsAndConcepts = "create-questions-and-concepts"
)

// Tables eligible for batch processing.
var Tables = []string{"issues", "discourse_posts", "metabase_docs"}

// entityBodyLimit truncates entity bodies to keep request tokens bounded.
const entityBodyLimit = 2000

// truncateBody cuts on a rune boundary so entity text stays valid UTF-8.
func truncateBody(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// RequestLine is one JSONL line of a batch request file.
type RequestLine struct {
	CustomID string      `json:"custom_id"`
	Method   string      `json:"method"`
	URL      string      `json:"url"`
	Body     RequestBody `json:"body"`
}

// RequestBody is the chat completion payload of a batch request.
type RequestBody struct {
	Model          string           `json:"model"`
	Messages       []RequestMessage `json:"messages"`
	MaxTokens      int              `json:"max_tokens"`
	Temperature    float32          `json:"temperature"`
	ResponseFormat ResponseFormat   `json:"response_format"`
}

// RequestMessage is one chat message of a batch request.
type RequestMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat forces JSON output from the model.
type ResponseFormat struct {
	Type string `json:"type"`
}

// BuildCustomID encodes the operation, table, batch index and member entity
// ids into the request's custom id, so reconciliation can validate results
// against the submitted entities.
func BuildCustomID(operation, table string, batchNum int, ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("efficient_%s_%s_batch_%d_%s", operation, table, batchNum, strings.Join(parts, ","))
}

// ParseCustomID recovers the entity ids from a custom id. The trailing
// segment carries the comma-separated ids.
func ParseCustomID(customID string) ([]int64, error) {
	parts := strings.Split(customID, "_")
	if len(parts) < 5 {
		return nil, fmt.Errorf("invalid custom_id format: %q", customID)
	}

	idsPart := parts[len(parts)-1]
	var ids []int64
	for _, s := range strings.Split(idsPart, ",") {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid entity id %q in custom_id %q", s, customID)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no entity ids in custom_id %q", customID)
	}
	return ids, nil
}

// FormatEntities renders a batch of candidates into the user message body.
// Each table exposes its most useful fields; bodies are truncated.
func FormatEntities(table string, entities []repositories.BatchCandidate) string {
	formatted := make([]string, len(entities))
	for i, e := range entities {
		body := truncateBody(e.Body, entityBodyLimit)

		switch table {
		case "issues":
			formatted[i] = fmt.Sprintf("ID: %d\nTitle: %s\nState: %s\nLabels: %s\nBody: %s\n",
				e.ID, e.Title, e.State, strings.Join(e.Labels, ", "), body)
		case "discourse_posts":
			formatted[i] = fmt.Sprintf("ID: %d\nConversation: %s\n", e.ID, body)
		case "metabase_docs":
			formatted[i] = fmt.Sprintf("ID: %d\nContent: %s\n", e.ID, body)
		default:
			formatted[i] = fmt.Sprintf("ID: %d\n%s\n", e.ID, body)
		}
	}
	return strings.Join(formatted, "\n---\n")
}

// chunk splits candidates into batches of at most size entities.
func chunk(candidates []repositories.BatchCandidate, size int) [][]repositories.BatchCandidate {
	var batches [][]repositories.BatchCandidate
	for start := 0; start < len(candidates); start += size {
		end := start + size
		if end > len(candidates) {
			end = len(candidates)
		}
		batches = append(batches, candidates[start:end])
	}
	return batches
}

// BuildRequests turns candidates into batch request lines. keywordContext,
// when non-empty, is appended to the platform context ahead of the task
// prompt so the model sees relevant terminology.
func BuildRequests(
	operation, table, model string,
	candidates []repositories.BatchCandidate,
	entitiesPerBatch int,
	keywordContextFor func(entityText string) string,
) ([]RequestLine, error) {
	taskPrompt, err := prompts.ForOperation(operation, table)
	if err != nil {
		return nil, err
	}

	maxTokens := 3000
	if operation == OpSummarize {
		maxTokens = 2000
	}

	var lines []RequestLine
	for batchNum, entityBatch := range chunk(candidates, entitiesPerBatch) {
		formatted := FormatEntities(table, entityBatch)

		systemPrompt := prompts.BaseGlobalPrompt
		if keywordContextFor != nil {
			if kwContext := keywordContextFor(formatted); kwContext != "" {
				systemPrompt += "\n\n" + kwContext
			}
		}
		systemPrompt += "\n\n" + taskPrompt

		ids := make([]int64, len(entityBatch))
		for i, e := range entityBatch {
			ids[i] = e.ID
		}

		lines = append(lines, RequestLine{
			CustomID: BuildCustomID(operation, table, batchNum, ids),
			Method:   "POST",
			URL:      "/v1/chat/completions",
			Body: RequestBody{
				Model: model,
				Messages: []RequestMessage{
					{Role: "system", Content: systemPrompt},
					{Role: "user", Content: fmt.Sprintf("Please process the following %d %s:\n\n%s", len(entityBatch), table, formatted)},
				},
				MaxTokens:      maxTokens,
				Temperature:    0.1,
				ResponseFormat: ResponseFormat{Type: "json_object"},
			},
		})
	}
	return lines, nil
}
