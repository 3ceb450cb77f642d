package models

import (
	"fmt"
	"time"
)

// EmbeddingDim is the fixed dimensionality of every embedding column.
// Vectors of any other length are rejected at write time.
const EmbeddingDim = 768

// SourceType tags the owning table of a polymorphic reference (questions,
// chat session entities). Values are stored verbatim in the database.
type SourceType string

const (
	SourceIssue         SourceType = "ISSUE"
	SourceDiscoursePost SourceType = "DISCOURSE_POST"
	SourceMetabaseDoc   SourceType = "METABASE_DOC"
)

// SourceTypeForTable maps a batch table name to its SourceType tag.
func SourceTypeForTable(table string) (SourceType, error) {
	switch table {
	case "issues":
		return SourceIssue, nil
	case "discourse_posts":
		return SourceDiscoursePost, nil
	case "metabase_docs":
		return SourceMetabaseDoc, nil
	default:
		return "", fmt.Errorf("unknown table %q", table)
	}
}

// Issue is a GitHub issue with its enrichment artifacts.
// Embedding columns (title_embedding, issue_embedding, summary_embedding)
// live in the same row and are managed by the embedding worker.
type Issue struct {
	ID              int64
	Number          int
	Title           string
	Body            string
	State           string
	Labels          []string
	UserLogin       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LLMSummary      *string
	ReportedVersion *string
	StackTraceFile  *string
	FixedInVersion  *string
	TokenCount      *int
}

// DiscoursePost is a forum topic with its combined conversation text.
type DiscoursePost struct {
	ID           int64
	TopicID      int
	Title        string
	Slug         string
	Conversation string
	CreatedAt    time.Time
	LLMSummary   *string
	TopicKind    *string // bug | help | feature_request | other
	Solution     *string
	Version      *string
	ReferenceURL *string
	TokenCount   *int
}

// MetabaseDoc is a crawled documentation page.
type MetabaseDoc struct {
	ID         int64
	URL        string
	Markdown   string
	LLMSummary *string
	TokenCount *int
}

// Question is an extracted Q&A pair holding a weak (SourceType, SourceID)
// reference to the entity it was generated from.
type Question struct {
	ID         int64
	SourceType SourceType
	SourceID   int64
	Question   string
	Answer     string
}

// KeywordDefinition is a curated vocabulary entry.
type KeywordDefinition struct {
	ID         int64
	Keyword    string
	Definition string
	Category   *string
	IsActive   bool
}

// Synonym maps an alternative word to its canonical keyword.
type Synonym struct {
	ID        int64
	Word      string
	SynonymOf string
}

// APIKey is an opaque credential validated on every request.
type APIKey struct {
	ID          int64
	Key         string
	Description string
	CreatedAt   time.Time
}

// ChatSession records one RAG chat exchange end to end: the raw request,
// the fully assembled prompt, the (possibly replaced) response, and usage.
type ChatSession struct {
	ID             int64
	ChatID         int64
	UserRequest    string
	Prompt         string
	Sources        []string
	Response       string
	TokensSent     int
	TokensReceived int
	CacheHit       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ChatSessionEntity records one retrieved context item for a chat session.
// SimilarityScore is nil for keyword entities.
type ChatSessionEntity struct {
	ID              int64
	ChatSessionID   int64
	EntityType      string // metabase_doc | question_answer | keyword
	EntityID        int64
	EntityURL       *string
	SimilarityScore *float64
}

// Batch process lifecycle statuses. Provider-reported statuses are stored
// verbatim; "error" and "processing_failed" are local terminal buckets.
const (
	BatchStatusCreated          = "created"
	BatchStatusSent             = "sent"
	BatchStatusInProgress       = "in_progress"
	BatchStatusFinalizing       = "finalizing"
	BatchStatusCompleted        = "completed"
	BatchStatusFailed           = "failed"
	BatchStatusExpired          = "expired"
	BatchStatusCancelled        = "cancelled"
	BatchStatusProcessingFailed = "processing_failed"
	BatchStatusError            = "error"
)

// BatchProcess tracks one asynchronous provider batch job.
type BatchProcess struct {
	ID             int64
	BatchID        string
	OperationType  string // summarize | create-questions | create-questions-and-concepts
	TableName      string // issues | discourse_posts | metabase_docs
	TotalRequests  int
	InputFilePath  string
	OutputFilePath *string
	Status         string
	SentAt         *time.Time
	ReceivedAt     *time.Time
	ErrorMessage   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PendingBatchStatuses are the statuses the batch monitor keeps polling.
var PendingBatchStatuses = []string{BatchStatusSent, BatchStatusInProgress, BatchStatusFinalizing}

// legalBatchSuccessors encodes the batch state machine. A status absent from
// the map is terminal.
var legalBatchSuccessors = map[string][]string{
	BatchStatusCreated:    {BatchStatusSent, BatchStatusError},
	BatchStatusSent:       {BatchStatusInProgress, BatchStatusFinalizing, BatchStatusCompleted, BatchStatusFailed, BatchStatusExpired, BatchStatusCancelled, BatchStatusError},
	BatchStatusInProgress: {BatchStatusInProgress, BatchStatusFinalizing, BatchStatusCompleted, BatchStatusFailed, BatchStatusExpired, BatchStatusCancelled, BatchStatusError},
	BatchStatusFinalizing: {BatchStatusFinalizing, BatchStatusCompleted, BatchStatusFailed, BatchStatusExpired, BatchStatusCancelled, BatchStatusError},
	BatchStatusCompleted:  {BatchStatusProcessingFailed},
}

// IsLegalBatchTransition reports whether moving from one status to another
// respects the batch state machine. Self-transitions of pending statuses are
// legal (the provider may report the same status across polls).
func IsLegalBatchTransition(from, to string) bool {
	if from == to {
		for _, s := range PendingBatchStatuses {
			if from == s {
				return true
			}
		}
		return false
	}
	for _, next := range legalBatchSuccessors[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SimilarIssue is one row of an issue similarity response.
type SimilarIssue struct {
	Number          int      `json:"number"`
	Title           string   `json:"title"`
	URL             string   `json:"url"`
	State           string   `json:"state"`
	SimilarityScore float64  `json:"similarity_score"`
	RerankerScore   *float64 `json:"reranker_score,omitempty"`
}

// SimilarDoc is one row of a documentation similarity response.
type SimilarDoc struct {
	ID              int64    `json:"id"`
	URL             string   `json:"url"`
	SimilarityScore float64  `json:"similarity_score"`
	RerankerScore   *float64 `json:"reranker_score,omitempty"`
}

// SimilarPost is one row of a forum post similarity response.
type SimilarPost struct {
	TopicID         int      `json:"topic_id"`
	Title           string   `json:"title"`
	URL             string   `json:"url"`
	SimilarityScore float64  `json:"similarity_score"`
	RerankerScore   *float64 `json:"reranker_score,omitempty"`
}

// SimilarQuestion is one row of a Q&A similarity response. URL points at the
// source entity the question was extracted from.
type SimilarQuestion struct {
	ID              int64    `json:"id"`
	Question        string   `json:"question"`
	Answer          string   `json:"answer"`
	URL             string   `json:"url"`
	SimilarityScore float64  `json:"similarity_score"`
	RerankerScore   *float64 `json:"reranker_score,omitempty"`
}

// RelevantKeyword is a vocabulary entry selected for a given text.
type RelevantKeyword struct {
	Keyword    string `json:"keyword"`
	Definition string `json:"definition"`
	Category   string `json:"category"`
}

// IssueURL builds the public URL for an issue number.
func IssueURL(baseURL string, number int) string {
	return fmt.Sprintf("%s/issues/%d", baseURL, number)
}

// DiscourseTopicURL builds the public URL for a forum topic.
func DiscourseTopicURL(baseURL, slug string, topicID int) string {
	return fmt.Sprintf("%s/t/%s/%d", baseURL, slug, topicID)
}
