package chat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/paoliniluis/similarity/pkg/apperrors"
	"github.com/paoliniluis/similarity/pkg/keywords"
	"github.com/paoliniluis/similarity/pkg/llm"
	"github.com/paoliniluis/similarity/pkg/logging"
	"github.com/paoliniluis/similarity/pkg/models"
	"github.com/paoliniluis/similarity/pkg/prompts"
	"github.com/paoliniluis/similarity/pkg/repositories"
	"github.com/paoliniluis/similarity/pkg/search"
)

// Security event types recorded through the structured logger.
const (
	eventInputSanitized = "INPUT_SANITIZED"
	eventUnsafeOutput   = "UNSAFE_OUTPUT"
	eventLLMError       = "LLM_ERROR"
	eventSystemError    = "SYSTEM_ERROR"
)

// Response is the chat answer plus the source URLs that informed it.
type Response struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// Service orchestrates one chat exchange end to end.
type Service struct {
	chatRepo     repositories.ChatRepository
	docRepo      repositories.DocRepository
	questionRepo repositories.QuestionRepository
	keywordRepo  repositories.KeywordRepository
	vocabulary   *keywords.Service
	searcher     *search.RerankedEngine
	llmClient    *llm.Client
	logger       *zap.Logger
}

// NewService builds a chat Service.
func NewService(
	chatRepo repositories.ChatRepository,
	docRepo repositories.DocRepository,
	questionRepo repositories.QuestionRepository,
	keywordRepo repositories.KeywordRepository,
	vocabulary *keywords.Service,
	searcher *search.RerankedEngine,
	llmClient *llm.Client,
	logger *zap.Logger,
) *Service {
	return &Service{
		chatRepo:     chatRepo,
		docRepo:      docRepo,
		questionRepo: questionRepo,
		keywordRepo:  keywordRepo,
		vocabulary:   vocabulary,
		searcher:     searcher,
		llmClient:    llmClient,
		logger:       logger,
	}
}

// Process answers a user question from retrieved context. The session row
// is created before any processing so every request leaves a trace, and
// internal failures are recorded on it before returning.
func (s *Service) Process(ctx context.Context, chatID int64, text string) (*Response, error) {
	session := &models.ChatSession{ChatID: chatID, UserRequest: text}
	if err := s.chatRepo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	// Tracks how far prompt assembly got, for the failure record.
	fullPrompt := "Initial user request: " + text

	sanitized := Sanitize(text)
	if sanitized.Modified {
		details := fmt.Sprintf("sanitized from %d to %d chars", len(text), len(sanitized.Text))
		switch {
		case sanitized.SQLInjection:
			details += ", sql injection fingerprint"
		case sanitized.XSS:
			details += ", xss fingerprint"
		}
		logging.SecurityEvent(s.logger, eventInputSanitized, chatID, text, details)
	}

	if len(strings.TrimSpace(sanitized.Text)) < 3 {
		return nil, apperrors.ErrTextTooShort
	}

	relevantKeywords, err := s.vocabulary.FindRelevant(ctx, sanitized.Text)
	if err != nil {
		s.logger.Error("failed to fetch relevant keywords", zap.Error(err))
		relevantKeywords = nil
	}

	results, err := s.searcher.SearchAll(ctx, sanitized.Text, "")
	if err != nil {
		logging.SecurityEvent(s.logger, eventSystemError, chatID, sanitized.Text, err.Error())
		s.recordFailure(ctx, session, fullPrompt, err)
		return nil, err
	}

	contextParts, sources := s.assembleContext(ctx, session, relevantKeywords, results)
	session.Sources = sources

	systemPrompt := prompts.ChatSystemPrompt
	contextPrompt := prompts.ChatContextPrompt(strings.Join(contextParts, "\n\n---\n\n"))

	fullPrompt = strings.Join([]string{
		"[SYSTEM]: " + systemPrompt,
		"[CONTEXT]: " + contextPrompt,
		"[USER]: " + sanitized.Text,
	}, "\n\n")

	resp, err := s.llmClient.Chat(ctx, &llm.Request{
		Model: llm.ModelSlow,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleSystem, Content: contextPrompt},
			{Role: llm.RoleUser, Content: sanitized.Text},
		},
	})
	if err != nil {
		logging.SecurityEvent(s.logger, eventLLMError, chatID, sanitized.Text, err.Error())
		s.recordFailure(ctx, session, fullPrompt, err)
		return nil, fmt.Errorf("unable to generate response: %w", err)
	}

	answer := resp.Content
	if safe, replacement := ValidateOutput(answer); !safe {
		logging.SecurityEvent(s.logger, eventUnsafeOutput, chatID, sanitized.Text, truncate(answer, 200))
		answer = replacement
	}

	session.Prompt = fullPrompt
	session.Response = answer
	session.TokensSent = resp.TokensSent
	session.TokensReceived = resp.TokensReceived
	session.CacheHit = resp.CacheHit
	if err := s.chatRepo.FinishSession(ctx, session); err != nil {
		s.logger.Error("failed to persist chat session", zap.Error(err))
	}

	return &Response{Answer: answer, Sources: sources}, nil
}

// assembleContext builds the context blocks the model answers from and
// records every injected entity against the session. Keywords carry no
// similarity score; docs and Q&A pairs keep theirs.
func (s *Service) assembleContext(
	ctx context.Context,
	session *models.ChatSession,
	relevantKeywords []models.RelevantKeyword,
	results *search.Results,
) ([]string, []string) {
	var contextParts []string
	sources := []string{}

	if len(relevantKeywords) > 0 {
		var b strings.Builder
		b.WriteString("Relevant Keywords:\n")
		for _, kw := range relevantKeywords {
			fmt.Fprintf(&b, "- %s: %s\n", kw.Keyword, kw.Definition)
			s.trackKeyword(ctx, session.ID, kw.Keyword)
		}
		contextParts = append(contextParts, b.String())
	}

	docIDs := make([]int64, 0, len(results.Docs))
	for _, doc := range results.Docs {
		docIDs = append(docIDs, doc.ID)
	}
	docs, err := s.docRepo.GetByIDs(ctx, docIDs)
	if err != nil {
		s.logger.Error("failed to fetch docs for chat context", zap.Error(err))
	}
	docsByID := make(map[int64]*models.MetabaseDoc, len(docs))
	for _, doc := range docs {
		docsByID[doc.ID] = doc
	}
	for _, doc := range results.Docs {
		full, ok := docsByID[doc.ID]
		if !ok {
			continue
		}
		contextParts = append(contextParts, fmt.Sprintf("Documentation: %s\nURL: %s", full.Markdown, full.URL))
		sources = append(sources, doc.URL)
		s.trackEntity(ctx, session.ID, "metabase_doc", doc.ID, doc.URL, doc.SimilarityScore)
	}

	qaIDs := make([]int64, 0, len(results.Questions))
	for _, qa := range results.Questions {
		qaIDs = append(qaIDs, qa.ID)
	}
	qas, err := s.questionRepo.GetByIDs(ctx, qaIDs)
	if err != nil {
		s.logger.Error("failed to fetch questions for chat context", zap.Error(err))
	}
	qasByID := make(map[int64]*models.Question, len(qas))
	for _, qa := range qas {
		qasByID[qa.ID] = qa
	}
	for _, qa := range results.Questions {
		full, ok := qasByID[qa.ID]
		if !ok {
			continue
		}
		contextParts = append(contextParts, fmt.Sprintf("Q&A: %s\nAnswer: %s\nURL: %s", full.Question, full.Answer, qa.URL))
		sources = append(sources, qa.URL)
		s.trackEntity(ctx, session.ID, "question_answer", qa.ID, qa.URL, qa.SimilarityScore)
	}

	return contextParts, sources
}

func (s *Service) trackEntity(ctx context.Context, sessionID int64, entityType string, entityID int64, url string, score float64) {
	entity := &models.ChatSessionEntity{
		ChatSessionID:   sessionID,
		EntityType:      entityType,
		EntityID:        entityID,
		EntityURL:       &url,
		SimilarityScore: &score,
	}
	if err := s.chatRepo.AddEntity(ctx, entity); err != nil {
		s.logger.Error("failed to track chat entity",
			zap.String("entity_type", entityType),
			zap.Int64("entity_id", entityID),
			zap.Error(err))
	}
}

func (s *Service) trackKeyword(ctx context.Context, sessionID int64, keyword string) {
	kw, err := s.keywordRepo.GetByKeyword(ctx, keyword)
	if err != nil {
		s.logger.Warn("keyword not found for entity tracking", zap.String("keyword", keyword))
		return
	}
	entity := &models.ChatSessionEntity{
		ChatSessionID: sessionID,
		EntityType:    "keyword",
		EntityID:      kw.ID,
	}
	if err := s.chatRepo.AddEntity(ctx, entity); err != nil {
		s.logger.Error("failed to track keyword entity",
			zap.String("keyword", keyword),
			zap.Error(err))
	}
}

// recordFailure stores the error on the session with however much of the
// prompt was assembled before the failure.
func (s *Service) recordFailure(ctx context.Context, session *models.ChatSession, prompt string, cause error) {
	session.Prompt = prompt
	session.Response = "Error: " + cause.Error()
	session.TokensSent = 0
	session.TokensReceived = 0
	session.CacheHit = false
	if err := s.chatRepo.FinishSession(ctx, session); err != nil {
		s.logger.Error("failed to record chat failure", zap.Error(err))
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
