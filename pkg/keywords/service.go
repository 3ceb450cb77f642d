package keywords

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/paoliniluis/similarity/pkg/apperrors"
	"github.com/paoliniluis/similarity/pkg/llm"
	"github.com/paoliniluis/similarity/pkg/models"
	"github.com/paoliniluis/similarity/pkg/prompts"
	"github.com/paoliniluis/similarity/pkg/repositories"
)

// Service is the vocabulary layer: CRUD over keywords and synonyms, text
// matching and model-bound text enrichment.
type Service struct {
	keywordRepo repositories.KeywordRepository
	synonymRepo repositories.SynonymRepository
	llmClient   *llm.Client
	logger      *zap.Logger
}

// NewService builds a Service. llmClient may be nil, which disables
// definition merging (incoming extracted definitions then keep the existing
// text with a note).
func NewService(
	keywordRepo repositories.KeywordRepository,
	synonymRepo repositories.SynonymRepository,
	llmClient *llm.Client,
	logger *zap.Logger,
) *Service {
	return &Service{
		keywordRepo: keywordRepo,
		synonymRepo: synonymRepo,
		llmClient:   llmClient,
		logger:      logger,
	}
}

var _ llm.KeywordInjector = (*Service)(nil)

// loadMatcher builds a matcher over all active keywords and their synonyms.
func (s *Service) loadMatcher(ctx context.Context) (*matcher, error) {
	defs, err := s.keywordRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	synonyms := make(map[string][]string)
	all, err := s.synonymRepo.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	for _, syn := range all {
		synonyms[syn.SynonymOf] = append(synonyms[syn.SynonymOf], syn.Word)
	}

	return newMatcher(defs, synonyms), nil
}

// FindRelevant returns the active keywords whose terms occur in text.
func (s *Service) FindRelevant(ctx context.Context, text string) ([]models.RelevantKeyword, error) {
	m, err := s.loadMatcher(ctx)
	if err != nil {
		return nil, err
	}

	var relevant []models.RelevantKeyword
	for _, kw := range m.match(text) {
		category := CategoryGlossary
		if kw.Category != nil && *kw.Category != "" {
			category = *kw.Category
		}
		relevant = append(relevant, models.RelevantKeyword{
			Keyword:    kw.Keyword,
			Definition: kw.Definition,
			Category:   category,
		})
	}
	return relevant, nil
}

// Inject enriches model-bound text with matched terminology. Implements
// llm.KeywordInjector.
func (s *Service) Inject(ctx context.Context, text string) (string, error) {
	m, err := s.loadMatcher(ctx)
	if err != nil {
		return text, err
	}
	return InjectIntoText(text, m.match(text)), nil
}

// UpsertExtracted stores a concept definition coming from batch extraction.
// Merge rules when the keyword already exists:
//   - a Glossary entry always wins, the incoming definition is discarded
//   - two extracted definitions are merged through the model
//   - without a model client the incoming text is appended as a note
func (s *Service) UpsertExtracted(ctx context.Context, concept, definition string) error {
	existing, err := s.keywordRepo.GetByKeyword(ctx, concept)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		category := CategoryLLMExtracted
		return s.keywordRepo.Create(ctx, &models.KeywordDefinition{
			Keyword:    concept,
			Definition: definition,
			Category:   &category,
			IsActive:   true,
		})
	}

	if existing.Category != nil && *existing.Category == CategoryGlossary {
		return nil
	}
	if existing.Definition == definition {
		return nil
	}

	merged, err := s.mergeDefinitions(ctx, concept, existing.Definition, definition)
	if err != nil {
		s.logger.Warn("definition merge failed, keeping both texts",
			zap.String("keyword", concept),
			zap.Error(err))
		merged = existing.Definition + "\n\nAdditional definition: " + definition
	}
	return s.keywordRepo.UpdateDefinition(ctx, concept, merged)
}

func (s *Service) mergeDefinitions(ctx context.Context, concept, existing, incoming string) (string, error) {
	if s.llmClient == nil {
		return "", fmt.Errorf("no llm client configured")
	}
	resp, err := s.llmClient.Chat(ctx, &llm.Request{
		Model: llm.ModelFast,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: prompts.MergeConceptDefinitionsPrompt(concept, existing, incoming)},
		},
		MaxTokens:   1000,
		Temperature: 0.1,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// MergeAnswers merges two answers for the same question through the model.
// Falls back to the existing answer when no client is configured.
func (s *Service) MergeAnswers(ctx context.Context, question, existing, incoming string) (string, error) {
	if s.llmClient == nil {
		return existing, nil
	}
	resp, err := s.llmClient.Chat(ctx, &llm.Request{
		Model: llm.ModelFast,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: prompts.MergeQuestionAnswersPrompt(question, existing, incoming)},
		},
		MaxTokens:   1000,
		Temperature: 0.1,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// seedFile is the YAML shape accepted by ImportFile.
type seedFile struct {
	Keywords []seedKeyword `yaml:"keywords"`
}

type seedKeyword struct {
	Keyword    string   `yaml:"keyword"`
	Definition string   `yaml:"definition"`
	Category   string   `yaml:"category"`
	Synonyms   []string `yaml:"synonyms"`
}

// ImportFile seeds the vocabulary from a YAML file. Existing keywords are
// skipped, not overwritten.
func (s *Service) ImportFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("failed to parse seed file: %w", err)
	}

	imported := 0
	for _, entry := range seed.Keywords {
		if entry.Keyword == "" || entry.Definition == "" {
			s.logger.Warn("skipping seed entry without keyword or definition")
			continue
		}

		category := entry.Category
		if category == "" {
			category = CategoryGlossary
		}
		err := s.keywordRepo.Create(ctx, &models.KeywordDefinition{
			Keyword:    entry.Keyword,
			Definition: entry.Definition,
			Category:   &category,
			IsActive:   true,
		})
		if err != nil {
			if errors.Is(err, apperrors.ErrAlreadyExists) {
				continue
			}
			return imported, err
		}
		imported++

		for _, word := range entry.Synonyms {
			if err := s.synonymRepo.Add(ctx, word, entry.Keyword); err != nil &&
				!errors.Is(err, apperrors.ErrAlreadyExists) {
				return imported, err
			}
		}
	}
	return imported, nil
}
