package batch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paoliniluis/similarity/pkg/config"
	"github.com/paoliniluis/similarity/pkg/keywords"
	"github.com/paoliniluis/similarity/pkg/models"
	"github.com/paoliniluis/similarity/pkg/repositories"
)

// Vocabulary is the slice of the keywords service the orchestrator needs:
// terminology lookup for request context and merging of extracted results.
type Vocabulary interface {
	FindRelevant(ctx context.Context, text string) ([]models.RelevantKeyword, error)
	UpsertExtracted(ctx context.Context, concept, definition string) error
	MergeAnswers(ctx context.Context, question, existing, incoming string) (string, error)
}

var _ Vocabulary = (*keywords.Service)(nil)

// Orchestrator drives the batch lifecycle: candidate selection, request
// file construction, submission, polling and reconciliation.
type Orchestrator struct {
	cfg           *config.BatchConfig
	provider      *ProviderClient
	batchRepo     repositories.BatchRepository
	issueRepo     repositories.IssueRepository
	discourseRepo repositories.DiscourseRepository
	docRepo       repositories.DocRepository
	questionRepo  repositories.QuestionRepository
	vocabulary    Vocabulary
	logger        *zap.Logger
}

// NewOrchestrator builds an Orchestrator.
func NewOrchestrator(
	cfg *config.BatchConfig,
	provider *ProviderClient,
	batchRepo repositories.BatchRepository,
	issueRepo repositories.IssueRepository,
	discourseRepo repositories.DiscourseRepository,
	docRepo repositories.DocRepository,
	questionRepo repositories.QuestionRepository,
	vocabulary Vocabulary,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:           cfg,
		provider:      provider,
		batchRepo:     batchRepo,
		issueRepo:     issueRepo,
		discourseRepo: discourseRepo,
		docRepo:       docRepo,
		questionRepo:  questionRepo,
		vocabulary:    vocabulary,
		logger:        logger,
	}
}

func (o *Orchestrator) sentDir() string {
	return filepath.Join(o.cfg.Dir, "sent")
}

func (o *Orchestrator) receivedDir() string {
	return filepath.Join(o.cfg.Dir, "received")
}

// candidates selects the entities still needing the given operation.
func (o *Orchestrator) candidates(ctx context.Context, operation, table string) ([]repositories.BatchCandidate, error) {
	limit := o.cfg.MaxCandidates

	switch table {
	case "issues":
		if operation == OpSummarize {
			return o.issueRepo.SummarizeCandidates(ctx, limit)
		}
		return o.issueRepo.QuestionCandidates(ctx, limit)
	case "discourse_posts":
		if operation == OpSummarize {
			return o.discourseRepo.SummarizeCandidates(ctx, limit)
		}
		return o.discourseRepo.QuestionCandidates(ctx, limit)
	case "metabase_docs":
		if operation == OpSummarize {
			return o.docRepo.SummarizeCandidates(ctx, limit)
		}
		return o.docRepo.QuestionCandidates(ctx, limit)
	default:
		return nil, fmt.Errorf("unknown table %q", table)
	}
}

// keywordContextFor renders the terminology block for a batch's combined
// entity text. Failures degrade to no context.
func (o *Orchestrator) keywordContextFor(ctx context.Context) func(string) string {
	return func(entityText string) string {
		relevant, err := o.vocabulary.FindRelevant(ctx, entityText)
		if err != nil {
			o.logger.Warn("keyword lookup failed for batch context", zap.Error(err))
			return ""
		}
		defs := make([]*models.KeywordDefinition, len(relevant))
		for i, kw := range relevant {
			category := kw.Category
			defs[i] = &models.KeywordDefinition{
				Keyword:    kw.Keyword,
				Definition: kw.Definition,
				Category:   &category,
			}
		}
		return keywords.BuildInjectionBlock(defs)
	}
}

// CreateAndSubmit builds a request file for the operation/table pair,
// submits it, and records the batch process. Returns the provider batch id,
// or "" when nothing needs processing.
func (o *Orchestrator) CreateAndSubmit(ctx context.Context, operation, table string) (string, error) {
	if _, err := models.SourceTypeForTable(table); err != nil {
		return "", err
	}

	candidates, err := o.candidates(ctx, operation, table)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		o.logger.Info("no candidates for batch",
			zap.String("operation", operation),
			zap.String("table", table))
		return "", nil
	}

	lines, err := BuildRequests(operation, table, o.cfg.Model, candidates, o.cfg.EntitiesPerBatch, o.keywordContextFor(ctx))
	if err != nil {
		return "", err
	}

	path := filepath.Join(o.sentDir(), fmt.Sprintf("efficient_%s_%s_%s.jsonl", operation, table, uuid.NewString()))
	if err := writeRequestFile(path, lines); err != nil {
		return "", err
	}
	o.logger.Info("created batch request file",
		zap.String("path", path),
		zap.Int("requests", len(lines)),
		zap.Int("entities", len(candidates)))

	fileID, err := o.provider.UploadFile(ctx, path)
	if err != nil {
		return "", err
	}

	providerBatch, err := o.provider.CreateBatch(ctx, fileID)
	if err != nil {
		return "", err
	}

	bp := &models.BatchProcess{
		BatchID:       providerBatch.ID,
		OperationType: operation,
		TableName:     table,
		TotalRequests: len(lines),
		InputFilePath: path,
		Status:        models.BatchStatusCreated,
	}
	if err := o.batchRepo.Create(ctx, bp); err != nil {
		return "", err
	}
	if err := o.batchRepo.MarkSent(ctx, providerBatch.ID); err != nil {
		return "", err
	}

	o.logger.Info("batch submitted",
		zap.String("batch_id", providerBatch.ID),
		zap.String("operation", operation),
		zap.String("table", table))
	return providerBatch.ID, nil
}

func writeRequestFile(path string, lines []RequestLine) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create batch directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create batch file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, line := range lines {
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("failed to encode batch request: %w", err)
		}
	}
	return w.Flush()
}
