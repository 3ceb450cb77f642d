package workers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/paoliniluis/similarity/pkg/config"
	"github.com/paoliniluis/similarity/pkg/llm"
	"github.com/paoliniluis/similarity/pkg/models"
	"github.com/paoliniluis/similarity/pkg/prompts"
	"github.com/paoliniluis/similarity/pkg/repositories"
)

// issueSummary is the structured analysis the model returns for an issue.
type issueSummary struct {
	Summary         string  `json:"summary"`
	ReportedVersion *string `json:"reported_version"`
	StackTraceFile  *string `json:"stack_trace_file"`
}

// SummaryWorker backfills LLM summaries for issues, forum posts and
// documentation pages that lack one.
type SummaryWorker struct {
	cfg           *config.WorkerConfig
	issueRepo     repositories.IssueRepository
	discourseRepo repositories.DiscourseRepository
	docRepo       repositories.DocRepository
	llmClient     *llm.Client
	logger        *zap.Logger
}

// NewSummaryWorker builds a SummaryWorker.
func NewSummaryWorker(
	cfg *config.WorkerConfig,
	issueRepo repositories.IssueRepository,
	discourseRepo repositories.DiscourseRepository,
	docRepo repositories.DocRepository,
	llmClient *llm.Client,
	logger *zap.Logger,
) *SummaryWorker {
	return &SummaryWorker{
		cfg:           cfg,
		issueRepo:     issueRepo,
		discourseRepo: discourseRepo,
		docRepo:       docRepo,
		llmClient:     llmClient,
		logger:        logger,
	}
}

var _ Worker = (*SummaryWorker)(nil)

func (w *SummaryWorker) Name() string { return "llm_summaries" }

// RunCycle processes one page of unsummarized entities per table. Each
// entity failure is logged and skipped so a single bad row cannot stall
// the backlog.
func (w *SummaryWorker) RunCycle(ctx context.Context) (int, error) {
	processed := 0

	issues, err := w.issueRepo.ScanMissingSummaries(ctx, w.cfg.SummaryPageSize)
	if err != nil {
		return processed, fmt.Errorf("failed to scan issues: %w", err)
	}
	for _, issue := range issues {
		if err := w.summarizeIssue(ctx, issue); err != nil {
			w.logger.Error("failed to summarize issue",
				zap.Int("number", issue.Number),
				zap.Error(err))
			continue
		}
		processed++
	}

	posts, err := w.discourseRepo.ScanMissingSummaries(ctx, w.cfg.SummaryPageSize)
	if err != nil {
		return processed, fmt.Errorf("failed to scan forum posts: %w", err)
	}
	for _, post := range posts {
		if err := w.summarizePost(ctx, post); err != nil {
			w.logger.Error("failed to summarize forum post",
				zap.Int("topic_id", post.TopicID),
				zap.Error(err))
			continue
		}
		processed++
	}

	docs, err := w.docRepo.ScanMissingSummaries(ctx, w.cfg.SummaryPageSize)
	if err != nil {
		return processed, fmt.Errorf("failed to scan docs: %w", err)
	}
	for _, doc := range docs {
		if err := w.summarizeDoc(ctx, doc); err != nil {
			w.logger.Error("failed to summarize doc",
				zap.Int64("id", doc.ID),
				zap.Error(err))
			continue
		}
		processed++
	}

	return processed, nil
}

// summarizeIssue asks for a structured analysis: summary plus the
// reported version and stack trace file when the issue mentions them.
func (w *SummaryWorker) summarizeIssue(ctx context.Context, issue *models.Issue) error {
	content := fmt.Sprintf("Title: %s\n\nBody: %s", issue.Title, issue.Body)

	resp, err := w.llmClient.Chat(ctx, &llm.Request{
		Model: llm.ModelFast,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: prompts.BaseGlobalPrompt + "\n\n" + prompts.IssueSummarizerPrompt},
			{Role: llm.RoleUser, Content: content},
		},
		MaxTokens:   2000,
		Temperature: 0.1,
		JSONMode:    true,
	})
	if err != nil {
		return err
	}

	parsed, err := llm.ParseJSONResponse[issueSummary](resp.Content)
	if err != nil {
		return fmt.Errorf("unparseable issue analysis: %w", err)
	}
	if parsed.Summary == "" {
		return fmt.Errorf("issue analysis carries no summary")
	}

	if err := w.issueRepo.PatchSummary(ctx, issue.ID, parsed.Summary, parsed.ReportedVersion, parsed.StackTraceFile); err != nil {
		return err
	}
	w.logger.Info("summarized issue", zap.Int("number", issue.Number))
	return nil
}

func (w *SummaryWorker) summarizePost(ctx context.Context, post *models.DiscoursePost) error {
	summary, err := w.summarizeText(ctx, prompts.DiscourseSummarizerPrompt, post.Conversation)
	if err != nil {
		return err
	}
	if err := w.discourseRepo.PatchSummary(ctx, post.ID, summary); err != nil {
		return err
	}
	w.logger.Info("summarized forum post", zap.Int("topic_id", post.TopicID))
	return nil
}

func (w *SummaryWorker) summarizeDoc(ctx context.Context, doc *models.MetabaseDoc) error {
	summary, err := w.summarizeText(ctx, prompts.DocSummarizerPrompt, doc.Markdown)
	if err != nil {
		return err
	}
	if err := w.docRepo.PatchSummary(ctx, doc.ID, summary); err != nil {
		return err
	}
	w.logger.Info("summarized doc", zap.Int64("id", doc.ID))
	return nil
}

func (w *SummaryWorker) summarizeText(ctx context.Context, taskPrompt, content string) (string, error) {
	resp, err := w.llmClient.Chat(ctx, &llm.Request{
		Model: llm.ModelFast,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: prompts.BaseGlobalPrompt + "\n\n" + taskPrompt},
			{Role: llm.RoleUser, Content: content},
		},
		MaxTokens:   2000,
		Temperature: 0.1,
	})
	if err != nil {
		return "", err
	}
	if resp.Content == "" {
		return "", fmt.Errorf("model returned an empty summary")
	}
	return resp.Content, nil
}
