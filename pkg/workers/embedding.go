package workers

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/paoliniluis/similarity/pkg/config"
	"github.com/paoliniluis/similarity/pkg/embedding"
	"github.com/paoliniluis/similarity/pkg/repositories"
)

// EmbeddingWorker backfills vector columns across every embedded table.
// Each cycle pulls one page of rows with missing embeddings per table and
// fills only the columns that are absent.
type EmbeddingWorker struct {
	cfg           *config.WorkerConfig
	issueRepo     repositories.IssueRepository
	discourseRepo repositories.DiscourseRepository
	docRepo       repositories.DocRepository
	questionRepo  repositories.QuestionRepository
	keywordRepo   repositories.KeywordRepository
	synonymRepo   repositories.SynonymRepository
	embeddings    *embedding.Service
	logger        *zap.Logger
}

// NewEmbeddingWorker builds an EmbeddingWorker.
func NewEmbeddingWorker(
	cfg *config.WorkerConfig,
	issueRepo repositories.IssueRepository,
	discourseRepo repositories.DiscourseRepository,
	docRepo repositories.DocRepository,
	questionRepo repositories.QuestionRepository,
	keywordRepo repositories.KeywordRepository,
	synonymRepo repositories.SynonymRepository,
	embeddings *embedding.Service,
	logger *zap.Logger,
) *EmbeddingWorker {
	return &EmbeddingWorker{
		cfg:           cfg,
		issueRepo:     issueRepo,
		discourseRepo: discourseRepo,
		docRepo:       docRepo,
		questionRepo:  questionRepo,
		keywordRepo:   keywordRepo,
		synonymRepo:   synonymRepo,
		embeddings:    embeddings,
		logger:        logger,
	}
}

var _ Worker = (*EmbeddingWorker)(nil)

func (w *EmbeddingWorker) Name() string { return "embeddings" }

func (w *EmbeddingWorker) RunCycle(ctx context.Context) (int, error) {
	processed := 0
	for _, step := range []func(context.Context) (int, error){
		w.processIssues,
		w.processPosts,
		w.processDocs,
		w.processQuestions,
		w.processKeywords,
		w.processSynonyms,
	} {
		n, err := step(ctx)
		processed += n
		if err != nil {
			return processed, err
		}
	}
	return processed, nil
}

// patch embeds the text and writes it to the given column. Empty source
// text is skipped: the column stays NULL until content appears.
func (w *EmbeddingWorker) patch(
	ctx context.Context,
	write func(context.Context, []float32) error,
	text, what string,
) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	vec, err := w.embeddings.Embed(ctx, text)
	if err != nil {
		w.logger.Warn("embedding failed", zap.String("target", what), zap.Error(err))
		return false
	}
	if err := write(ctx, vec); err != nil {
		w.logger.Warn("failed to store embedding", zap.String("target", what), zap.Error(err))
		return false
	}
	return true
}

func (w *EmbeddingWorker) processIssues(ctx context.Context) (int, error) {
	work, err := w.issueRepo.ScanMissingEmbeddings(ctx, w.cfg.EmbeddingPageSize)
	if err != nil {
		return 0, fmt.Errorf("failed to scan issues: %w", err)
	}

	processed := 0
	for _, item := range work {
		issue := item.Issue
		touched := false
		if item.NeedsTitle {
			touched = w.patch(ctx, func(ctx context.Context, vec []float32) error {
				return w.issueRepo.PatchEmbedding(ctx, issue.ID, "title_embedding", vec)
			}, issue.Title, fmt.Sprintf("issue %d title", issue.Number)) || touched
		}
		if item.NeedsBody {
			touched = w.patch(ctx, func(ctx context.Context, vec []float32) error {
				return w.issueRepo.PatchEmbedding(ctx, issue.ID, "issue_embedding", vec)
			}, issue.Body, fmt.Sprintf("issue %d body", issue.Number)) || touched
		}
		if item.NeedsSummary && issue.LLMSummary != nil {
			touched = w.patch(ctx, func(ctx context.Context, vec []float32) error {
				return w.issueRepo.PatchEmbedding(ctx, issue.ID, "summary_embedding", vec)
			}, *issue.LLMSummary, fmt.Sprintf("issue %d summary", issue.Number)) || touched
		}
		if touched {
			processed++
		}
	}
	return processed, nil
}

func (w *EmbeddingWorker) processPosts(ctx context.Context) (int, error) {
	work, err := w.discourseRepo.ScanMissingEmbeddings(ctx, w.cfg.EmbeddingPageSize)
	if err != nil {
		return 0, fmt.Errorf("failed to scan forum posts: %w", err)
	}

	processed := 0
	for _, item := range work {
		post := item.Post
		touched := false
		if item.NeedsConversation {
			touched = w.patch(ctx, func(ctx context.Context, vec []float32) error {
				return w.discourseRepo.PatchEmbedding(ctx, post.ID, "conversation_embedding", vec)
			}, post.Conversation, fmt.Sprintf("topic %d conversation", post.TopicID)) || touched
		}
		if item.NeedsSummary && post.LLMSummary != nil {
			touched = w.patch(ctx, func(ctx context.Context, vec []float32) error {
				return w.discourseRepo.PatchEmbedding(ctx, post.ID, "summary_embedding", vec)
			}, *post.LLMSummary, fmt.Sprintf("topic %d summary", post.TopicID)) || touched
		}
		if touched {
			processed++
		}
	}
	return processed, nil
}

func (w *EmbeddingWorker) processDocs(ctx context.Context) (int, error) {
	work, err := w.docRepo.ScanMissingEmbeddings(ctx, w.cfg.EmbeddingPageSize)
	if err != nil {
		return 0, fmt.Errorf("failed to scan docs: %w", err)
	}

	processed := 0
	for _, item := range work {
		doc := item.Doc
		touched := false
		if item.NeedsMarkdown {
			touched = w.patch(ctx, func(ctx context.Context, vec []float32) error {
				return w.docRepo.PatchEmbedding(ctx, doc.ID, "markdown_embedding", vec)
			}, doc.Markdown, fmt.Sprintf("doc %d markdown", doc.ID)) || touched
		}
		if item.NeedsSummary && doc.LLMSummary != nil {
			touched = w.patch(ctx, func(ctx context.Context, vec []float32) error {
				return w.docRepo.PatchEmbedding(ctx, doc.ID, "summary_embedding", vec)
			}, *doc.LLMSummary, fmt.Sprintf("doc %d summary", doc.ID)) || touched
		}
		if touched {
			processed++
		}
	}
	return processed, nil
}

func (w *EmbeddingWorker) processQuestions(ctx context.Context) (int, error) {
	work, err := w.questionRepo.ScanMissingEmbeddings(ctx, w.cfg.EmbeddingPageSize)
	if err != nil {
		return 0, fmt.Errorf("failed to scan questions: %w", err)
	}

	processed := 0
	for _, item := range work {
		q := item.Question
		touched := false
		if item.NeedsQuestion {
			touched = w.patch(ctx, func(ctx context.Context, vec []float32) error {
				return w.questionRepo.PatchEmbedding(ctx, q.ID, "question_embedding", vec)
			}, q.Question, fmt.Sprintf("question %d", q.ID)) || touched
		}
		if item.NeedsAnswer {
			touched = w.patch(ctx, func(ctx context.Context, vec []float32) error {
				return w.questionRepo.PatchEmbedding(ctx, q.ID, "answer_embedding", vec)
			}, q.Answer, fmt.Sprintf("question %d answer", q.ID)) || touched
		}
		if touched {
			processed++
		}
	}
	return processed, nil
}

// processKeywords embeds each keyword as a composite of the term, its
// definition, and its synonyms, so a query matching any facet lands near
// the definition.
func (w *EmbeddingWorker) processKeywords(ctx context.Context) (int, error) {
	work, err := w.keywordRepo.ScanMissingEmbeddings(ctx, w.cfg.EmbeddingPageSize)
	if err != nil {
		return 0, fmt.Errorf("failed to scan keywords: %w", err)
	}

	processed := 0
	for _, kw := range work {
		text := fmt.Sprintf("keyword: %s\ndefinition: %s", kw.Keyword, kw.Definition)
		if synonyms, err := w.synonymRepo.WordsFor(ctx, kw.Keyword); err != nil {
			w.logger.Warn("failed to load synonyms for keyword",
				zap.String("keyword", kw.Keyword),
				zap.Error(err))
		} else if len(synonyms) > 0 {
			text += fmt.Sprintf("\nsynonyms: %s", strings.Join(synonyms, ", "))
		}

		if w.patch(ctx, func(ctx context.Context, vec []float32) error {
			return w.keywordRepo.PatchEmbedding(ctx, kw.ID, vec)
		}, text, fmt.Sprintf("keyword %q", kw.Keyword)) {
			processed++
		}
	}
	return processed, nil
}

func (w *EmbeddingWorker) processSynonyms(ctx context.Context) (int, error) {
	work, err := w.synonymRepo.ScanMissingEmbeddings(ctx, w.cfg.EmbeddingPageSize)
	if err != nil {
		return 0, fmt.Errorf("failed to scan synonyms: %w", err)
	}

	processed := 0
	for _, item := range work {
		syn := item.Synonym
		touched := false
		if item.NeedsWord {
			touched = w.patch(ctx, func(ctx context.Context, vec []float32) error {
				return w.synonymRepo.PatchEmbedding(ctx, syn.ID, "word_embedding", vec)
			}, syn.Word, fmt.Sprintf("synonym %q", syn.Word)) || touched
		}
		if item.NeedsSynonym {
			text := fmt.Sprintf("word: %s\nsynonym_of: %s", syn.Word, syn.SynonymOf)
			touched = w.patch(ctx, func(ctx context.Context, vec []float32) error {
				return w.synonymRepo.PatchEmbedding(ctx, syn.ID, "synonym_embedding", vec)
			}, text, fmt.Sprintf("synonym %q relation", syn.Word)) || touched
		}
		if touched {
			processed++
		}
	}
	return processed, nil
}
