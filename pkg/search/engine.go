package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/paoliniluis/similarity/pkg/apperrors"
	"github.com/paoliniluis/similarity/pkg/config"
	"github.com/paoliniluis/similarity/pkg/database"
	"github.com/paoliniluis/similarity/pkg/embedding"
	"github.com/paoliniluis/similarity/pkg/logging"
	"github.com/paoliniluis/similarity/pkg/models"
)

// Engine runs vector-only similarity searches (the v1 surface).
type Engine struct {
	db         *database.DB
	embeddings *embedding.Service
	cfg        *config.Config
	logger     *zap.Logger
}

// NewEngine builds an Engine.
func NewEngine(db *database.DB, embeddings *embedding.Service, cfg *config.Config, logger *zap.Logger) *Engine {
	return &Engine{db: db, embeddings: embeddings, cfg: cfg, logger: logger}
}

// Results is the combined multi-source search response. Keywords stays
// empty on the search surface; the chat flow fills terminology separately.
type Results struct {
	Issues    []models.SimilarIssue    `json:"issues"`
	Posts     []models.SimilarPost     `json:"discourse_posts"`
	Docs      []models.SimilarDoc      `json:"metabase_docs"`
	Questions []models.SimilarQuestion `json:"questions"`
	Keywords  []models.RelevantKeyword `json:"keywords"`
}

// NormalizeState validates an issue state filter. Empty means no filter;
// anything but open/closed (case-insensitive) is rejected.
func NormalizeState(state string) (string, error) {
	if state == "" {
		return "", nil
	}
	normalized := strings.ToLower(state)
	if normalized != "open" && normalized != "closed" {
		return "", apperrors.ErrInvalidState
	}
	return normalized, nil
}

func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	return e.embeddings.Embed(ctx, text)
}

func (e *Engine) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	e.logger.Debug("similarity query", zap.String("sql", logging.SanitizeQuery(sql)))
	return e.db.Query(ctx, sql, args...)
}

// SimilarIssues searches issues across title, body and summary embeddings.
func (e *Engine) SimilarIssues(ctx context.Context, text, state string) ([]models.SimilarIssue, error) {
	vec, err := e.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return e.issueRows(ctx, vec, state, issueQueryOpts{
		embeddingColumns: []string{"title_embedding", "issue_embedding", "summary_embedding"},
		limit:            e.cfg.Search.FinalLimit,
	})
}

type issueQueryOpts struct {
	embeddingColumns []string
	threshold        float64
	limit            int
	withBody         bool
}

type issueCandidate struct {
	models.SimilarIssue
	Body string
}

func (e *Engine) issueCandidates(ctx context.Context, vec []float32, state string, opts issueQueryOpts) ([]issueCandidate, error) {
	selectCols := "number, title, state"
	if opts.withBody {
		selectCols = "number, title, state, body"
	}

	spec := QuerySpec{
		Table:            "issues",
		SelectCols:       selectCols,
		GroupBy:          selectCols,
		EmbeddingColumns: opts.embeddingColumns,
		Threshold:        opts.threshold,
		PerColumn:        e.cfg.Search.CandidatesPerColumn,
		Limit:            opts.limit,
	}
	var args []any
	if state != "" {
		spec.Where = "state = $1"
		args = append(args, state)
	}

	rows, err := e.query(ctx, spec.SQL(vec), args...)
	if err != nil {
		return nil, fmt.Errorf("issue similarity query failed: %w", err)
	}
	defer rows.Close()

	var candidates []issueCandidate
	for rows.Next() {
		var c issueCandidate
		var body *string
		dest := []any{&c.Number, &c.Title, &c.State}
		if opts.withBody {
			dest = append(dest, &body)
		}
		dest = append(dest, &c.SimilarityScore)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan issue candidate: %w", err)
		}
		if body != nil {
			c.Body = *body
		}
		c.URL = models.IssueURL(e.cfg.GitHub.BaseURL, c.Number)
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

func (e *Engine) issueRows(ctx context.Context, vec []float32, state string, opts issueQueryOpts) ([]models.SimilarIssue, error) {
	candidates, err := e.issueCandidates(ctx, vec, state, opts)
	if err != nil {
		return nil, err
	}
	issues := make([]models.SimilarIssue, len(candidates))
	for i, c := range candidates {
		issues[i] = c.SimilarIssue
	}
	return issues, nil
}

// SimilarDocs searches documentation pages across markdown and summary
// embeddings.
func (e *Engine) SimilarDocs(ctx context.Context, text string) ([]models.SimilarDoc, error) {
	vec, err := e.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	candidates, err := e.docCandidates(ctx, vec, docQueryOpts{limit: e.cfg.Search.FinalLimit})
	if err != nil {
		return nil, err
	}
	docs := make([]models.SimilarDoc, len(candidates))
	for i, c := range candidates {
		docs[i] = c.SimilarDoc
	}
	return docs, nil
}

type docQueryOpts struct {
	threshold    float64
	limit        int
	withMarkdown bool
}

type docCandidate struct {
	models.SimilarDoc
	Markdown string
}

func (e *Engine) docCandidates(ctx context.Context, vec []float32, opts docQueryOpts) ([]docCandidate, error) {
	selectCols := "id, url"
	if opts.withMarkdown {
		selectCols = "id, url, markdown"
	}

	spec := QuerySpec{
		Table:            "metabase_docs",
		SelectCols:       selectCols,
		GroupBy:          selectCols,
		EmbeddingColumns: []string{"markdown_embedding", "summary_embedding"},
		Threshold:        opts.threshold,
		PerColumn:        e.cfg.Search.CandidatesPerColumn,
		Limit:            opts.limit,
	}

	rows, err := e.query(ctx, spec.SQL(vec))
	if err != nil {
		return nil, fmt.Errorf("doc similarity query failed: %w", err)
	}
	defer rows.Close()

	var candidates []docCandidate
	for rows.Next() {
		var c docCandidate
		dest := []any{&c.ID, &c.URL}
		if opts.withMarkdown {
			dest = append(dest, &c.Markdown)
		}
		dest = append(dest, &c.SimilarityScore)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan doc candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// SimilarPosts searches forum topics across conversation and summary
// embeddings.
func (e *Engine) SimilarPosts(ctx context.Context, text string) ([]models.SimilarPost, error) {
	vec, err := e.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	candidates, err := e.postCandidates(ctx, vec, postQueryOpts{limit: e.cfg.Search.FinalLimit})
	if err != nil {
		return nil, err
	}
	posts := make([]models.SimilarPost, len(candidates))
	for i, c := range candidates {
		posts[i] = c.SimilarPost
	}
	return posts, nil
}

type postQueryOpts struct {
	threshold        float64
	limit            int
	withConversation bool
}

type postCandidate struct {
	models.SimilarPost
	Conversation string
}

func (e *Engine) postCandidates(ctx context.Context, vec []float32, opts postQueryOpts) ([]postCandidate, error) {
	selectCols := "id, topic_id, title, slug"
	if opts.withConversation {
		selectCols = "id, topic_id, title, slug, conversation"
	}

	spec := QuerySpec{
		Table:            "discourse_posts",
		SelectCols:       selectCols,
		GroupBy:          selectCols,
		EmbeddingColumns: []string{"conversation_embedding", "summary_embedding"},
		Threshold:        opts.threshold,
		PerColumn:        e.cfg.Search.CandidatesPerColumn,
		Limit:            opts.limit,
	}

	rows, err := e.query(ctx, spec.SQL(vec))
	if err != nil {
		return nil, fmt.Errorf("post similarity query failed: %w", err)
	}
	defer rows.Close()

	var candidates []postCandidate
	for rows.Next() {
		var c postCandidate
		var id int64
		var slug string
		dest := []any{&id, &c.TopicID, &c.Title, &slug}
		if opts.withConversation {
			dest = append(dest, &c.Conversation)
		}
		dest = append(dest, &c.SimilarityScore)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan post candidate: %w", err)
		}
		c.URL = models.DiscourseTopicURL(e.cfg.Discourse.BaseURL, slug, c.TopicID)
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// SimilarQuestions searches Q&A pairs across question and answer
// embeddings. Rows whose source entity no longer resolves to a URL are
// dropped.
func (e *Engine) SimilarQuestions(ctx context.Context, text string) ([]models.SimilarQuestion, error) {
	vec, err := e.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return e.questionCandidates(ctx, vec, 0, e.cfg.Search.FinalLimit)
}

// questionCandidates merges question/answer similarity and reconstructs the
// source URL per row inside SQL: issue and topic URLs from their tables,
// doc URLs verbatim.
func (e *Engine) questionCandidates(ctx context.Context, vec []float32, threshold float64, limit int) ([]models.SimilarQuestion, error) {
	literal := VectorLiteral(vec)

	thresholdFilter := func(col string) string {
		if threshold <= 0 {
			return ""
		}
		return fmt.Sprintf("AND 1 - (q.%s <=> %s) > %g", col, literal, threshold)
	}

	query := fmt.Sprintf(`WITH question_sim AS (
	SELECT q.id, q.question, q.answer, q.source_type, q.source_id, 1 - (q.question_embedding <=> %[1]s) AS similarity
	FROM questions q
	WHERE q.question_embedding IS NOT NULL %[2]s
	ORDER BY q.question_embedding <=> %[1]s
	LIMIT %[4]d
),
answer_sim AS (
	SELECT q.id, q.question, q.answer, q.source_type, q.source_id, 1 - (q.answer_embedding <=> %[1]s) AS similarity
	FROM questions q
	WHERE q.answer_embedding IS NOT NULL %[3]s
	ORDER BY q.answer_embedding <=> %[1]s
	LIMIT %[4]d
),
all_sim AS (
	SELECT * FROM question_sim
	UNION ALL
	SELECT * FROM answer_sim
),
grouped_sim AS (
	SELECT id, question, answer, source_type, source_id, MAX(similarity) AS similarity
	FROM all_sim
	GROUP BY id, question, answer, source_type, source_id
),
questions_with_urls AS (
	SELECT
		g.id,
		g.question,
		g.answer,
		g.similarity,
		CASE
			WHEN g.source_type = 'ISSUE' THEN CONCAT($1::text, '/issues/', i.number)
			WHEN g.source_type = 'DISCOURSE_POST' THEN CONCAT($2::text, '/t/', d.slug, '/', d.topic_id)
			WHEN g.source_type = 'METABASE_DOC' THEN m.url
			ELSE NULL
		END AS url
	FROM grouped_sim g
	LEFT JOIN issues i ON g.source_type = 'ISSUE' AND g.source_id = i.id
	LEFT JOIN discourse_posts d ON g.source_type = 'DISCOURSE_POST' AND g.source_id = d.id
	LEFT JOIN metabase_docs m ON g.source_type = 'METABASE_DOC' AND g.source_id = m.id
)
SELECT id, question, answer, url, similarity
FROM questions_with_urls
WHERE url IS NOT NULL
ORDER BY similarity DESC
LIMIT %[5]d`,
		literal,
		thresholdFilter("question_embedding"),
		thresholdFilter("answer_embedding"),
		e.cfg.Search.CandidatesPerColumn,
		limit,
	)

	rows, err := e.query(ctx, query, e.cfg.GitHub.BaseURL, e.cfg.Discourse.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("question similarity query failed: %w", err)
	}
	defer rows.Close()

	var questions []models.SimilarQuestion
	for rows.Next() {
		var q models.SimilarQuestion
		if err := rows.Scan(&q.ID, &q.Question, &q.Answer, &q.URL, &q.SimilarityScore); err != nil {
			return nil, fmt.Errorf("failed to scan question candidate: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// SearchAll fans out to every source in parallel. A failing source logs
// and contributes an empty list rather than failing the whole search.
func (e *Engine) SearchAll(ctx context.Context, text, state string) (*Results, error) {
	results := &Results{
		Issues:    []models.SimilarIssue{},
		Posts:     []models.SimilarPost{},
		Docs:      []models.SimilarDoc{},
		Questions: []models.SimilarQuestion{},
		Keywords:  []models.RelevantKeyword{},
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		issues, err := e.SimilarIssues(ctx, text, state)
		if err != nil {
			e.logger.Error("issue search failed", zap.Error(err))
			return nil
		}
		results.Issues = issues
		return nil
	})
	g.Go(func() error {
		posts, err := e.SimilarPosts(ctx, text)
		if err != nil {
			e.logger.Error("post search failed", zap.Error(err))
			return nil
		}
		results.Posts = posts
		return nil
	})
	g.Go(func() error {
		docs, err := e.SimilarDocs(ctx, text)
		if err != nil {
			e.logger.Error("doc search failed", zap.Error(err))
			return nil
		}
		results.Docs = docs
		return nil
	})
	g.Go(func() error {
		questions, err := e.SimilarQuestions(ctx, text)
		if err != nil {
			e.logger.Error("question search failed", zap.Error(err))
			return nil
		}
		results.Questions = questions
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
