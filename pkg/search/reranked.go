package search

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/paoliniluis/similarity/pkg/models"
	"github.com/paoliniluis/similarity/pkg/reranker"
)

// RerankedEngine is the v2 surface: a wider thresholded candidate pool,
// cross-encoder reranking, and positive-score filtering. Every method
// falls back to the plain engine when no reranker is configured.
type RerankedEngine struct {
	engine   *Engine
	reranker *reranker.Service
	logger   *zap.Logger
}

// NewRerankedEngine wraps an Engine with a reranking stage.
func NewRerankedEngine(engine *Engine, rr *reranker.Service, logger *zap.Logger) *RerankedEngine {
	return &RerankedEngine{engine: engine, reranker: rr, logger: logger}
}

// Enabled reports whether the reranking stage is active.
func (e *RerankedEngine) Enabled() bool {
	return e.reranker.Enabled()
}

// SimilarIssues returns reranked issues, pooling candidates from body and
// summary embeddings above the similarity threshold.
func (e *RerankedEngine) SimilarIssues(ctx context.Context, text, state string) ([]models.SimilarIssue, error) {
	if !e.Enabled() {
		return e.engine.SimilarIssues(ctx, text, state)
	}

	vec, err := e.engine.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	pool, err := e.engine.issueCandidates(ctx, vec, state, issueQueryOpts{
		embeddingColumns: []string{"issue_embedding", "summary_embedding"},
		threshold:        e.engine.cfg.Search.RerankThreshold,
		limit:            e.engine.cfg.Search.RerankPoolLimit,
		withBody:         true,
	})
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return []models.SimilarIssue{}, nil
	}

	candidates := make([]reranker.Candidate, len(pool))
	for i, c := range pool {
		candidates[i] = reranker.Candidate{
			Content: reranker.ContentFor("issue", c.Title, c.Body),
			Score:   c.SimilarityScore,
			Payload: c.SimilarIssue,
		}
	}

	issues := []models.SimilarIssue{}
	for _, c := range e.reranker.Rerank(ctx, text, candidates) {
		if c.Score <= 0 {
			continue
		}
		issue := c.Payload.(models.SimilarIssue)
		score := c.Score
		issue.SimilarityScore = score
		issue.RerankerScore = &score
		issues = append(issues, issue)
	}
	return issues, nil
}

// SimilarDocs returns reranked documentation pages.
func (e *RerankedEngine) SimilarDocs(ctx context.Context, text string) ([]models.SimilarDoc, error) {
	if !e.Enabled() {
		return e.engine.SimilarDocs(ctx, text)
	}

	vec, err := e.engine.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	pool, err := e.engine.docCandidates(ctx, vec, docQueryOpts{
		threshold:    e.engine.cfg.Search.RerankThreshold,
		limit:        e.engine.cfg.Search.RerankPoolLimit,
		withMarkdown: true,
	})
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return []models.SimilarDoc{}, nil
	}

	candidates := make([]reranker.Candidate, len(pool))
	for i, c := range pool {
		candidates[i] = reranker.Candidate{
			Content: reranker.ContentFor("metabase_doc", c.Markdown),
			Score:   c.SimilarityScore,
			Payload: c.SimilarDoc,
		}
	}

	docs := []models.SimilarDoc{}
	for _, c := range e.reranker.Rerank(ctx, text, candidates) {
		if c.Score <= 0 {
			continue
		}
		doc := c.Payload.(models.SimilarDoc)
		score := c.Score
		doc.SimilarityScore = score
		doc.RerankerScore = &score
		docs = append(docs, doc)
	}
	return docs, nil
}

// SimilarPosts returns reranked forum topics.
func (e *RerankedEngine) SimilarPosts(ctx context.Context, text string) ([]models.SimilarPost, error) {
	if !e.Enabled() {
		return e.engine.SimilarPosts(ctx, text)
	}

	vec, err := e.engine.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	pool, err := e.engine.postCandidates(ctx, vec, postQueryOpts{
		threshold:        e.engine.cfg.Search.RerankThreshold,
		limit:            e.engine.cfg.Search.RerankPoolLimit,
		withConversation: true,
	})
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return []models.SimilarPost{}, nil
	}

	candidates := make([]reranker.Candidate, len(pool))
	for i, c := range pool {
		candidates[i] = reranker.Candidate{
			Content: reranker.ContentFor("discourse_post", c.Title, c.Conversation),
			Score:   c.SimilarityScore,
			Payload: c.SimilarPost,
		}
	}

	posts := []models.SimilarPost{}
	for _, c := range e.reranker.Rerank(ctx, text, candidates) {
		if c.Score <= 0 {
			continue
		}
		post := c.Payload.(models.SimilarPost)
		score := c.Score
		post.SimilarityScore = score
		post.RerankerScore = &score
		posts = append(posts, post)
	}
	return posts, nil
}

// SimilarQuestions returns reranked Q&A pairs.
func (e *RerankedEngine) SimilarQuestions(ctx context.Context, text string) ([]models.SimilarQuestion, error) {
	if !e.Enabled() {
		return e.engine.SimilarQuestions(ctx, text)
	}

	vec, err := e.engine.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	pool, err := e.engine.questionCandidates(ctx, vec,
		e.engine.cfg.Search.RerankThreshold,
		e.engine.cfg.Search.RerankPoolLimit)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return []models.SimilarQuestion{}, nil
	}

	candidates := make([]reranker.Candidate, len(pool))
	for i, q := range pool {
		candidates[i] = reranker.Candidate{
			Content: reranker.ContentFor("question", q.Question, q.Answer),
			Score:   q.SimilarityScore,
			Payload: q,
		}
	}

	questions := []models.SimilarQuestion{}
	for _, c := range e.reranker.Rerank(ctx, text, candidates) {
		if c.Score <= 0 {
			continue
		}
		question := c.Payload.(models.SimilarQuestion)
		score := c.Score
		question.SimilarityScore = score
		question.RerankerScore = &score
		questions = append(questions, question)
	}
	return questions, nil
}

// SearchAll fans out reranked searches over every source in parallel, with
// the same partial-failure tolerance as the plain engine.
func (e *RerankedEngine) SearchAll(ctx context.Context, text, state string) (*Results, error) {
	if !e.Enabled() {
		return e.engine.SearchAll(ctx, text, state)
	}

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
			e.logger.Error("reranked issue search failed", zap.Error(err))
			return nil
		}
		results.Issues = issues
		return nil
	})
	g.Go(func() error {
		posts, err := e.SimilarPosts(ctx, text)
		if err != nil {
			e.logger.Error("reranked post search failed", zap.Error(err))
			return nil
		}
		results.Posts = posts
		return nil
	})
	g.Go(func() error {
		docs, err := e.SimilarDocs(ctx, text)
		if err != nil {
			e.logger.Error("reranked doc search failed", zap.Error(err))
			return nil
		}
		results.Docs = docs
		return nil
	})
	g.Go(func() error {
		questions, err := e.SimilarQuestions(ctx, text)
		if err != nil {
			e.logger.Error("reranked question search failed", zap.Error(err))
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
