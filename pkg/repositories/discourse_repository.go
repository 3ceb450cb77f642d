package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/paoliniluis/similarity/pkg/apperrors"
	"github.com/paoliniluis/similarity/pkg/database"
	"github.com/paoliniluis/similarity/pkg/models"
)

// DiscourseEmbeddingWork describes a forum post row with missing embeddings.
type DiscourseEmbeddingWork struct {
	Post              models.DiscoursePost
	NeedsConversation bool
	NeedsSummary      bool
}

// DiscourseRepository provides data access for forum posts.
type DiscourseRepository interface {
	Create(ctx context.Context, post *models.DiscoursePost) error
	GetByTopicID(ctx context.Context, topicID int) (*models.DiscoursePost, error)
	LatestTopicID(ctx context.Context) (int, error)
	PatchEmbedding(ctx context.Context, id int64, column string, vec []float32) error
	PatchSummary(ctx context.Context, id int64, summary string) error
	ScanMissingSummaries(ctx context.Context, limit int) ([]*models.DiscoursePost, error)
	ScanMissingEmbeddings(ctx context.Context, limit int) ([]DiscourseEmbeddingWork, error)
	SummarizeCandidates(ctx context.Context, limit int) ([]BatchCandidate, error)
	QuestionCandidates(ctx context.Context, limit int) ([]BatchCandidate, error)
}

type discourseRepository struct {
	db *database.DB
}

// NewDiscourseRepository creates a new DiscourseRepository.
func NewDiscourseRepository(db *database.DB) DiscourseRepository {
	return &discourseRepository{db: db}
}

var _ DiscourseRepository = (*discourseRepository)(nil)

var discourseEmbeddingColumns = map[string]bool{
	"conversation_embedding": true,
	"summary_embedding":      true,
	"solution_embedding":     true,
}

const discourseSelectColumns = `
	id, topic_id, title, slug, COALESCE(conversation, ''), created_at,
	llm_summary, type_of_topic, solution, version, reference, token_count`

func (r *discourseRepository) Create(ctx context.Context, post *models.DiscoursePost) error {
	query := `
		INSERT INTO discourse_posts (topic_id, title, slug, conversation, created_at, token_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		post.TopicID,
		post.Title,
		post.Slug,
		nullString(post.Conversation),
		post.CreatedAt,
		post.TokenCount,
	).Scan(&post.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create discourse post: %w", err)
	}

	return nil
}

func (r *discourseRepository) GetByTopicID(ctx context.Context, topicID int) (*models.DiscoursePost, error) {
	query := `SELECT ` + discourseSelectColumns + ` FROM discourse_posts WHERE topic_id = $1`

	post, err := scanDiscoursePost(r.db.QueryRow(ctx, query, topicID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return post, nil
}

func (r *discourseRepository) LatestTopicID(ctx context.Context) (int, error) {
	var topicID int
	err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(topic_id), 0) FROM discourse_posts`).Scan(&topicID)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest topic id: %w", err)
	}
	return topicID, nil
}

func (r *discourseRepository) PatchEmbedding(ctx context.Context, id int64, column string, vec []float32) error {
	if !discourseEmbeddingColumns[column] {
		return fmt.Errorf("unknown discourse embedding column %q", column)
	}
	value, err := vectorValue(vec)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE discourse_posts SET %s = $2 WHERE id = $1`, column)
	result, err := r.db.Exec(ctx, query, id, value)
	if err != nil {
		return fmt.Errorf("failed to patch discourse embedding: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *discourseRepository) PatchSummary(ctx context.Context, id int64, summary string) error {
	result, err := r.db.Exec(ctx, `UPDATE discourse_posts SET llm_summary = $2 WHERE id = $1`, id, summary)
	if err != nil {
		return fmt.Errorf("failed to patch discourse summary: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *discourseRepository) ScanMissingSummaries(ctx context.Context, limit int) ([]*models.DiscoursePost, error) {
	query := `SELECT ` + discourseSelectColumns + `
		FROM discourse_posts
		WHERE llm_summary IS NULL AND conversation IS NOT NULL
		ORDER BY id
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to scan discourse posts missing summaries: %w", err)
	}
	defer rows.Close()

	var posts []*models.DiscoursePost
	for rows.Next() {
		post, err := scanDiscoursePost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *discourseRepository) ScanMissingEmbeddings(ctx context.Context, limit int) ([]DiscourseEmbeddingWork, error) {
	query := `SELECT ` + discourseSelectColumns + `,
		       (conversation_embedding IS NULL AND conversation IS NOT NULL) AS needs_conversation,
		       (summary_embedding IS NULL AND llm_summary IS NOT NULL) AS needs_summary
		FROM discourse_posts
		WHERE (conversation_embedding IS NULL AND conversation IS NOT NULL)
		   OR (summary_embedding IS NULL AND llm_summary IS NOT NULL)
		ORDER BY id
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to scan discourse posts missing embeddings: %w", err)
	}
	defer rows.Close()

	var work []DiscourseEmbeddingWork
	for rows.Next() {
		var w DiscourseEmbeddingWork
		err := rows.Scan(
			&w.Post.ID, &w.Post.TopicID, &w.Post.Title, &w.Post.Slug, &w.Post.Conversation,
			&w.Post.CreatedAt, &w.Post.LLMSummary, &w.Post.TopicKind, &w.Post.Solution,
			&w.Post.Version, &w.Post.ReferenceURL, &w.Post.TokenCount,
			&w.NeedsConversation, &w.NeedsSummary,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan discourse embedding work: %w", err)
		}
		work = append(work, w)
	}
	return work, rows.Err()
}

func (r *discourseRepository) SummarizeCandidates(ctx context.Context, limit int) ([]BatchCandidate, error) {
	query := `
		SELECT id, title, COALESCE(conversation, '')
		FROM discourse_posts
		WHERE llm_summary IS NULL AND conversation IS NOT NULL
		ORDER BY id
		LIMIT $1`
	return r.scanCandidates(ctx, query, limit)
}

func (r *discourseRepository) QuestionCandidates(ctx context.Context, limit int) ([]BatchCandidate, error) {
	query := `
		SELECT id, title, COALESCE(conversation, '')
		FROM discourse_posts
		WHERE conversation IS NOT NULL
		  AND id NOT IN (SELECT DISTINCT source_id FROM questions WHERE source_type = 'DISCOURSE_POST')
		ORDER BY id
		LIMIT $1`
	return r.scanCandidates(ctx, query, limit)
}

func (r *discourseRepository) scanCandidates(ctx context.Context, query string, limit int) ([]BatchCandidate, error) {
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select discourse batch candidates: %w", err)
	}
	defer rows.Close()

	var candidates []BatchCandidate
	for rows.Next() {
		var c BatchCandidate
		if err := rows.Scan(&c.ID, &c.Title, &c.Body); err != nil {
			return nil, fmt.Errorf("failed to scan discourse candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

func scanDiscoursePost(row pgx.Row) (*models.DiscoursePost, error) {
	var post models.DiscoursePost
	err := row.Scan(
		&post.ID, &post.TopicID, &post.Title, &post.Slug, &post.Conversation,
		&post.CreatedAt, &post.LLMSummary, &post.TopicKind, &post.Solution,
		&post.Version, &post.ReferenceURL, &post.TokenCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan discourse post: %w", err)
	}
	return &post, nil
}
