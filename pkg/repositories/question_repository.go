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

// QuestionEmbeddingWork describes a Q&A row with missing embeddings.
type QuestionEmbeddingWork struct {
	Question      models.Question
	NeedsQuestion bool
	NeedsAnswer   bool
}

// QuestionRepository provides data access for extracted Q&A pairs.
type QuestionRepository interface {
	Insert(ctx context.Context, q *models.Question) error
	GetByIDs(ctx context.Context, ids []int64) ([]*models.Question, error)
	GetBySourceAndQuestion(ctx context.Context, sourceType models.SourceType, sourceID int64, question string) (*models.Question, error)
	UpdateAnswer(ctx context.Context, id int64, answer string) error
	PatchEmbedding(ctx context.Context, id int64, column string, vec []float32) error
	ScanMissingEmbeddings(ctx context.Context, limit int) ([]QuestionEmbeddingWork, error)
}

type questionRepository struct {
	db *database.DB
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(db *database.DB) QuestionRepository {
	return &questionRepository{db: db}
}

var _ QuestionRepository = (*questionRepository)(nil)

var questionEmbeddingColumns = map[string]bool{
	"question_embedding": true,
	"answer_embedding":   true,
}

// Insert stores a Q&A pair. Duplicate questions for the same source are
// detected case-insensitively and reported as ErrAlreadyExists.
func (r *questionRepository) Insert(ctx context.Context, q *models.Question) error {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM questions
			WHERE source_type = $1 AND source_id = $2 AND LOWER(question) = LOWER($3)
		)`, q.SourceType, q.SourceID, q.Question).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check question existence: %w", err)
	}
	if exists {
		return apperrors.ErrAlreadyExists
	}

	query := `
		INSERT INTO questions (source_type, source_id, question, answer)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	err = r.db.QueryRow(ctx, query, q.SourceType, q.SourceID, q.Question, q.Answer).Scan(&q.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert question: %w", err)
	}
	return nil
}

func (r *questionRepository) GetByIDs(ctx context.Context, ids []int64) ([]*models.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, source_type, source_id, question, answer
		FROM questions
		WHERE id = ANY($1)`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get questions by ids: %w", err)
	}
	defer rows.Close()

	var questions []*models.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (r *questionRepository) PatchEmbedding(ctx context.Context, id int64, column string, vec []float32) error {
	if !questionEmbeddingColumns[column] {
		return fmt.Errorf("unknown question embedding column %q", column)
	}
	value, err := vectorValue(vec)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE questions SET %s = $2 WHERE id = $1`, column)
	result, err := r.db.Exec(ctx, query, id, value)
	if err != nil {
		return fmt.Errorf("failed to patch question embedding: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *questionRepository) ScanMissingEmbeddings(ctx context.Context, limit int) ([]QuestionEmbeddingWork, error) {
	query := `
		SELECT id, source_type, source_id, question, answer,
		       (question_embedding IS NULL) AS needs_question,
		       (answer_embedding IS NULL) AS needs_answer
		FROM questions
		WHERE question_embedding IS NULL OR answer_embedding IS NULL
		ORDER BY id
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to scan questions missing embeddings: %w", err)
	}
	defer rows.Close()

	var work []QuestionEmbeddingWork
	for rows.Next() {
		var w QuestionEmbeddingWork
		err := rows.Scan(
			&w.Question.ID, &w.Question.SourceType, &w.Question.SourceID,
			&w.Question.Question, &w.Question.Answer,
			&w.NeedsQuestion, &w.NeedsAnswer,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question embedding work: %w", err)
		}
		work = append(work, w)
	}
	return work, rows.Err()
}

// GetBySourceAndQuestion finds a stored pair by its case-insensitive
// question text, matching the duplicate check in Insert.
func (r *questionRepository) GetBySourceAndQuestion(ctx context.Context, sourceType models.SourceType, sourceID int64, question string) (*models.Question, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, source_type, source_id, question, answer
		FROM questions
		WHERE source_type = $1 AND source_id = $2 AND LOWER(question) = LOWER($3)`,
		sourceType, sourceID, question)

	q, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return q, nil
}

// UpdateAnswer replaces a stored answer and clears its embedding so the
// embedding worker regenerates it.
func (r *questionRepository) UpdateAnswer(ctx context.Context, id int64, answer string) error {
	result, err := r.db.Exec(ctx,
		`UPDATE questions SET answer = $2, answer_embedding = NULL WHERE id = $1`,
		id, answer)
	if err != nil {
		return fmt.Errorf("failed to update question answer: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanQuestion(row pgx.Row) (*models.Question, error) {
	var q models.Question
	err := row.Scan(&q.ID, &q.SourceType, &q.SourceID, &q.Question, &q.Answer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan question: %w", err)
	}
	return &q, nil
}
