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

// KeywordRepository provides data access for the curated vocabulary.
type KeywordRepository interface {
	Create(ctx context.Context, kw *models.KeywordDefinition) error
	Update(ctx context.Context, keyword, definition string, category *string) error
	UpdateDefinition(ctx context.Context, keyword, definition string) error
	Delete(ctx context.Context, keyword string) error
	Toggle(ctx context.Context, keyword string) (bool, error)
	GetByKeyword(ctx context.Context, keyword string) (*models.KeywordDefinition, error)
	List(ctx context.Context, category *string, includeInactive bool) ([]*models.KeywordDefinition, error)
	ListActive(ctx context.Context) ([]*models.KeywordDefinition, error)
	PatchEmbedding(ctx context.Context, id int64, vec []float32) error
	ScanMissingEmbeddings(ctx context.Context, limit int) ([]*models.KeywordDefinition, error)
}

type keywordRepository struct {
	db *database.DB
}

// NewKeywordRepository creates a new KeywordRepository.
func NewKeywordRepository(db *database.DB) KeywordRepository {
	return &keywordRepository{db: db}
}

var _ KeywordRepository = (*keywordRepository)(nil)

func (r *keywordRepository) Create(ctx context.Context, kw *models.KeywordDefinition) error {
	query := `
		INSERT INTO keyword_definitions (keyword, definition, category, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	err := r.db.QueryRow(ctx, query, kw.Keyword, kw.Definition, kw.Category, kw.IsActive).Scan(&kw.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create keyword: %w", err)
	}
	return nil
}

// Update rewrites the definition (and category when provided) and clears the
// stale embedding so the embedding worker regenerates it.
func (r *keywordRepository) Update(ctx context.Context, keyword, definition string, category *string) error {
	query := `
		UPDATE keyword_definitions
		SET definition = $2,
		    category = COALESCE($3, category),
		    keyword_embedding = NULL
		WHERE keyword = $1`

	result, err := r.db.Exec(ctx, query, keyword, definition, category)
	if err != nil {
		return fmt.Errorf("failed to update keyword: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *keywordRepository) UpdateDefinition(ctx context.Context, keyword, definition string) error {
	return r.Update(ctx, keyword, definition, nil)
}

func (r *keywordRepository) Delete(ctx context.Context, keyword string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM keyword_definitions WHERE keyword = $1`, keyword)
	if err != nil {
		return fmt.Errorf("failed to delete keyword: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Toggle flips is_active and returns the new value.
func (r *keywordRepository) Toggle(ctx context.Context, keyword string) (bool, error) {
	var active bool
	err := r.db.QueryRow(ctx, `
		UPDATE keyword_definitions
		SET is_active = NOT is_active
		WHERE keyword = $1
		RETURNING is_active`, keyword).Scan(&active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, apperrors.ErrNotFound
		}
		return false, fmt.Errorf("failed to toggle keyword: %w", err)
	}
	return active, nil
}

func (r *keywordRepository) GetByKeyword(ctx context.Context, keyword string) (*models.KeywordDefinition, error) {
	query := `
		SELECT id, keyword, definition, category, is_active
		FROM keyword_definitions
		WHERE keyword = $1`

	kw, err := scanKeyword(r.db.QueryRow(ctx, query, keyword))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return kw, nil
}

func (r *keywordRepository) List(ctx context.Context, category *string, includeInactive bool) ([]*models.KeywordDefinition, error) {
	query := `
		SELECT id, keyword, definition, category, is_active
		FROM keyword_definitions
		WHERE ($1::text IS NULL OR category = $1)
		  AND ($2 OR is_active)
		ORDER BY keyword`

	rows, err := r.db.Query(ctx, query, category, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("failed to list keywords: %w", err)
	}
	defer rows.Close()

	var keywords []*models.KeywordDefinition
	for rows.Next() {
		kw, err := scanKeyword(rows)
		if err != nil {
			return nil, err
		}
		keywords = append(keywords, kw)
	}
	return keywords, rows.Err()
}

func (r *keywordRepository) ListActive(ctx context.Context) ([]*models.KeywordDefinition, error) {
	return r.List(ctx, nil, false)
}

func (r *keywordRepository) PatchEmbedding(ctx context.Context, id int64, vec []float32) error {
	value, err := vectorValue(vec)
	if err != nil {
		return err
	}

	result, err := r.db.Exec(ctx, `UPDATE keyword_definitions SET keyword_embedding = $2 WHERE id = $1`, id, value)
	if err != nil {
		return fmt.Errorf("failed to patch keyword embedding: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *keywordRepository) ScanMissingEmbeddings(ctx context.Context, limit int) ([]*models.KeywordDefinition, error) {
	query := `
		SELECT id, keyword, definition, category, is_active
		FROM keyword_definitions
		WHERE keyword_embedding IS NULL
		ORDER BY id
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to scan keywords missing embeddings: %w", err)
	}
	defer rows.Close()

	var keywords []*models.KeywordDefinition
	for rows.Next() {
		kw, err := scanKeyword(rows)
		if err != nil {
			return nil, err
		}
		keywords = append(keywords, kw)
	}
	return keywords, rows.Err()
}

func scanKeyword(row pgx.Row) (*models.KeywordDefinition, error) {
	var kw models.KeywordDefinition
	err := row.Scan(&kw.ID, &kw.Keyword, &kw.Definition, &kw.Category, &kw.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan keyword: %w", err)
	}
	return &kw, nil
}
