package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/paoliniluis/similarity/pkg/apperrors"
	"github.com/paoliniluis/similarity/pkg/database"
	"github.com/paoliniluis/similarity/pkg/models"
)

// SynonymEmbeddingWork describes a synonym row with missing embeddings.
type SynonymEmbeddingWork struct {
	Synonym      models.Synonym
	NeedsWord    bool
	NeedsSynonym bool
}

// SynonymRepository provides data access for synonym relations.
type SynonymRepository interface {
	Add(ctx context.Context, word, synonymOf string) error
	Delete(ctx context.Context, word, synonymOf string) error
	List(ctx context.Context, synonymOf *string) ([]*models.Synonym, error)
	WordsFor(ctx context.Context, keyword string) ([]string, error)
	PatchEmbedding(ctx context.Context, id int64, column string, vec []float32) error
	ScanMissingEmbeddings(ctx context.Context, limit int) ([]SynonymEmbeddingWork, error)
}

type synonymRepository struct {
	db *database.DB
}

// NewSynonymRepository creates a new SynonymRepository.
func NewSynonymRepository(db *database.DB) SynonymRepository {
	return &synonymRepository{db: db}
}

var _ SynonymRepository = (*synonymRepository)(nil)

var synonymEmbeddingColumns = map[string]bool{
	"word_embedding":    true,
	"synonym_embedding": true,
}

func (r *synonymRepository) Add(ctx context.Context, word, synonymOf string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO synonyms (word, synonym_of) VALUES ($1, $2)`, word, synonymOf)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrAlreadyExists
		}
		return fmt.Errorf("failed to add synonym: %w", err)
	}
	return nil
}

func (r *synonymRepository) Delete(ctx context.Context, word, synonymOf string) error {
	result, err := r.db.Exec(ctx,
		`DELETE FROM synonyms WHERE word = $1 AND synonym_of = $2`, word, synonymOf)
	if err != nil {
		return fmt.Errorf("failed to delete synonym: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *synonymRepository) List(ctx context.Context, synonymOf *string) ([]*models.Synonym, error) {
	query := `
		SELECT id, word, synonym_of
		FROM synonyms
		WHERE $1::text IS NULL OR synonym_of = $1
		ORDER BY synonym_of, word`

	rows, err := r.db.Query(ctx, query, synonymOf)
	if err != nil {
		return nil, fmt.Errorf("failed to list synonyms: %w", err)
	}
	defer rows.Close()

	var synonyms []*models.Synonym
	for rows.Next() {
		var s models.Synonym
		if err := rows.Scan(&s.ID, &s.Word, &s.SynonymOf); err != nil {
			return nil, fmt.Errorf("failed to scan synonym: %w", err)
		}
		synonyms = append(synonyms, &s)
	}
	return synonyms, rows.Err()
}

func (r *synonymRepository) WordsFor(ctx context.Context, keyword string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT word FROM synonyms WHERE synonym_of = $1 ORDER BY word`, keyword)
	if err != nil {
		return nil, fmt.Errorf("failed to get synonym words: %w", err)
	}
	defer rows.Close()

	var words []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("failed to scan synonym word: %w", err)
		}
		words = append(words, w)
	}
	return words, rows.Err()
}

func (r *synonymRepository) PatchEmbedding(ctx context.Context, id int64, column string, vec []float32) error {
	if !synonymEmbeddingColumns[column] {
		return fmt.Errorf("unknown synonym embedding column %q", column)
	}
	value, err := vectorValue(vec)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE synonyms SET %s = $2 WHERE id = $1`, column)
	result, err := r.db.Exec(ctx, query, id, value)
	if err != nil {
		return fmt.Errorf("failed to patch synonym embedding: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *synonymRepository) ScanMissingEmbeddings(ctx context.Context, limit int) ([]SynonymEmbeddingWork, error) {
	query := `
		SELECT id, word, synonym_of,
		       (word_embedding IS NULL) AS needs_word,
		       (synonym_embedding IS NULL) AS needs_synonym
		FROM synonyms
		WHERE word_embedding IS NULL OR synonym_embedding IS NULL
		ORDER BY id
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to scan synonyms missing embeddings: %w", err)
	}
	defer rows.Close()

	var work []SynonymEmbeddingWork
	for rows.Next() {
		var w SynonymEmbeddingWork
		err := rows.Scan(&w.Synonym.ID, &w.Synonym.Word, &w.Synonym.SynonymOf, &w.NeedsWord, &w.NeedsSynonym)
		if err != nil {
			return nil, fmt.Errorf("failed to scan synonym embedding work: %w", err)
		}
		work = append(work, w)
	}
	return work, rows.Err()
}
