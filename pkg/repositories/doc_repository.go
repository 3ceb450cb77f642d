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

// DocEmbeddingWork describes a documentation row with missing embeddings.
type DocEmbeddingWork struct {
	Doc           models.MetabaseDoc
	NeedsMarkdown bool
	NeedsSummary  bool
}

// DocRepository provides data access for documentation pages.
type DocRepository interface {
	Upsert(ctx context.Context, doc *models.MetabaseDoc) error
	GetByIDs(ctx context.Context, ids []int64) ([]*models.MetabaseDoc, error)
	PatchEmbedding(ctx context.Context, id int64, column string, vec []float32) error
	PatchSummary(ctx context.Context, id int64, summary string) error
	ScanMissingSummaries(ctx context.Context, limit int) ([]*models.MetabaseDoc, error)
	ScanMissingEmbeddings(ctx context.Context, limit int) ([]DocEmbeddingWork, error)
	SummarizeCandidates(ctx context.Context, limit int) ([]BatchCandidate, error)
	QuestionCandidates(ctx context.Context, limit int) ([]BatchCandidate, error)
}

type docRepository struct {
	db *database.DB
}

// NewDocRepository creates a new DocRepository.
func NewDocRepository(db *database.DB) DocRepository {
	return &docRepository{db: db}
}

var _ DocRepository = (*docRepository)(nil)

var docEmbeddingColumns = map[string]bool{
	"markdown_embedding": true,
	"summary_embedding":  true,
}

func (r *docRepository) Upsert(ctx context.Context, doc *models.MetabaseDoc) error {
	query := `
		INSERT INTO metabase_docs (url, markdown, token_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (url) DO UPDATE
		SET markdown = EXCLUDED.markdown, token_count = EXCLUDED.token_count
		RETURNING id`

	err := r.db.QueryRow(ctx, query, doc.URL, nullString(doc.Markdown), doc.TokenCount).Scan(&doc.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrAlreadyExists
		}
		return fmt.Errorf("failed to upsert doc: %w", err)
	}
	return nil
}

func (r *docRepository) GetByIDs(ctx context.Context, ids []int64) ([]*models.MetabaseDoc, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, url, COALESCE(markdown, ''), llm_summary, token_count
		FROM metabase_docs
		WHERE id = ANY($1)`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get docs by ids: %w", err)
	}
	defer rows.Close()

	var docs []*models.MetabaseDoc
	for rows.Next() {
		doc, err := scanDoc(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *docRepository) PatchEmbedding(ctx context.Context, id int64, column string, vec []float32) error {
	if !docEmbeddingColumns[column] {
		return fmt.Errorf("unknown doc embedding column %q", column)
	}
	value, err := vectorValue(vec)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE metabase_docs SET %s = $2 WHERE id = $1`, column)
	result, err := r.db.Exec(ctx, query, id, value)
	if err != nil {
		return fmt.Errorf("failed to patch doc embedding: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *docRepository) PatchSummary(ctx context.Context, id int64, summary string) error {
	result, err := r.db.Exec(ctx, `UPDATE metabase_docs SET llm_summary = $2 WHERE id = $1`, id, summary)
	if err != nil {
		return fmt.Errorf("failed to patch doc summary: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *docRepository) ScanMissingSummaries(ctx context.Context, limit int) ([]*models.MetabaseDoc, error) {
	query := `
		SELECT id, url, COALESCE(markdown, ''), llm_summary, token_count
		FROM metabase_docs
		WHERE llm_summary IS NULL AND markdown IS NOT NULL
		ORDER BY id
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to scan docs missing summaries: %w", err)
	}
	defer rows.Close()

	var docs []*models.MetabaseDoc
	for rows.Next() {
		doc, err := scanDoc(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *docRepository) ScanMissingEmbeddings(ctx context.Context, limit int) ([]DocEmbeddingWork, error) {
	query := `
		SELECT id, url, COALESCE(markdown, ''), llm_summary, token_count,
		       (markdown_embedding IS NULL AND markdown IS NOT NULL) AS needs_markdown,
		       (summary_embedding IS NULL AND llm_summary IS NOT NULL) AS needs_summary
		FROM metabase_docs
		WHERE (markdown_embedding IS NULL AND markdown IS NOT NULL)
		   OR (summary_embedding IS NULL AND llm_summary IS NOT NULL)
		ORDER BY id
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to scan docs missing embeddings: %w", err)
	}
	defer rows.Close()

	var work []DocEmbeddingWork
	for rows.Next() {
		var w DocEmbeddingWork
		err := rows.Scan(
			&w.Doc.ID, &w.Doc.URL, &w.Doc.Markdown, &w.Doc.LLMSummary, &w.Doc.TokenCount,
			&w.NeedsMarkdown, &w.NeedsSummary,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan doc embedding work: %w", err)
		}
		work = append(work, w)
	}
	return work, rows.Err()
}

func (r *docRepository) SummarizeCandidates(ctx context.Context, limit int) ([]BatchCandidate, error) {
	query := `
		SELECT id, url, COALESCE(markdown, '')
		FROM metabase_docs
		WHERE llm_summary IS NULL AND markdown IS NOT NULL
		ORDER BY id
		LIMIT $1`
	return r.scanCandidates(ctx, query, limit)
}

func (r *docRepository) QuestionCandidates(ctx context.Context, limit int) ([]BatchCandidate, error) {
	query := `
		SELECT id, url, COALESCE(markdown, '')
		FROM metabase_docs
		WHERE markdown IS NOT NULL
		  AND id NOT IN (SELECT DISTINCT source_id FROM questions WHERE source_type = 'METABASE_DOC')
		ORDER BY id
		LIMIT $1`
	return r.scanCandidates(ctx, query, limit)
}

func (r *docRepository) scanCandidates(ctx context.Context, query string, limit int) ([]BatchCandidate, error) {
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select doc batch candidates: %w", err)
	}
	defer rows.Close()

	var candidates []BatchCandidate
	for rows.Next() {
		var c BatchCandidate
		if err := rows.Scan(&c.ID, &c.Title, &c.Body); err != nil {
			return nil, fmt.Errorf("failed to scan doc candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

func scanDoc(row pgx.Row) (*models.MetabaseDoc, error) {
	var doc models.MetabaseDoc
	err := row.Scan(&doc.ID, &doc.URL, &doc.Markdown, &doc.LLMSummary, &doc.TokenCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan doc: %w", err)
	}
	return &doc, nil
}
