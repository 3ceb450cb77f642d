package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/paoliniluis/similarity/pkg/apperrors"
	"github.com/paoliniluis/similarity/pkg/database"
	"github.com/paoliniluis/similarity/pkg/models"
)

// IssueEmbeddingWork describes an issue row with at least one missing
// embedding, along with which columns still need one.
type IssueEmbeddingWork struct {
	Issue        models.Issue
	NeedsTitle   bool
	NeedsBody    bool
	NeedsSummary bool
}

// BatchCandidate is a minimal entity view used when packing batch requests.
type BatchCandidate struct {
	ID     int64
	Title  string
	Body   string
	State  string
	Labels []string
}

// IssueRepository provides data access for GitHub issues.
type IssueRepository interface {
	Create(ctx context.Context, issue *models.Issue) error
	GetByNumber(ctx context.Context, number int) (*models.Issue, error)
	LatestNumber(ctx context.Context) (int, error)
	PatchEmbedding(ctx context.Context, id int64, column string, vec []float32) error
	PatchSummary(ctx context.Context, id int64, summary string, reportedVersion, stackTraceFile *string) error
	ScanMissingSummaries(ctx context.Context, limit int) ([]*models.Issue, error)
	ScanMissingEmbeddings(ctx context.Context, limit int) ([]IssueEmbeddingWork, error)
	SummarizeCandidates(ctx context.Context, limit int) ([]BatchCandidate, error)
	QuestionCandidates(ctx context.Context, limit int) ([]BatchCandidate, error)
}

type issueRepository struct {
	db *database.DB
}

// NewIssueRepository creates a new IssueRepository.
func NewIssueRepository(db *database.DB) IssueRepository {
	return &issueRepository{db: db}
}

var _ IssueRepository = (*issueRepository)(nil)

// issueEmbeddingColumns is the write whitelist for PatchEmbedding.
var issueEmbeddingColumns = map[string]bool{
	"title_embedding":   true,
	"issue_embedding":   true,
	"summary_embedding": true,
}

func (r *issueRepository) Create(ctx context.Context, issue *models.Issue) error {
	labels, err := json.Marshal(issue.Labels)
	if err != nil {
		return fmt.Errorf("failed to marshal labels: %w", err)
	}

	query := `
		INSERT INTO issues (number, title, body, state, labels, user_login, created_at, updated_at, token_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	err = r.db.QueryRow(ctx, query,
		issue.Number,
		issue.Title,
		nullString(issue.Body),
		issue.State,
		labels,
		nullString(issue.UserLogin),
		issue.CreatedAt,
		issue.UpdatedAt,
		issue.TokenCount,
	).Scan(&issue.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create issue: %w", err)
	}

	return nil
}

func (r *issueRepository) GetByNumber(ctx context.Context, number int) (*models.Issue, error) {
	query := `
		SELECT id, number, title, COALESCE(body, ''), state, labels, COALESCE(user_login, ''),
		       created_at, updated_at, llm_summary, reported_version, stack_trace_file,
		       fixed_in_version, token_count
		FROM issues
		WHERE number = $1`

	issue, err := scanIssue(r.db.QueryRow(ctx, query, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return issue, nil
}

func (r *issueRepository) LatestNumber(ctx context.Context) (int, error) {
	var number int
	err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(number), 0) FROM issues`).Scan(&number)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest issue number: %w", err)
	}
	return number, nil
}

func (r *issueRepository) PatchEmbedding(ctx context.Context, id int64, column string, vec []float32) error {
	if !issueEmbeddingColumns[column] {
		return fmt.Errorf("unknown issue embedding column %q", column)
	}
	value, err := vectorValue(vec)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE issues SET %s = $2 WHERE id = $1`, column)
	result, err := r.db.Exec(ctx, query, id, value)
	if err != nil {
		return fmt.Errorf("failed to patch issue embedding: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *issueRepository) PatchSummary(ctx context.Context, id int64, summary string, reportedVersion, stackTraceFile *string) error {
	query := `
		UPDATE issues
		SET llm_summary = $2,
		    reported_version = COALESCE($3, reported_version),
		    stack_trace_file = COALESCE($4, stack_trace_file)
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, summary, reportedVersion, stackTraceFile)
	if err != nil {
		return fmt.Errorf("failed to patch issue summary: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *issueRepository) ScanMissingSummaries(ctx context.Context, limit int) ([]*models.Issue, error) {
	query := `
		SELECT id, number, title, COALESCE(body, ''), state, labels, COALESCE(user_login, ''),
		       created_at, updated_at, llm_summary, reported_version, stack_trace_file,
		       fixed_in_version, token_count
		FROM issues
		WHERE llm_summary IS NULL AND body IS NOT NULL
		ORDER BY id
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to scan issues missing summaries: %w", err)
	}
	defer rows.Close()

	var issues []*models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

func (r *issueRepository) ScanMissingEmbeddings(ctx context.Context, limit int) ([]IssueEmbeddingWork, error) {
	query := `
		SELECT id, number, title, COALESCE(body, ''), state, labels, COALESCE(user_login, ''),
		       created_at, updated_at, llm_summary, reported_version, stack_trace_file,
		       fixed_in_version, token_count,
		       (title_embedding IS NULL AND title IS NOT NULL) AS needs_title,
		       (issue_embedding IS NULL AND body IS NOT NULL) AS needs_body,
		       (summary_embedding IS NULL AND llm_summary IS NOT NULL) AS needs_summary
		FROM issues
		WHERE (title_embedding IS NULL AND title IS NOT NULL)
		   OR (issue_embedding IS NULL AND body IS NOT NULL)
		   OR (summary_embedding IS NULL AND llm_summary IS NOT NULL)
		ORDER BY id
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to scan issues missing embeddings: %w", err)
	}
	defer rows.Close()

	var work []IssueEmbeddingWork
	for rows.Next() {
		var w IssueEmbeddingWork
		var labels []byte
		err := rows.Scan(
			&w.Issue.ID, &w.Issue.Number, &w.Issue.Title, &w.Issue.Body, &w.Issue.State,
			&labels, &w.Issue.UserLogin, &w.Issue.CreatedAt, &w.Issue.UpdatedAt,
			&w.Issue.LLMSummary, &w.Issue.ReportedVersion, &w.Issue.StackTraceFile,
			&w.Issue.FixedInVersion, &w.Issue.TokenCount,
			&w.NeedsTitle, &w.NeedsBody, &w.NeedsSummary,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue embedding work: %w", err)
		}
		if err := json.Unmarshal(labels, &w.Issue.Labels); err != nil {
			return nil, fmt.Errorf("failed to unmarshal labels: %w", err)
		}
		work = append(work, w)
	}
	return work, rows.Err()
}

func (r *issueRepository) SummarizeCandidates(ctx context.Context, limit int) ([]BatchCandidate, error) {
	query := `
		SELECT id, title, COALESCE(body, ''), state, labels
		FROM issues
		WHERE llm_summary IS NULL AND body IS NOT NULL
		ORDER BY id
		LIMIT $1`
	return r.scanCandidates(ctx, query, limit)
}

// QuestionCandidates selects issues that have no extracted questions yet.
// Feature requests are excluded: they describe wishes, not answerable facts.
func (r *issueRepository) QuestionCandidates(ctx context.Context, limit int) ([]BatchCandidate, error) {
	query := `
		SELECT id, title, COALESCE(body, ''), state, labels
		FROM issues
		WHERE body IS NOT NULL
		  AND labels::text NOT LIKE '%feature request%'
		  AND id NOT IN (SELECT DISTINCT source_id FROM questions WHERE source_type = 'ISSUE')
		ORDER BY id
		LIMIT $1`
	return r.scanCandidates(ctx, query, limit)
}

func (r *issueRepository) scanCandidates(ctx context.Context, query string, limit int) ([]BatchCandidate, error) {
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select issue batch candidates: %w", err)
	}
	defer rows.Close()

	var candidates []BatchCandidate
	for rows.Next() {
		var c BatchCandidate
		var labels []byte
		if err := rows.Scan(&c.ID, &c.Title, &c.Body, &c.State, &labels); err != nil {
			return nil, fmt.Errorf("failed to scan issue candidate: %w", err)
		}
		if err := json.Unmarshal(labels, &c.Labels); err != nil {
			return nil, fmt.Errorf("failed to unmarshal labels: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

func scanIssue(row pgx.Row) (*models.Issue, error) {
	var issue models.Issue
	var labels []byte

	err := row.Scan(
		&issue.ID, &issue.Number, &issue.Title, &issue.Body, &issue.State,
		&labels, &issue.UserLogin, &issue.CreatedAt, &issue.UpdatedAt,
		&issue.LLMSummary, &issue.ReportedVersion, &issue.StackTraceFile,
		&issue.FixedInVersion, &issue.TokenCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan issue: %w", err)
	}

	if err := json.Unmarshal(labels, &issue.Labels); err != nil {
		return nil, fmt.Errorf("failed to unmarshal labels: %w", err)
	}

	return &issue, nil
}
