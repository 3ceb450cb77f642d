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

// BatchRepository provides data access for batch process records.
type BatchRepository interface {
	Create(ctx context.Context, bp *models.BatchProcess) error
	GetByBatchID(ctx context.Context, batchID string) (*models.BatchProcess, error)
	ListPending(ctx context.Context) ([]*models.BatchProcess, error)
	UpdateStatus(ctx context.Context, batchID, status string) error
	MarkSent(ctx context.Context, batchID string) error
	MarkReceived(ctx context.Context, batchID, outputFilePath string) error
	SetError(ctx context.Context, batchID, status, message string) error
}

type batchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new BatchRepository.
func NewBatchRepository(db *database.DB) BatchRepository {
	return &batchRepository{db: db}
}

var _ BatchRepository = (*batchRepository)(nil)

const batchSelectColumns = `
	id, batch_id, operation_type, table_name, total_requests,
	input_file_path, output_file_path, status, error_message,
	sent_at, received_at, created_at, updated_at`

func (r *batchRepository) Create(ctx context.Context, bp *models.BatchProcess) error {
	query := `
		INSERT INTO batch_processes (batch_id, operation_type, table_name, total_requests, input_file_path, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		bp.BatchID, bp.OperationType, bp.TableName, bp.TotalRequests,
		bp.InputFilePath, bp.Status).
		Scan(&bp.ID, &bp.CreatedAt, &bp.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create batch process: %w", err)
	}
	return nil
}

func (r *batchRepository) GetByBatchID(ctx context.Context, batchID string) (*models.BatchProcess, error) {
	query := `SELECT ` + batchSelectColumns + ` FROM batch_processes WHERE batch_id = $1`

	bp, err := scanBatchProcess(r.db.QueryRow(ctx, query, batchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return bp, nil
}

// ListPending returns batches that have been submitted but not yet reconciled.
func (r *batchRepository) ListPending(ctx context.Context) ([]*models.BatchProcess, error) {
	query := `
		SELECT ` + batchSelectColumns + `
		FROM batch_processes
		WHERE status = ANY($1)
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, models.PendingBatchStatuses)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending batches: %w", err)
	}
	defer rows.Close()

	var batches []*models.BatchProcess
	for rows.Next() {
		bp, err := scanBatchProcess(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, bp)
	}
	return batches, rows.Err()
}

func (r *batchRepository) UpdateStatus(ctx context.Context, batchID, status string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE batch_processes
		SET status = $2, updated_at = NOW()
		WHERE batch_id = $1`, batchID, status)
	if err != nil {
		return fmt.Errorf("failed to update batch status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *batchRepository) MarkSent(ctx context.Context, batchID string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE batch_processes
		SET status = $2, sent_at = NOW(), updated_at = NOW()
		WHERE batch_id = $1`, batchID, models.BatchStatusSent)
	if err != nil {
		return fmt.Errorf("failed to mark batch sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *batchRepository) MarkReceived(ctx context.Context, batchID, outputFilePath string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE batch_processes
		SET status = $2, output_file_path = $3, received_at = NOW(), updated_at = NOW()
		WHERE batch_id = $1`, batchID, models.BatchStatusCompleted, outputFilePath)
	if err != nil {
		return fmt.Errorf("failed to mark batch received: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *batchRepository) SetError(ctx context.Context, batchID, status, message string) error {
	result, err := r.db.Exec(ctx, `
		UPDATE batch_processes
		SET status = $2, error_message = $3, updated_at = NOW()
		WHERE batch_id = $1`, batchID, status, message)
	if err != nil {
		return fmt.Errorf("failed to set batch error: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanBatchProcess(row pgx.Row) (*models.BatchProcess, error) {
	var bp models.BatchProcess
	err := row.Scan(
		&bp.ID, &bp.BatchID, &bp.OperationType, &bp.TableName, &bp.TotalRequests,
		&bp.InputFilePath, &bp.OutputFilePath, &bp.Status, &bp.ErrorMessage,
		&bp.SentAt, &bp.ReceivedAt, &bp.CreatedAt, &bp.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan batch process: %w", err)
	}
	return &bp, nil
}
