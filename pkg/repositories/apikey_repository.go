package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/paoliniluis/similarity/pkg/apperrors"
	"github.com/paoliniluis/similarity/pkg/database"
	"github.com/paoliniluis/similarity/pkg/models"
)

// APIKeyRepository provides data access for API credentials.
type APIKeyRepository interface {
	Create(ctx context.Context, description string) (*models.APIKey, error)
	Validate(ctx context.Context, key string) error
}

type apiKeyRepository struct {
	db *database.DB
}

// NewAPIKeyRepository creates a new APIKeyRepository.
func NewAPIKeyRepository(db *database.DB) APIKeyRepository {
	return &apiKeyRepository{db: db}
}

var _ APIKeyRepository = (*apiKeyRepository)(nil)

// Create generates a new opaque key and stores it with its description.
func (r *apiKeyRepository) Create(ctx context.Context, description string) (*models.APIKey, error) {
	apiKey := &models.APIKey{
		Key:         uuid.NewString(),
		Description: description,
	}

	query := `
		INSERT INTO api_keys (key, description)
		VALUES ($1, $2)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query, apiKey.Key, apiKey.Description).Scan(&apiKey.ID, &apiKey.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create API key: %w", err)
	}
	return apiKey, nil
}

// Validate returns nil when the key exists, apperrors.ErrUnauthorized otherwise.
func (r *apiKeyRepository) Validate(ctx context.Context, key string) error {
	if key == "" {
		return apperrors.ErrUnauthorized
	}

	var id int64
	err := r.db.QueryRow(ctx, `SELECT id FROM api_keys WHERE key = $1`, key).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrUnauthorized
		}
		return fmt.Errorf("failed to validate API key: %w", err)
	}
	return nil
}
