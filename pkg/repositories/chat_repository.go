package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/paoliniluis/similarity/pkg/apperrors"
	"github.com/paoliniluis/similarity/pkg/database"
	"github.com/paoliniluis/similarity/pkg/models"
)

// ChatRepository persists the chat session audit trail.
type ChatRepository interface {
	CreateSession(ctx context.Context, session *models.ChatSession) error
	FinishSession(ctx context.Context, session *models.ChatSession) error
	AddEntity(ctx context.Context, entity *models.ChatSessionEntity) error
}

type chatRepository struct {
	db *database.DB
}

// NewChatRepository creates a new ChatRepository.
func NewChatRepository(db *database.DB) ChatRepository {
	return &chatRepository{db: db}
}

var _ ChatRepository = (*chatRepository)(nil)

// CreateSession records the raw user request before any processing happens,
// so even a failed request leaves an audit row.
func (r *chatRepository) CreateSession(ctx context.Context, session *models.ChatSession) error {
	query := `
		INSERT INTO chat_sessions (chat_id, user_request)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query, session.ChatID, session.UserRequest).
		Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create chat session: %w", err)
	}
	return nil
}

// FinishSession stores the assembled prompt, response, sources and usage.
func (r *chatRepository) FinishSession(ctx context.Context, session *models.ChatSession) error {
	sources, err := json.Marshal(session.Sources)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}

	query := `
		UPDATE chat_sessions
		SET prompt = $2, sources = $3, response = $4,
		    tokens_sent = $5, tokens_received = $6, cache_hit = $7,
		    updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query,
		session.ID, session.Prompt, sources, session.Response,
		session.TokensSent, session.TokensReceived, session.CacheHit)
	if err != nil {
		return fmt.Errorf("failed to finish chat session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *chatRepository) AddEntity(ctx context.Context, entity *models.ChatSessionEntity) error {
	query := `
		INSERT INTO chat_session_entities (chat_session_id, entity_type, entity_id, entity_url, similarity_score)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		entity.ChatSessionID, entity.EntityType, entity.EntityID,
		entity.EntityURL, entity.SimilarityScore).Scan(&entity.ID)
	if err != nil {
		return fmt.Errorf("failed to add chat session entity: %w", err)
	}
	return nil
}
