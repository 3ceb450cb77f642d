package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/paoliniluis/similarity/pkg/apperrors"
	"github.com/paoliniluis/similarity/pkg/embedding"
)

// EmbeddingRequest asks for an embedding of a single text.
type EmbeddingRequest struct {
	Text string `json:"text"`
}

// EmbeddingResponse carries the resulting vector.
type EmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// EmbeddingHandler exposes the embedding provider over HTTP so workers
// and external tools share one vector source.
type EmbeddingHandler struct {
	embeddings *embedding.Service
	logger     *zap.Logger
}

// NewEmbeddingHandler creates a new EmbeddingHandler.
func NewEmbeddingHandler(embeddings *embedding.Service, logger *zap.Logger) *EmbeddingHandler {
	return &EmbeddingHandler{embeddings: embeddings, logger: logger}
}

// RegisterRoutes registers the embedding route on the given mux.
func (h *EmbeddingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /embedding", h.Create)
}

// Create handles POST /embedding requests.
func (h *EmbeddingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req EmbeddingRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	vec, err := h.embeddings.Embed(r.Context(), req.Text)
	if err != nil {
		if errors.Is(err, apperrors.ErrEmptyText) {
			_ = ErrorResponse(w, http.StatusBadRequest, "Text must not be empty")
			return
		}
		h.logger.Error("embedding request failed", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "Failed to create embedding")
		return
	}

	_ = WriteJSON(w, http.StatusOK, EmbeddingResponse{Embedding: vec})
}
