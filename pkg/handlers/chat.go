package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/paoliniluis/similarity/pkg/apperrors"
	"github.com/paoliniluis/similarity/pkg/chat"
)

// ChatRequest carries the user's question and the conversation id.
type ChatRequest struct {
	Text   string `json:"text"`
	ChatID int64  `json:"chat_id"`
}

// ChatResponse is the grounded answer with the source URLs used.
type ChatResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// ChatHandler exposes the retrieval-augmented chat endpoint.
type ChatHandler struct {
	service *chat.Service
	logger  *zap.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(service *chat.Service, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{service: service, logger: logger}
}

// RegisterRoutes registers the chat route on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v2/chat", h.Chat)
}

// Chat handles POST /v2/chat requests.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	resp, err := h.service.Process(r.Context(), req.ChatID, req.Text)
	if err != nil {
		if errors.Is(err, apperrors.ErrTextTooShort) {
			_ = ErrorResponse(w, http.StatusBadRequest,
				"Input too short. Please provide a meaningful question about Metabase.")
			return
		}
		h.logger.Error("chat request failed",
			zap.Int64("chat_id", req.ChatID),
			zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "Failed to process chat request")
		return
	}

	_ = WriteJSON(w, http.StatusOK, ChatResponse{Answer: resp.Answer, Sources: resp.Sources})
}
