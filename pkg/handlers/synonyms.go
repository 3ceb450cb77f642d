package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/paoliniluis/similarity/pkg/apperrors"
	"github.com/paoliniluis/similarity/pkg/repositories"
)

// SynonymRequest carries a synonym relation for the mutating endpoints.
type SynonymRequest struct {
	Word      string `json:"word"`
	SynonymOf string `json:"synonym_of"`
}

// SynonymResponse reports the outcome of a synonym mutation.
type SynonymResponse struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Word    *string `json:"word"`
}

// SynonymListEntry is one row of the listing endpoint.
type SynonymListEntry struct {
	Word      string `json:"word"`
	SynonymOf string `json:"synonym_of"`
}

// SynonymListResponse carries every matching synonym relation.
type SynonymListResponse struct {
	Synonyms []SynonymListEntry `json:"synonyms"`
}

// SynonymHandler manages synonym relations over HTTP.
type SynonymHandler struct {
	synonyms repositories.SynonymRepository
	logger   *zap.Logger
}

// NewSynonymHandler creates a new SynonymHandler.
func NewSynonymHandler(synonyms repositories.SynonymRepository, logger *zap.Logger) *SynonymHandler {
	return &SynonymHandler{synonyms: synonyms, logger: logger}
}

// RegisterRoutes registers the synonym routes on the given mux.
func (h *SynonymHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /synonyms/add", h.Add)
	mux.HandleFunc("DELETE /synonyms/delete", h.Delete)
	mux.HandleFunc("GET /synonyms/list", h.List)
}

// Add handles POST /synonyms/add requests.
func (h *SynonymHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req SynonymRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if err := h.synonyms.Add(r.Context(), req.Word, req.SynonymOf); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			h.outcome(w, false,
				fmt.Sprintf("Synonym '%s' for '%s' already exists", req.Word, req.SynonymOf), nil)
			return
		}
		h.logger.Error("failed to add synonym", zap.Error(err))
		h.outcome(w, false, fmt.Sprintf("Error adding synonym: %v", err), nil)
		return
	}
	h.outcome(w, true, fmt.Sprintf("Synonym '%s' added successfully", req.Word), &req.Word)
}

// Delete handles DELETE /synonyms/delete requests.
func (h *SynonymHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req SynonymRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if err := h.synonyms.Delete(r.Context(), req.Word, req.SynonymOf); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.outcome(w, false,
				fmt.Sprintf("Synonym '%s' for '%s' not found", req.Word, req.SynonymOf), nil)
			return
		}
		h.logger.Error("failed to delete synonym", zap.Error(err))
		h.outcome(w, false, fmt.Sprintf("Error deleting synonym: %v", err), nil)
		return
	}
	h.outcome(w, true, fmt.Sprintf("Synonym '%s' deleted successfully", req.Word), &req.Word)
}

// List handles GET /synonyms/list requests, optionally filtered by the
// keyword query parameter.
func (h *SynonymHandler) List(w http.ResponseWriter, r *http.Request) {
	var keyword *string
	if k := r.URL.Query().Get("keyword"); k != "" {
		keyword = &k
	}

	synonyms, err := h.synonyms.List(r.Context(), keyword)
	if err != nil {
		h.logger.Error("failed to list synonyms", zap.Error(err))
		_ = WriteJSON(w, http.StatusOK, SynonymListResponse{Synonyms: []SynonymListEntry{}})
		return
	}

	entries := make([]SynonymListEntry, len(synonyms))
	for i, s := range synonyms {
		entries[i] = SynonymListEntry{Word: s.Word, SynonymOf: s.SynonymOf}
	}
	_ = WriteJSON(w, http.StatusOK, SynonymListResponse{Synonyms: entries})
}

func (h *SynonymHandler) outcome(w http.ResponseWriter, success bool, message string, word *string) {
	_ = WriteJSON(w, http.StatusOK, SynonymResponse{Success: success, Message: message, Word: word})
}
