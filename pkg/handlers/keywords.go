package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/paoliniluis/similarity/pkg/apperrors"
	"github.com/paoliniluis/similarity/pkg/models"
	"github.com/paoliniluis/similarity/pkg/repositories"
)

// KeywordRequest carries a vocabulary entry for the mutating endpoints.
type KeywordRequest struct {
	Keyword    string  `json:"keyword"`
	Definition string  `json:"definition"`
	Category   *string `json:"category"`
}

// KeywordToggleRequest identifies the keyword to flip.
type KeywordToggleRequest struct {
	Keyword string `json:"keyword"`
}

// KeywordResponse reports the outcome of a vocabulary mutation. Failed
// operations report success=false with a reason rather than an error
// status, since "already exists" and "not found" are expected outcomes.
type KeywordResponse struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Keyword *string `json:"keyword"`
}

// KeywordListEntry is one row of the listing endpoint.
type KeywordListEntry struct {
	Keyword    string  `json:"keyword"`
	Definition string  `json:"definition"`
	Category   *string `json:"category"`
	IsActive   bool    `json:"is_active"`
}

// KeywordListResponse carries every matching vocabulary entry.
type KeywordListResponse struct {
	Keywords []KeywordListEntry `json:"keywords"`
}

// KeywordHandler manages the curated vocabulary over HTTP.
type KeywordHandler struct {
	keywords repositories.KeywordRepository
	logger   *zap.Logger
}

// NewKeywordHandler creates a new KeywordHandler.
func NewKeywordHandler(keywords repositories.KeywordRepository, logger *zap.Logger) *KeywordHandler {
	return &KeywordHandler{keywords: keywords, logger: logger}
}

// RegisterRoutes registers the keyword routes on the given mux.
func (h *KeywordHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /keywords/add", h.Add)
	mux.HandleFunc("PUT /keywords/update", h.Update)
	mux.HandleFunc("DELETE /keywords/delete", h.Delete)
	mux.HandleFunc("POST /keywords/toggle", h.Toggle)
	mux.HandleFunc("GET /keywords/list", h.List)
}

// Add handles POST /keywords/add requests.
func (h *KeywordHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req KeywordRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	kw := &models.KeywordDefinition{
		Keyword:    req.Keyword,
		Definition: req.Definition,
		Category:   req.Category,
		IsActive:   true,
	}
	if err := h.keywords.Create(r.Context(), kw); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			h.outcome(w, false, fmt.Sprintf("Keyword '%s' already exists", req.Keyword), nil)
			return
		}
		h.fail(w, "Error adding keyword", err)
		return
	}
	h.outcome(w, true, fmt.Sprintf("Keyword '%s' added successfully", req.Keyword), &req.Keyword)
}

// Update handles PUT /keywords/update requests. Changing the definition
// clears the stored embedding so the embedding worker recomputes it.
func (h *KeywordHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req KeywordRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if err := h.keywords.Update(r.Context(), req.Keyword, req.Definition, req.Category); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.outcome(w, false, fmt.Sprintf("Keyword '%s' not found", req.Keyword), nil)
			return
		}
		h.fail(w, "Error updating keyword", err)
		return
	}
	h.outcome(w, true, fmt.Sprintf("Keyword '%s' updated successfully", req.Keyword), &req.Keyword)
}

// Delete handles DELETE /keywords/delete requests.
func (h *KeywordHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req KeywordRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if err := h.keywords.Delete(r.Context(), req.Keyword); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.outcome(w, false, fmt.Sprintf("Keyword '%s' not found", req.Keyword), nil)
			return
		}
		h.fail(w, "Error deleting keyword", err)
		return
	}
	h.outcome(w, true, fmt.Sprintf("Keyword '%s' deleted successfully", req.Keyword), &req.Keyword)
}

// Toggle handles POST /keywords/toggle requests, flipping active status.
func (h *KeywordHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req KeywordToggleRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	active, err := h.keywords.Toggle(r.Context(), req.Keyword)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.outcome(w, false, fmt.Sprintf("Keyword '%s' not found", req.Keyword), nil)
			return
		}
		h.fail(w, "Error toggling keyword", err)
		return
	}

	verb := "deactivated"
	if active {
		verb = "activated"
	}
	h.outcome(w, true, fmt.Sprintf("Keyword '%s' %s", req.Keyword, verb), &req.Keyword)
}

// List handles GET /keywords/list requests, optionally filtered by the
// category query parameter. Inactive entries are included so curators see
// the full vocabulary.
func (h *KeywordHandler) List(w http.ResponseWriter, r *http.Request) {
	var category *string
	if c := r.URL.Query().Get("category"); c != "" {
		category = &c
	}

	keywords, err := h.keywords.List(r.Context(), category, true)
	if err != nil {
		h.logger.Error("failed to list keywords", zap.Error(err))
		_ = WriteJSON(w, http.StatusOK, KeywordListResponse{Keywords: []KeywordListEntry{}})
		return
	}

	entries := make([]KeywordListEntry, len(keywords))
	for i, kw := range keywords {
		entries[i] = KeywordListEntry{
			Keyword:    kw.Keyword,
			Definition: kw.Definition,
			Category:   kw.Category,
			IsActive:   kw.IsActive,
		}
	}
	_ = WriteJSON(w, http.StatusOK, KeywordListResponse{Keywords: entries})
}

func (h *KeywordHandler) outcome(w http.ResponseWriter, success bool, message string, keyword *string) {
	_ = WriteJSON(w, http.StatusOK, KeywordResponse{Success: success, Message: message, Keyword: keyword})
}

func (h *KeywordHandler) fail(w http.ResponseWriter, message string, err error) {
	h.logger.Error(message, zap.Error(err))
	_ = WriteJSON(w, http.StatusOK, KeywordResponse{
		Success: false,
		Message: fmt.Sprintf("%s: %v", message, err),
	})
}
