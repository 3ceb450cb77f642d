package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/paoliniluis/similarity/pkg/apperrors"
	"github.com/paoliniluis/similarity/pkg/search"
)

// SearchRequest carries the query text and an optional issue state filter.
type SearchRequest struct {
	Text  string  `json:"text"`
	State *string `json:"state"`
}

// SimilarityHandler exposes the v1 (vector-only) and v2 (reranked)
// similarity search endpoints.
type SimilarityHandler struct {
	v1     *search.Engine
	v2     *search.RerankedEngine
	logger *zap.Logger
}

// NewSimilarityHandler creates a new SimilarityHandler.
func NewSimilarityHandler(v1 *search.Engine, v2 *search.RerankedEngine, logger *zap.Logger) *SimilarityHandler {
	return &SimilarityHandler{v1: v1, v2: v2, logger: logger}
}

// RegisterRoutes registers all similarity routes on the given mux.
func (h *SimilarityHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/similar-github-issues", h.issues(false))
	mux.HandleFunc("POST /v2/similar-github-issues", h.issues(true))
	mux.HandleFunc("POST /v1/similar-metabase-docs", h.docs(false))
	mux.HandleFunc("POST /v2/similar-metabase-docs", h.docs(true))
	mux.HandleFunc("POST /v1/similar-discourse-posts", h.posts(false))
	mux.HandleFunc("POST /v2/similar-discourse-posts", h.posts(true))
	mux.HandleFunc("POST /v1/similar-questions", h.questions(false))
	mux.HandleFunc("POST /v2/similar-questions", h.questions(true))
	mux.HandleFunc("POST /v1/similar", h.combined(false))
	mux.HandleFunc("POST /v2/similar", h.combined(true))
}

// parse decodes and validates a search request. A false return means the
// error response has already been written.
func (h *SimilarityHandler) parse(w http.ResponseWriter, r *http.Request) (text, state string, ok bool) {
	var req SearchRequest
	if !DecodeJSON(w, r, &req) {
		return "", "", false
	}
	if req.State != nil {
		state = *req.State
	}

	normalized, err := search.NormalizeState(state)
	if err != nil {
		_ = ErrorResponse(w, http.StatusUnprocessableEntity, "State parameter must be either 'open' or 'closed'")
		return "", "", false
	}
	return req.Text, normalized, true
}

// respond writes the search result, mapping the well-known failures to
// their status codes.
func (h *SimilarityHandler) respond(w http.ResponseWriter, result any, err error) {
	switch {
	case err == nil:
		_ = WriteJSON(w, http.StatusOK, result)
	case errors.Is(err, apperrors.ErrEmptyText):
		_ = ErrorResponse(w, http.StatusBadRequest, "Text must not be empty")
	default:
		h.logger.Error("similarity search failed", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "Failed to create embedding")
	}
}

func (h *SimilarityHandler) issues(reranked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		text, state, ok := h.parse(w, r)
		if !ok {
			return
		}
		var (
			result any
			err    error
		)
		if reranked {
			result, err = h.v2.SimilarIssues(r.Context(), text, state)
		} else {
			result, err = h.v1.SimilarIssues(r.Context(), text, state)
		}
		h.respond(w, result, err)
	}
}

func (h *SimilarityHandler) docs(reranked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		text, _, ok := h.parse(w, r)
		if !ok {
			return
		}
		result, err := h.search(r.Context(), reranked, text, searchDocs)
		h.respond(w, result, err)
	}
}

func (h *SimilarityHandler) posts(reranked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		text, _, ok := h.parse(w, r)
		if !ok {
			return
		}
		result, err := h.search(r.Context(), reranked, text, searchPosts)
		h.respond(w, result, err)
	}
}

func (h *SimilarityHandler) questions(reranked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		text, _, ok := h.parse(w, r)
		if !ok {
			return
		}
		result, err := h.search(r.Context(), reranked, text, searchQuestions)
		h.respond(w, result, err)
	}
}

func (h *SimilarityHandler) combined(reranked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		text, state, ok := h.parse(w, r)
		if !ok {
			return
		}
		var (
			result any
			err    error
		)
		if reranked {
			result, err = h.v2.SearchAll(r.Context(), text, state)
		} else {
			result, err = h.v1.SearchAll(r.Context(), text, state)
		}
		h.respond(w, result, err)
	}
}

type searchKind int

const (
	searchDocs searchKind = iota
	searchPosts
	searchQuestions
)

func (h *SimilarityHandler) search(ctx context.Context, reranked bool, text string, kind searchKind) (any, error) {
	switch kind {
	case searchDocs:
		if reranked {
			return h.v2.SimilarDocs(ctx, text)
		}
		return h.v1.SimilarDocs(ctx, text)
	case searchPosts:
		if reranked {
			return h.v2.SimilarPosts(ctx, text)
		}
		return h.v1.SimilarPosts(ctx, text)
	default:
		if reranked {
			return h.v2.SimilarQuestions(ctx, text)
		}
		return h.v1.SimilarQuestions(ctx, text)
	}
}
