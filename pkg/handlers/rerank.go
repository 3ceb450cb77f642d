package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/paoliniluis/similarity/pkg/reranker"
)

// RerankRequest carries a query and arbitrary candidate documents. Each
// candidate's "content" field is what gets scored; the rest of the
// document passes through untouched.
type RerankRequest struct {
	Query      string           `json:"query"`
	Candidates []map[string]any `json:"candidates"`
}

// RerankResponse returns the candidates in relevance order, each with a
// reranker_score field added.
type RerankResponse struct {
	RerankedCandidates []map[string]any `json:"reranked_candidates"`
}

// RerankHandler exposes the cross-encoder reranker over HTTP.
type RerankHandler struct {
	reranker *reranker.Service
	logger   *zap.Logger
}

// NewRerankHandler creates a new RerankHandler.
func NewRerankHandler(rr *reranker.Service, logger *zap.Logger) *RerankHandler {
	return &RerankHandler{reranker: rr, logger: logger}
}

// RegisterRoutes registers the rerank route on the given mux.
func (h *RerankHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /rerank", h.Rerank)
}

// Rerank handles POST /rerank requests.
func (h *RerankHandler) Rerank(w http.ResponseWriter, r *http.Request) {
	if !h.reranker.Enabled() {
		_ = ErrorResponse(w, http.StatusServiceUnavailable, "Reranker service is not available")
		return
	}

	var req RerankRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	candidates := make([]reranker.Candidate, len(req.Candidates))
	for i, doc := range req.Candidates {
		candidates[i] = reranker.Candidate{
			Content: candidateContent(doc),
			Payload: doc,
		}
	}

	reranked := h.reranker.Rerank(r.Context(), req.Query, candidates)

	out := make([]map[string]any, 0, len(reranked))
	for _, c := range reranked {
		doc, ok := c.Payload.(map[string]any)
		if !ok {
			continue
		}
		doc["reranker_score"] = c.Score
		out = append(out, doc)
	}
	_ = WriteJSON(w, http.StatusOK, RerankResponse{RerankedCandidates: out})
}

// candidateContent picks the text to score: the "content" field when
// present, otherwise the whole document serialized.
func candidateContent(doc map[string]any) string {
	if content, ok := doc["content"].(string); ok && content != "" {
		return content
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return ""
	}
	return string(raw)
}
