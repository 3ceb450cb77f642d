package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/paoliniluis/similarity/pkg/config"
	"github.com/paoliniluis/similarity/pkg/reranker"
)

type scriptedProvider struct {
	results []reranker.ScoredText
}

func (s *scriptedProvider) Rerank(ctx context.Context, query string, candidates []string) ([]reranker.ScoredText, error) {
	return s.results, nil
}

func postRerank(t *testing.T, h *RerankHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	req := httptest.NewRequest(http.MethodPost, "/rerank", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestRerankHandler_Disabled(t *testing.T) {
	svc := reranker.NewService(&config.RerankerConfig{Enabled: false}, zaptest.NewLogger(t))
	h := NewRerankHandler(svc, zaptest.NewLogger(t))

	rec := postRerank(t, h, `{"query": "q", "candidates": []}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"detail": "Reranker service is not available"}`, rec.Body.String())
}

func TestRerankHandler_InvalidBody(t *testing.T) {
	svc := reranker.NewServiceWithProvider(&scriptedProvider{}, 0, zaptest.NewLogger(t))
	h := NewRerankHandler(svc, zaptest.NewLogger(t))

	rec := postRerank(t, h, `{"query": `)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRerankHandler_ReordersAndScores(t *testing.T) {
	provider := &scriptedProvider{results: []reranker.ScoredText{
		{Text: "second doc", Score: 0.9},
		{Text: "first doc", Score: 0.2},
	}}
	svc := reranker.NewServiceWithProvider(provider, 0, zaptest.NewLogger(t))
	h := NewRerankHandler(svc, zaptest.NewLogger(t))

	rec := postRerank(t, h, `{
		"query": "which doc",
		"candidates": [
			{"content": "first doc", "id": 1},
			{"content": "second doc", "id": 2}
		]
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RerankResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.RerankedCandidates, 2)

	assert.Equal(t, float64(2), resp.RerankedCandidates[0]["id"])
	assert.Equal(t, 0.9, resp.RerankedCandidates[0]["reranker_score"])
	assert.Equal(t, float64(1), resp.RerankedCandidates[1]["id"])
}

func TestCandidateContent(t *testing.T) {
	t.Run("content field preferred", func(t *testing.T) {
		assert.Equal(t, "hello", candidateContent(map[string]any{"content": "hello", "id": 1}))
	})

	t.Run("falls back to serialized document", func(t *testing.T) {
		got := candidateContent(map[string]any{"title": "no content field"})
		assert.JSONEq(t, `{"title": "no content field"}`, got)
	})
}
