package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

// Validation failures are rejected before any engine call, so a handler
// without engines exercises them safely.
func TestSimilarityHandler_RequestValidation(t *testing.T) {
	mux := http.NewServeMux()
	NewSimilarityHandler(nil, nil, zaptest.NewLogger(t)).RegisterRoutes(mux)

	t.Run("invalid state rejected", func(t *testing.T) {
		rec := doJSON(t, mux, http.MethodPost, "/v1/similar-github-issues",
			`{"text": "broken dashboard", "state": "merged"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.JSONEq(t, `{"detail": "State parameter must be either 'open' or 'closed'"}`, rec.Body.String())
	})

	t.Run("invalid state rejected on combined search", func(t *testing.T) {
		rec := doJSON(t, mux, http.MethodPost, "/v2/similar",
			`{"text": "broken dashboard", "state": "draft"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("malformed body rejected", func(t *testing.T) {
		rec := doJSON(t, mux, http.MethodPost, "/v1/similar-metabase-docs", `{"text": `)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.JSONEq(t, `{"detail": "Invalid request body"}`, rec.Body.String())
	})

	t.Run("unknown method rejected", func(t *testing.T) {
		rec := doJSON(t, mux, http.MethodGet, "/v1/similar", "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}
