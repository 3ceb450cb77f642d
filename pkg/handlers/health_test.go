package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/paoliniluis/similarity/pkg/config"
)

func TestHealthHandler(t *testing.T) {
	cfg := &config.Config{Env: "test", Version: "1.2.3"}
	mux := http.NewServeMux()
	NewHealthHandler(cfg, zaptest.NewLogger(t)).RegisterRoutes(mux)

	t.Run("health returns plain ok", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", rec.Body.String())
	})

	t.Run("ping returns service details", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var resp PingResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, "similarity", resp.Service)
		assert.Equal(t, "1.2.3", resp.Version)
		assert.Equal(t, "test", resp.Environment)
		assert.NotEmpty(t, resp.GoVersion)
	})

	t.Run("post not allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}
