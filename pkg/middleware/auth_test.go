package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/paoliniluis/similarity/pkg/apperrors"
	"github.com/paoliniluis/similarity/pkg/models"
)

type fakeAPIKeyRepo struct {
	valid map[string]bool
}

func (f *fakeAPIKeyRepo) Create(ctx context.Context, description string) (*models.APIKey, error) {
	return nil, nil
}

func (f *fakeAPIKeyRepo) Validate(ctx context.Context, key string) error {
	if f.valid[key] {
		return nil
	}
	return apperrors.ErrUnauthorized
}

func TestAPIKeyAuth(t *testing.T) {
	repo := &fakeAPIKeyRepo{valid: map[string]bool{"good-key": true}}
	auth := APIKeyAuth(repo, zaptest.NewLogger(t))

	var seenKey string
	handler := auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenKey = APIKeyFromRequest(r)
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("missing key rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/keywords/list", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"detail": "Invalid or missing API Key"}`, rec.Body.String())
	})

	t.Run("unknown key rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/keywords/list", nil)
		req.Header.Set(APIKeyHeader, "bad-key")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"detail": "Invalid or missing API Key"}`, rec.Body.String())
	})

	t.Run("valid key reaches handler with key in context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/keywords/list", nil)
		req.Header.Set(APIKeyHeader, "good-key")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "good-key", seenKey)
	})
}

func TestAPIKeyFromRequest_Unauthenticated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	assert.Empty(t, APIKeyFromRequest(req))
}
