package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, ErrorResponse(rec, http.StatusBadRequest, "Text must not be empty"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"detail": "Text must not be empty"}`, rec.Body.String())
}

func TestWriteJSON(t *testing.T) {
	t.Run("non-200 status written", func(t *testing.T) {
		rec := httptest.NewRecorder()
		require.NoError(t, WriteJSON(rec, http.StatusCreated, map[string]string{"ok": "yes"}))
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("200 by default", func(t *testing.T) {
		rec := httptest.NewRecorder()
		require.NoError(t, WriteJSON(rec, http.StatusOK, map[string]string{"ok": "yes"}))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"ok": "yes"}`, rec.Body.String())
	})
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Text string `json:"text"`
	}

	t.Run("valid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text": "hello"}`))
		rec := httptest.NewRecorder()

		var out payload
		require.True(t, DecodeJSON(rec, req, &out))
		assert.Equal(t, "hello", out.Text)
	})

	t.Run("malformed body writes 422", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text": `))
		rec := httptest.NewRecorder()

		var out payload
		require.False(t, DecodeJSON(rec, req, &out))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.JSONEq(t, `{"detail": "Invalid request body"}`, rec.Body.String())
	})
}
