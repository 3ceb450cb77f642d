package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/paoliniluis/similarity/pkg/apperrors"
	"github.com/paoliniluis/similarity/pkg/config"
	"github.com/paoliniluis/similarity/pkg/models"
)

func embeddingServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Text == "fail" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		vec := make([]float32, dim)
		for i := range vec {
			vec[i] = 0.1
		}
		json.NewEncoder(w).Encode(embedResponse{Embedding: vec})
	}))
}

func httpService(t *testing.T, baseURL string) *Service {
	t.Helper()
	svc, err := NewService(&config.EmbeddingConfig{
		Provider:      "http",
		APIBase:       baseURL,
		EmbeddingPath: "/embedding",
		MaxConcurrent: 2,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return svc
}

func TestService_Embed(t *testing.T) {
	server := embeddingServer(t, models.EmbeddingDim)
	defer server.Close()
	svc := httpService(t, server.URL)

	vec, err := svc.Embed(context.Background(), "how do I share a dashboard")
	require.NoError(t, err)
	assert.Len(t, vec, models.EmbeddingDim)
}

func TestService_EmbedRejectsBlankText(t *testing.T) {
	server := embeddingServer(t, models.EmbeddingDim)
	defer server.Close()
	svc := httpService(t, server.URL)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := svc.Embed(context.Background(), text)
		assert.ErrorIs(t, err, apperrors.ErrEmptyText)
	}
}

func TestService_EmbedRejectsWrongDimension(t *testing.T) {
	server := embeddingServer(t, 42)
	defer server.Close()
	svc := httpService(t, server.URL)

	_, err := svc.Embed(context.Background(), "some text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "42 dimensions")
}

func TestService_EmbedBatch(t *testing.T) {
	server := embeddingServer(t, models.EmbeddingDim)
	defer server.Close()
	svc := httpService(t, server.URL)

	results := svc.EmbedBatch(context.Background(), []string{"first", "fail", "", "last"})
	require.Len(t, results, 4)
	assert.Len(t, results[0], models.EmbeddingDim)
	assert.Nil(t, results[1], "provider failure yields nil at its position")
	assert.Nil(t, results[2], "blank text yields nil at its position")
	assert.Len(t, results[3], models.EmbeddingDim)
}

func TestService_DimensionFromConfig(t *testing.T) {
	server := embeddingServer(t, 384)
	defer server.Close()

	svc, err := NewService(&config.EmbeddingConfig{
		Provider:      "http",
		APIBase:       server.URL,
		EmbeddingPath: "/embedding",
		Dimension:     384,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	vec, err := svc.Embed(context.Background(), "short text")
	require.NoError(t, err)
	assert.Len(t, vec, 384)
}

func TestNewService_UnknownProvider(t *testing.T) {
	_, err := NewService(&config.EmbeddingConfig{Provider: "word2vec"}, zaptest.NewLogger(t))
	assert.Error(t, err)
}
