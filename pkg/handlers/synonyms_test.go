package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/paoliniluis/similarity/pkg/apperrors"
	"github.com/paoliniluis/similarity/pkg/models"
	"github.com/paoliniluis/similarity/pkg/repositories"
)

type fakeSynonymRepo struct {
	synonyms []*models.Synonym
}

var _ repositories.SynonymRepository = (*fakeSynonymRepo)(nil)

func (f *fakeSynonymRepo) find(word, synonymOf string) int {
	for i, s := range f.synonyms {
		if s.Word == word && s.SynonymOf == synonymOf {
			return i
		}
	}
	return -1
}

func (f *fakeSynonymRepo) Add(ctx context.Context, word, synonymOf string) error {
	if f.find(word, synonymOf) >= 0 {
		return apperrors.ErrAlreadyExists
	}
	f.synonyms = append(f.synonyms, &models.Synonym{Word: word, SynonymOf: synonymOf})
	return nil
}

func (f *fakeSynonymRepo) Delete(ctx context.Context, word, synonymOf string) error {
	i := f.find(word, synonymOf)
	if i < 0 {
		return apperrors.ErrNotFound
	}
	f.synonyms = append(f.synonyms[:i], f.synonyms[i+1:]...)
	return nil
}

func (f *fakeSynonymRepo) List(ctx context.Context, synonymOf *string) ([]*models.Synonym, error) {
	if synonymOf == nil {
		return f.synonyms, nil
	}
	var out []*models.Synonym
	for _, s := range f.synonyms {
		if s.SynonymOf == *synonymOf {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSynonymRepo) WordsFor(ctx context.Context, keyword string) ([]string, error) {
	var out []string
	for _, s := range f.synonyms {
		if s.SynonymOf == keyword {
			out = append(out, s.Word)
		}
	}
	return out, nil
}

func (f *fakeSynonymRepo) PatchEmbedding(ctx context.Context, id int64, column string, vec []float32) error {
	return nil
}

func (f *fakeSynonymRepo) ScanMissingEmbeddings(ctx context.Context, limit int) ([]repositories.SynonymEmbeddingWork, error) {
	return nil, nil
}

func synonymMux(t *testing.T, repo repositories.SynonymRepository) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	NewSynonymHandler(repo, zaptest.NewLogger(t)).RegisterRoutes(mux)
	return mux
}

func TestSynonymHandler_AddAndDelete(t *testing.T) {
	repo := &fakeSynonymRepo{}
	mux := synonymMux(t, repo)

	rec := doJSON(t, mux, http.MethodPost, "/synonyms/add",
		`{"word": "card", "synonym_of": "question"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SynonymResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Synonym 'card' added successfully", resp.Message)
	require.NotNil(t, resp.Word)
	assert.Equal(t, "card", *resp.Word)

	// Adding the same relation again reports failure without an error status.
	rec = doJSON(t, mux, http.MethodPost, "/synonyms/add",
		`{"word": "card", "synonym_of": "question"}`)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "Synonym 'card' for 'question' already exists", resp.Message)

	rec = doJSON(t, mux, http.MethodDelete, "/synonyms/delete",
		`{"word": "card", "synonym_of": "question"}`)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Empty(t, repo.synonyms)

	rec = doJSON(t, mux, http.MethodDelete, "/synonyms/delete",
		`{"word": "card", "synonym_of": "question"}`)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "Synonym 'card' for 'question' not found", resp.Message)
}

func TestSynonymHandler_List(t *testing.T) {
	repo := &fakeSynonymRepo{synonyms: []*models.Synonym{
		{Word: "card", SynonymOf: "question"},
		{Word: "saved query", SynonymOf: "question"},
		{Word: "viz", SynonymOf: "visualization"},
	}}
	mux := synonymMux(t, repo)

	t.Run("all synonyms", func(t *testing.T) {
		rec := doJSON(t, mux, http.MethodGet, "/synonyms/list", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp SynonymListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Synonyms, 3)
	})

	t.Run("filtered by keyword", func(t *testing.T) {
		rec := doJSON(t, mux, http.MethodGet, "/synonyms/list?keyword=question", "")

		var resp SynonymListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Synonyms, 2)
		assert.Equal(t, "card", resp.Synonyms[0].Word)
	})
}
