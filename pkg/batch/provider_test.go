package batch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paoliniluis/similarity/pkg/config"
)

func TestProviderClient_GetBatchRetriesTransientErrors(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) <= 2 {
			http.Error(w, "upstream busy", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(ProviderBatch{ID: "batch_1", Status: "completed"})
	}))
	defer server.Close()

	client := NewProviderClient(&config.BatchConfig{APIBase: server.URL})
	batch, err := client.GetBatch(context.Background(), "batch_1")
	require.NoError(t, err)
	assert.Equal(t, "completed", batch.Status)
	assert.EqualValues(t, 3, attempts)
}

func TestProviderClient_UploadFileRetriesWithFullBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"custom_id":"x"}`+"\n"), 0o644))

	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			http.Error(w, "rate limit", http.StatusTooManyRequests)
			return
		}
		// The retried attempt must carry the complete multipart payload.
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "batch", r.FormValue("purpose"))
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		assert.Equal(t, "requests.jsonl", header.Filename)
		json.NewEncoder(w).Encode(map[string]string{"id": "file_42"})
	}))
	defer server.Close()

	client := NewProviderClient(&config.BatchConfig{APIBase: server.URL})
	fileID, err := client.UploadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "file_42", fileID)
	assert.EqualValues(t, 2, attempts)
}
