package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/paoliniluis/similarity/pkg/config"
	"github.com/paoliniluis/similarity/pkg/models"
)

func githubTestWorker(t *testing.T, cfg *config.GitHubConfig) *GitHubWorker {
	t.Helper()
	if cfg.RepoOwner == "" {
		cfg.RepoOwner = "metabase"
	}
	if cfg.RepoName == "" {
		cfg.RepoName = "metabase"
	}
	return NewGitHubWorker(cfg, nil, nil, nil, zaptest.NewLogger(t))
}

func TestGitHubWorker_FetchNewIssues(t *testing.T) {
	t.Run("stops at first known number and skips pull requests", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/repos/metabase/metabase/issues", r.URL.Path)
			require.Equal(t, "open", r.URL.Query().Get("state"))
			require.Equal(t, "created", r.URL.Query().Get("sort"))
			require.Equal(t, "desc", r.URL.Query().Get("direction"))

			fmt.Fprint(w, `[
				{"number": 505, "title": "newest issue"},
				{"number": 504, "title": "a pr", "pull_request": {}},
				{"number": 503, "title": "another issue"},
				{"number": 500, "title": "already stored"}
			]`)
		}))
		defer server.Close()

		w := githubTestWorker(t, &config.GitHubConfig{APIBase: server.URL})
		issues, err := w.fetchNewIssues(context.Background(), 500)
		require.NoError(t, err)
		require.Len(t, issues, 2)
		assert.Equal(t, 505, issues[0].Number)
		assert.Equal(t, 503, issues[1].Number)
	})

	t.Run("pages until empty page", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Query().Get("page") {
			case "1":
				fmt.Fprint(w, `[{"number": 10}, {"number": 9}]`)
			case "2":
				fmt.Fprint(w, `[{"number": 8}]`)
			default:
				fmt.Fprint(w, `[]`)
			}
		}))
		defer server.Close()

		w := githubTestWorker(t, &config.GitHubConfig{APIBase: server.URL})
		issues, err := w.fetchNewIssues(context.Background(), 0)
		require.NoError(t, err)
		assert.Len(t, issues, 3)
	})

	t.Run("token sent when configured", func(t *testing.T) {
		var gotAuth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			fmt.Fprint(w, `[]`)
		}))
		defer server.Close()

		w := githubTestWorker(t, &config.GitHubConfig{APIBase: server.URL, Token: "ghp_test"})
		_, err := w.fetchNewIssues(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, "token ghp_test", gotAuth)
	})

	t.Run("upstream error surfaces", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusForbidden)
		}))
		defer server.Close()

		w := githubTestWorker(t, &config.GitHubConfig{APIBase: server.URL})
		_, err := w.fetchNewIssues(context.Background(), 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "403")
	})
}

func TestGitHubWorker_PostDuplicateComment(t *testing.T) {
	similar := []models.SimilarIssue{
		{Number: 100, Title: "dup one", URL: "https://github.com/metabase/metabase/issues/100", SimilarityScore: 0.95},
		{Number: 101, Title: "weak match", URL: "https://github.com/metabase/metabase/issues/101", SimilarityScore: 0.3},
	}

	t.Run("posts matches above threshold", func(t *testing.T) {
		var body map[string]string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/repos/metabase/metabase/issues/123/comments", r.URL.Path)
			require.Equal(t, "token ghp_test", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			w.WriteHeader(http.StatusCreated)
		}))
		defer server.Close()

		w := githubTestWorker(t, &config.GitHubConfig{
			APIBase:          server.URL,
			Token:            "ghp_test",
			CommentThreshold: 0.7,
		})
		err := w.postDuplicateComment(context.Background(), 123, "alice", similar)
		require.NoError(t, err)

		require.Contains(t, body, "body")
		assert.True(t, strings.HasPrefix(body["body"], "🤖 Hi @alice!"))
		assert.Contains(t, body["body"], "[#100: dup one](https://github.com/metabase/metabase/issues/100) - 95.0% similar")
		assert.NotContains(t, body["body"], "weak match")
	})

	t.Run("nothing above threshold means no request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("unexpected request")
		}))
		defer server.Close()

		w := githubTestWorker(t, &config.GitHubConfig{
			APIBase:          server.URL,
			Token:            "ghp_test",
			CommentThreshold: 0.99,
		})
		require.NoError(t, w.postDuplicateComment(context.Background(), 123, "alice", similar))
	})

	t.Run("missing token skips commenting", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("unexpected request")
		}))
		defer server.Close()

		w := githubTestWorker(t, &config.GitHubConfig{
			APIBase:          server.URL,
			CommentThreshold: 0.7,
		})
		require.NoError(t, w.postDuplicateComment(context.Background(), 123, "alice", similar))
	})
}
