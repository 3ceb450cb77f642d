package workers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/paoliniluis/similarity/pkg/config"
)

func TestDecodeCookedHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty",
			input:    "",
			expected: "",
		},
		{
			name:     "plain paragraph",
			input:    "<p>Hello world</p>",
			expected: "Hello world",
		},
		{
			name:     "links kept readable",
			input:    `<p>See <a href="https://metabase.com/docs">the docs</a> for details</p>`,
			expected: "See [LINK: the docs -> https://metabase.com/docs] for details",
		},
		{
			name:     "entities unescaped",
			input:    "<p>x &lt; y &amp;&amp; y &gt; z</p>",
			expected: "x < y && y > z",
		},
		{
			name:     "blank lines collapsed",
			input:    "<p>first</p>\n\n\n<p>second</p>",
			expected: "first\n\nsecond",
		},
		{
			name:     "spaces collapsed",
			input:    "<p>too     many   spaces</p>",
			expected: "too many spaces",
		},
		{
			name:     "control characters stripped",
			input:    "<p>clean\x00\x01text</p>",
			expected: "cleantext",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, decodeCookedHTML(tt.input))
		})
	}
}

func TestCombineTopicPosts(t *testing.T) {
	t.Run("no posts falls back to title", func(t *testing.T) {
		assert.Equal(t, "Broken filter", CombineTopicPosts("Broken filter", nil))
	})

	t.Run("numbers posts with usernames", func(t *testing.T) {
		got := CombineTopicPosts("Broken filter", []TopicPost{
			{Username: "alice", Cooked: "<p>My filter stopped working</p>"},
			{Username: "bob", Cooked: "<p>Which version?</p>"},
		})
		expected := "Title: Broken filter\n\n" +
			"Post 1 (by alice):\nMy filter stopped working\n\n" +
			"Post 2 (by bob):\nWhich version?"
		assert.Equal(t, expected, got)
	})

	t.Run("empty posts are skipped but numbering is preserved", func(t *testing.T) {
		got := CombineTopicPosts("Topic", []TopicPost{
			{Username: "alice", Cooked: ""},
			{Username: "bob", Cooked: "<p>reply</p>"},
		})
		assert.Contains(t, got, "Post 2 (by bob):")
		assert.NotContains(t, got, "Post 1")
	})

	t.Run("missing username", func(t *testing.T) {
		got := CombineTopicPosts("Topic", []TopicPost{
			{Cooked: "<p>anonymous reply</p>"},
		})
		assert.Contains(t, got, "(by Unknown)")
	})
}

func TestDiscourseWorker_FetchNewTopics(t *testing.T) {
	newWorker := func(baseURL string, maxPages int) *DiscourseWorker {
		return NewDiscourseWorker(
			&config.DiscourseConfig{BaseURL: baseURL, MaxPages: maxPages},
			nil, nil, nil, zaptest.NewLogger(t))
	}

	t.Run("stops at first known topic", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/latest.json", r.URL.Path)
			require.Equal(t, "desc", r.URL.Query().Get("order"))
			var list discourseTopicList
			list.TopicList.Topics = []discourseTopic{
				{ID: 103, Title: "newest", Slug: "newest"},
				{ID: 102, Title: "newer", Slug: "newer"},
				{ID: 100, Title: "known", Slug: "known"},
			}
			json.NewEncoder(w).Encode(list)
		}))
		defer server.Close()

		topics, err := newWorker(server.URL, 10).fetchNewTopics(context.Background(), 100)
		require.NoError(t, err)
		require.Len(t, topics, 2)
		assert.Equal(t, 103, topics[0].ID)
		assert.Equal(t, 102, topics[1].ID)
	})

	t.Run("pages until a short page without continuation", func(t *testing.T) {
		var pagesServed []string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			page := r.URL.Query().Get("page")
			pagesServed = append(pagesServed, page)

			var list discourseTopicList
			list.TopicList.PerPage = 2
			if page == "" {
				list.TopicList.Topics = []discourseTopic{{ID: 10}, {ID: 9}}
				list.TopicList.MoreTopicsURL = "/latest?page=1"
			} else {
				list.TopicList.Topics = []discourseTopic{{ID: 8}}
			}
			json.NewEncoder(w).Encode(list)
		}))
		defer server.Close()

		topics, err := newWorker(server.URL, 10).fetchNewTopics(context.Background(), 0)
		require.NoError(t, err)
		assert.Len(t, topics, 3)
		// First request carries no page parameter, later ones do.
		assert.Equal(t, []string{"", "1"}, pagesServed)
	})

	t.Run("respects page limit", func(t *testing.T) {
		requests := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
			var list discourseTopicList
			list.TopicList.PerPage = 1
			list.TopicList.Topics = []discourseTopic{{ID: 1000 - requests}}
			list.TopicList.MoreTopicsURL = "/latest?page=next"
			json.NewEncoder(w).Encode(list)
		}))
		defer server.Close()

		topics, err := newWorker(server.URL, 3).fetchNewTopics(context.Background(), 0)
		require.NoError(t, err)
		assert.Len(t, topics, 3)
		assert.Equal(t, 3, requests)
	})

	t.Run("empty page ends paging", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(discourseTopicList{})
		}))
		defer server.Close()

		topics, err := newWorker(server.URL, 10).fetchNewTopics(context.Background(), 0)
		require.NoError(t, err)
		assert.Empty(t, topics)
	})

	t.Run("api credentials sent when configured", func(t *testing.T) {
		var gotKey, gotUser string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotKey = r.Header.Get("Api-Key")
			gotUser = r.Header.Get("Api-Username")
			json.NewEncoder(w).Encode(discourseTopicList{})
		}))
		defer server.Close()

		w := NewDiscourseWorker(
			&config.DiscourseConfig{BaseURL: server.URL, MaxPages: 1, APIKey: "secret", APIUsername: "bot"},
			nil, nil, nil, zaptest.NewLogger(t))
		_, err := w.fetchNewTopics(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, "secret", gotKey)
		assert.Equal(t, "bot", gotUser)
	})
}
