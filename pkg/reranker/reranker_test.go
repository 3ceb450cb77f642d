package reranker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/paoliniluis/similarity/pkg/config"
)

type fakeProvider struct {
	results  []ScoredText
	err      error
	queries  []string
	received [][]string
}

func (f *fakeProvider) Rerank(ctx context.Context, query string, candidates []string) ([]ScoredText, error) {
	f.queries = append(f.queries, query)
	f.received = append(f.received, candidates)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func candidates(contents ...string) []Candidate {
	out := make([]Candidate, len(contents))
	for i, c := range contents {
		out[i] = Candidate{Content: c, Score: float64(len(contents)-i) * 0.1, Payload: i}
	}
	return out
}

func TestService_DisabledPassesThrough(t *testing.T) {
	svc := NewService(&config.RerankerConfig{Enabled: false}, zaptest.NewLogger(t))
	assert.False(t, svc.Enabled())

	in := candidates("a", "b")
	out := svc.Rerank(context.Background(), "query", in)
	assert.Equal(t, in, out)
}

func TestService_ReordersByProviderScore(t *testing.T) {
	provider := &fakeProvider{results: []ScoredText{
		{Text: "b", Score: 0.9},
		{Text: "a", Score: 0.4},
		{Text: "c", Score: 0.1},
	}}
	svc := NewServiceWithProvider(provider, 0, zaptest.NewLogger(t))
	require.True(t, svc.Enabled())

	out := svc.Rerank(context.Background(), "query", candidates("a", "b", "c"))
	require.Len(t, out, 3)
	assert.Equal(t, "b", out[0].Content)
	assert.Equal(t, 0.9, out[0].Score)
	assert.Equal(t, 1, out[0].Payload)
	assert.Equal(t, "a", out[1].Content)
	assert.Equal(t, "c", out[2].Content)
	assert.Equal(t, []string{"query"}, provider.queries)
}

func TestService_SortsWhenProviderKeepsInputOrder(t *testing.T) {
	provider := &fakeProvider{results: []ScoredText{
		{Text: "a", Score: 0.1},
		{Text: "b", Score: 0.9},
		{Text: "c", Score: 0.5},
	}}
	svc := NewServiceWithProvider(provider, 0, zaptest.NewLogger(t))

	out := svc.Rerank(context.Background(), "query", candidates("a", "b", "c"))
	require.Len(t, out, 3)
	assert.Equal(t, "b", out[0].Content)
	assert.Equal(t, 0.9, out[0].Score)
	assert.Equal(t, "c", out[1].Content)
	assert.Equal(t, "a", out[2].Content)
}

func TestService_TruncatesContentBeforeSubmission(t *testing.T) {
	long := strings.Repeat("x", maxContentBytes+100)
	provider := &fakeProvider{results: []ScoredText{
		{Text: Truncate(long, maxContentBytes), Score: 0.8},
	}}
	svc := NewServiceWithProvider(provider, 0, zaptest.NewLogger(t))

	out := svc.Rerank(context.Background(), "query", []Candidate{{Content: long, Payload: 7}})
	require.Len(t, out, 1)
	assert.Equal(t, long, out[0].Content, "caller keeps the full content")
	assert.Equal(t, 7, out[0].Payload)
	require.Len(t, provider.received, 1)
	assert.Len(t, provider.received[0][0], maxContentBytes)
}

func TestService_ProviderErrorKeepsVectorOrder(t *testing.T) {
	provider := &fakeProvider{err: errors.New("connection refused")}
	svc := NewServiceWithProvider(provider, 0, zaptest.NewLogger(t))

	in := candidates("a", "b")
	out := svc.Rerank(context.Background(), "query", in)
	assert.Equal(t, in, out)
}

func TestService_DroppedCandidatesKeepsVectorOrder(t *testing.T) {
	provider := &fakeProvider{results: []ScoredText{{Text: "a", Score: 0.9}}}
	svc := NewServiceWithProvider(provider, 0, zaptest.NewLogger(t))

	in := candidates("a", "b", "c")
	out := svc.Rerank(context.Background(), "query", in)
	assert.Equal(t, in, out)
}

func TestService_DuplicateContentsResolveInOrder(t *testing.T) {
	provider := &fakeProvider{results: []ScoredText{
		{Text: "same", Score: 0.9},
		{Text: "same", Score: 0.2},
	}}
	svc := NewServiceWithProvider(provider, 0, zaptest.NewLogger(t))

	out := svc.Rerank(context.Background(), "query", candidates("same", "same"))
	require.Len(t, out, 2)
	assert.Equal(t, 0, out[0].Payload)
	assert.Equal(t, 1, out[1].Payload)
}

func TestService_MaxCandidatesCaps(t *testing.T) {
	provider := &fakeProvider{results: []ScoredText{
		{Text: "a", Score: 0.9},
		{Text: "b", Score: 0.8},
		{Text: "c", Score: 0.7},
	}}
	svc := NewServiceWithProvider(provider, 2, zaptest.NewLogger(t))

	out := svc.Rerank(context.Background(), "query", candidates("a", "b", "c"))
	assert.Len(t, out, 2)
}

func TestService_EmptyInput(t *testing.T) {
	provider := &fakeProvider{}
	svc := NewServiceWithProvider(provider, 0, zaptest.NewLogger(t))

	out := svc.Rerank(context.Background(), "query", nil)
	assert.Empty(t, out)
	assert.Empty(t, provider.queries)
}

func TestContentFor(t *testing.T) {
	assert.Equal(t, "title\nbody", ContentFor("issue", "title", "", "body"))
	assert.Equal(t, "issue", ContentFor("issue", "", "  "))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "abcdef", Truncate("abcdef", 0))
	assert.Equal(t, "abc", Truncate("abc", 10))

	// The cut backs off rather than splitting a multi-byte rune.
	got := Truncate("ab日本語", 4)
	assert.Equal(t, "ab", got)
	assert.True(t, utf8.ValidString(got))
}
