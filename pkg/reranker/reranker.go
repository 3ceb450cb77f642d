// Package reranker reorders similarity candidates with a cross-encoder.
// Reranking is best-effort: when the provider is disabled or fails, the
// original candidate order is preserved.
package reranker

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/paoliniluis/similarity/pkg/config"
)

// maxContentBytes bounds candidate text before submission; cross-encoder
// servers cap input length well below document size.
const maxContentBytes = 4096

// Candidate is one item submitted for reranking. Payload carries the
// caller's original result so it survives the round trip.
type Candidate struct {
	Content string
	Score   float64
	Payload any
}

// Provider scores candidate texts against a query and returns them in
// descending relevance order.
type Provider interface {
	Rerank(ctx context.Context, query string, candidates []string) ([]ScoredText, error)
}

// ScoredText is a provider result: the candidate text with its relevance.
type ScoredText struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Service gates reranking on configuration and degrades to a no-op when
// the provider misbehaves.
type Service struct {
	provider      Provider
	enabled       bool
	maxCandidates int
	logger        *zap.Logger
}

// NewService builds a Service. A disabled configuration yields a service
// whose Rerank returns its input unchanged.
func NewService(cfg *config.RerankerConfig, logger *zap.Logger) *Service {
	svc := &Service{
		enabled:       cfg.Enabled,
		maxCandidates: cfg.MaxCandidates,
		logger:        logger,
	}
	if cfg.Enabled {
		svc.provider = NewHTTPProvider(cfg)
	}
	return svc
}

// NewServiceWithProvider is for tests and alternative providers.
func NewServiceWithProvider(provider Provider, maxCandidates int, logger *zap.Logger) *Service {
	return &Service{
		provider:      provider,
		enabled:       provider != nil,
		maxCandidates: maxCandidates,
		logger:        logger,
	}
}

// Enabled reports whether a provider is configured.
func (s *Service) Enabled() bool {
	return s.enabled && s.provider != nil
}

// Rerank reorders candidates by cross-encoder relevance and attaches the
// reranker score to each. On provider failure the input order is returned
// so search never degrades below vector ranking.
func (s *Service) Rerank(ctx context.Context, query string, candidates []Candidate) []Candidate {
	if !s.Enabled() || len(candidates) == 0 {
		return candidates
	}

	texts := make([]string, len(candidates))
	byContent := make(map[string][]int, len(candidates))
	for i, c := range candidates {
		text := Truncate(c.Content, maxContentBytes)
		texts[i] = text
		byContent[text] = append(byContent[text], i)
	}

	scored, err := s.provider.Rerank(ctx, query, texts)
	if err != nil {
		s.logger.Warn("reranking failed, keeping vector order", zap.Error(err))
		return candidates
	}

	reranked := make([]Candidate, 0, len(candidates))
	for _, st := range scored {
		indexes := byContent[st.Text]
		if len(indexes) == 0 {
			continue
		}
		// Duplicate contents resolve in submission order.
		idx := indexes[0]
		byContent[st.Text] = indexes[1:]

		c := candidates[idx]
		c.Score = st.Score
		reranked = append(reranked, c)
	}

	// A provider that dropped candidates is treated as a failure.
	if len(reranked) != len(candidates) {
		s.logger.Warn("reranker returned mismatched candidates, keeping vector order",
			zap.Int("sent", len(candidates)),
			zap.Int("received", len(reranked)))
		return candidates
	}

	// Rerank servers often return input order with scores attached, so
	// the ranking is enforced here.
	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})

	if s.maxCandidates > 0 && len(reranked) > s.maxCandidates {
		reranked = reranked[:s.maxCandidates]
	}
	return reranked
}

// ContentFor builds the text a source item is reranked on. Each source type
// concatenates its most informative fields.
func ContentFor(sourceKind string, fields ...string) string {
	var parts []string
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			parts = append(parts, f)
		}
	}
	if len(parts) == 0 {
		return sourceKind
	}
	return strings.Join(parts, "\n")
}

// Truncate limits candidate content length, backing off to the previous
// rune boundary so the cut never splits a multi-byte character.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
