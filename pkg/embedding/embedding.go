// Package embedding turns text into fixed-dimension vectors through a
// configurable provider.
package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/paoliniluis/similarity/pkg/apperrors"
	"github.com/paoliniluis/similarity/pkg/config"
	"github.com/paoliniluis/similarity/pkg/models"
)

// Provider generates an embedding vector for a single text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service validates inputs, enforces the vector dimension and fans out
// batch requests with bounded concurrency.
type Service struct {
	provider      Provider
	dim           int
	maxConcurrent int
	logger        *zap.Logger
}

// NewService builds a Service for the configured provider.
func NewService(cfg *config.EmbeddingConfig, logger *zap.Logger) (*Service, error) {
	var provider Provider
	switch cfg.Provider {
	case "openai":
		provider = NewOpenAIProvider(cfg)
	case "http":
		provider = NewHTTPProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Provider)
	}

	dim := cfg.Dimension
	if dim <= 0 {
		dim = models.EmbeddingDim
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Service{provider: provider, dim: dim, maxConcurrent: maxConcurrent, logger: logger}, nil
}

// Embed returns the vector for a single text. Blank text is rejected before
// it reaches the provider.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.ErrEmptyText
	}

	vec, err := s.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) != s.dim {
		return nil, fmt.Errorf("provider returned %d dimensions, expected %d", len(vec), s.dim)
	}
	return vec, nil
}

// EmbedBatch embeds texts concurrently and returns results positionally.
// A failed or blank text yields a nil vector at its position so callers can
// keep the successes.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	results := make([][]float32, len(texts))

	sem := make(chan struct{}, s.maxConcurrent)
	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			vec, err := s.Embed(ctx, text)
			if err != nil {
				s.logger.Warn("batch embedding failed",
					zap.Int("index", i),
					zap.Error(err))
				return
			}
			results[i] = vec
		}(i, text)
	}
	wg.Wait()

	return results
}
