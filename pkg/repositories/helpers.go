package repositories

import (
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/paoliniluis/similarity/pkg/models"
)

// nullString returns nil if the string is empty, otherwise the string pointer.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// vectorValue converts a raw embedding into a pgvector parameter, enforcing
// the process-wide dimension invariant. A nil slice maps to SQL NULL.
func vectorValue(vec []float32) (any, error) {
	if vec == nil {
		return nil, nil
	}
	if len(vec) != models.EmbeddingDim {
		return nil, fmt.Errorf("embedding has %d components, want %d", len(vec), models.EmbeddingDim)
	}
	return pgvector.NewVector(vec), nil
}
