// Package search implements union-merge vector similarity search over the
// corpus tables, with an optional cross-encoder reranking stage.
package search

import (
	"fmt"
	"strings"

	pgvector "github.com/pgvector/pgvector-go"
)

// QuerySpec describes one similarity query: a per-embedding-column
// candidate CTE, a UNION ALL merge, and a GROUP BY keeping the best score
// per entity.
type QuerySpec struct {
	Table            string
	SelectCols       string
	GroupBy          string
	EmbeddingColumns []string
	// Where is an extra filter applied inside every candidate CTE, written
	// against positional parameters ($1, $2, ...).
	Where string
	// Threshold drops candidates below a minimum similarity. Zero disables.
	Threshold float64
	PerColumn int
	Limit     int
}

// VectorLiteral renders an embedding as a pgvector literal for inline use.
// Similarity expressions take the vector inline so the planner can use the
// ivfflat indexes on every CTE.
func VectorLiteral(vec []float32) string {
	return fmt.Sprintf("'%s'::vector", pgvector.NewVector(vec).String())
}

// SQL renders the query with the embedding inlined as a vector literal.
// Caller-supplied filter values still bind through positional parameters.
func (s QuerySpec) SQL(vec []float32) string {
	literal := VectorLiteral(vec)

	var ctes []string
	var unions []string
	for _, col := range s.EmbeddingColumns {
		name := strings.TrimSuffix(col, "_embedding") + "_sim"

		conditions := []string{fmt.Sprintf("%s IS NOT NULL", col)}
		if s.Where != "" {
			conditions = append(conditions, s.Where)
		}
		if s.Threshold > 0 {
			conditions = append(conditions, fmt.Sprintf("1 - (%s <=> %s) > %g", col, literal, s.Threshold))
		}

		ctes = append(ctes, fmt.Sprintf(`%s AS (
	SELECT %s, 1 - (%s <=> %s) AS similarity
	FROM %s
	WHERE %s
	ORDER BY %s <=> %s
	LIMIT %d
)`,
			name,
			s.SelectCols, col, literal,
			s.Table,
			strings.Join(conditions, " AND "),
			col, literal,
			s.PerColumn,
		))
		unions = append(unions, "SELECT * FROM "+name)
	}

	return fmt.Sprintf(`WITH %s,
all_sim AS (
	%s
)
SELECT %s, MAX(similarity) AS similarity
FROM all_sim
GROUP BY %s
ORDER BY similarity DESC
LIMIT %d`,
		strings.Join(ctes, ",\n"),
		strings.Join(unions, "\n	UNION ALL\n	"),
		s.GroupBy,
		s.GroupBy,
		s.Limit,
	)
}
