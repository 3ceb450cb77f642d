package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paoliniluis/similarity/pkg/config"
)

// HTTPProvider posts query/candidate pairs to an external cross-encoder
// service and reads back the reranked list.
type HTTPProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPProvider builds a provider for the remote rerank endpoint.
func NewHTTPProvider(cfg *config.RerankerConfig) *HTTPProvider {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPProvider{
		endpoint: strings.TrimSuffix(cfg.APIBase, "/") + cfg.RerankPath,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
	}
}

var _ Provider = (*HTTPProvider)(nil)

type rerankRequest struct {
	Query      string   `json:"query"`
	Candidates []string `json:"candidates"`
}

type rerankResponse struct {
	RerankedCandidates []ScoredText `json:"reranked_candidates"`
}

func (p *HTTPProvider) Rerank(ctx context.Context, query string, candidates []string) ([]ScoredText, error) {
	body, err := json.Marshal(rerankRequest{Query: query, Candidates: candidates})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rerank request returned %d: %s", resp.StatusCode, payload)
	}

	var result rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}
	return result.RerankedCandidates, nil
}
