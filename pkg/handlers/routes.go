package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/paoliniluis/similarity/pkg/config"
	"github.com/paoliniluis/similarity/pkg/middleware"
	"github.com/paoliniluis/similarity/pkg/repositories"
)

// RouterDeps bundles everything the HTTP router needs.
type RouterDeps struct {
	Config     *config.Config
	Logger     *zap.Logger
	APIKeys    repositories.APIKeyRepository
	Health     *HealthHandler
	Embedding  *EmbeddingHandler
	Rerank     *RerankHandler
	Similarity *SimilarityHandler
	Chat       *ChatHandler
	Keywords   *KeywordHandler
	Synonyms   *SynonymHandler
}

// NewRouter assembles the full HTTP surface. Health endpoints are open;
// everything else sits behind API key auth and a per-key rate limit. The
// embedding endpoint gets its own, larger budget since workers hit it in
// tight loops.
func NewRouter(deps *RouterDeps) http.Handler {
	auth := middleware.APIKeyAuth(deps.APIKeys, deps.Logger)
	embeddingLimiter := middleware.NewRateLimiter(deps.Config.RateLimit.EmbeddingPerMinute)
	generalLimiter := middleware.NewRateLimiter(deps.Config.RateLimit.SimilarityPerMinute)

	embeddingMux := http.NewServeMux()
	deps.Embedding.RegisterRoutes(embeddingMux)

	generalMux := http.NewServeMux()
	deps.Rerank.RegisterRoutes(generalMux)
	deps.Similarity.RegisterRoutes(generalMux)
	deps.Chat.RegisterRoutes(generalMux)
	deps.Keywords.RegisterRoutes(generalMux)
	deps.Synonyms.RegisterRoutes(generalMux)

	root := http.NewServeMux()
	deps.Health.RegisterRoutes(root)
	root.Handle("/embedding", auth(embeddingLimiter.Middleware(embeddingMux)))
	root.Handle("/", auth(generalLimiter.Middleware(generalMux)))

	return middleware.RequestLogger(deps.Logger)(root)
}
