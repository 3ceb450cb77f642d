package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the similarity service.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"PORT" env-default:"8000"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// Database configuration (PostgreSQL + pgvector)
	Database DatabaseConfig `yaml:"database"`

	// Embedding provider configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Reranker provider configuration
	Reranker RerankerConfig `yaml:"reranker"`

	// LLM gateway configuration
	LLM LLMConfig `yaml:"llm"`

	// Batch orchestration configuration
	Batch BatchConfig `yaml:"batch"`

	// Worker loop configuration
	Worker WorkerConfig `yaml:"worker"`

	// Search tuning
	Search SearchConfig `yaml:"search"`

	// Upstream sources (GitHub issues, Discourse forum, docs site)
	GitHub    GitHubConfig    `yaml:"github"`
	Discourse DiscourseConfig `yaml:"discourse"`

	// Rate limits applied per API key
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host            string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port            int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User            string `yaml:"user" env:"PGUSER" env-default:"similarity"`
	Password        string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database        string `yaml:"database" env:"PGDATABASE" env-default:"similarity"`
	MaxConnections  int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MinConnections  int32  `yaml:"min_connections" env:"PGMIN_CONNECTIONS" env-default:"2"`
	SSLMode         string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsTable string `yaml:"migrations_table" env:"PGMIGRATIONS_TABLE" env-default:"schema_migrations"`
}

// EmbeddingConfig holds embedding provider settings.
// Provider "openai" talks to an OpenAI-compatible embeddings endpoint;
// provider "http" posts {"text": ...} to an external /embedding service.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider" env:"EMBEDDING_PROVIDER" env-default:"openai"`
	Model     string `yaml:"model" env:"EMBEDDING_MODEL" env-default:"nomic-embed-text"`
	Dimension int    `yaml:"dimension" env:"EMBEDDING_DIM" env-default:"768"`
	APIBase   string `yaml:"api_base" env:"EMBEDDING_API_BASE" env-default:"http://localhost:11434/v1"`
	APIKey    string `yaml:"-" env:"EMBEDDING_API_KEY"` // Secret - not in YAML
	// HTTP provider only
	EmbeddingPath  string `yaml:"embedding_path" env:"EMBEDDING_API_EMBEDDING_PATH" env-default:"/embedding"`
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"EMBEDDING_TIMEOUT_SECONDS" env-default:"30"`
	MaxConcurrent  int    `yaml:"max_concurrent" env:"EMBEDDING_MAX_CONCURRENT" env-default:"8"`
}

// RerankerConfig holds cross-encoder reranker settings.
type RerankerConfig struct {
	Enabled        bool   `yaml:"enabled" env:"RERANKER_ENABLED" env-default:"false"`
	APIBase        string `yaml:"api_base" env:"RERANKER_API_BASE" env-default:"http://localhost:8080"`
	APIKey         string `yaml:"-" env:"RERANKER_API_KEY"` // Secret - not in YAML
	RerankPath     string `yaml:"rerank_path" env:"RERANKER_API_RERANK_PATH" env-default:"/rerank"`
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"RERANKER_API_TIMEOUT" env-default:"30"`
	MaxCandidates  int    `yaml:"max_candidates" env:"RERANKER_MAX_CANDIDATES" env-default:"20"`
}

// LLMConfig holds LLM gateway settings. FastModel and SlowModel are the
// concrete model names behind the "fast" and "slow" aliases.
type LLMConfig struct {
	Provider   string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	APIBase    string `yaml:"api_base" env:"LLM_API_BASE" env-default:"https://api.openai.com/v1"`
	APIKey     string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	FastModel  string `yaml:"fast_model" env:"LLM_FAST_MODEL" env-default:"gpt-4o-mini"`
	SlowModel  string `yaml:"slow_model" env:"LLM_SLOW_MODEL" env-default:"gpt-4o"`
	RPM        int    `yaml:"rpm" env:"LLM_RPM" env-default:"60"`
	MaxRetries int    `yaml:"max_retries" env:"LLM_MAX_RETRIES" env-default:"3"`
}

// BatchConfig holds batch orchestrator settings.
type BatchConfig struct {
	APIBase             string `yaml:"api_base" env:"BATCH_API_BASE" env-default:"https://api.openai.com"`
	APIKey              string `yaml:"-" env:"BATCH_API_KEY"` // Secret - not in YAML
	Model               string `yaml:"model" env:"BATCH_MODEL" env-default:"gpt-4o-mini"`
	EntitiesPerBatch    int    `yaml:"entities_per_batch" env:"BATCH_ENTITIES_PER_BATCH" env-default:"100"`
	MaxCandidates       int    `yaml:"max_candidates" env:"BATCH_MAX_CANDIDATES" env-default:"50000"`
	Dir                 string `yaml:"dir" env:"BATCH_DIR" env-default:"batch"`
	HTTPTimeoutSeconds  int    `yaml:"http_timeout_seconds" env:"BATCH_HTTP_TIMEOUT_SECONDS" env-default:"120"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds" env:"BATCH_POLL_INTERVAL_SECONDS" env-default:"60"`
}

// WorkerConfig holds settings shared by the enrichment worker loops.
type WorkerConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds" env:"WORKER_POLL_INTERVAL_SECONDS" env-default:"5"`
	BackoffSeconds      int `yaml:"backoff_seconds" env:"WORKER_BACKOFF_SECONDS" env-default:"60"`
	MaxBackoffSeconds   int `yaml:"max_backoff_seconds" env:"WORKER_MAX_BACKOFF_SECONDS" env-default:"600"`
	SummaryPageSize     int `yaml:"summary_page_size" env:"WORKER_SUMMARY_PAGE_SIZE" env-default:"10"`
	EmbeddingPageSize   int `yaml:"embedding_page_size" env:"WORKER_EMBEDDING_PAGE_SIZE" env-default:"50"`
}

// SearchConfig holds similarity search tuning.
type SearchConfig struct {
	CandidatesPerColumn int     `yaml:"candidates_per_column" env:"SEARCH_CANDIDATES_PER_COLUMN" env-default:"50"`
	FinalLimit          int     `yaml:"final_limit" env:"SEARCH_FINAL_LIMIT" env-default:"10"`
	RerankThreshold     float64 `yaml:"rerank_threshold" env:"SEARCH_RERANK_THRESHOLD" env-default:"0.5"`
	RerankPoolLimit     int     `yaml:"rerank_pool_limit" env:"SEARCH_RERANK_POOL_LIMIT" env-default:"50"`
}

// GitHubConfig holds the GitHub issue monitor settings.
type GitHubConfig struct {
	BaseURL   string `yaml:"base_url" env:"GITHUB_BASE_URL" env-default:"https://github.com/metabase/metabase"`
	APIBase   string `yaml:"api_base" env:"GITHUB_API_BASE" env-default:"https://api.github.com"`
	RepoOwner string `yaml:"repo_owner" env:"GITHUB_REPO_OWNER" env-default:"metabase"`
	RepoName  string `yaml:"repo_name" env:"GITHUB_REPO_NAME" env-default:"metabase"`
	Token     string `yaml:"-" env:"GITHUB_WORKER_TOKEN"` // Secret - not in YAML
	// CommentThreshold is the minimum similarity for a duplicate to be
	// mentioned in the bot comment.
	CommentThreshold float64 `yaml:"comment_threshold" env:"GITHUB_COMMENT_THRESHOLD" env-default:"0.7"`
}

// DiscourseConfig holds the Discourse forum monitor settings.
type DiscourseConfig struct {
	BaseURL     string `yaml:"base_url" env:"DISCOURSE_BASE_URL" env-default:"https://discourse.metabase.com"`
	APIUsername string `yaml:"api_username" env:"DISCOURSE_API_USERNAME" env-default:""`
	APIKey      string `yaml:"-" env:"DISCOURSE_API_KEY"` // Secret - not in YAML
	MaxPages    int    `yaml:"max_pages" env:"DISCOURSE_MAX_PAGES" env-default:"10"`
}

// RateLimitConfig holds per-API-key request budgets (requests per minute).
type RateLimitConfig struct {
	EmbeddingPerMinute  int `yaml:"embedding_per_minute" env:"RATE_LIMIT_EMBEDDING_PER_MINUTE" env-default:"100"`
	SimilarityPerMinute int `yaml:"similarity_per_minute" env:"RATE_LIMIT_SIMILARITY_PER_MINUTE" env-default:"10"`
}

// Load reads configuration from the given YAML file with environment variable
// overrides. The version parameter is injected at build time and set on the
// returned Config. Secrets (PGPASSWORD, LLM_API_KEY, ...) must come from
// environment variables (yaml:"-" fields).
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// Validate checks cross-field constraints that cleanenv cannot express.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "openai", "http":
	default:
		return fmt.Errorf("embedding.provider must be \"openai\" or \"http\", got %q", c.Embedding.Provider)
	}

	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("llm.provider must be \"openai\" or \"anthropic\", got %q", c.LLM.Provider)
	}

	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}

	// Recursion guard: the HTTP embedding provider must not point back at
	// this same process, or /embedding would call itself forever.
	if c.Embedding.Provider == "http" && c.embeddingPointsAtSelf() {
		return fmt.Errorf("embedding.api_base %q points at this service's own /embedding endpoint", c.Embedding.APIBase)
	}

	if c.Batch.EntitiesPerBatch <= 0 {
		return fmt.Errorf("batch.entities_per_batch must be positive, got %d", c.Batch.EntitiesPerBatch)
	}

	return nil
}

func (c *Config) embeddingPointsAtSelf() bool {
	base := strings.TrimSuffix(c.Embedding.APIBase, "/")
	localHosts := []string{
		"http://localhost:" + c.Port,
		"http://127.0.0.1:" + c.Port,
		"http://0.0.0.0:" + c.Port,
	}
	for _, h := range localHosts {
		if base == h && strings.TrimSuffix(c.Embedding.EmbeddingPath, "/") == "/embedding" {
			return true
		}
	}
	return false
}

// ConnectionString returns a PostgreSQL connection string. The host is
// rewritten for Docker when the service runs in a container but the
// database does not.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		ResolveHostForDocker(c.Host), c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// MigrateURL returns a connection URL in the form golang-migrate expects.
func (c *DatabaseConfig) MigrateURL() string {
	return fmt.Sprintf(
		"pgx5://%s:%s@%s:%d/%s?sslmode=%s&x-migrations-table=%s",
		url.QueryEscape(c.User), url.QueryEscape(c.Password),
		ResolveHostForDocker(c.Host), c.Port, c.Database, c.SSLMode, c.MigrationsTable,
	)
}
