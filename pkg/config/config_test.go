package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, yamlContent string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	configPath := writeConfig(t, `
port: "3443"
env: "test"
database:
  host: "db.example.com"
  port: 5432
  user: "testuser"
  database: "testdb"
`)

	t.Setenv("PORT", "4443")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load(configPath, "test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "4443" {
		t.Errorf("expected Port=4443 (from env), got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Errorf("expected Env=production (from env), got %s", cfg.Env)
	}
	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}
	if cfg.Database.Host != "db.example.com" {
		t.Errorf("expected Database.Host=db.example.com (from yaml), got %s", cfg.Database.Host)
	}
	if cfg.Database.User != "testuser" {
		t.Errorf("expected Database.User=testuser (from yaml), got %s", cfg.Database.User)
	}
}

func TestLoad_BaseURLDerivedFromPort(t *testing.T) {
	configPath := writeConfig(t, `
port: "5678"
`)

	cfg, err := Load(configPath, "test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.BaseURL != "http://localhost:5678" {
		t.Errorf("expected BaseURL=http://localhost:5678 (auto-derived), got %s", cfg.BaseURL)
	}
}

func TestLoad_ExplicitBaseURLWins(t *testing.T) {
	configPath := writeConfig(t, `
port: "8080"
base_url: "http://my-server.internal:8080"
`)

	cfg, err := Load(configPath, "test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.BaseURL != "http://my-server.internal:8080" {
		t.Errorf("expected BaseURL=http://my-server.internal:8080 (explicit), got %s", cfg.BaseURL)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, "env: \"test\"\n")

	cfg, err := Load(configPath, "test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "8000" {
		t.Errorf("expected Port=8000 (default), got %s", cfg.Port)
	}
	if cfg.Database.MaxConnections != 25 {
		t.Errorf("expected Database.MaxConnections=25 (default), got %d", cfg.Database.MaxConnections)
	}
	if cfg.Embedding.Dimension != 768 {
		t.Errorf("expected Embedding.Dimension=768 (default), got %d", cfg.Embedding.Dimension)
	}
	if cfg.Worker.PollIntervalSeconds != 5 {
		t.Errorf("expected Worker.PollIntervalSeconds=5 (default), got %d", cfg.Worker.PollIntervalSeconds)
	}
	if cfg.Worker.MaxBackoffSeconds != 600 {
		t.Errorf("expected Worker.MaxBackoffSeconds=600 (default), got %d", cfg.Worker.MaxBackoffSeconds)
	}
	if cfg.GitHub.CommentThreshold != 0.7 {
		t.Errorf("expected GitHub.CommentThreshold=0.7 (default), got %v", cfg.GitHub.CommentThreshold)
	}
	if cfg.RateLimit.EmbeddingPerMinute != 100 {
		t.Errorf("expected RateLimit.EmbeddingPerMinute=100 (default), got %d", cfg.RateLimit.EmbeddingPerMinute)
	}
	if cfg.RateLimit.SimilarityPerMinute != 10 {
		t.Errorf("expected RateLimit.SimilarityPerMinute=10 (default), got %d", cfg.RateLimit.SimilarityPerMinute)
	}
	if cfg.Search.FinalLimit != 10 {
		t.Errorf("expected Search.FinalLimit=10 (default), got %d", cfg.Search.FinalLimit)
	}
}

func TestLoad_SecretsFromEnvOnly(t *testing.T) {
	// Secret fields carry yaml:"-" so a value in the file must be ignored.
	configPath := writeConfig(t, `
env: "test"
`)

	t.Setenv("PGPASSWORD", "env-secret")

	cfg, err := Load(configPath, "test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Database.Password != "env-secret" {
		t.Errorf("expected Database.Password from env, got %q", cfg.Database.Password)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "test-version")
	if err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
}

func TestValidate_RejectsUnknownProviders(t *testing.T) {
	configPath := writeConfig(t, `
embedding:
  provider: "word2vec"
`)

	_, err := Load(configPath, "test-version")
	if err == nil {
		t.Fatal("expected error for unknown embedding provider, got nil")
	}
	if !strings.Contains(err.Error(), "embedding.provider") {
		t.Errorf("expected embedding.provider in error, got %v", err)
	}

	configPath = writeConfig(t, `
llm:
  provider: "bard"
`)
	_, err = Load(configPath, "test-version")
	if err == nil {
		t.Fatal("expected error for unknown llm provider, got nil")
	}
	if !strings.Contains(err.Error(), "llm.provider") {
		t.Errorf("expected llm.provider in error, got %v", err)
	}
}

func TestValidate_EmbeddingSelfReference(t *testing.T) {
	// The HTTP embedding provider pointed at our own port would recurse.
	configPath := writeConfig(t, `
port: "8000"
embedding:
  provider: "http"
  api_base: "http://localhost:8000"
  embedding_path: "/embedding"
`)

	_, err := Load(configPath, "test-version")
	if err == nil {
		t.Fatal("expected error for self-referential embedding endpoint, got nil")
	}

	// A different port is fine.
	configPath = writeConfig(t, `
port: "8000"
embedding:
  provider: "http"
  api_base: "http://localhost:9000"
  embedding_path: "/embedding"
`)
	if _, err := Load(configPath, "test-version"); err != nil {
		t.Fatalf("Load() failed for external embedding endpoint: %v", err)
	}
}

func TestConnectionString(t *testing.T) {
	db := DatabaseConfig{
		Host:     "db.example.com",
		Port:     5432,
		User:     "app",
		Password: "hunter2",
		Database: "similarity",
		SSLMode:  "require",
	}

	got := db.ConnectionString()
	want := "host=db.example.com port=5432 user=app password=hunter2 dbname=similarity sslmode=require"
	if got != want {
		t.Errorf("ConnectionString() = %q, want %q", got, want)
	}
}

func TestMigrateURL_EscapesCredentials(t *testing.T) {
	db := DatabaseConfig{
		Host:            "db.example.com",
		Port:            5432,
		User:            "app@corp",
		Password:        "p@ss:word",
		Database:        "similarity",
		SSLMode:         "disable",
		MigrationsTable: "schema_migrations",
	}

	got := db.MigrateURL()
	if !strings.HasPrefix(got, "pgx5://") {
		t.Errorf("MigrateURL() = %q, want pgx5:// scheme", got)
	}
	if strings.Contains(got, "p@ss:word") {
		t.Errorf("MigrateURL() = %q, credentials not escaped", got)
	}
	if !strings.Contains(got, "x-migrations-table=schema_migrations") {
		t.Errorf("MigrateURL() = %q, missing migrations table parameter", got)
	}
}
