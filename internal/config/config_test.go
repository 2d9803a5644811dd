package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Database.PoolSize != 64 {
		t.Errorf("expected pool 64, got %d", cfg.Database.PoolSize)
	}
	if cfg.Embedding.Dimensions != 1536 {
		t.Errorf("expected 1536, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Search.Threshold != 0.8 {
		t.Errorf("expected 0.8, got %f", cfg.Search.Threshold)
	}
	if cfg.Bus.HandlerTimeout() != 60*time.Second {
		t.Errorf("expected 60s, got %v", cfg.Bus.HandlerTimeout())
	}
	if cfg.Bus.MessageTTL() != 7*24*time.Hour {
		t.Errorf("expected 7d, got %v", cfg.Bus.MessageTTL())
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[database]
url = "postgres://other:5432/db"

[agent]
space_iterations = 32
`), 0644)

	cfg := Load(path)
	if cfg.Database.URL != "postgres://other:5432/db" {
		t.Errorf("expected file url, got %s", cfg.Database.URL)
	}
	if cfg.Agent.SpaceIterations != 32 {
		t.Errorf("expected 32, got %d", cfg.Agent.SpaceIterations)
	}
	// Defaults preserved
	if cfg.Search.TopK != 10 {
		t.Errorf("default should be preserved, got %d", cfg.Search.TopK)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("ACONTEXT_DATABASE_URL", "postgres://env:5432/db")
	t.Setenv("ACONTEXT_LLM_API_KEY", "env-key")
	t.Setenv("ACONTEXT_EMBEDDING_DIMENSIONS", "768")

	cfg := Load("/nonexistent/path.toml")
	if cfg.Database.URL != "postgres://env:5432/db" {
		t.Errorf("expected env url, got %s", cfg.Database.URL)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("expected env-key, got %s", cfg.LLM.APIKey)
	}
	if cfg.Embedding.Dimensions != 768 {
		t.Errorf("expected 768, got %d", cfg.Embedding.Dimensions)
	}
	// Fallback: embedding inherits the LLM key
	if cfg.Embedding.APIKey != "env-key" {
		t.Errorf("expected embedding fallback to env-key, got %s", cfg.Embedding.APIKey)
	}
}

func TestEnvIntIgnoresJunk(t *testing.T) {
	t.Setenv("ACONTEXT_DATABASE_POOL_SIZE", "not-a-number")
	cfg := Load("/nonexistent/path.toml")
	if cfg.Database.PoolSize != 64 {
		t.Errorf("junk env should keep default, got %d", cfg.Database.PoolSize)
	}
}
