package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("expected cache TTL 24h, got %v", cfg.Cache.TTL)
	}
	if cfg.Provider.Kind != "ollama" {
		t.Errorf("expected default provider ollama, got %s", cfg.Provider.Kind)
	}
	if cfg.Matcher.MaxParallel != 4 {
		t.Errorf("expected max_parallel 4, got %d", cfg.Matcher.MaxParallel)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  port: "9090"
  cors_origin: "http://example.com"
registry:
  page_size: 25
cache:
  ttl: 1h
logging:
  level: "debug"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Registry.PageSize != 25 {
		t.Errorf("expected page_size 25, got %d", cfg.Registry.PageSize)
	}
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("expected cache TTL 1h, got %v", cfg.Cache.TTL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	// Unchanged fields keep defaults
	if cfg.Registry.BaseURL != "https://clinicaltrials.gov/api/v2" {
		t.Errorf("expected default registry URL, got %s", cfg.Registry.BaseURL)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	err := loadYAML(&cfg, "/nonexistent/path.yaml")
	if err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("TRIALSCOUT_PORT", "7070")
	t.Setenv("TRIALSCOUT_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("TRIALSCOUT_CACHE_TTL", "12h")
	t.Setenv("TRIALSCOUT_LOG_LEVEL", "warn")
	t.Setenv("TRIALSCOUT_BREAKER_COOLDOWN", "1m")

	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Provider.Kind != "anthropic" {
		t.Errorf("expected provider anthropic, got %s", cfg.Provider.Kind)
	}
	if cfg.Provider.Anthropic.APIKey != "sk-test" {
		t.Errorf("expected api key override, got %s", cfg.Provider.Anthropic.APIKey)
	}
	if cfg.Cache.TTL != 12*time.Hour {
		t.Errorf("expected cache TTL 12h, got %v", cfg.Cache.TTL)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
	if cfg.Breaker.Cooldown != time.Minute {
		t.Errorf("expected breaker cooldown 1m, got %v", cfg.Breaker.Cooldown)
	}
}

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{
			name:   "empty port",
			modify: func(c *Config) { c.Server.Port = "" },
			errMsg: "server.port is required",
		},
		{
			name:   "empty registry url",
			modify: func(c *Config) { c.Registry.BaseURL = "" },
			errMsg: "registry.base_url is required",
		},
		{
			name:   "anthropic without key",
			modify: func(c *Config) { c.Provider.Kind = "anthropic" },
			errMsg: "provider.anthropic.api_key is required",
		},
		{
			name:   "unknown provider",
			modify: func(c *Config) { c.Provider.Kind = "bard" },
			errMsg: "provider.kind must be anthropic or ollama",
		},
		{
			name:   "unknown cache backend",
			modify: func(c *Config) { c.Cache.Backend = "redis" },
			errMsg: "cache.backend must be file, nats or postgres",
		},
		{
			name:   "non-positive ttl",
			modify: func(c *Config) { c.Cache.TTL = 0 },
			errMsg: "cache.ttl must be positive",
		},
		{
			name:   "zero parallelism",
			modify: func(c *Config) { c.Matcher.MaxParallel = 0 },
			errMsg: "matcher.max_parallel must be >= 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			err := validate(&cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Fatalf("expected error containing %q, got %q", tt.errMsg, err)
			}
		})
	}
}

func TestLoadFromFullHierarchy(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "trialscout.yaml")

	content := `
server:
  port: "9090"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TRIALSCOUT_PORT", "7070")

	cfg, err := LoadFrom(yamlPath)
	if err != nil {
		t.Fatal(err)
	}

	// ENV wins over YAML which wins over defaults.
	if cfg.Server.Port != "7070" {
		t.Errorf("expected env port 7070, got %s", cfg.Server.Port)
	}
}
