// Package config provides hierarchical configuration loading for TrialScout.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the TrialScout service.
type Config struct {
	Server   Server   `yaml:"server"`
	Registry Registry `yaml:"registry"`
	Provider Provider `yaml:"provider"`
	Cache    Cache    `yaml:"cache"`
	Matcher  Matcher  `yaml:"matcher"`
	Logging  Logging  `yaml:"logging"`
	Breaker  Breaker  `yaml:"breaker"`
	Otel     Otel     `yaml:"otel"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Registry holds ClinicalTrials.gov API client configuration.
type Registry struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	PageSize   int           `yaml:"page_size"`
	UserAgent  string        `yaml:"user_agent"`
	MaxRetries int           `yaml:"max_retries"`
}

// Provider selects and configures the reasoning backend.
type Provider struct {
	// Kind is "anthropic" (cloud) or "ollama" (local). Resolved once at startup.
	Kind      string        `yaml:"kind"`
	Timeout   time.Duration `yaml:"timeout"`
	Anthropic Anthropic     `yaml:"anthropic"`
	Ollama    Ollama        `yaml:"ollama"`
}

// Anthropic holds cloud reasoning API configuration.
type Anthropic struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// Ollama holds local reasoning server configuration.
type Ollama struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Cache holds trial cache configuration. L1 is always the in-process
// ristretto cache; L2 is a durable backend selected by Backend.
type Cache struct {
	TTL         time.Duration `yaml:"ttl"`
	L1MaxSizeMB int64         `yaml:"l1_max_size_mb"`
	// Backend is the durable layer: "file", "nats" or "postgres".
	Backend  string   `yaml:"backend"`
	Dir      string   `yaml:"dir"`
	NATS     NATS     `yaml:"nats"`
	Postgres Postgres `yaml:"postgres"`
}

// NATS holds NATS JetStream KV configuration for the cache L2.
type NATS struct {
	URL    string `yaml:"url"`
	Bucket string `yaml:"bucket"`
}

// Postgres holds PostgreSQL configuration for the cache L2.
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	HealthCheck     time.Duration `yaml:"health_check"`
}

// Matcher holds match orchestration configuration.
type Matcher struct {
	// MaxParallel caps concurrent reasoning calls per match request.
	MaxParallel int `yaml:"max_parallel"`
	// MaxTrials bounds how many candidate trials one request may evaluate.
	MaxTrials int `yaml:"max_trials"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// Breaker holds circuit breaker configuration for reasoning provider calls.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Cooldown    time.Duration `yaml:"cooldown"`
}

// Otel holds OpenTelemetry exporter configuration. An empty endpoint
// disables export.
type Otel struct {
	Endpoint string `yaml:"endpoint"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:3000",
		},
		Registry: Registry{
			BaseURL:    "https://clinicaltrials.gov/api/v2",
			Timeout:    30 * time.Second,
			PageSize:   50,
			UserAgent:  "TrialScout/1.0 (research use)",
			MaxRetries: 2,
		},
		Provider: Provider{
			Kind:    "ollama",
			Timeout: 120 * time.Second,
			Anthropic: Anthropic{
				BaseURL:   "https://api.anthropic.com",
				Model:     "claude-sonnet-4-5-20250929",
				MaxTokens: 2000,
			},
			Ollama: Ollama{
				BaseURL: "http://localhost:11434",
				Model:   "llama3.1:8b",
			},
		},
		Cache: Cache{
			TTL:         24 * time.Hour,
			L1MaxSizeMB: 64,
			Backend:     "file",
			Dir:         "trials_cache",
			NATS: NATS{
				URL:    "nats://localhost:4222",
				Bucket: "trialscout-cache",
			},
			Postgres: Postgres{
				MaxConns:        10,
				MinConns:        1,
				MaxConnLifetime: time.Hour,
				MaxConnIdleTime: 10 * time.Minute,
				HealthCheck:     time.Minute,
			},
		},
		Matcher: Matcher{
			MaxParallel: 4,
			MaxTrials:   50,
		},
		Logging: Logging{
			Level:   "info",
			Service: "trialscout",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Cooldown:    30 * time.Second,
		},
	}
}
