package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "trialscout.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "TRIALSCOUT_PORT")
	setString(&cfg.Server.CORSOrigin, "TRIALSCOUT_CORS_ORIGIN")

	setString(&cfg.Registry.BaseURL, "TRIALSCOUT_REGISTRY_URL")
	setDuration(&cfg.Registry.Timeout, "TRIALSCOUT_REGISTRY_TIMEOUT")
	setInt(&cfg.Registry.PageSize, "TRIALSCOUT_REGISTRY_PAGE_SIZE")
	setString(&cfg.Registry.UserAgent, "TRIALSCOUT_REGISTRY_USER_AGENT")
	setInt(&cfg.Registry.MaxRetries, "TRIALSCOUT_REGISTRY_MAX_RETRIES")

	setString(&cfg.Provider.Kind, "TRIALSCOUT_PROVIDER")
	setDuration(&cfg.Provider.Timeout, "TRIALSCOUT_PROVIDER_TIMEOUT")
	setString(&cfg.Provider.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	setString(&cfg.Provider.Anthropic.BaseURL, "TRIALSCOUT_ANTHROPIC_URL")
	setString(&cfg.Provider.Anthropic.Model, "TRIALSCOUT_ANTHROPIC_MODEL")
	setInt(&cfg.Provider.Anthropic.MaxTokens, "TRIALSCOUT_ANTHROPIC_MAX_TOKENS")
	setString(&cfg.Provider.Ollama.BaseURL, "TRIALSCOUT_OLLAMA_URL")
	setString(&cfg.Provider.Ollama.Model, "TRIALSCOUT_OLLAMA_MODEL")

	setDuration(&cfg.Cache.TTL, "TRIALSCOUT_CACHE_TTL")
	setInt64(&cfg.Cache.L1MaxSizeMB, "TRIALSCOUT_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.Backend, "TRIALSCOUT_CACHE_BACKEND")
	setString(&cfg.Cache.Dir, "TRIALSCOUT_CACHE_DIR")
	setString(&cfg.Cache.NATS.URL, "NATS_URL")
	setString(&cfg.Cache.NATS.Bucket, "TRIALSCOUT_CACHE_NATS_BUCKET")
	setString(&cfg.Cache.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Cache.Postgres.MaxConns, "TRIALSCOUT_PG_MAX_CONNS")
	setInt32(&cfg.Cache.Postgres.MinConns, "TRIALSCOUT_PG_MIN_CONNS")

	setInt(&cfg.Matcher.MaxParallel, "TRIALSCOUT_MATCH_MAX_PARALLEL")
	setInt(&cfg.Matcher.MaxTrials, "TRIALSCOUT_MATCH_MAX_TRIALS")

	setString(&cfg.Logging.Level, "TRIALSCOUT_LOG_LEVEL")
	setString(&cfg.Logging.Service, "TRIALSCOUT_LOG_SERVICE")

	setInt(&cfg.Breaker.MaxFailures, "TRIALSCOUT_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Cooldown, "TRIALSCOUT_BREAKER_COOLDOWN")

	setString(&cfg.Otel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Registry.BaseURL == "" {
		return errors.New("registry.base_url is required")
	}
	if cfg.Registry.PageSize < 1 {
		return errors.New("registry.page_size must be >= 1")
	}
	switch cfg.Provider.Kind {
	case "anthropic":
		if cfg.Provider.Anthropic.APIKey == "" {
			return errors.New("provider.anthropic.api_key is required when provider.kind is anthropic")
		}
	case "ollama":
	default:
		return fmt.Errorf("provider.kind must be anthropic or ollama, got %q", cfg.Provider.Kind)
	}
	switch cfg.Cache.Backend {
	case "file":
		if cfg.Cache.Dir == "" {
			return errors.New("cache.dir is required when cache.backend is file")
		}
	case "nats":
		if cfg.Cache.NATS.URL == "" {
			return errors.New("cache.nats.url is required when cache.backend is nats")
		}
	case "postgres":
		if cfg.Cache.Postgres.DSN == "" {
			return errors.New("cache.postgres.dsn is required when cache.backend is postgres")
		}
	default:
		return fmt.Errorf("cache.backend must be file, nats or postgres, got %q", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL <= 0 {
		return errors.New("cache.ttl must be positive")
	}
	if cfg.Matcher.MaxParallel < 1 {
		return errors.New("matcher.max_parallel must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
