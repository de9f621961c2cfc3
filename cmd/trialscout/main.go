package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/trialscout/trialscout/internal/adapter/anthropic"
	"github.com/trialscout/trialscout/internal/adapter/filecache"
	tshttp "github.com/trialscout/trialscout/internal/adapter/http"
	"github.com/trialscout/trialscout/internal/adapter/natskv"
	"github.com/trialscout/trialscout/internal/adapter/ollama"
	otelobs "github.com/trialscout/trialscout/internal/adapter/otel"
	"github.com/trialscout/trialscout/internal/adapter/postgres"
	"github.com/trialscout/trialscout/internal/adapter/registry"
	"github.com/trialscout/trialscout/internal/adapter/ristretto"
	"github.com/trialscout/trialscout/internal/adapter/tiered"
	"github.com/trialscout/trialscout/internal/config"
	"github.com/trialscout/trialscout/internal/logger"
	"github.com/trialscout/trialscout/internal/port/cache"
	"github.com/trialscout/trialscout/internal/port/provider"
	"github.com/trialscout/trialscout/internal/resilience"
	"github.com/trialscout/trialscout/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"provider", cfg.Provider.Kind,
		"cache_backend", cfg.Cache.Backend,
		"log_level", cfg.Logging.Level,
	)

	ctx := context.Background()

	// --- Observability ---

	otelShutdown, err := otelobs.Init(ctx, cfg.Logging.Service, cfg.Otel.Endpoint)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Error("otel shutdown failed", "error", err)
		}
	}()

	// --- Trial cache ---

	store, sweeper, closeCache, err := buildCache(ctx, cfg.Cache)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer closeCache()

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	if sweeper != nil {
		go sweepExpired(sweepCtx, sweeper)
	}

	// --- Reasoning provider ---

	prov, err := buildProvider(cfg)
	if err != nil {
		return fmt.Errorf("provider: %w", err)
	}
	slog.Info("reasoning provider ready", "name", prov.Name())

	// --- Services ---

	trials := registry.NewClient(cfg.Registry, store, cfg.Cache.TTL)
	matcher := service.NewMatcher(trials, prov, cfg.Matcher)

	metrics, err := otelobs.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	matcher.SetMetrics(metrics)

	// --- HTTP ---

	handlers := tshttp.NewHandlers(matcher, trials)

	r := chi.NewRouter()
	r.Use(tshttp.CORS(cfg.Server.CORSOrigin))
	r.Use(tshttp.SecurityHeaders)
	r.Use(tshttp.RequestID)
	r.Use(tshttp.Logger)
	r.Use(otelobs.HTTPMiddleware(cfg.Logging.Service))
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(5 * time.Minute))

	tshttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Reasoning calls for a full batch can take minutes.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// expiredSweeper is implemented by durable backends that need periodic
// removal of entries past their TTL. NATS KV expires entries itself.
type expiredSweeper interface {
	InvalidateExpired(ctx context.Context) error
}

// sweepExpired removes expired durable entries once an hour until ctx is
// cancelled.
func sweepExpired(ctx context.Context, s expiredSweeper) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.InvalidateExpired(ctx); err != nil {
				slog.Warn("cache sweep failed", "error", err)
			}
		}
	}
}

// buildCache assembles the tiered trial cache: an in-process L1 in front of
// the configured durable L2.
func buildCache(ctx context.Context, cfg config.Cache) (cache.Cache, expiredSweeper, func(), error) {
	l1, err := ristretto.New(cfg.L1MaxSizeMB << 20)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("ristretto: %w", err)
	}

	noop := func() {}

	switch cfg.Backend {
	case "file":
		l2, err := filecache.New(cfg.Dir)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("file cache: %w", err)
		}
		return tiered.New(l1, l2, cfg.TTL), l2, noop, nil

	case "nats":
		l2, err := natskv.Connect(ctx, cfg.NATS.URL, cfg.NATS.Bucket, cfg.TTL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("nats kv: %w", err)
		}
		return tiered.New(l1, l2, cfg.TTL), nil, func() { l2.Close() }, nil

	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("migrations: %w", err)
		}
		l2 := postgres.NewCache(pool)
		return tiered.New(l1, l2, cfg.TTL), l2, pool.Close, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// buildProvider resolves the reasoning backend once at startup and wraps it
// with a circuit breaker.
func buildProvider(cfg *config.Config) (provider.Provider, error) {
	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Cooldown)

	switch cfg.Provider.Kind {
	case "anthropic":
		c := anthropic.NewClient(
			cfg.Provider.Anthropic.BaseURL,
			cfg.Provider.Anthropic.APIKey,
			cfg.Provider.Anthropic.Model,
			cfg.Provider.Anthropic.MaxTokens,
			cfg.Provider.Timeout,
		)
		c.SetBreaker(breaker)
		return c, nil

	case "ollama":
		c := ollama.NewClient(cfg.Provider.Ollama.BaseURL, cfg.Provider.Ollama.Model, cfg.Provider.Timeout)
		c.SetBreaker(breaker)
		return c, nil

	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Provider.Kind)
	}
}
