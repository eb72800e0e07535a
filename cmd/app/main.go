package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"longform-scriptgen/internal/config"
	"longform-scriptgen/internal/domain/ports/adapter"
	"longform-scriptgen/internal/domain/ports/repository"
	aiAdapters "longform-scriptgen/internal/infra/adapters/ai"
	"longform-scriptgen/internal/infra/adapters/content"
	tele "longform-scriptgen/internal/infra/adapters/telegram"
	"longform-scriptgen/internal/infra/api"
	"longform-scriptgen/internal/infra/db/memory"
	pg "longform-scriptgen/internal/infra/db/postgres"
	"longform-scriptgen/internal/infra/logging"
	"longform-scriptgen/internal/infra/metrics"
	red "longform-scriptgen/internal/infra/redis"
	"longform-scriptgen/internal/infra/worker"
	"longform-scriptgen/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode: in-memory store and noop AI allowed")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("version", version).Bool("dev", cfg.Runtime.Dev).Msg("starting scriptgen")

	// ---- Storage ----
	var repo repository.JobRepository
	if cfg.Database.URL != "" {
		pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres")
		}
		defer pool.Close()
		go pg.ReportPoolStats(ctx, pool, 15*time.Second, logger)
		repo = pg.NewPostgresJobRepo(pool, pg.NewTxManager(pool))
	} else {
		logger.Warn().Msg("database.url not set; jobs are kept in memory only")
		repo = memory.NewJobRepo()
	}
	store := usecase.NewJobStore(repo, logger)

	// ---- Redis ----
	var (
		locker  repository.RunLocker
		cache   repository.ProgressCache
		limiter api.LoginLimiter
	)
	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer rc.Close()
		locker = red.NewLocker(rc)
		cache = red.NewProgressCache(rc, cfg.Redis.TTL)
		limiter = red.NewRateLimiter(rc)
	} else {
		logger.Warn().Msg("redis.url not set; run lock, shared progress and login throttling disabled")
	}

	// ---- AI ----
	ai, provider, err := buildAI(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("ai adapter")
	}
	gen := content.NewClient(ai, content.Config{
		TextModel:      cfg.AI.TextModel,
		ImageModel:     cfg.AI.ImageModel,
		HookWordBudget: cfg.Pipeline.HookWordBudget,
		Timeout:        cfg.AI.RequestTimeout,
		Provider:       provider,
	}, logger)

	// ---- Notifications ----
	bg := worker.NewPool(cfg.Queue.Workers, logger)
	// Detached from ctx so notifications raised during shutdown still drain.
	bg.Start(context.Background())
	var next adapter.Notifier = tele.NewNoopNotifier(logger)
	if cfg.Telegram.Token != "" {
		n, err := tele.NewNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram")
		}
		next = n
		logger.Info().Str("token", logging.Redact(cfg.Telegram.Token, cfg.Runtime.Dev)).Int64("chat_id", cfg.Telegram.ChatID).Msg("telegram notifier enabled")
	}
	notifier := worker.NewAsyncNotifier(bg, next, 15*time.Second)

	// ---- Use cases ----
	pipeline := usecase.NewPipeline(store, gen, locker, cache, notifier, usecase.PipelineConfig{
		BatchSize:      cfg.Pipeline.BatchSize,
		HookWordBudget: cfg.Pipeline.HookWordBudget,
		LockTTL:        cfg.Pipeline.LockTTL,
	}, logger)
	library := usecase.NewLibraryUseCase(store, pipeline, logger)
	assets := usecase.NewAssetsUseCase(store, gen, logger)

	queue := worker.NewQueueRunner(store, pipeline, logger)
	if cfg.Queue.AutoStart {
		queue.Start()
	}

	// ---- HTTP ----
	auth := api.NewAuthManager(cfg.Auth.Password, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.SecureCookie)
	if !auth.Enabled() {
		logger.Warn().Msg("auth.password not set; API is open")
	}
	apiSrv := api.NewServer(pipeline, library, assets, queue, auth, limiter, logger)
	if cfg.AI.RequestTimeout > apiSrv.AssetTimeout {
		apiSrv.AssetTimeout = cfg.AI.RequestTimeout
	}
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           apiSrv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown requested")

	sctx, scancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer scancel()
	if err := server.Shutdown(sctx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	// Stop the queue first so the in-flight job goes back to PENDING, then let
	// any interactive run persist its partial state.
	queue.Close()
	pipeline.Close()
	bg.Stop()
	cancel()
}

// buildAI assembles the provider adapters behind a model router and a
// concurrency limit. The returned func names the provider for a model.
func buildAI(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (adapter.AIServiceAdapter, func(string) string, error) {
	byProvider := map[string]adapter.AIServiceAdapter{}
	if cfg.AI.GeminiKey != "" {
		g, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.TextModel, cfg.AI.ImageModel, cfg.AI.MaxOutputTokens)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini: %w", err)
		}
		byProvider["gemini"] = g
		logger.Debug().Str("key", logging.Redact(cfg.AI.GeminiKey, cfg.Runtime.Dev)).Msg("gemini configured")
	}
	if cfg.AI.OpenAIKey != "" {
		o, err := aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL, cfg.AI.TextModel, cfg.AI.ImageModel, cfg.AI.MaxOutputTokens)
		if err != nil {
			return nil, nil, fmt.Errorf("openai: %w", err)
		}
		byProvider["openai"] = o
		logger.Debug().Str("key", logging.Redact(cfg.AI.OpenAIKey, cfg.Runtime.Dev)).Msg("openai configured")
	}
	if cfg.AI.Provider == "noop" {
		byProvider["noop"] = aiAdapters.NewNoopAIAdapter(2*time.Second, logger)
	}
	multi := aiAdapters.NewMultiAIAdapter(cfg.AI.Provider, byProvider, cfg.AI.ModelProviders)
	logger.Info().Str("provider", cfg.AI.Provider).Str("text_model", cfg.AI.TextModel).
		Str("image_model", cfg.AI.ImageModel).Msg("ai adapter ready")
	return aiAdapters.NewLimitedAI(multi, cfg.AI.ConcurrentLimit), multi.ProviderFor, nil
}
