package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/tradecoach-platform/tradecoach/internal/api"
	"github.com/tradecoach-platform/tradecoach/internal/auth"
	"github.com/tradecoach-platform/tradecoach/internal/cache"
	"github.com/tradecoach-platform/tradecoach/internal/coach"
	"github.com/tradecoach-platform/tradecoach/internal/config"
	"github.com/tradecoach-platform/tradecoach/internal/database"
	inats "github.com/tradecoach-platform/tradecoach/internal/nats"
	"github.com/tradecoach-platform/tradecoach/internal/provider"
	"github.com/tradecoach-platform/tradecoach/internal/ratelimit"
	iredis "github.com/tradecoach-platform/tradecoach/internal/redis"
	"github.com/tradecoach-platform/tradecoach/internal/server"
	"github.com/tradecoach-platform/tradecoach/internal/usage"
	"github.com/tradecoach-platform/tradecoach/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("validating config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrations(cfg.DB.DSN(), "migrations"); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS is optional: without it, chat events are just not recorded.
	var natsClient *inats.Client
	if cfg.NATS.URL != "" {
		natsClient, err = inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
	}

	// Auth
	jwtManager := auth.NewJWTManager(cfg.JWT.AccessSecret, cfg.JWT.AccessExpiry)

	// Gateway stack
	limiter := ratelimit.NewLimiter(redisClient)
	responseStore := cache.NewResponseStore(redisClient, cfg.Coach.CacheTTL)
	prov := provider.NewOpenAIProvider(cfg.OpenAI)
	workerPool := worker.NewPool(prov, responseStore, cfg.Coach.Workers, cfg.Coach.QueueSize)

	var events coach.EventPublisher
	if natsClient != nil {
		events = inats.NewPublisher(natsClient.JetStream())
	}

	coachSvc := coach.NewService(limiter, responseStore, workerPool, prov, events, cfg.Coach)
	coachHandler := coach.NewHandler(coachSvc)

	// Usage pipeline
	usageRepo := usage.NewRepository(pool)
	usageHandler := usage.NewHandler(usageRepo)

	consumerCtx, cancelConsumer := context.WithCancel(ctx)
	defer cancelConsumer()
	if natsClient != nil {
		consumer := usage.NewConsumer(usageRepo, inats.NewConsumerManager(natsClient.JetStream()))
		go func() {
			if err := consumer.Start(consumerCtx); err != nil {
				slog.Error("usage consumer stopped", "error", err)
			}
		}()
	}

	// Router
	router := api.NewRouter(pool, redisClient, natsClient, api.RouterConfig{
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
	}, api.HandlerSet{
		Chat:       coachHandler.Chat,
		QueryCount: coachHandler.QueryCount,
		ResetQuota: coachHandler.ResetQuota,

		ListUsage: usageHandler.List,

		AuthMiddleware: auth.Middleware(jwtManager),

		WorkerPoolHealthy: workerPool.Healthy,
	})

	// Start server
	srv := server.New(cfg.Server, router)
	srv.OnShutdown(cancelConsumer)
	srv.OnShutdown(workerPool.Stop)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
