// Package main is the entry point for the auditing HTTP service.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/nexusai/auditoria/internal/analysis"
	"github.com/nexusai/auditoria/internal/config"
	"github.com/nexusai/auditoria/internal/database"
	"github.com/nexusai/auditoria/internal/flow"
	"github.com/nexusai/auditoria/internal/logger"
	"github.com/nexusai/auditoria/internal/metrics"
	"github.com/nexusai/auditoria/internal/repository"
	"github.com/nexusai/auditoria/internal/s3storage"
	"github.com/nexusai/auditoria/internal/server"
	"github.com/nexusai/auditoria/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.FlowReady(); err != nil {
		// Requests will be refused with a configuration error until fixed.
		slog.Warn("payment provider not configured", "error", err)
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	deps := server.Deps{
		Flow:     flow.New(cfg.Flow, httpClient),
		Analyzer: analysis.New(cfg.Gemini, httpClient),
		Metrics:  metrics.New(),
	}

	switch cfg.CacheBackend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			fatal("connect redis", err)
		}
		deps.Cache = storage.NewRedisStore(rdb, cfg.CacheTTL)
	default:
		mem := storage.NewMemoryStore(cfg.CacheTTL)
		if cfg.CacheTTL > 0 {
			mem.StartSweeper(ctx, sweepInterval(cfg.CacheTTL))
		}
		deps.Cache = mem
	}

	if cfg.DatabaseURL != "" {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			fatal("connect database", err)
		}
		defer pool.Close()
		if err := database.EnsureSchema(ctx, pool); err != nil {
			fatal("ensure schema", err)
		}
		deps.Sessions = repository.NewPaymentSessionRepository(pool)
	}

	if cfg.QueueEnabled() {
		queueClient := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer queueClient.Close()
		deps.Queue = queueClient
	}

	if cfg.ArchiveEnabled() {
		archive, err := s3storage.New(cfg)
		if err != nil {
			fatal("init report archive", err)
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			fatal("ensure report bucket", err)
		}
		deps.Archive = archive
	}

	srv, err := server.New(cfg, deps)
	if err != nil {
		fatal("init server", err)
	}
	if err := srv.Serve(ctx); err != nil {
		fatal("server stopped", err)
	}
}

func sweepInterval(ttl time.Duration) time.Duration {
	if interval := ttl / 2; interval > 30*time.Second {
		return interval
	}
	return 30 * time.Second
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
