package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/nexusai/auditoria/internal/config"
	"github.com/nexusai/auditoria/internal/database"
	"github.com/nexusai/auditoria/internal/flow"
	"github.com/nexusai/auditoria/internal/logger"
	"github.com/nexusai/auditoria/internal/repository"
	"github.com/nexusai/auditoria/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	if !cfg.QueueEnabled() || cfg.DatabaseURL == "" {
		slog.Error("worker needs REDIS_ADDR and DATABASE_URL")
		os.Exit(1)
	}
	if err := cfg.FlowKeysReady(); err != nil {
		slog.Error("payment provider not configured", "error", err)
		os.Exit(1)
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("connect database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		slog.Error("ensure schema", "error", err)
		os.Exit(1)
	}
	repo := repository.NewPaymentSessionRepository(pool)
	flowClient := flow.New(cfg.Flow, &http.Client{Timeout: cfg.HTTPTimeout})

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: cfg.Workers,
		Logger:      newAsynqLogger(),
	})
	processor := worker.NewProcessor(flowClient, repo)
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	slog.Info("confirmation worker started", "concurrency", cfg.Workers)
	if err := server.Run(mux); err != nil {
		slog.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}
