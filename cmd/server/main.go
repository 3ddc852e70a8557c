package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/rahulmehra/exampack/internal/api"
	"github.com/rahulmehra/exampack/internal/config"
	"github.com/rahulmehra/exampack/internal/database"
	"github.com/rahulmehra/exampack/internal/logging"
	"github.com/rahulmehra/exampack/internal/objstore"
	"github.com/rahulmehra/exampack/internal/repository"
	"github.com/rahulmehra/exampack/internal/signing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := logging.New("exampack-api", cfg.LogLevel, cfg.LogPretty)

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("ensure schema")
	}
	repo := repository.NewBundleRepository(pool)

	store, err := objstore.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("init object storage")
	}
	if err := store.EnsureBuckets(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ensure buckets")
	}

	queueClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer queueClient.Close()

	signer := signing.NewSigner(cfg.SigningSecret)
	srv := api.New(cfg, repo, store, queueClient, signer, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
