package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/rahulmehra/exampack/internal/audit"
	"github.com/rahulmehra/exampack/internal/config"
	"github.com/rahulmehra/exampack/internal/database"
	"github.com/rahulmehra/exampack/internal/logging"
	"github.com/rahulmehra/exampack/internal/objstore"
	"github.com/rahulmehra/exampack/internal/pipeline"
	"github.com/rahulmehra/exampack/internal/repository"
	"github.com/rahulmehra/exampack/internal/transform"
	"github.com/rahulmehra/exampack/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := logging.New("exampack-worker", cfg.LogLevel, cfg.LogPretty)

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("ensure schema")
	}
	repo := repository.NewBundleRepository(pool)
	auditor := audit.New(repository.NewAuditRepository(pool), logger)

	store, err := objstore.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("init object storage")
	}
	if err := store.EnsureBuckets(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ensure buckets")
	}

	transformer := transform.NewPipeline(transform.Options{
		QualityStep:  cfg.JPEGQualityStep,
		QualityFloor: cfg.JPEGQualityFloor,
	})
	runner := pipeline.New(transformer, auditor, cfg.ProcessingPool, cfg.TransformTimeout, logger)

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: cfg.ProcessingPool,
	})
	processor := worker.NewProcessor(repo, store, runner, auditor, logger)
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	if err := server.Run(mux); err != nil {
		logger.Error().Err(err).Msg("worker stopped")
		os.Exit(1)
	}
}
