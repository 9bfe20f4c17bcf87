package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/trackio/engine/internal/queue/tasks"
	"github.com/trackio/engine/internal/repository"
	"github.com/trackio/engine/internal/services"
	"github.com/trackio/engine/pkg/config"
	"github.com/trackio/engine/pkg/database"
	"github.com/trackio/engine/pkg/logger"
)

func main() {
	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		},
		asynq.Config{
			Concurrency: cfg.AsynqConcurrency,
		},
	)

	ctx := context.Background()
	db, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}

	orgRepo := repository.NewOrganizationRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	storyRepo := repository.NewStoryRepository(db)
	historyRepo := repository.NewHistoryRepository(db)

	// worker runs backfills inline, no queue client needed
	storySvc := services.NewStoryService(db, storyRepo, projectRepo, orgRepo, historyRepo, nil)

	handler := tasks.NewBackfillTaskHandler(storySvc, projectRepo, orgRepo)
	mux := asynq.NewServeMux()
	mux.HandleFunc(services.TypeStoryBackfill, handler.HandleBackfill)

	errCh := make(chan error, 1)
	go func() {
		log.Info("worker starting", zap.Int("concurrency", cfg.AsynqConcurrency))
		if err := srv.Run(mux); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("worker error", zap.Error(err))
	}

	srv.Shutdown()
	log.Info("worker exited")
}
