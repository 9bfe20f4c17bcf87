package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/trackio/engine/internal/api"
	"github.com/trackio/engine/internal/api/handlers"
	"github.com/trackio/engine/internal/repository"
	"github.com/trackio/engine/internal/services"
	"github.com/trackio/engine/pkg/config"
	"github.com/trackio/engine/pkg/database"
	"github.com/trackio/engine/pkg/logger"

	_ "github.com/trackio/engine/docs"
)

// @title           Trackio API
// @version         1.0
// @description     Multi-tenant project tracking backend: organizations, projects, sprints, and story boards.

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	cfg := config.MustLoad()

	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	log.Info("starting trackio engine",
		zap.String("env", cfg.AppEnv),
		zap.String("addr", cfg.HTTPAddr),
	)

	ctx := context.Background()
	db, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	log.Info("database connected")

	// Repositories
	userRepo := repository.NewUserRepository(db)
	orgRepo := repository.NewOrganizationRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	sprintRepo := repository.NewSprintRepository(db)
	storyRepo := repository.NewStoryRepository(db)
	historyRepo := repository.NewHistoryRepository(db)

	jwtSecret := []byte(cfg.JWTSecret)
	if len(jwtSecret) == 0 {
		log.Warn("JWT_SECRET not set, using default (INSECURE for production)")
		jwtSecret = []byte("change-me-in-production-please")
	}

	// Background task client for async slug backfill
	queueClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer queueClient.Close()

	// Services
	authSvc := services.NewAuthService(userRepo, jwtSecret)
	orgSvc := services.NewOrganizationService(orgRepo)
	projectSvc := services.NewProjectService(projectRepo, orgRepo)
	sprintSvc := services.NewSprintService(sprintRepo, projectRepo, orgRepo)
	storySvc := services.NewStoryService(db, storyRepo, projectRepo, orgRepo, historyRepo, queueClient)

	router := api.NewRouter(api.Dependencies{
		HMACSecret:           jwtSecret,
		AuthHandler:          handlers.NewAuthHandler(authSvc),
		OrganizationsHandler: handlers.NewOrganizationsHandler(orgSvc),
		ProjectsHandler:      handlers.NewProjectsHandler(projectSvc),
		SprintsHandler:       handlers.NewSprintsHandler(sprintSvc),
		StoriesHandler:       handlers.NewStoriesHandler(storySvc),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	} else {
		log.Info("server exited gracefully")
	}
}
