package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/liftlabs/liftapp-backend/internal/config"
	"github.com/liftlabs/liftapp-backend/internal/database"
	"github.com/liftlabs/liftapp-backend/internal/draft"
	"github.com/liftlabs/liftapp-backend/internal/handler"
	"github.com/liftlabs/liftapp-backend/internal/logger"
	"github.com/liftlabs/liftapp-backend/internal/repository"
	"github.com/liftlabs/liftapp-backend/internal/router"
	"github.com/liftlabs/liftapp-backend/internal/service"
	"github.com/liftlabs/liftapp-backend/internal/validator"
	"github.com/liftlabs/liftapp-backend/internal/worker"
	"github.com/rs/zerolog"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting LiftApp Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	annotatorRepo := repository.NewAnnotatorRepository(pool)
	adminRepo := repository.NewAdminRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	imageRepo := repository.NewImageRepository(pool)
	annotationRepo := repository.NewAnnotationRepository(pool)
	completionRepo := repository.NewCompletionRepository(pool)
	answerKeyRepo := repository.NewAnswerKeyRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	draftStore := draft.NewStore(rdb, log)
	eventBus := service.NewRedisEventBus(rdb)

	authService := service.NewAuthService(cfg, annotatorRepo, adminRepo)
	examService := service.NewExamService(examRepo)
	mediaService := service.NewMediaService(cfg)
	sessionService := service.NewSessionService(
		cfg, examService, draftStore,
		imageRepo, annotationRepo, completionRepo, annotatorRepo,
		eventBus, log,
	)
	rosterService := service.NewRosterService(annotatorRepo, completionRepo, examService, log)
	analyticsService := service.NewAnalyticsService(annotatorRepo, completionRepo, examService, log)
	answerKeyService := service.NewAnswerKeyService(examService, imageRepo, answerKeyRepo, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:      handler.NewAuthHandler(authService, annotatorRepo),
		Portal:    handler.NewPortalHandler(sessionService, examService, mediaService),
		AnswerKey: handler.NewAnswerKeyHandler(answerKeyService, mediaService),
		Roster:    handler.NewRosterHandler(rosterService),
		Analytics: handler.NewAnalyticsHandler(analyticsService),
		Media:     handler.NewMediaHandler(mediaService, examService),
		Monitor:   handler.NewMonitorHandler(rdb, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	timeoutWorker := worker.NewTimeoutWorker(sessionService, cfg.SweepInterval, log)
	scoringWorker := worker.NewScoringWorker(rdb, annotationRepo, answerKeyRepo, completionRepo, log)

	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		timeoutWorker.Start(workerCtx)
	}()
	go func() {
		defer workers.Done()
		scoringWorker.Start(workerCtx)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait: the scoring worker drains its
	// queue on the way out.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
