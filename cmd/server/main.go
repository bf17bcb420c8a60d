package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-exam-engine/internal/apiclient"
	"github.com/stemsi/exstem-exam-engine/internal/clock"
	"github.com/stemsi/exstem-exam-engine/internal/config"
	"github.com/stemsi/exstem-exam-engine/internal/handler"
	"github.com/stemsi/exstem-exam-engine/internal/logger"
	"github.com/stemsi/exstem-exam-engine/internal/middleware"
	"github.com/stemsi/exstem-exam-engine/internal/router"
	"github.com/stemsi/exstem-exam-engine/internal/service"
	"github.com/stemsi/exstem-exam-engine/internal/store"
	"github.com/stemsi/exstem-exam-engine/internal/validator"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("backend", cfg.BackendURL).
		Str("storage", cfg.StorageDriver).
		Msg("Starting ExStem exam engine")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Open Durable State Store ──────────────────────────────────────
	kv, closeStore, err := store.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StorageDriver).Msg("Failed to open state store")
	}
	defer closeStore()

	keys := config.NewCacheKeyStruct(cfg.StorageNamespace)
	answerStore := store.NewAnswerStore(kv, keys, log)
	resultStore := store.NewResultStore(kv, keys)

	// ─── Backend Client ────────────────────────────────────────────────
	backend := apiclient.New(apiclient.Options{
		BaseURL:    cfg.BackendURL,
		Token:      cfg.BackendToken,
		Timeout:    cfg.BackendTimeout,
		MaxRetries: cfg.BackendMaxRetries,
		RetryDelay: cfg.BackendRetryDelay,
	}, log)

	// ─── Initialize Services ──────────────────────────────────────────
	bootstrapService := service.NewBootstrapService(backend, answerStore, resultStore, clock.System(), service.BootstrapConfig{
		CatalogLimit:     cfg.QuestionCatalogLimit,
		FetchConcurrency: cfg.QuestionFetchConcurrency,
		SubmitTimeout:    cfg.SubmitTimeout,
		TrueFalseLabels:  cfg.TrueFalseLabels,
	}, log)
	registry := service.NewRegistry(bootstrapService, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Session: handler.NewSessionHandler(registry, resultStore, log),
		WS:      handler.NewWSHandler(registry, log, cfg.AllowedOrigins),
		System:  handler.NewSystemHandler(registry, cfg.StorageDriver),
	}

	var limiter *middleware.RateLimiter
	stopSweep := make(chan struct{})
	if cfg.RateLimitPerMinute > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
		go limiter.Sweep(stopSweep)
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(handlers, cfg, limiter)

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

	// 2. Stop countdowns. Answers are already persisted, so a restart resumes.
	registry.CloseAll()
	close(stopSweep)

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
