package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"folio/internal/api"
	"folio/internal/config"
	folioerrors "folio/internal/errors"
	"folio/internal/logging"
	"folio/internal/middleware"
	"folio/internal/repository"

	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer logger.Sync()

	// Open the served repository, creating it on first start
	opts := repository.OptionsFromConfig(cfg, logger.Logger)
	repo, err := repository.Open(cfg.Repository.Path, opts)
	if errors.Is(err, folioerrors.ErrNotInitialized) {
		logger.Info("initializing repository", zap.String("path", cfg.Repository.Path))
		repo, err = repository.Init(cfg.Repository.Path, opts)
	}
	if err != nil {
		logger.Fatal("failed to open repository", zap.Error(err))
	}
	defer repo.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthCheck)
	api.NewHandler(repo, logger).Register(mux)

	handler := middleware.Chain(
		mux,
		middleware.RequestID,
		middleware.Logger(logger),
		middleware.Recover(logger),
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting server",
			zap.String("address", addr),
			zap.String("repository", repo.Root()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy"}`))
}
