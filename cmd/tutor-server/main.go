package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"ermtutor/internal/app"
	"ermtutor/internal/config"
	logpkg "ermtutor/internal/logger"
	"ermtutor/internal/transport/httpapi"
)

func main() {
	_ = godotenv.Load()

	var (
		cfgPath = flag.String("config", "", "Path to YAML config file (optional; uses ./config.yaml or ~/.config/ermtutor/config.yaml)")
		rebuild = flag.Bool("rebuild", false, "Ignore the persisted index and rebuild it from the materials")
	)
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if *cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(*cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logpkg.NewLogger(cfg.Logging.Env, cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ERM tutor server",
		zap.String("env", cfg.Logging.Env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("materials", cfg.Materials.Dir),
	)

	a, err := app.New(cfg, app.Options{ForceRebuild: *rebuild}, logger)
	if err != nil {
		logger.Fatal("Failed to assemble tutor", zap.Error(err))
	}
	defer a.Close()

	if _, err := a.Tutor.Init(context.Background()); err != nil {
		a.Close()
		logger.Fatal("Failed to initialise tutor", zap.Error(err))
	}

	writeTimeout := time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second
	server := httpapi.NewServer(a.Tutor, a.HealthChecks(), cfg.Chat.PreviewChars, logger).
		WithAnswerTimeout(httpapi.AnswerTimeout(writeTimeout))

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: writeTimeout,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}
