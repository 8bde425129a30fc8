package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"ermtutor/internal/app"
	"ermtutor/internal/config"
	logpkg "ermtutor/internal/logger"
	"ermtutor/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var (
		cfgPath = flag.String("config", "", "Path to YAML config file (optional; uses ./config.yaml or ~/.config/ermtutor/config.yaml)")
		rebuild = flag.Bool("rebuild", false, "Ignore the persisted index and rebuild it from the materials")
		plain   = flag.Bool("plain", false, "Use a line-oriented prompt instead of the terminal UI")
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

	// The terminal UI owns the screen, so logs go to a file unless one is configured.
	logFile := cfg.Logging.File
	if logFile == "" && !*plain {
		logFile = "tutor.log"
	}
	logger, err := logpkg.NewLogger(cfg.Logging.Env, cfg.Logging.Level, logFile)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, app.Options{ForceRebuild: *rebuild}, logger)
	if err != nil {
		logger.Fatal("Failed to assemble tutor", zap.Error(err))
	}
	defer a.Close()

	fmt.Fprintln(os.Stderr, "Loading course materials...")
	stats, err := a.Tutor.Init(ctx)
	if err != nil {
		a.Close()
		logger.Fatal("Failed to initialise tutor", zap.Error(err))
	}

	summary := fmt.Sprintf("%d chunks from %d documents", stats.Chunks, stats.Documents)
	if stats.FromSnapshot {
		summary = fmt.Sprintf("%d chunks (persisted index)", stats.Chunks)
	}
	if stats.Skipped > 0 {
		summary += fmt.Sprintf(", %d files skipped", stats.Skipped)
	}

	if *plain {
		if err := tui.RunPlain(ctx, os.Stdin, os.Stdout, a.Tutor); err != nil && ctx.Err() == nil {
			logger.Error("Chat loop failed", zap.Error(err))
		}
		return
	}

	if _, err := tea.NewProgram(tui.New(ctx, a.Tutor, summary), tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil && ctx.Err() == nil {
		logger.Error("Terminal UI failed", zap.Error(err))
	}
}
