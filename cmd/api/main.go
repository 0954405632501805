package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/markdave123-py/layoutflow/internal/app"
	"github.com/markdave123-py/layoutflow/internal/config"
	"github.com/markdave123-py/layoutflow/internal/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	zl := logger.NewZapLogger(cfg.LogFile, cfg.IsProd())
	defer zl.Sync()

	application, err := app.NewApp(ctx, cfg, zl)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer application.Close()

	application.Ingestor.Start(ctx, cfg.IngestWorkers)

	srv := app.NewServer(cfg.Port, application.Handler(), zl)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			zl.Error("Main", "server stopped", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("Main", "graceful shutdown failed", map[string]interface{}{"error": err.Error()})
	}
}
