package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crosslink-io/crosslink/internal/engine"
	"github.com/crosslink-io/crosslink/pkg/config"
	"github.com/crosslink-io/crosslink/pkg/logger"
	"github.com/joho/godotenv"
)

const version = "1.0.0"

func main() {
	// Optional .env for local development; environment wins
	_ = godotenv.Load()

	cfg := config.FromEnvironment()
	log := logger.New("crosslink", version)

	eng := engine.NewEngine(cfg)
	eng.SetLogger(log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := eng.Start(ctx); err != nil {
		cancel()
		log.Fatalf("Failed to start engine: %v", err)
	}
	cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Infof("Received signal %s, shutting down", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := eng.Stop(shutdownCtx); err != nil {
		log.Errorf("Shutdown error: %v", err)
		os.Exit(1)
	}
	log.Infof("Shutdown complete")
}
