// Package main is the entry point for the financial analysis orchestrator:
// a multi-agent pipeline that fans a symbol out across fundamentals,
// technical, news and sentiment analysts, runs a bull/bear debate and a
// risk review, and serves the result and live status over HTTP.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantdesk/orchestrator/internal/config"
	"github.com/quantdesk/orchestrator/internal/di"
	"github.com/quantdesk/orchestrator/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	log.Info().Msg("starting orchestrator")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to wire dependencies")
	}

	go func() {
		if err := container.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start orchestrator")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("orchestrator started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down orchestrator")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	container.Stop(shutdownCtx)

	log.Info().Msg("orchestrator stopped")
}
