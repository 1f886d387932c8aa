// Command server runs the classification sampling backend.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sentinel-hub/classification-app-backend/internal/config"
	"github.com/sentinel-hub/classification-app-backend/internal/logging"
	"github.com/sentinel-hub/classification-app-backend/internal/observability"
	"github.com/sentinel-hub/classification-app-backend/internal/server"
)

var Version = "dev"

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults to $CLASSIFICATION_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger := logging.Build(logging.Config{Component: "server"}, nil)
		bootLogger.Fatal().Err(err).Msg("load configuration")
	}

	logger := logging.Build(logging.Config{
		Level:     cfg.Logging.Level,
		Console:   cfg.Logging.Console,
		Component: "server",
	}, nil)
	observability.ExposeBuildInfo(Version)
	logger.Info().Str("version", Version).Str("addr", cfg.Server.Addr).Msg("starting sampling backend")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
	logger.Info().Msg("server stopped")
}
