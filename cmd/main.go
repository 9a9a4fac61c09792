package main

import (
	"context"
	"flag"
	"os"

	"github.com/rs/zerolog"

	callwatch "github.com/deimos135-ai/ai-crm-analytics"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Str("service", "callwatch").Logger().
		Level(level)

	logger.Info().Str("version", version).Str("commit", commit).Msg("starting")

	cfg, err := callwatch.LoadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if missing := cfg.MissingSecrets(); len(missing) > 0 {
		// Health stays up without secrets; cycles are skipped until they
		// appear.
		logger.Warn().Strs("missing", missing).Msg("starting without full credentials")
	}

	shutdown, err := callwatch.InitTracer("callwatch")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init tracer")
	}
	defer shutdown(context.Background())

	monitor := callwatch.NewMonitor(cfg, logger)
	go monitor.Run(context.Background())

	srv := callwatch.NewServer(cfg, logger, monitor)
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}
