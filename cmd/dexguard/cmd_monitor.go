package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dexguard/dexguard/internal/config"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the containment engine daemon",
	Long: `Starts the monitor loops, the breaker registry and the status API
server, then runs until interrupted.`,
	RunE: runMonitor,
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		log.Info().Str("path", configPath).Msg("Configuration loaded")
	} else {
		log.Info().Msg("No config file given, using defaults")
	}

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.scheduler.Start(ctx)

	serverErr := make(chan error, 1)
	go func() { serverErr <- a.server.Start() }()

	log.Info().
		Int("breakers", len(cfg.Universe)+1).
		Str("system_id", cfg.SystemID).
		Msg("Containment engine running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("Shutdown requested")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("API server failed")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	a.shutdown(shutdownCtx)

	log.Info().Msg("Containment engine stopped")
	return nil
}
