package main

import (
	"fmt"
	"os"

	"github.com/chatdesk-dev/chatdesk/internal/config"
	"github.com/chatdesk-dev/chatdesk/internal/logger"
	"github.com/chatdesk-dev/chatdesk/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.GetLogger()

	srv, err := server.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	if cfg.SeedFile != "" {
		seed, err := server.LoadSeedFile(cfg.SeedFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load seed file")
		}
		if _, err := srv.Seed(seed); err != nil {
			log.Fatal().Err(err).Msg("Failed to seed users")
		}
	}

	log.Info().Int("port", cfg.Server.Port).Msg("Starting chatdesk dev server...")

	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
