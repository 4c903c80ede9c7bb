package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"urlbox/internal/pkg/logger"
	"urlbox/internal/platform/config"
	"urlbox/internal/platform/database"
	"urlbox/internal/platform/repositories"
	"urlbox/internal/workers"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	once := flag.Bool("once", false, "Run a single retention sweep and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	retention := workers.NewRetention(repositories.NewRenderEventRepository(db), cfg.Retention)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		deleted, err := retention.PurgeExpiredEvents(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Retention sweep failed")
		}
		log.Info().Int64("deleted", deleted).Msg("Retention sweep complete")
		return
	}

	log.Info().
		Dur("event_ttl", cfg.Retention.EventTTL).
		Dur("sweep_interval", cfg.Retention.SweepInterval).
		Msg("Starting background workers")
	retention.Run(ctx)
}
