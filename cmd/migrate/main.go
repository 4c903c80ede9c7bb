package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"urlbox/internal/pkg/logger"
	"urlbox/internal/platform/config"
	"urlbox/internal/platform/database"
	"urlbox/migrations"
)

func main() {
	direction := flag.String("direction", database.DirectionUp, "Migration direction: up or down")
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("Failed to open database")
	}
	defer db.Close()

	if err := database.Migrate(db, migrations.FS(), *direction); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}

	fmt.Println("Migration completed successfully")
}
