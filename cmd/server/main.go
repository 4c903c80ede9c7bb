package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"urlbox/internal/api"
	"urlbox/internal/api/handlers"
	"urlbox/internal/api/middleware"
	"urlbox/internal/engine/webhooks"
	"urlbox/internal/pkg/logger"
	"urlbox/internal/platform/auth"
	"urlbox/internal/platform/config"
	"urlbox/internal/platform/database"
	"urlbox/internal/platform/repositories"
	"urlbox/internal/platform/urlbox"
	"urlbox/internal/workers"
	"urlbox/migrations"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging)

	if cfg.Urlbox.WebhookSecret == "" {
		log.Warn().Msg("urlbox.webhook_secret is empty: every webhook will be rejected")
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := database.Migrate(db, migrations.FS(), database.DirectionUp); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Repositories
	renderRepo := repositories.NewRenderRepository(db)
	eventRepo := repositories.NewRenderEventRepository(db)

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)
	client := urlbox.NewClient(cfg.Urlbox)
	verifier := webhooks.NewVerifier(cfg.Urlbox.WebhookSecret)
	metrics := &handlers.Metrics{}

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenSvc)
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit)
	go rateLimiter.Cleanup(ctx, time.Minute)

	retention := workers.NewRetention(eventRepo, cfg.Retention)
	retention.OnPurge = func(n int64) { metrics.EventsPurged.Add(n) }
	go retention.Run(ctx)

	router := api.NewRouter(&api.Dependencies{
		WebhookHandler: handlers.NewWebhookHandler(verifier, eventRepo, metrics, cfg.Server.MaxBodyBytes),
		RenderHandler:  handlers.NewRenderHandler(client, renderRepo, eventRepo, metrics, cfg.Server.MaxBodyBytes),
		HealthHandler:  handlers.NewHealthHandler(db),
		MetricsHandler: handlers.NewMetricsHandler(metrics),
		AuthMiddleware: authMiddleware,
		RateLimiter:    rateLimiter,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Str("api_base", client.Signer().BaseURL()).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}
