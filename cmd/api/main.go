package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openbridge/openbridge-backend/internal/analytics"
	"github.com/openbridge/openbridge-backend/internal/api"
	"github.com/openbridge/openbridge-backend/internal/config"
	"github.com/openbridge/openbridge-backend/internal/log"
	"github.com/openbridge/openbridge-backend/internal/metrics"
)

const version = "v1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := log.NewSugar(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infow("Starting OpenBridge analytics server",
		"env", cfg.Env,
		"addr", cfg.HTTPAddr,
		"store", cfg.Analytics.Store,
		"version", version,
	)

	// Setup metrics
	metricsObj, metricsHandler, err := metrics.Setup("openbridge-analytics")
	if err != nil {
		logger.Fatalw("Failed to setup metrics", "error", err)
	}

	// Analytics store
	var (
		repo analytics.Repository
		db   *sql.DB
	)
	switch cfg.Analytics.Store {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		db, err = analytics.OpenPostgres(ctx, cfg.Database.PostgresDSN)
		cancel()
		if err != nil {
			logger.Fatalw("Failed to connect to analytics database", "error", err)
		}
		defer db.Close()
		repo = analytics.NewPostgresRepository(db, logger)
		logger.Infow("Analytics database connection established")
	default:
		repo = analytics.NewMemoryRepository()
		logger.Warnw("Using in-memory analytics store; data is lost on restart")
	}

	svc := analytics.NewService(repo, cfg.Analytics.Key, logger)

	// Setup API handler and middleware
	handler := api.NewHandler(svc, logger)
	middleware := api.NewMiddleware(logger, metricsObj)

	router := handler.Routes(middleware, cfg.Security.CORSAllowedOrigins, cfg.Security.RateLimitRPM)

	// Log configured CORS origins for easier debugging in dev
	logger.Infow("CORS configured", "allowed_origins", cfg.Security.CORSAllowedOrigins)

	// Add metrics endpoint
	router.Handle("/metrics", metricsHandler)

	// Setup HTTP server
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		logger.Infow("API server starting", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatalw("Server startup failed", "error", err)
	case sig := <-shutdown:
		logger.Infow("Shutdown signal received", "signal", sig.String())

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Errorw("Graceful shutdown failed", "error", err)
			server.Close()
		}

		logger.Infow("Server stopped")
	}
}
