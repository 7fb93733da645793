package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"weather-rain-pipeline/internal/config"
	"weather-rain-pipeline/internal/handlers"
	"weather-rain-pipeline/internal/services"
	"weather-rain-pipeline/internal/snapshot"
	"weather-rain-pipeline/pkg/database"
	"weather-rain-pipeline/pkg/logging"
	"weather-rain-pipeline/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("rain-dashboard", "1.0.0", logging.ParseLevel(cfg.Logging.Level))

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting rain alert dashboard API", logging.Fields{
		"version":     "1.0.0",
		"server_host": cfg.Server.Host,
		"server_port": cfg.Server.Port,
		"silver_dir":  cfg.Storage.SilverDir,
		"model_path":  cfg.Storage.ModelPath,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsCollector := metrics.NewCollector("rain_dashboard", registry)

	// The dashboard reads the silver snapshots; the bronze database is only
	// reported on by /health and is optional.
	checks := map[string]handlers.HealthCheckFunc{}
	db, err := database.Open(cfg.DBConfig(), logger, metricsCollector)
	if err != nil {
		logger.Warn(ctx, "[STARTUP_WARN] Bronze database unavailable, health check disabled", logging.Fields{
			"driver": cfg.Database.Driver,
		}, err)
	} else {
		defer db.Close()
		checks["database"] = db.HealthCheck
	}
	checks["silver"] = func(ctx context.Context) error {
		_, err := os.Stat(cfg.Storage.SilverDir)
		return err
	}

	loader := snapshot.NewReader(cfg.Storage.SilverDir, logger)

	weatherService := services.NewWeatherService(loader, logger, metricsCollector)
	predictionService := services.NewPredictionService(loader, cfg.Storage.ModelPath, logger, metricsCollector)

	weatherHandler := handlers.NewWeatherHandler(weatherService, predictionService, checks, logger, metricsCollector)

	router := mux.NewRouter()
	weatherHandler.RegisterRoutes(router)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}
