package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"weather-rain-pipeline/internal/config"
	"weather-rain-pipeline/internal/openweather"
	"weather-rain-pipeline/internal/repository"
	"weather-rain-pipeline/internal/scheduler"
	"weather-rain-pipeline/internal/services"
	"weather-rain-pipeline/internal/snapshot"
	"weather-rain-pipeline/migrations"
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

	every := flag.Duration("every", cfg.Ingest.Interval, "Run ingestion on this interval until interrupted (0 runs once)")
	migrate := flag.Bool("migrate", true, "Apply pending migrations before ingesting")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address in scheduled mode")
	flag.Parse()

	if err := cfg.ValidateForIngest(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("rain-ingester", "1.0.0", logging.ParseLevel(cfg.Logging.Level))

	ctx := context.Background()
	logger.Info(ctx, "[INGESTER_START] Starting weather ingestion", logging.Fields{
		"version":    "1.0.0",
		"cities":     len(cfg.Cities),
		"every":      every.String(),
		"db_driver":  cfg.Database.Driver,
		"silver_dir": cfg.Storage.SilverDir,
	})

	registry := prometheus.NewRegistry()
	metricsCollector := metrics.NewCollector("rain_ingester", registry)

	dbConfig := cfg.DBConfig()
	if *migrate {
		if err := database.Migrate(ctx, dbConfig, migrations.FS, database.MigrateUp, logger); err != nil {
			logger.Fatal(ctx, "[INGESTER_ERROR] Failed to migrate database", logging.Fields{}, err)
		}
	}

	db, err := database.Open(dbConfig, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	client := openweather.NewClient(openweather.Options{
		BaseURL:    cfg.OpenWeather.BaseURL,
		APIKey:     cfg.OpenWeather.APIKey,
		Units:      cfg.OpenWeather.Units,
		Lang:       cfg.OpenWeather.Lang,
		Timeout:    cfg.OpenWeather.Timeout,
		Retries:    cfg.OpenWeather.Retries,
		RetryDelay: cfg.OpenWeather.RetryDelay,
	}, logger, metricsCollector)

	weatherRepo := repository.NewWeatherRepository(db, logger, metricsCollector)
	writer := snapshot.NewWriter(cfg.Storage.SilverDir, logger, metricsCollector)
	ingestionService := services.NewIngestionService(client, weatherRepo, writer, logger, metricsCollector)

	runOnce := func(ctx context.Context) error {
		result, err := ingestionService.IngestCities(ctx, cfg.Cities)
		if result != nil {
			printSummary(result)
		}
		return err
	}

	if *every <= 0 {
		if err := runOnce(ctx); err != nil {
			logger.Error(ctx, "[INGESTION_ERROR] Ingestion failed", logging.Fields{}, err)
			db.Close()
			os.Exit(1)
		}
		return
	}

	if *metricsAddr != "" {
		metricsServer := &http.Server{Addr: *metricsAddr, Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{})}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error(ctx, "[METRICS_SERVER_ERROR] Metrics server failed", logging.Fields{"address": *metricsAddr}, err)
			}
		}()
		defer metricsServer.Close()
	}

	sched := scheduler.New(*every, runOnce, logger)
	if err := sched.Start(); err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to start scheduler", logging.Fields{}, err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Stopping scheduled ingestion...", logging.Fields{})
	sched.Stop()
	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Ingester stopped", logging.Fields{})
}

func printSummary(result *services.IngestionResult) {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("INGESTION RUN %s\n", result.RunID)
	fmt.Println(strings.Repeat("=", 80))

	for _, city := range result.Cities {
		status := fmt.Sprintf("%d rows, %d files", city.Rows, len(city.SnapshotFiles))
		if city.Skipped {
			status = "skipped, no rows"
		}
		fmt.Printf("%-24s %s\n", city.City.Name, status)
		for _, src := range city.Sources {
			line := fmt.Sprintf("  %-10s %-8s %d rows", src.Source, src.Status, src.Rows)
			if src.Err != nil {
				line += "  " + src.Err.Error()
			}
			fmt.Println(line)
		}
	}

	fmt.Println(strings.Repeat("-", 80))
	fmt.Printf("Total Rows:      %d\n", result.TotalRows)
	fmt.Printf("Snapshot Files:  %d\n", result.SnapshotFiles)
	fmt.Printf("Failed Sources:  %d\n", result.FailedSources)
	fmt.Printf("Skipped Cities:  %d\n", result.SkippedCities)
	fmt.Printf("Duration:        %v\n", result.Duration)
}
