package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"weather-rain-pipeline/internal/config"
	"weather-rain-pipeline/internal/ml"
	"weather-rain-pipeline/internal/repository"
	"weather-rain-pipeline/internal/services"
	"weather-rain-pipeline/internal/snapshot"
	"weather-rain-pipeline/pkg/database"
	"weather-rain-pipeline/pkg/logging"
	"weather-rain-pipeline/pkg/metrics"
)

func main() {
	source := flag.String("source", "snapshots", "Training data source: snapshots or db")
	seed := flag.Int64("seed", 42, "Seed for the stratified split")
	testFraction := flag.Float64("test-fraction", 0.25, "Share of rows held out for evaluation")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("rain-trainer", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
	metricsCollector := metrics.NewCollector("rain_trainer", prometheus.NewRegistry())

	ctx := context.Background()
	logger.Info(ctx, "[TRAINER_START] Starting model training", logging.Fields{
		"source":     *source,
		"model_path": cfg.Storage.ModelPath,
	})

	var loader services.ObservationLoader
	switch *source {
	case "snapshots":
		loader = snapshot.NewReader(cfg.Storage.SilverDir, logger)
	case "db":
		db, err := database.Open(cfg.DBConfig(), logger, metricsCollector)
		if err != nil {
			logger.Fatal(ctx, "[TRAINER_ERROR] Failed to connect to database", logging.Fields{}, err)
		}
		defer db.Close()
		loader = services.RepositoryLoader{Repo: repository.NewWeatherRepository(db, logger, metricsCollector)}
	default:
		fmt.Fprintf(os.Stderr, "Unknown -source %q, expected snapshots or db\n", *source)
		os.Exit(2)
	}

	opts := services.DefaultTrainingOptions(cfg.Storage.ModelPath)
	opts.Seed = *seed
	opts.TestFraction = *testFraction

	result, err := services.NewTrainingService(loader, opts, logger, metricsCollector).Train(ctx)
	if err != nil {
		logger.Error(ctx, "[TRAINER_ERROR] Training failed", logging.Fields{}, err)
		os.Exit(1)
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("TRAINING COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Rows:        %d (%d positive)\n", result.Rows, result.Positives)
	fmt.Printf("Split:       %d train / %d test\n", result.TrainRows, result.TestRows)
	fmt.Printf("ROC-AUC:     %.3f\n", result.ROCAUC)
	fmt.Println()
	fmt.Println("Classification report at threshold 0.50:")
	fmt.Print(result.Report.String())
	fmt.Println()
	fmt.Printf("%9s %9s %9s %9s %5s %5s %5s %5s\n", "threshold", "precision", "recall", "f1", "tp", "fp", "fn", "tn")
	for _, point := range result.Sweep {
		fmt.Printf("%9.2f %9.3f %9.3f %9.3f %5d %5d %5d %5d\n",
			point.Threshold, point.Precision, point.Recall, point.F1, point.TP, point.FP, point.FN, point.TN)
	}
	fmt.Println()
	fmt.Printf("Selected threshold %.2f (F%.1f = %.3f), bundle written to %s\n",
		result.Selected.Threshold, opts.Beta,
		ml.FBeta(result.Selected.Precision, result.Selected.Recall, opts.Beta),
		result.BundlePath)
}
