package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"weather-rain-pipeline/internal/config"
	"weather-rain-pipeline/migrations"
	"weather-rain-pipeline/pkg/database"
	"weather-rain-pipeline/pkg/logging"
)

func main() {
	direction := flag.String("direction", database.MigrateUp, "Migration direction: up or down")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("rain-migrate", "1.0.0", logging.ParseLevel(cfg.Logging.Level))

	dbConfig := cfg.DBConfig()
	fmt.Printf("Running %s migrations for %s\n", *direction, dbConfig.Driver)

	if err := database.Migrate(context.Background(), dbConfig, migrations.FS, *direction, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to execute migration: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Migration completed successfully")
}
