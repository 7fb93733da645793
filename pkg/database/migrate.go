package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"weather-rain-pipeline/pkg/logging"
)

// Migration directions accepted by Migrate.
const (
	MigrateUp   = "up"
	MigrateDown = "down"
)

const migrationsTable = "schema_migrations"

// Migrate applies the driver's migrations from migrationFS (one directory per
// driver name). It opens its own connection because golang-migrate closes the
// handle it is given.
func Migrate(ctx context.Context, cfg *Config, migrationFS fs.FS, direction string, logger *logging.StructuredLogger) error {
	dsn, err := cfg.DSN()
	if err != nil {
		return err
	}

	if cfg.Driver == DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return fmt.Errorf("failed to open database for migration: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return fmt.Errorf("failed to ping database for migration: %w", err)
	}

	dbDriver, err := migrationDriver(cfg.Driver, sqlDB)
	if err != nil {
		sqlDB.Close()
		return err
	}

	source, err := iofs.New(migrationFS, cfg.Driver)
	if err != nil {
		sqlDB.Close()
		return fmt.Errorf("failed to load %s migrations: %w", cfg.Driver, err)
	}

	m, err := migrate.NewWithInstance("iofs", source, cfg.Driver, dbDriver)
	if err != nil {
		sqlDB.Close()
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	logger.Info(ctx, "[MIGRATE_START] Running migrations", logging.Fields{
		"driver":    cfg.Driver,
		"direction": direction,
	})

	switch direction {
	case MigrateUp:
		err = m.Up()
	case MigrateDown:
		err = m.Down()
	default:
		return fmt.Errorf("unsupported migration direction %q", direction)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration %s failed: %w", direction, err)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", verr)
	}

	logger.Info(ctx, "[MIGRATE_COMPLETE] Migrations applied", logging.Fields{
		"driver":    cfg.Driver,
		"direction": direction,
		"version":   version,
		"dirty":     dirty,
		"no_change": errors.Is(err, migrate.ErrNoChange),
	})

	return nil
}

func migrationDriver(driver string, sqlDB *sql.DB) (migratedb.Driver, error) {
	switch driver {
	case DriverPostgres:
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: migrationsTable})
	case DriverSQLite:
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: migrationsTable})
	default:
		return nil, fmt.Errorf("unsupported database driver for migration: %s", driver)
	}
}
