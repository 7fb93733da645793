package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-rain-pipeline/pkg/logging"
	"weather-rain-pipeline/pkg/metrics"
)

func TestConfig_DSN(t *testing.T) {
	pg := &Config{Driver: DriverPostgres, Host: "localhost", Port: 5432, User: "weather", Database: "weather", SSLMode: "disable"}
	dsn, err := pg.DSN()
	require.NoError(t, err)
	assert.Equal(t, "host=localhost port=5432 user=weather password= dbname=weather sslmode=disable", dsn)

	lite := &Config{Driver: DriverSQLite, Path: "data/bronze.db"}
	dsn, err = lite.DSN()
	require.NoError(t, err)
	assert.Contains(t, dsn, "file:data/bronze.db")

	_, err = (&Config{Driver: DriverSQLite}).DSN()
	assert.Error(t, err)
	_, err = (&Config{Driver: "mysql"}).DSN()
	assert.Error(t, err)
}

var testMigrations = fstest.MapFS{
	"sqlite/000001_items.up.sql":   {Data: []byte("CREATE TABLE items (name TEXT NOT NULL);")},
	"sqlite/000001_items.down.sql": {Data: []byte("DROP TABLE items;")},
}

func openTestDB(t *testing.T) (*DB, *Config) {
	t.Helper()
	logger := logging.NewNopLogger()
	cfg := &Config{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "nested", "test.db")}

	require.NoError(t, Migrate(context.Background(), cfg, testMigrations, MigrateUp, logger))
	db, err := Open(cfg, logger, metrics.NewCollector("test", prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, cfg
}

func TestInTx_CommitAndRollback(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.InTx(ctx, "insert", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO items (name) VALUES (?)", "kept")
		return err
	}))

	boom := errors.New("boom")
	err := db.InTx(ctx, "insert", func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO items (name) VALUES (?)", "dropped"); err != nil {
			return err
		}
		return boom
	})
	assert.True(t, errors.Is(err, boom))

	var names []string
	require.NoError(t, db.SelectContext(ctx, "list", &names, "SELECT name FROM items ORDER BY name"))
	assert.Equal(t, []string{"kept"}, names)

	var count int
	require.NoError(t, db.GetContext(ctx, "count", &count, "SELECT COUNT(*) FROM items WHERE name = ?", "kept"))
	assert.Equal(t, 1, count)

	assert.NoError(t, db.HealthCheck(ctx))
	assert.Equal(t, DriverSQLite, db.Driver())
}

func TestMigrate_DownAndInvalidDirection(t *testing.T) {
	db, cfg := openTestDB(t)
	ctx := context.Background()
	logger := logging.NewNopLogger()

	// applying twice is a no-op
	require.NoError(t, Migrate(ctx, cfg, testMigrations, MigrateUp, logger))
	assert.Error(t, Migrate(ctx, cfg, testMigrations, "sideways", logger))

	require.NoError(t, Migrate(ctx, cfg, testMigrations, MigrateDown, logger))
	var count int
	assert.Error(t, db.GetContext(ctx, "count", &count, "SELECT COUNT(*) FROM items"))
}
