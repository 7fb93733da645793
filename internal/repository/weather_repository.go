package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"weather-rain-pipeline/internal/models"
	"weather-rain-pipeline/pkg/database"
	"weather-rain-pipeline/pkg/logging"
	"weather-rain-pipeline/pkg/metrics"
)

// WeatherRepository provides append-only access to the weather_raw table
type WeatherRepository interface {
	// AppendObservations inserts all rows in one transaction. Either every
	// row is stored or none is.
	AppendObservations(ctx context.Context, observations []models.WeatherObservation) (int, error)
	ListObservations(ctx context.Context, filter ObservationFilter) ([]models.WeatherObservation, error)
	ListCities(ctx context.Context) ([]string, error)
	LatestObservation(ctx context.Context, city string, source models.SourceKind) (*models.WeatherObservation, error)

	HealthCheck(ctx context.Context) error
}

// ObservationFilter narrows ListObservations. Nil fields do not filter.
type ObservationFilter struct {
	City   *string
	Source *models.SourceKind
	Since  *time.Time
	Until  *time.Time
	Limit  int
}

// Queries name the weather_raw columns in storage order.
var (
	observationSelect = fmt.Sprintf("SELECT %s FROM weather_raw",
		strings.Join(models.ObservationColumns, ", "))

	observationInsert = fmt.Sprintf("INSERT INTO weather_raw (%s) VALUES (:%s)",
		strings.Join(models.ObservationColumns, ", "),
		strings.Join(models.ObservationColumns, ", :"))
)

// weatherRepository implements WeatherRepository
type weatherRepository struct {
	db      *database.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewWeatherRepository creates a new weather repository
func NewWeatherRepository(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) WeatherRepository {
	return &weatherRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// AppendObservations appends rows to weather_raw. Existing rows are never
// updated, so re-ingesting the same forecast produces duplicates that the
// feature builder tolerates.
func (r *weatherRepository) AppendObservations(ctx context.Context, observations []models.WeatherObservation) (int, error) {
	if len(observations) == 0 {
		return 0, nil
	}

	timer := time.Now()
	defer func() {
		r.metrics.IngestionBatchSize.Observe(float64(len(observations)))
		r.logger.Debug(ctx, "[REPO_APPEND] Batch append finished", logging.Fields{
			"count":       len(observations),
			"duration_ms": time.Since(timer).Milliseconds(),
		})
	}()

	err := r.db.InTx(ctx, "append_observations", func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareNamedContext(ctx, observationInsert)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for i := range observations {
			obs := observations[i]
			obs.IngestedAt = obs.IngestedAt.UTC()
			obs.ObservedAt = obs.ObservedAt.UTC()
			if _, err := stmt.ExecContext(ctx, &obs); err != nil {
				return fmt.Errorf("failed to insert observation for %s: %w", obs.City, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to append observations: %w", err)
	}

	return len(observations), nil
}

// ListObservations returns rows ordered by city, then observation time, then
// ingestion time.
func (r *weatherRepository) ListObservations(ctx context.Context, filter ObservationFilter) ([]models.WeatherObservation, error) {
	var where []string
	var args []interface{}

	if filter.City != nil {
		where = append(where, "city = ?")
		args = append(args, *filter.City)
	}
	if filter.Source != nil {
		where = append(where, "source = ?")
		args = append(args, string(*filter.Source))
	}
	if filter.Since != nil {
		where = append(where, "dt >= ?")
		args = append(args, filter.Since.UTC())
	}
	if filter.Until != nil {
		where = append(where, "dt <= ?")
		args = append(args, filter.Until.UTC())
	}

	query := observationSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY city, dt, ingested_at"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var observations []models.WeatherObservation
	if err := r.db.SelectContext(ctx, "list_observations", &observations, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list observations: %w", err)
	}

	for i := range observations {
		observations[i].IngestedAt = observations[i].IngestedAt.UTC()
		observations[i].ObservedAt = observations[i].ObservedAt.UTC()
	}

	return observations, nil
}

// ListCities returns the distinct cities present in weather_raw.
func (r *weatherRepository) ListCities(ctx context.Context) ([]string, error) {
	var cities []string
	query := `SELECT DISTINCT city FROM weather_raw ORDER BY city`
	if err := r.db.SelectContext(ctx, "list_cities", &cities, query); err != nil {
		return nil, fmt.Errorf("failed to list cities: %w", err)
	}
	return cities, nil
}

// LatestObservation returns the most recent observation of one source for a city.
func (r *weatherRepository) LatestObservation(ctx context.Context, city string, source models.SourceKind) (*models.WeatherObservation, error) {
	query := observationSelect + `
		WHERE city = ? AND source = ?
		ORDER BY dt DESC, ingested_at DESC
		LIMIT 1
	`

	var obs models.WeatherObservation
	err := r.db.GetContext(ctx, "latest_observation", &obs, query, city, string(source))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{
			Resource: "observation",
			ID:       fmt.Sprintf("%s:%s", city, source),
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest observation: %w", err)
	}

	obs.IngestedAt = obs.IngestedAt.UTC()
	obs.ObservedAt = obs.ObservedAt.UTC()
	return &obs, nil
}

// HealthCheck verifies database connectivity
func (r *weatherRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
