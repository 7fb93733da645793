package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"weather-rain-pipeline/internal/models"
	"weather-rain-pipeline/pkg/logging"
	"weather-rain-pipeline/pkg/metrics"
)

// WeatherSource fetches raw payloads for a coordinate.
type WeatherSource interface {
	Current(ctx context.Context, lat, lon float64) (*models.CurrentPayload, error)
	Forecast(ctx context.Context, lat, lon float64) (*models.ForecastPayload, error)
}

// ObservationStore appends normalized rows to the bronze table.
type ObservationStore interface {
	AppendObservations(ctx context.Context, observations []models.WeatherObservation) (int, error)
}

// SnapshotWriter writes the silver files for a batch of rows.
type SnapshotWriter interface {
	WriteGroups(ctx context.Context, observations []models.WeatherObservation) ([]string, error)
}

// SourceStatus is the outcome of fetching one source for one city.
type SourceStatus string

const (
	SourceSuccess SourceStatus = "success"
	SourceEmpty   SourceStatus = "empty"
	SourceFailed  SourceStatus = "failed"
)

// SourceOutcome records what happened to one (city, source) fetch.
type SourceOutcome struct {
	Source models.SourceKind
	Status SourceStatus
	Rows   int
	Err    error
}

// CityOutcome aggregates both sources of one city.
type CityOutcome struct {
	City          models.City
	Sources       []SourceOutcome
	Rows          int
	SnapshotFiles []string
	Skipped       bool
}

// IngestionResult contains ingestion statistics
type IngestionResult struct {
	RunID         string
	StartedAt     time.Time
	Cities        []CityOutcome
	TotalRows     int
	SnapshotFiles int
	FailedSources int
	SkippedCities int
	Duration      time.Duration
}

// IngestionService pulls every configured city from the weather source into
// the bronze table and the silver snapshots.
type IngestionService struct {
	source    WeatherSource
	store     ObservationStore
	snapshots SnapshotWriter
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
	now       func() time.Time
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(source WeatherSource, store ObservationStore, snapshots SnapshotWriter, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *IngestionService {
	return &IngestionService{
		source:    source,
		store:     store,
		snapshots: snapshots,
		logger:    logger,
		metrics:   metricsCollector,
		now:       time.Now,
	}
}

// IngestCities processes cities one after another. A failed fetch only
// affects its own (city, source) pair; a store or filesystem failure aborts
// the run.
func (s *IngestionService) IngestCities(ctx context.Context, cities []models.City) (*IngestionResult, error) {
	result := &IngestionResult{
		RunID:     uuid.NewString(),
		StartedAt: s.now().UTC(),
		Cities:    make([]CityOutcome, 0, len(cities)),
	}
	ctx = logging.WithComponent(logging.WithRunID(ctx, result.RunID), "ingest")

	s.logger.Info(ctx, "[INGEST_START] Starting data ingestion", logging.Fields{
		"cities": len(cities),
		"stage":  "INITIALIZATION",
	})

	for _, city := range cities {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		outcome, err := s.ingestCity(ctx, city)
		result.Cities = append(result.Cities, outcome)
		for _, src := range outcome.Sources {
			if src.Status == SourceFailed {
				result.FailedSources++
			}
		}
		if err != nil {
			s.metrics.RecordIngestionError("store_error")
			s.logger.Error(ctx, "[INGEST_ABORT] Storage failed, aborting run", logging.Fields{
				"city":  city.Name,
				"stage": "PERSIST",
			}, err)
			result.Duration = s.now().UTC().Sub(result.StartedAt)
			return result, fmt.Errorf("failed to store rows for %s: %w", city.Name, err)
		}

		if outcome.Skipped {
			result.SkippedCities++
			continue
		}
		result.TotalRows += outcome.Rows
		result.SnapshotFiles += len(outcome.SnapshotFiles)
	}

	result.Duration = s.now().UTC().Sub(result.StartedAt)
	s.metrics.IngestionDuration.Observe(result.Duration.Seconds())

	s.logger.Info(ctx, "[INGEST_COMPLETE] Data ingestion completed", logging.Fields{
		"total_rows":       result.TotalRows,
		"snapshot_files":   result.SnapshotFiles,
		"failed_sources":   result.FailedSources,
		"skipped_cities":   result.SkippedCities,
		"duration_seconds": result.Duration.Seconds(),
		"stage":            "COMPLETE",
	})

	return result, nil
}

func (s *IngestionService) ingestCity(ctx context.Context, city models.City) (CityOutcome, error) {
	outcome := CityOutcome{City: city}
	ingestedAt := s.now().UTC()

	var rows []models.WeatherObservation

	current, currentOutcome := s.fetchCurrent(ctx, city, ingestedAt)
	outcome.Sources = append(outcome.Sources, currentOutcome)
	rows = append(rows, current...)

	forecast, forecastOutcome := s.fetchForecast(ctx, city, ingestedAt)
	outcome.Sources = append(outcome.Sources, forecastOutcome)
	rows = append(rows, forecast...)

	if len(rows) == 0 {
		outcome.Skipped = true
		s.metrics.IngestionSkippedCities.Inc()
		s.logger.Info(ctx, "[INGEST_SKIP] No rows for city, skipping", logging.Fields{
			"city": city.Name,
		})
		return outcome, nil
	}

	if _, err := s.store.AppendObservations(ctx, rows); err != nil {
		return outcome, err
	}
	for _, src := range outcome.Sources {
		s.metrics.IngestionRowsTotal.WithLabelValues(string(src.Source)).Add(float64(src.Rows))
	}

	files, err := s.snapshots.WriteGroups(ctx, rows)
	outcome.SnapshotFiles = files
	if err != nil {
		return outcome, fmt.Errorf("failed to write snapshots: %w", err)
	}

	outcome.Rows = len(rows)
	s.logger.Info(ctx, "[INGEST_CITY] City ingested", logging.Fields{
		"city":           city.Name,
		"rows":           len(rows),
		"snapshot_files": len(files),
	})

	return outcome, nil
}

func (s *IngestionService) fetchCurrent(ctx context.Context, city models.City, ingestedAt time.Time) ([]models.WeatherObservation, SourceOutcome) {
	outcome := SourceOutcome{Source: models.SourceCurrent}

	payload, err := s.source.Current(ctx, city.Lat, city.Lon)
	if err != nil {
		return nil, s.failed(ctx, city, outcome, err)
	}
	if payload.IsEmpty() {
		outcome.Status = SourceEmpty
		return nil, outcome
	}

	outcome.Status = SourceSuccess
	outcome.Rows = 1
	return []models.WeatherObservation{payload.ToObservation(city, ingestedAt)}, outcome
}

func (s *IngestionService) fetchForecast(ctx context.Context, city models.City, ingestedAt time.Time) ([]models.WeatherObservation, SourceOutcome) {
	outcome := SourceOutcome{Source: models.SourceForecast}

	payload, err := s.source.Forecast(ctx, city.Lat, city.Lon)
	if err != nil {
		return nil, s.failed(ctx, city, outcome, err)
	}

	rows := payload.ToObservations(city, ingestedAt)
	if len(rows) == 0 {
		outcome.Status = SourceEmpty
		return nil, outcome
	}

	outcome.Status = SourceSuccess
	outcome.Rows = len(rows)
	return rows, outcome
}

func (s *IngestionService) failed(ctx context.Context, city models.City, outcome SourceOutcome, err error) SourceOutcome {
	outcome.Status = SourceFailed
	outcome.Err = err
	s.metrics.RecordIngestionError("fetch_" + string(outcome.Source))
	s.logger.Warn(ctx, "[INGEST_SOURCE_FAILED] Source fetch failed, continuing", logging.Fields{
		"city":   city.Name,
		"source": string(outcome.Source),
		"stage":  "FETCH",
	}, err)
	return outcome
}
