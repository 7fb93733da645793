package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"weather-rain-pipeline/internal/features"
	"weather-rain-pipeline/internal/models"
	"weather-rain-pipeline/pkg/logging"
	"weather-rain-pipeline/pkg/metrics"
)

// ErrCityNotFound is returned when the dataset has no rows for a city.
var ErrCityNotFound = errors.New("city not found")

// WeatherService answers the dashboard's read-only queries over the silver layer.
type WeatherService struct {
	loader  ObservationLoader
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	now     func() time.Time
}

// NewWeatherService creates a new weather service
func NewWeatherService(loader ObservationLoader, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *WeatherService {
	return &WeatherService{
		loader:  loader,
		logger:  logger,
		metrics: metricsCollector,
		now:     time.Now,
	}
}

// Cities lists the cities present in the dataset, sorted.
func (s *WeatherService) Cities(ctx context.Context) ([]string, error) {
	observations, err := s.loader.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load observations: %w", err)
	}

	seen := map[string]bool{}
	cities := []string{}
	for _, obs := range observations {
		if obs.City != "" && !seen[obs.City] {
			seen[obs.City] = true
			cities = append(cities, obs.City)
		}
	}
	sort.Strings(cities)
	return cities, nil
}

// Observations returns a city's rows observed in the last days, oldest first.
func (s *WeatherService) Observations(ctx context.Context, city string, days int) ([]models.WeatherObservation, error) {
	history, err := s.cityHistory(ctx, city)
	if err != nil {
		return nil, err
	}

	cutoff := s.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	window := make([]models.WeatherObservation, 0, len(history))
	for _, obs := range history {
		if !obs.ObservedAt.Before(cutoff) {
			window = append(window, obs)
		}
	}
	return window, nil
}

// Latest returns the newest row in the window that carries at least one of
// temp, humidity, pressure or rain_3h, or the newest row when none does.
func (s *WeatherService) Latest(ctx context.Context, city string, days int) (*models.WeatherObservation, error) {
	window, err := s.Observations(ctx, city, days)
	if err != nil {
		return nil, err
	}
	if len(window) == 0 {
		return nil, fmt.Errorf("%w: no rows for %s in the last %d days", ErrCityNotFound, city, days)
	}

	for i := len(window) - 1; i >= 0; i-- {
		obs := window[i]
		if obs.Temp != nil || obs.Humidity != nil || obs.Pressure != nil || obs.Rain3h != nil {
			return &obs, nil
		}
	}
	last := window[len(window)-1]
	return &last, nil
}

// RainEvents returns heavy-rain rows of the last days, newest first.
func (s *WeatherService) RainEvents(ctx context.Context, city string, days int) ([]models.WeatherObservation, error) {
	window, err := s.Observations(ctx, city, days)
	if err != nil {
		return nil, err
	}

	events := []models.WeatherObservation{}
	for i := len(window) - 1; i >= 0; i-- {
		if features.IsHeavyRain(&window[i]) {
			events = append(events, window[i])
		}
	}
	return events, nil
}

// cityHistory returns every row of city sorted by observation time.
func (s *WeatherService) cityHistory(ctx context.Context, city string) ([]models.WeatherObservation, error) {
	observations, err := s.loader.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load observations: %w", err)
	}

	history := make([]models.WeatherObservation, 0)
	for _, obs := range observations {
		if obs.City == city {
			history = append(history, obs)
		}
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrCityNotFound, city)
	}

	sort.SliceStable(history, func(i, j int) bool {
		return history[i].ObservedAt.Before(history[j].ObservedAt)
	})
	return history, nil
}
