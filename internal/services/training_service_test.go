package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-rain-pipeline/internal/bundle"
	"weather-rain-pipeline/internal/features"
	"weather-rain-pipeline/internal/ml"
	"weather-rain-pipeline/internal/models"
	"weather-rain-pipeline/pkg/logging"
	"weather-rain-pipeline/pkg/metrics"
)

type staticLoader struct {
	observations []models.WeatherObservation
	err          error
}

func (l staticLoader) LoadAll(ctx context.Context) ([]models.WeatherObservation, error) {
	return l.observations, l.err
}

// hourlyHistory builds n complete hourly forecast rows for city. Rain follows
// humidity: roughly three rows in ten are humid and carry 12 mm.
func hourlyHistory(city string, start time.Time, n int) []models.WeatherObservation {
	out := make([]models.WeatherObservation, 0, n)
	for i := 0; i < n; i++ {
		step := (i * 7) % 10
		humidity := 60 + 3*float64(step)
		rain := 0.0
		if step >= 7 {
			rain = 12
		}
		out = append(out, models.WeatherObservation{
			IngestedAt: start.Add(time.Duration(n) * time.Hour),
			City:       city,
			Source:     models.SourceForecast,
			ObservedAt: start.Add(time.Duration(i) * time.Hour),
			Temp:       models.Float(24 + float64(i%5)),
			Humidity:   models.Float(humidity),
			Pressure:   models.Float(1012 - float64(step)/2),
			WindSpeed:  models.Float(2 + float64(i%3)),
			Clouds:     models.Float(10 * float64(step)),
			Rain3h:     models.Float(rain),
		})
	}
	return out
}

func trainingHistory(start time.Time) []models.WeatherObservation {
	return append(hourlyHistory("Recife", start, 60), hourlyHistory("Manaus", start, 60)...)
}

func TestTrain_WritesBundle(t *testing.T) {
	collector := metrics.NewCollector("test", prometheus.NewRegistry())
	modelPath := filepath.Join(t.TempDir(), "models", "rain_classifier.json")
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	service := NewTrainingService(staticLoader{observations: trainingHistory(start)},
		DefaultTrainingOptions(modelPath), logging.NewNopLogger(), collector)

	result, err := service.Train(context.Background())
	require.NoError(t, err)

	// two rows per city are consumed by the lag and rolling windows
	assert.Equal(t, 116, result.Rows)
	assert.Equal(t, result.Rows, result.TrainRows+result.TestRows)
	assert.InDelta(t, 0.25*float64(result.Rows), float64(result.TestRows), 2)
	assert.Greater(t, result.Positives, 0)
	assert.Len(t, result.Sweep, len(ml.DefaultThresholds()))
	assert.Greater(t, result.ROCAUC, 0.8)
	assert.Equal(t, modelPath, result.BundlePath)

	b, err := bundle.Load(modelPath)
	require.NoError(t, err)
	assert.Equal(t, features.Names(), b.Features)
	assert.Contains(t, ml.DefaultThresholds(), b.Threshold)
	assert.Equal(t, result.Selected.Threshold, b.Threshold)
	require.NotNil(t, b.Evaluation)
	assert.Equal(t, result.TestRows, b.Evaluation.TestRows)

	assert.Equal(t, float64(116), testutil.ToFloat64(collector.TrainingRows))
	assert.Equal(t, b.Threshold, testutil.ToFloat64(collector.SelectedThreshold))
}

func TestTrain_IsDeterministic(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	dir := t.TempDir()

	run := func(name string) *bundle.Bundle {
		path := filepath.Join(dir, name)
		service := NewTrainingService(staticLoader{observations: trainingHistory(start)},
			DefaultTrainingOptions(path), logging.NewNopLogger(),
			metrics.NewCollector("test", prometheus.NewRegistry()))
		_, err := service.Train(context.Background())
		require.NoError(t, err)
		b, err := bundle.Load(path)
		require.NoError(t, err)
		return b
	}

	first, second := run("a.json"), run("b.json")
	assert.Equal(t, first.Threshold, second.Threshold)
	assert.Equal(t, first.Model.Model.Coef, second.Model.Model.Coef)
}

func TestTrain_Errors(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	dry := hourlyHistory("Recife", start, 20)
	for i := range dry {
		dry[i].Rain3h = nil
	}

	tests := []struct {
		name   string
		loader staticLoader
		check  func(t *testing.T, err error)
	}{
		{
			name:   "no rows",
			loader: staticLoader{},
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, ErrEmptyDataset))
			},
		},
		{
			name:   "single class",
			loader: staticLoader{observations: dry},
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, ml.ErrSingleClass))
			},
		},
		{
			name:   "loader failure",
			loader: staticLoader{err: errors.New("disk gone")},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "disk gone")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			modelPath := filepath.Join(t.TempDir(), "bundle.json")
			service := NewTrainingService(tt.loader, DefaultTrainingOptions(modelPath),
				logging.NewNopLogger(), metrics.NewCollector("test", prometheus.NewRegistry()))

			_, err := service.Train(context.Background())
			require.Error(t, err)
			tt.check(t, err)

			_, err = bundle.Load(modelPath)
			assert.True(t, errors.Is(err, bundle.ErrNotFound), "no bundle is written on failure")
		})
	}
}
