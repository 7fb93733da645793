package services

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"weather-rain-pipeline/internal/bundle"
	"weather-rain-pipeline/internal/features"
	"weather-rain-pipeline/pkg/logging"
	"weather-rain-pipeline/pkg/metrics"
)

// Prediction is the live heavy-rain estimate for one city.
type Prediction struct {
	City        string             `json:"city"`
	ObservedAt  time.Time          `json:"dt"`
	Probability float64            `json:"probability"`
	Threshold   float64            `json:"threshold"`
	Alert       bool               `json:"alert"`
	Features    map[string]float64 `json:"features"`
	Backfilled  []string           `json:"backfilled"`
	TrainedAt   time.Time          `json:"trained_at"`
}

// PredictionService scores the latest feature row of a city with the saved bundle.
type PredictionService struct {
	loader    ObservationLoader
	modelPath string
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
}

// NewPredictionService creates a new prediction service
func NewPredictionService(loader ObservationLoader, modelPath string, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *PredictionService {
	return &PredictionService{
		loader:    loader,
		modelPath: modelPath,
		logger:    logger,
		metrics:   metricsCollector,
	}
}

// Predict loads the bundle, computes the latest feature row for city within
// lookback of its newest observation and scores it. Expected features the
// row lacks are backfilled with the training mean, which scales to zero.
func (s *PredictionService) Predict(ctx context.Context, city string, lookback time.Duration) (*Prediction, error) {
	b, err := bundle.Load(s.modelPath)
	if err != nil {
		return nil, err
	}

	if len(b.Model.Scaler.Mean) != len(b.Features) {
		return nil, fmt.Errorf("bundle lists %d features but its scaler has %d", len(b.Features), len(b.Model.Scaler.Mean))
	}

	observations, err := s.loader.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load observations: %w", err)
	}

	row, err := features.Latest(observations, city, lookback)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", city, err)
	}

	available := make(map[string]float64, len(row.Values))
	for i, name := range features.Names() {
		if !math.IsNaN(row.Values[i]) {
			available[name] = row.Values[i]
		}
	}

	vector := make([]float64, len(b.Features))
	used := make(map[string]float64, len(b.Features))
	backfilled := []string{}
	for i, name := range b.Features {
		v, ok := available[name]
		if !ok {
			v = b.Model.Scaler.Mean[i]
			backfilled = append(backfilled, name)
		}
		vector[i] = v
		used[name] = v
	}

	scores, err := b.Model.PredictProba([][]float64{vector})
	if err != nil {
		return nil, fmt.Errorf("failed to score feature row: %w", err)
	}

	prediction := &Prediction{
		City:        city,
		ObservedAt:  row.ObservedAt,
		Probability: scores[0],
		Threshold:   b.Threshold,
		Alert:       scores[0] >= b.Threshold,
		Features:    used,
		Backfilled:  backfilled,
		TrainedAt:   b.TrainedAt,
	}

	s.metrics.PredictionsTotal.WithLabelValues(strconv.FormatBool(prediction.Alert)).Inc()
	if len(backfilled) > 0 {
		s.logger.Warn(ctx, "[PREDICT_BACKFILL] Missing features replaced by training means", logging.Fields{
			"city":       city,
			"backfilled": backfilled,
		}, nil)
	}

	return prediction, nil
}
