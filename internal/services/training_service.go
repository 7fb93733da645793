package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"weather-rain-pipeline/internal/bundle"
	"weather-rain-pipeline/internal/features"
	"weather-rain-pipeline/internal/ml"
	"weather-rain-pipeline/internal/models"
	"weather-rain-pipeline/internal/repository"
	"weather-rain-pipeline/pkg/logging"
	"weather-rain-pipeline/pkg/metrics"
)

// ErrEmptyDataset is returned when no complete feature row can be built.
var ErrEmptyDataset = errors.New("no complete feature rows to train on")

// ObservationLoader supplies the full observation history.
type ObservationLoader interface {
	LoadAll(ctx context.Context) ([]models.WeatherObservation, error)
}

// RepositoryLoader reads the history from weather_raw instead of the snapshots.
type RepositoryLoader struct {
	Repo repository.WeatherRepository
}

func (l RepositoryLoader) LoadAll(ctx context.Context) ([]models.WeatherObservation, error) {
	return l.Repo.ListObservations(ctx, repository.ObservationFilter{})
}

// TrainingOptions controls one training run.
type TrainingOptions struct {
	ModelPath    string
	TestFraction float64
	Seed         int64
	Beta         float64
	Thresholds   []float64
}

// DefaultTrainingOptions holds out 25% with seed 42 and selects by F1.5 over 0.10..0.60.
func DefaultTrainingOptions(modelPath string) TrainingOptions {
	return TrainingOptions{
		ModelPath:    modelPath,
		TestFraction: 0.25,
		Seed:         42,
		Beta:         ml.FBetaDefault,
		Thresholds:   ml.DefaultThresholds(),
	}
}

// TrainingResult summarizes a training run.
type TrainingResult struct {
	Rows       int
	Positives  int
	TrainRows  int
	TestRows   int
	Report     ml.Report
	ROCAUC     float64
	Sweep      []ml.ThresholdResult
	Selected   ml.ThresholdResult
	BundlePath string
	Duration   time.Duration
}

// TrainingService fits the heavy-rain classifier and writes the bundle.
type TrainingService struct {
	loader  ObservationLoader
	opts    TrainingOptions
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	now     func() time.Time
}

// NewTrainingService creates a new training service
func NewTrainingService(loader ObservationLoader, opts TrainingOptions, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *TrainingService {
	return &TrainingService{
		loader:  loader,
		opts:    opts,
		logger:  logger,
		metrics: metricsCollector,
		now:     time.Now,
	}
}

// Train runs load, features, split, fit, evaluate, sweep and save. The
// bundle is overwritten on every successful run.
func (s *TrainingService) Train(ctx context.Context) (*TrainingResult, error) {
	ctx = logging.WithComponent(ctx, "train")
	started := s.now()
	timer := s.metrics.NewTimer(s.metrics.TrainingDuration)
	defer timer.ObserveDuration()

	observations, err := s.loader.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load observations: %w", err)
	}

	ds := features.Build(observations)
	if len(ds.Rows) == 0 {
		return nil, ErrEmptyDataset
	}
	x, y := ds.Matrix()

	s.logger.Info(ctx, "[TRAIN_DATASET] Feature rows built", logging.Fields{
		"observations": len(observations),
		"rows":         len(ds.Rows),
		"positives":    ds.Positives(),
		"features":     len(ds.FeatureNames),
	})
	s.metrics.TrainingRows.Set(float64(len(ds.Rows)))

	trainIdx, testIdx, err := ml.StratifiedSplit(y, s.opts.TestFraction, s.opts.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to split dataset: %w", err)
	}
	xTrain, yTrain := ml.Subset(x, y, trainIdx)
	xTest, yTest := ml.Subset(x, y, testIdx)

	pipeline := ml.NewPipeline()
	if err := pipeline.Fit(xTrain, yTrain); err != nil {
		return nil, err
	}

	scores, err := pipeline.PredictProba(xTest)
	if err != nil {
		return nil, fmt.Errorf("failed to score held-out rows: %w", err)
	}

	report := ml.ClassificationReport(yTest, ml.Predict(scores, bundle.DefaultThreshold))
	auc, err := ml.ROCAUC(yTest, scores)
	if err != nil {
		return nil, fmt.Errorf("failed to compute ROC-AUC: %w", err)
	}

	sweep := ml.SweepThresholds(yTest, scores, s.opts.Thresholds)
	selected, err := ml.SelectThreshold(sweep, s.opts.Beta)
	if err != nil {
		return nil, err
	}

	for _, point := range sweep {
		s.logger.Debug(ctx, "[TRAIN_SWEEP] Threshold evaluated", logging.Fields{
			"threshold": point.Threshold,
			"precision": point.Precision,
			"recall":    point.Recall,
			"f1":        point.F1,
			"tp":        point.TP,
			"fp":        point.FP,
			"fn":        point.FN,
			"tn":        point.TN,
		})
	}

	b := &bundle.Bundle{
		Model:     pipeline,
		Features:  ds.FeatureNames,
		Threshold: selected.Threshold,
		TrainedAt: s.now().UTC(),
		Evaluation: &bundle.Evaluation{
			TrainRows: len(trainIdx),
			TestRows:  len(testIdx),
			ROCAUC:    auc,
			Beta:      s.opts.Beta,
			Report:    report,
			Sweep:     sweep,
		},
	}
	if err := bundle.Save(s.opts.ModelPath, b); err != nil {
		return nil, err
	}

	s.metrics.SelectedThreshold.Set(selected.Threshold)
	s.metrics.ModelROCAUC.Set(auc)

	result := &TrainingResult{
		Rows:       len(ds.Rows),
		Positives:  ds.Positives(),
		TrainRows:  len(trainIdx),
		TestRows:   len(testIdx),
		Report:     report,
		ROCAUC:     auc,
		Sweep:      sweep,
		Selected:   selected,
		BundlePath: s.opts.ModelPath,
		Duration:   s.now().Sub(started),
	}

	s.logger.Info(ctx, "[TRAIN_COMPLETE] Model trained and saved", logging.Fields{
		"rows":        result.Rows,
		"train_rows":  result.TrainRows,
		"test_rows":   result.TestRows,
		"roc_auc":     auc,
		"threshold":   selected.Threshold,
		"f_beta":      ml.FBeta(selected.Precision, selected.Recall, s.opts.Beta),
		"bundle_path": s.opts.ModelPath,
	})

	return result, nil
}
