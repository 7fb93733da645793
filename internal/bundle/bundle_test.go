package bundle

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-rain-pipeline/internal/ml"
)

func fittedPipeline(t *testing.T) *ml.Pipeline {
	t.Helper()
	p := ml.NewPipeline()
	require.NoError(t, p.Fit(
		[][]float64{{-2, 1}, {-1, 0}, {0.5, 1}, {1, 0}, {2, 1}, {-0.5, 0}},
		[]int{0, 0, 1, 1, 1, 0},
	))
	return p
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models", "rain_classifier.json")
	original := &Bundle{
		Model:     fittedPipeline(t),
		Features:  []string{"temp", "hour"},
		Threshold: 0.3,
		TrainedAt: time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC),
		Evaluation: &Evaluation{
			TrainRows: 4,
			TestRows:  2,
			ROCAUC:    0.75,
			Beta:      ml.FBetaDefault,
		},
	}
	require.NoError(t, Save(path, original))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, original.Features, loaded.Features)
	assert.Equal(t, 0.3, loaded.Threshold)
	assert.True(t, original.TrainedAt.Equal(loaded.TrainedAt))
	assert.Equal(t, original.Model.Model.Coef, loaded.Model.Model.Coef)
	require.NotNil(t, loaded.Evaluation)
	assert.Equal(t, 0.75, loaded.Evaluation.ROCAUC)

	// nothing but the bundle is left in the directory
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSave_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.json")
	require.NoError(t, Save(path, &Bundle{Model: fittedPipeline(t), Features: []string{"temp"}, Threshold: 0.2}))
	require.NoError(t, Save(path, &Bundle{Model: fittedPipeline(t), Features: []string{"temp"}, Threshold: 0.6}))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.6, loaded.Threshold)
}

func TestLoad_DefaultsThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"model": {"scaler": {"mean": [0], "scale": [1]}, "logreg": {"coef": [1], "intercept": 0}},
		"features": ["temp"]
	}`), 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultThreshold, loaded.Threshold)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"))
	assert.True(t, errors.Is(err, ErrNotFound))

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{"model":`), 0o644))
	_, err = Load(broken)
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{"threshold":0.4}`), 0o644))
	_, err = Load(empty)
	assert.Error(t, err)

	assert.Error(t, Save(filepath.Join(dir, "x.json"), &Bundle{}))
}
