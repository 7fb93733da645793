// Package bundle persists the trained classifier together with its feature
// list and decision threshold as a single JSON document.
package bundle

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"weather-rain-pipeline/internal/ml"
)

// DefaultThreshold applies to bundles written without a threshold.
const DefaultThreshold = 0.5

// ErrNotFound is returned by Load when no bundle has been trained yet.
var ErrNotFound = errors.New("model bundle not found")

// Bundle is the unit a training run produces and the dashboard consumes.
type Bundle struct {
	Model      *ml.Pipeline `json:"model"`
	Features   []string     `json:"features"`
	Threshold  float64      `json:"threshold"`
	TrainedAt  time.Time    `json:"trained_at"`
	Evaluation *Evaluation  `json:"evaluation,omitempty"`
}

// Evaluation records how the bundle performed on the held-out split.
type Evaluation struct {
	TrainRows int                  `json:"train_rows"`
	TestRows  int                  `json:"test_rows"`
	ROCAUC    float64              `json:"roc_auc"`
	Beta      float64              `json:"beta"`
	Report    ml.Report            `json:"report"`
	Sweep     []ml.ThresholdResult `json:"threshold_sweep"`
}

// Save writes b to path, replacing any previous bundle. The document is
// written to a temporary file in the same directory and renamed into place.
func Save(path string, b *Bundle) error {
	if b == nil || b.Model == nil {
		return errors.New("refusing to save an empty bundle")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary bundle: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write bundle: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close bundle: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace bundle: %w", err)
	}
	return nil
}

// Load reads the bundle at path. A missing file yields ErrNotFound.
func Load(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle: %w", err)
	}

	var doc struct {
		Bundle
		Threshold *float64 `json:"threshold"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode bundle %s: %w", path, err)
	}
	if doc.Model == nil || len(doc.Features) == 0 {
		return nil, fmt.Errorf("bundle %s is missing the model or its features", path)
	}

	b := doc.Bundle
	b.Threshold = DefaultThreshold
	if doc.Threshold != nil {
		b.Threshold = *doc.Threshold
	}
	return &b, nil
}
