package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"weather-rain-pipeline/internal/models"
	"weather-rain-pipeline/pkg/logging"
)

// Reader loads the silver layer back into observations.
type Reader struct {
	dir    string
	logger *logging.StructuredLogger
}

func NewReader(dir string, logger *logging.StructuredLogger) *Reader {
	return &Reader{dir: dir, logger: logger}
}

// Files lists the snapshot files in name order. A missing directory is empty.
func (r *Reader) Files() ([]string, error) {
	if _, err := os.Stat(r.dir); os.IsNotExist(err) {
		return nil, nil
	}
	files, err := filepath.Glob(filepath.Join(r.dir, "*"+fileExt))
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// LoadAll concatenates every snapshot file. Any unreadable file fails the load.
func (r *Reader) LoadAll(ctx context.Context) ([]models.WeatherObservation, error) {
	files, err := r.Files()
	if err != nil {
		return nil, err
	}

	var observations []models.WeatherObservation
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		observations = append(observations, rows...)
	}

	r.logger.Info(ctx, "[SNAPSHOT_LOAD] Silver layer loaded", logging.Fields{
		"dir":   r.dir,
		"files": len(files),
		"rows":  len(observations),
	})
	return observations, nil
}

// ReadFile reads one snapshot file.
func ReadFile(path string) ([]models.WeatherObservation, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(record), 1)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	defer pr.ReadStop()

	records := make([]record, int(pr.GetNumRows()))
	if len(records) == 0 {
		return nil, nil
	}
	if err := pr.Read(&records); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", path, err)
	}

	observations := make([]models.WeatherObservation, len(records))
	for i, rec := range records {
		observations[i] = rec.toObservation()
	}
	return observations, nil
}
