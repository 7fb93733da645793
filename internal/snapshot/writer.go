package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"weather-rain-pipeline/internal/models"
	"weather-rain-pipeline/pkg/logging"
	"weather-rain-pipeline/pkg/metrics"
)

const (
	fileTimeLayout = "20060102T150405"
	fileExt        = ".parquet"
)

// Writer creates snapshot files under a single directory.
type Writer struct {
	dir     string
	logger  *logging.ContextLogger
	metrics *metrics.Collector
	now     func() time.Time
}

// NewWriter creates a writer for dir. The directory is created on first write.
func NewWriter(dir string, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Writer {
	return &Writer{
		dir:     dir,
		logger:  logger.WithFields(logging.Fields{"dir": dir}),
		metrics: metricsCollector,
		now:     time.Now,
	}
}

type groupKey struct {
	city   string
	source models.SourceKind
}

// WriteGroups writes one file per (city, source) group, in order of first
// appearance, and returns the paths written.
func (w *Writer) WriteGroups(ctx context.Context, observations []models.WeatherObservation) ([]string, error) {
	if len(observations) == 0 {
		return nil, nil
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	var order []groupKey
	groups := make(map[groupKey][]models.WeatherObservation)
	for _, obs := range observations {
		key := groupKey{city: obs.City, source: obs.Source}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], obs)
	}

	stamp := w.now().UTC().Format(fileTimeLayout)
	paths := make([]string, 0, len(order))
	for _, key := range order {
		if err := ctx.Err(); err != nil {
			return paths, err
		}

		path, err := w.nextPath(key, stamp)
		if err != nil {
			return paths, err
		}
		if err := writeFile(path, groups[key]); err != nil {
			return paths, err
		}

		w.metrics.SnapshotFilesTotal.Inc()
		w.logger.Debug(ctx, "[SNAPSHOT_WRITE] Snapshot file written", logging.Fields{
			"city":   key.city,
			"source": string(key.source),
			"rows":   len(groups[key]),
			"file":   filepath.Base(path),
		})
		paths = append(paths, path)
	}

	return paths, nil
}

// nextPath returns {city}_{source}_{stamp}.parquet, adding _1, _2, ... when
// a file with that name already exists.
func (w *Writer) nextPath(key groupKey, stamp string) (string, error) {
	base := fmt.Sprintf("%s_%s_%s", sanitize(key.city), key.source, stamp)
	for i := 0; ; i++ {
		name := base + fileExt
		if i > 0 {
			name = fmt.Sprintf("%s_%d%s", base, i, fileExt)
		}
		path := filepath.Join(w.dir, name)
		_, err := os.Stat(path)
		if os.IsNotExist(err) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check snapshot path %s: %w", path, err)
		}
	}
}

// writeFile writes to a temporary file first so readers never see a partial snapshot.
func writeFile(path string, observations []models.WeatherObservation) (err error) {
	tmp := path + ".tmp"

	fw, err := local.NewLocalFileWriter(tmp)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	pw, err := writer.NewParquetWriter(fw, new(record), 1)
	if err != nil {
		fw.Close()
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, obs := range observations {
		if err = pw.Write(fromObservation(obs)); err != nil {
			fw.Close()
			return fmt.Errorf("failed to write parquet row: %w", err)
		}
	}

	if err = stopWriter(pw); err != nil {
		fw.Close()
		return fmt.Errorf("failed to finish parquet file %s: %w", path, err)
	}
	if err = fw.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to publish snapshot file: %w", err)
	}
	return nil
}

// stopWriter flushes the footer. WriteStop can panic on malformed rows.
func stopWriter(pw *writer.ParquetWriter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parquet writer panicked: %v", r)
		}
	}()
	return pw.WriteStop()
}

func sanitize(name string) string {
	return strings.NewReplacer("/", "-", "\\", "-", string(os.PathSeparator), "-").Replace(name)
}
