// Package features derives the model inputs from the observation history:
// current measurements, hour and weekday, a one-step lag and a three-sample
// trailing mean per measurement, and the heavy-rain label.
package features

import (
	"errors"
	"math"
	"sort"
	"time"

	"weather-rain-pipeline/internal/models"
)

const (
	// LabelName is the label column stored alongside the feature names.
	LabelName = "target_heavy_rain"

	// HeavyRainMM is the 3-hour accumulation at or above which a row is labelled positive.
	HeavyRainMM = 10.0

	rollWindow = 3
)

// ErrNoFeatureRow is returned by Latest when the window holds no rows for the city.
var ErrNoFeatureRow = errors.New("no feature row available")

// Row is one feature vector. Values follow Names() order.
type Row struct {
	City       string
	ObservedAt time.Time
	Values     []float64
	Label      int
	// Missing names the features that had no value. Their slots hold NaN.
	// Build never returns such rows; Latest may.
	Missing []string
}

// Dataset is the output of Build.
type Dataset struct {
	Rows         []Row
	FeatureNames []string
	LabelName    string
}

// Matrix returns the feature matrix and label vector.
func (d *Dataset) Matrix() ([][]float64, []int) {
	x := make([][]float64, len(d.Rows))
	y := make([]int, len(d.Rows))
	for i, row := range d.Rows {
		x[i] = row.Values
		y[i] = row.Label
	}
	return x, y
}

// Positives counts rows labelled heavy rain.
func (d *Dataset) Positives() int {
	n := 0
	for _, row := range d.Rows {
		n += row.Label
	}
	return n
}

// Names returns the feature columns in model order.
func Names() []string {
	names := make([]string, 0, len(models.Measurements)*3+2)
	names = append(names, models.Measurements...)
	names = append(names, "hour", "dow")
	for _, m := range models.Measurements {
		names = append(names, m+"_lag1", m+"_roll3_mean")
	}
	return names
}

// Build computes features over the full history. Rows are ordered by city,
// then observation time; lag and rolling windows restart at each city. Rows
// with any missing feature are dropped, so a city with N complete
// observations contributes N-2 rows.
func Build(observations []models.WeatherObservation) *Dataset {
	ds := &Dataset{
		FeatureNames: Names(),
		LabelName:    LabelName,
	}

	for _, series := range splitByCity(observations) {
		for _, c := range candidates(series) {
			if len(c.Missing) == 0 {
				ds.Rows = append(ds.Rows, c)
			}
		}
	}
	return ds
}

// Latest returns the most recent feature row for city among observations no
// older than lookback before the city's newest timestamp. Features are
// computed over the city's whole history first, so lags and rolling means
// match what Build produces for the same row. When no row in the window is
// complete, the newest row is returned with Missing set.
func Latest(observations []models.WeatherObservation, city string, lookback time.Duration) (*Row, error) {
	var series []models.WeatherObservation
	for _, obs := range observations {
		if obs.City == city {
			series = append(series, obs)
		}
	}
	if len(series) == 0 {
		return nil, ErrNoFeatureRow
	}
	sortSeries(series)

	rows := candidates(series)
	cutoff := rows[len(rows)-1].ObservedAt.Add(-lookback)

	var fallback *Row
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].ObservedAt.Before(cutoff) {
			break
		}
		if len(rows[i].Missing) == 0 {
			return &rows[i], nil
		}
		if fallback == nil {
			fallback = &rows[i]
		}
	}
	if fallback == nil {
		return nil, ErrNoFeatureRow
	}
	return fallback, nil
}

// IsHeavyRain applies the label rule, treating a missing accumulation as zero.
func IsHeavyRain(obs *models.WeatherObservation) bool {
	return obs.Rain3hOrZero() >= HeavyRainMM
}

func splitByCity(observations []models.WeatherObservation) [][]models.WeatherObservation {
	sorted := make([]models.WeatherObservation, len(observations))
	copy(sorted, observations)
	sortSeries(sorted)

	var out [][]models.WeatherObservation
	start := 0
	for i := 1; i <= len(sorted); i++ {
		if i == len(sorted) || sorted[i].City != sorted[start].City {
			out = append(out, sorted[start:i])
			start = i
		}
	}
	return out
}

func sortSeries(observations []models.WeatherObservation) {
	sort.SliceStable(observations, func(i, j int) bool {
		if observations[i].City != observations[j].City {
			return observations[i].City < observations[j].City
		}
		return observations[i].ObservedAt.Before(observations[j].ObservedAt)
	})
}

// candidates computes a row for every observation of one city's sorted series.
func candidates(series []models.WeatherObservation) []Row {
	names := Names()
	rows := make([]Row, len(series))

	for i := range series {
		obs := &series[i]
		dt := obs.ObservedAt.UTC()
		values := make([]*float64, 0, len(names))

		for _, m := range models.Measurements {
			values = append(values, obs.Measurement(m))
		}
		values = append(values, models.Float(float64(dt.Hour())), models.Float(float64(weekday(dt))))

		for _, m := range models.Measurements {
			var lag *float64
			if i > 0 {
				lag = series[i-1].Measurement(m)
			}
			values = append(values, lag, rollingMean(series, i, m))
		}

		row := Row{
			City:       obs.City,
			ObservedAt: dt,
			Values:     make([]float64, len(values)),
		}
		if IsHeavyRain(obs) {
			row.Label = 1
		}
		for j, v := range values {
			if v == nil {
				row.Values[j] = math.NaN()
				row.Missing = append(row.Missing, names[j])
				continue
			}
			row.Values[j] = *v
		}
		rows[i] = row
	}
	return rows
}

// rollingMean is the mean of the window ending at i, or nil when the window
// is short or holds a missing value.
func rollingMean(series []models.WeatherObservation, i int, measurement string) *float64 {
	if i+1 < rollWindow {
		return nil
	}
	sum := 0.0
	for k := i - rollWindow + 1; k <= i; k++ {
		v := series[k].Measurement(measurement)
		if v == nil {
			return nil
		}
		sum += *v
	}
	return models.Float(sum / rollWindow)
}

// weekday maps Monday to 0 and Sunday to 6.
func weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
