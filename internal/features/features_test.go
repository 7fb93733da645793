package features

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-rain-pipeline/internal/models"
)

// 2024-03-11 is a Monday.
var monday = time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)

func series(city string, n int, start time.Time) []models.WeatherObservation {
	rows := make([]models.WeatherObservation, n)
	for i := range rows {
		v := float64(i + 1)
		rows[i] = models.WeatherObservation{
			City:       city,
			Source:     models.SourceForecast,
			ObservedAt: start.Add(time.Duration(3*i) * time.Hour),
			Temp:       models.Float(20 + v),
			Humidity:   models.Float(60 + v),
			Pressure:   models.Float(1000 + v),
			WindSpeed:  models.Float(v),
			Clouds:     models.Float(10 * v),
		}
	}
	return rows
}

func featureIndex(t *testing.T, name string) int {
	t.Helper()
	for i, n := range Names() {
		if n == name {
			return i
		}
	}
	t.Fatalf("unknown feature %s", name)
	return -1
}

func TestNames(t *testing.T) {
	names := Names()
	assert.Len(t, names, 17)
	assert.Equal(t, []string{"temp", "humidity", "pressure", "wind_speed", "clouds", "hour", "dow"}, names[:7])
	assert.Equal(t, "temp_lag1", names[7])
	assert.Equal(t, "temp_roll3_mean", names[8])
	assert.Equal(t, "clouds_roll3_mean", names[16])
}

func TestBuild_DropsFirstTwoRowsPerCity(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want int
	}{
		{name: "empty", n: 0, want: 0},
		{name: "one row", n: 1, want: 0},
		{name: "two rows", n: 2, want: 0},
		{name: "three rows", n: 3, want: 1},
		{name: "ten rows", n: 10, want: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := Build(series("Recife", tt.n, monday))
			assert.Len(t, ds.Rows, tt.want)
			assert.Equal(t, LabelName, ds.LabelName)
			assert.Equal(t, Names(), ds.FeatureNames)
		})
	}
}

func TestBuild_LagAndRollingValues(t *testing.T) {
	ds := Build(series("Recife", 4, monday))
	require.Len(t, ds.Rows, 2)

	first := ds.Rows[0]
	// third observation: temp 23, previous 22, window 21..23
	assert.Equal(t, 23.0, first.Values[featureIndex(t, "temp")])
	assert.Equal(t, 22.0, first.Values[featureIndex(t, "temp_lag1")])
	assert.Equal(t, 22.0, first.Values[featureIndex(t, "temp_roll3_mean")])
	assert.Equal(t, 20.0, first.Values[featureIndex(t, "clouds_roll3_mean")])
	assert.Equal(t, 6.0, first.Values[featureIndex(t, "hour")])
	assert.Equal(t, 0.0, first.Values[featureIndex(t, "dow")])
	assert.Empty(t, first.Missing)
}

func TestBuild_WindowsNeverCrossCities(t *testing.T) {
	obs := append(series("Recife", 3, monday), series("Manaus", 3, monday)...)
	ds := Build(obs)

	// each city alone yields one row; a leaked window would yield more
	require.Len(t, ds.Rows, 2)
	assert.Equal(t, "Manaus", ds.Rows[0].City)
	assert.Equal(t, "Recife", ds.Rows[1].City)
	for _, row := range ds.Rows {
		assert.Equal(t, 22.0, row.Values[featureIndex(t, "temp_lag1")])
	}
}

func TestBuild_SortsByTimeWithinCity(t *testing.T) {
	obs := series("Recife", 3, monday)
	obs[0], obs[2] = obs[2], obs[0]

	ds := Build(obs)
	require.Len(t, ds.Rows, 1)
	assert.True(t, ds.Rows[0].ObservedAt.Equal(monday.Add(6*time.Hour)))
}

func TestBuild_MissingMeasurementDropsAffectedRows(t *testing.T) {
	obs := series("Recife", 6, monday)
	obs[3].Pressure = nil

	ds := Build(obs)
	// row 3 lacks pressure, row 4 its lag, rows 3..5 a full window
	assert.Len(t, ds.Rows, 1)
	assert.True(t, ds.Rows[0].ObservedAt.Equal(obs[2].ObservedAt))
}

func TestBuild_AbsentRain3hLabelsEveryRowNegative(t *testing.T) {
	ds := Build(series("Recife", 8, monday))
	require.NotEmpty(t, ds.Rows)
	for _, row := range ds.Rows {
		assert.Zero(t, row.Label)
	}
	assert.Zero(t, ds.Positives())
}

func TestBuild_LabelThreshold(t *testing.T) {
	obs := series("Recife", 5, monday)
	obs[2].Rain3h = models.Float(9.99)
	obs[3].Rain3h = models.Float(10)
	obs[4].Rain3h = models.Float(25)

	ds := Build(obs)
	require.Len(t, ds.Rows, 3)
	assert.Equal(t, 0, ds.Rows[0].Label)
	assert.Equal(t, 1, ds.Rows[1].Label)
	assert.Equal(t, 1, ds.Rows[2].Label)

	x, y := ds.Matrix()
	assert.Len(t, x, 3)
	assert.Equal(t, []int{0, 1, 1}, y)
}

func TestLatest(t *testing.T) {
	obs := append(series("Recife", 6, monday), series("Manaus", 2, monday)...)

	row, err := Latest(obs, "Recife", 6*time.Hour)
	require.NoError(t, err)
	assert.True(t, row.ObservedAt.Equal(monday.Add(15*time.Hour)))
	assert.Empty(t, row.Missing)

	// the same row computed over the whole dataset
	ds := Build(obs)
	var match *Row
	for i := range ds.Rows {
		if ds.Rows[i].City == "Recife" && ds.Rows[i].ObservedAt.Equal(row.ObservedAt) {
			match = &ds.Rows[i]
		}
	}
	require.NotNil(t, match)
	assert.Equal(t, match.Values, row.Values)
}

func TestLatest_FallsBackToIncompleteRow(t *testing.T) {
	obs := series("Manaus", 2, monday)

	row, err := Latest(obs, "Manaus", 24*time.Hour)
	require.NoError(t, err)
	assert.Contains(t, row.Missing, "temp_roll3_mean")
	assert.NotContains(t, row.Missing, "temp_lag1")
	assert.True(t, math.IsNaN(row.Values[featureIndex(t, "temp_roll3_mean")]))
}

func TestLatest_UnknownCity(t *testing.T) {
	_, err := Latest(series("Recife", 3, monday), "Natal", time.Hour)
	assert.True(t, errors.Is(err, ErrNoFeatureRow))
}
