package ml

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func labels(neg, pos int) []int {
	y := make([]int, 0, neg+pos)
	for i := 0; i < neg; i++ {
		y = append(y, 0)
	}
	for i := 0; i < pos; i++ {
		y = append(y, 1)
	}
	return y
}

func TestStratifiedSplit(t *testing.T) {
	y := labels(40, 12)

	train, test, err := StratifiedSplit(y, 0.25, 42)
	require.NoError(t, err)
	assert.Len(t, test, 13) // 10 negatives + 3 positives
	assert.Len(t, train, 39)

	_, yTest := Subset(make([][]float64, len(y)), y, test)
	pos := 0
	for _, v := range yTest {
		pos += v
	}
	assert.Equal(t, 3, pos)

	seen := map[int]bool{}
	for _, i := range append(append([]int{}, train...), test...) {
		assert.False(t, seen[i], "index %d assigned twice", i)
		seen[i] = true
	}
	assert.Len(t, seen, len(y))

	// same seed, same split
	train2, test2, err := StratifiedSplit(y, 0.25, 42)
	require.NoError(t, err)
	assert.Equal(t, train, train2)
	assert.Equal(t, test, test2)
}

func TestStratifiedSplit_Errors(t *testing.T) {
	tests := []struct {
		name string
		y    []int
		want error
	}{
		{name: "empty", y: nil},
		{name: "single class", y: labels(10, 0), want: ErrSingleClass},
		{name: "one positive", y: labels(10, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := StratifiedSplit(tt.y, 0.25, 42)
			require.Error(t, err)
			if tt.want != nil {
				assert.True(t, errors.Is(err, tt.want))
			}
		})
	}
}

func TestStandardScaler(t *testing.T) {
	var s StandardScaler
	require.NoError(t, s.Fit([][]float64{{1, 5}, {3, 5}}))

	assert.Equal(t, []float64{2, 5}, s.Mean)
	// population std of {1,3} is 1; constant column keeps scale 1
	assert.Equal(t, []float64{1, 1}, s.Scale)
	assert.Equal(t, []float64{-1, 0}, s.TransformRow([]float64{1, 5}))

	assert.Error(t, s.Fit(nil))
}

func TestBalancedWeights(t *testing.T) {
	w, err := BalancedWeights(labels(6, 2))
	require.NoError(t, err)
	assert.InDelta(t, 8.0/12.0, w[0], 1e-12)
	assert.InDelta(t, 2.0, w[1], 1e-12)

	_, err = BalancedWeights(labels(3, 0))
	assert.True(t, errors.Is(err, ErrSingleClass))
}

// overlapping classes, mirror images of each other around zero
func overlapping() ([][]float64, []int) {
	x := [][]float64{{-3}, {-2}, {-1.5}, {-1}, {-0.2}, {0.5}, {-0.5}, {0.2}, {1}, {1.5}, {2}, {3}}
	y := []int{0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1}
	return x, y
}

func TestLogisticRegression_Fit(t *testing.T) {
	x, y := overlapping()
	m := NewLogisticRegression()
	require.NoError(t, m.Fit(x, y))

	assert.Greater(t, m.Coef[0], 0.0)
	assert.Less(t, m.Iterations, m.MaxIter)
	assert.Greater(t, m.PredictProba([]float64{3}), 0.5)
	assert.Less(t, m.PredictProba([]float64{-3}), 0.5)
	// balanced and symmetric data: the boundary sits at the origin
	assert.InDelta(t, 0.5, m.PredictProba([]float64{0}), 1e-6)
}

func TestLogisticRegression_SeparableDataStaysFinite(t *testing.T) {
	x := [][]float64{{-2}, {-1}, {1}, {2}}
	y := []int{0, 0, 1, 1}
	m := NewLogisticRegression()
	require.NoError(t, m.Fit(x, y))
	assert.False(t, math.IsNaN(m.Coef[0]) || math.IsInf(m.Coef[0], 0))
}

func TestPipeline_RoundTripsThroughJSON(t *testing.T) {
	x, y := overlapping()
	p := NewPipeline()
	require.NoError(t, p.Fit(x, y))

	scores, err := p.PredictProba([][]float64{{2.5}, {-2.5}})
	require.NoError(t, err)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	var loaded Pipeline
	require.NoError(t, json.Unmarshal(data, &loaded))

	again, err := loaded.PredictProba([][]float64{{2.5}, {-2.5}})
	require.NoError(t, err)
	assert.InDeltaSlice(t, scores, again, 1e-12)

	_, err = loaded.PredictProba([][]float64{{1, 2}})
	assert.Error(t, err)
	_, err = NewPipeline().PredictProba(x)
	assert.Error(t, err)
}

func TestClassificationReport(t *testing.T) {
	yTrue := []int{0, 0, 0, 1, 1}
	yPred := []int{0, 1, 0, 1, 0}

	r := ClassificationReport(yTrue, yPred)
	require.Len(t, r.Classes, 2)

	checkValues := func(c ClassMetrics, precision, recall float64, support int) {
		t.Helper()
		assert.InDelta(t, precision, c.Precision, 1e-9)
		assert.InDelta(t, recall, c.Recall, 1e-9)
		assert.Equal(t, support, c.Support)
	}
	checkValues(r.Classes[0], 2.0/3.0, 2.0/3.0, 3)
	checkValues(r.Classes[1], 0.5, 0.5, 2)
	assert.InDelta(t, 0.6, r.Accuracy, 1e-9)
	assert.InDelta(t, (2.0/3.0+0.5)/2, r.MacroAvg.Precision, 1e-9)
	assert.InDelta(t, (2.0/3.0)*0.6+0.5*0.4, r.WeightedAvg.Recall, 1e-9)
	assert.Contains(t, r.String(), "weighted avg")
}

func TestROCAUC(t *testing.T) {
	tests := []struct {
		name   string
		y      []int
		scores []float64
		want   float64
	}{
		{name: "perfect", y: []int{0, 0, 1, 1}, scores: []float64{0.1, 0.2, 0.8, 0.9}, want: 1},
		{name: "inverted", y: []int{1, 1, 0, 0}, scores: []float64{0.1, 0.2, 0.8, 0.9}, want: 0},
		{name: "all tied", y: []int{0, 1, 0, 1}, scores: []float64{0.5, 0.5, 0.5, 0.5}, want: 0.5},
		{name: "one swap", y: []int{0, 1, 0, 1}, scores: []float64{0.1, 0.3, 0.4, 0.9}, want: 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ROCAUC(tt.y, tt.scores)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}

	_, err := ROCAUC([]int{1, 1}, []float64{0.2, 0.3})
	assert.True(t, errors.Is(err, ErrSingleClass))
}

func TestDefaultThresholds(t *testing.T) {
	assert.Equal(t, []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}, DefaultThresholds())
}

func TestSweepThresholds_Monotonic(t *testing.T) {
	yTrue := []int{0, 0, 0, 0, 1, 0, 1, 1, 1, 1}
	scores := []float64{0.05, 0.12, 0.18, 0.25, 0.33, 0.38, 0.45, 0.55, 0.65, 0.9}

	results := SweepThresholds(yTrue, scores, DefaultThresholds())
	require.Len(t, results, 6)

	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Recall, results[i-1].Recall, "recall at %.2f", results[i].Threshold)
		assert.GreaterOrEqual(t, results[i].Precision, results[i-1].Precision, "precision at %.2f", results[i].Threshold)
	}

	last := results[5]
	assert.Equal(t, ConfusionMatrix{TP: 2, FP: 0, FN: 3, TN: 5}, last.ConfusionMatrix)
	assert.InDelta(t, 1.0, last.Precision, 1e-12)
	assert.InDelta(t, 0.4, last.Recall, 1e-12)
}

func TestFBeta(t *testing.T) {
	assert.Zero(t, FBeta(0, 0, 1.5))
	assert.InDelta(t, 0.5, FBeta(0.5, 0.5, 1.5), 1e-12)
	// beta > 1 favours recall
	assert.Greater(t, FBeta(0.4, 0.8, 1.5), FBeta(0.8, 0.4, 1.5))
}

func TestSelectThreshold(t *testing.T) {
	results := []ThresholdResult{
		{Threshold: 0.1, Precision: 0.3, Recall: 1.0},
		{Threshold: 0.2, Precision: 0.5, Recall: 0.9},
		{Threshold: 0.3, Precision: 0.5, Recall: 0.9},
		{Threshold: 0.4, Precision: 0.9, Recall: 0.3},
	}

	best, err := SelectThreshold(results, FBetaDefault)
	require.NoError(t, err)
	assert.Equal(t, 0.2, best.Threshold)

	_, err = SelectThreshold(nil, FBetaDefault)
	assert.Error(t, err)
}
