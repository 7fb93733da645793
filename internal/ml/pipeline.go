package ml

import (
	"errors"
	"fmt"
)

// Pipeline chains the scaler and the classifier. It serializes to JSON as is.
type Pipeline struct {
	Scaler StandardScaler      `json:"scaler"`
	Model  *LogisticRegression `json:"logreg"`
}

// NewPipeline returns an unfitted scaler + logistic regression pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{Model: NewLogisticRegression()}
}

// Fit fits the scaler on x and the classifier on the scaled rows.
func (p *Pipeline) Fit(x [][]float64, y []int) error {
	if err := p.Scaler.Fit(x); err != nil {
		return fmt.Errorf("failed to fit scaler: %w", err)
	}
	if p.Model == nil {
		p.Model = NewLogisticRegression()
	}
	if err := p.Model.Fit(p.Scaler.Transform(x), y); err != nil {
		return fmt.Errorf("failed to fit logistic regression: %w", err)
	}
	return nil
}

// PredictProba returns P(y=1) for each row.
func (p *Pipeline) PredictProba(x [][]float64) ([]float64, error) {
	if p.Model == nil || p.Model.Coef == nil {
		return nil, errors.New("pipeline is not fitted")
	}
	out := make([]float64, len(x))
	for i, row := range x {
		if len(row) != len(p.Model.Coef) {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", i, len(row), len(p.Model.Coef))
		}
		out[i] = p.Model.PredictProba(p.Scaler.TransformRow(row))
	}
	return out, nil
}

// Predict labels rows with P(y=1) >= threshold as 1.
func Predict(scores []float64, threshold float64) []int {
	out := make([]int, len(scores))
	for i, s := range scores {
		if s >= threshold {
			out[i] = 1
		}
	}
	return out
}
