package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	defaultC       = 1.0
	defaultMaxIter = 1000
	gradTolerance  = 1e-8
	// interceptRidge keeps the Newton system solvable when the intercept is
	// otherwise unpenalized.
	interceptRidge = 1e-8
	armijo         = 1e-4
	maxHalvings    = 50
)

// LogisticRegression is an L2-regularized binary logistic regression fitted
// with Newton's method. Class weights are balanced: each sample of class c
// weighs n / (2 * n_c). The intercept is not penalized.
type LogisticRegression struct {
	C            float64    `json:"c"`
	MaxIter      int        `json:"max_iter"`
	Coef         []float64  `json:"coef"`
	Intercept    float64    `json:"intercept"`
	ClassWeights [2]float64 `json:"class_weights"`
	Iterations   int        `json:"iterations"`
}

// NewLogisticRegression returns a model with C=1 and at most 1000 iterations.
func NewLogisticRegression() *LogisticRegression {
	return &LogisticRegression{C: defaultC, MaxIter: defaultMaxIter}
}

// BalancedWeights returns n / (2 * n_c) for classes 0 and 1.
func BalancedWeights(y []int) ([2]float64, error) {
	var counts [2]int
	for _, label := range y {
		if label != 0 && label != 1 {
			return [2]float64{}, fmt.Errorf("label %d is not binary", label)
		}
		counts[label]++
	}
	if counts[0] == 0 || counts[1] == 0 {
		return [2]float64{}, ErrSingleClass
	}
	n := float64(len(y))
	return [2]float64{n / (2 * float64(counts[0])), n / (2 * float64(counts[1]))}, nil
}

// Fit estimates the coefficients. x must already be scaled.
func (m *LogisticRegression) Fit(x [][]float64, y []int) error {
	if len(x) == 0 {
		return errors.New("cannot fit on zero rows")
	}
	if len(x) != len(y) {
		return fmt.Errorf("x has %d rows but y has %d", len(x), len(y))
	}
	if m.C <= 0 {
		m.C = defaultC
	}
	if m.MaxIter <= 0 {
		m.MaxIter = defaultMaxIter
	}

	weights, err := BalancedWeights(y)
	if err != nil {
		return err
	}
	m.ClassWeights = weights

	d := len(x[0])
	p := d + 1 // coefficients followed by the intercept
	beta := make([]float64, p)
	loss := m.objective(x, y, beta)

	for m.Iterations = 0; m.Iterations < m.MaxIter; m.Iterations++ {
		grad, hess := m.derivatives(x, y, beta)
		if floats.Norm(grad, math.Inf(1)) < gradTolerance {
			break
		}

		var chol mat.Cholesky
		if ok := chol.Factorize(mat.NewSymDense(p, hess)); !ok {
			return errors.New("newton system is not positive definite")
		}
		var step mat.VecDense
		if err := chol.SolveVecTo(&step, mat.NewVecDense(p, grad)); err != nil {
			return fmt.Errorf("failed to solve newton step: %w", err)
		}
		direction := step.RawVector().Data
		decrease := floats.Dot(grad, direction)

		t := 1.0
		candidate := make([]float64, p)
		accepted := false
		for h := 0; h < maxHalvings; h++ {
			floats.AddScaledTo(candidate, beta, -t, direction)
			next := m.objective(x, y, candidate)
			if next <= loss-armijo*t*decrease {
				copy(beta, candidate)
				loss = next
				accepted = true
				break
			}
			t /= 2
		}
		if !accepted {
			// no further progress is possible at float precision
			break
		}
	}

	m.Coef = append([]float64(nil), beta[:d]...)
	m.Intercept = beta[d]
	return nil
}

// PredictProba returns P(y=1) for one scaled row.
func (m *LogisticRegression) PredictProba(row []float64) float64 {
	return sigmoid(floats.Dot(m.Coef, row) + m.Intercept)
}

func (m *LogisticRegression) objective(x [][]float64, y []int, beta []float64) float64 {
	d := len(beta) - 1
	total := 0.0
	for i, row := range x {
		z := floats.Dot(beta[:d], row) + beta[d]
		total += m.ClassWeights[y[i]] * (softplus(z) - float64(y[i])*z)
	}
	penalty := floats.Dot(beta[:d], beta[:d]) / (2 * m.C)
	return total + penalty + interceptRidge*beta[d]*beta[d]/2
}

// derivatives returns the gradient and the upper triangle of the Hessian,
// row-major, for the weighted penalized log-loss.
func (m *LogisticRegression) derivatives(x [][]float64, y []int, beta []float64) ([]float64, []float64) {
	d := len(beta) - 1
	p := d + 1
	grad := make([]float64, p)
	hess := make([]float64, p*p)

	feature := func(row []float64, a int) float64 {
		if a == d {
			return 1
		}
		return row[a]
	}

	for i, row := range x {
		w := m.ClassWeights[y[i]]
		prob := sigmoid(floats.Dot(beta[:d], row) + beta[d])
		r := w * (prob - float64(y[i]))
		h := w * prob * (1 - prob)
		for a := 0; a < p; a++ {
			xa := feature(row, a)
			grad[a] += r * xa
			for b := a; b < p; b++ {
				hess[a*p+b] += h * xa * feature(row, b)
			}
		}
	}

	for a := 0; a < d; a++ {
		grad[a] += beta[a] / m.C
		hess[a*p+a] += 1 / m.C
	}
	grad[d] += interceptRidge * beta[d]
	hess[d*p+d] += interceptRidge

	return grad, hess
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// softplus computes log(1 + e^z) without overflow.
func softplus(z float64) float64 {
	return math.Max(z, 0) + math.Log1p(math.Exp(-math.Abs(z)))
}
