// Package ml holds the classifier used for the heavy-rain alert: a stratified
// split, a standard scaler, an L2 logistic regression with balanced class
// weights and the evaluation helpers used to pick a decision threshold.
package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// ErrSingleClass is returned when the labels do not contain both classes.
var ErrSingleClass = errors.New("labels contain a single class")

// StratifiedSplit shuffles the row indices of each class with a seeded
// generator and holds out round(testFraction * classSize) of them, at least
// one and at most classSize-1. Returned index slices are sorted.
func StratifiedSplit(y []int, testFraction float64, seed int64) (train, test []int, err error) {
	if len(y) == 0 {
		return nil, nil, errors.New("cannot split an empty dataset")
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction %.2f must be between 0 and 1", testFraction)
	}

	byClass := map[int][]int{}
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	if len(byClass) < 2 {
		return nil, nil, ErrSingleClass
	}

	classes := make([]int, 0, len(byClass))
	for label, idx := range byClass {
		if len(idx) < 2 {
			return nil, nil, fmt.Errorf("class %d has %d row(s), at least 2 are needed to stratify", label, len(idx))
		}
		classes = append(classes, label)
	}
	sort.Ints(classes)

	rng := rand.New(rand.NewSource(seed))
	for _, label := range classes {
		idx := byClass[label]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		nTest := int(math.Round(testFraction * float64(len(idx))))
		if nTest < 1 {
			nTest = 1
		}
		if nTest > len(idx)-1 {
			nTest = len(idx) - 1
		}
		test = append(test, idx[:nTest]...)
		train = append(train, idx[nTest:]...)
	}

	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

// Subset selects rows of x and y by index.
func Subset(x [][]float64, y []int, idx []int) ([][]float64, []int) {
	xs := make([][]float64, len(idx))
	ys := make([]int, len(idx))
	for i, k := range idx {
		xs[i] = x[k]
		ys[i] = y[k]
	}
	return xs, ys
}
