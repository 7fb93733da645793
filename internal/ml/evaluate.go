package ml

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// FBetaDefault weighs recall 1.5 times as much as precision.
const FBetaDefault = 1.5

// ConfusionMatrix counts binary outcomes.
type ConfusionMatrix struct {
	TP int `json:"tp"`
	FP int `json:"fp"`
	FN int `json:"fn"`
	TN int `json:"tn"`
}

// Confusion compares predictions with the truth.
func Confusion(yTrue, yPred []int) ConfusionMatrix {
	var cm ConfusionMatrix
	for i := range yTrue {
		switch {
		case yTrue[i] == 1 && yPred[i] == 1:
			cm.TP++
		case yTrue[i] == 0 && yPred[i] == 1:
			cm.FP++
		case yTrue[i] == 1 && yPred[i] == 0:
			cm.FN++
		default:
			cm.TN++
		}
	}
	return cm
}

// Precision is TP/(TP+FP), 0 when nothing was predicted positive.
func (c ConfusionMatrix) Precision() float64 {
	return safeDiv(float64(c.TP), float64(c.TP+c.FP))
}

// Recall is TP/(TP+FN), 0 when there are no positives.
func (c ConfusionMatrix) Recall() float64 {
	return safeDiv(float64(c.TP), float64(c.TP+c.FN))
}

// F1 is the harmonic mean of precision and recall.
func (c ConfusionMatrix) F1() float64 {
	return FBeta(c.Precision(), c.Recall(), 1)
}

// FBeta is (1+b²)·p·r / (b²·p + r), or 0 when p and r are both 0.
func FBeta(precision, recall, beta float64) float64 {
	if precision+recall == 0 {
		return 0
	}
	b2 := beta * beta
	return (1 + b2) * precision * recall / (b2*precision + recall)
}

// ClassMetrics is one line of a classification report.
type ClassMetrics struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Report summarizes held-out performance per class.
type Report struct {
	Classes     []ClassMetrics `json:"classes"`
	Accuracy    float64        `json:"accuracy"`
	MacroAvg    ClassMetrics   `json:"macro_avg"`
	WeightedAvg ClassMetrics   `json:"weighted_avg"`
}

// ClassificationReport computes per-class precision, recall, F1 and support
// for labels 0 and 1, plus accuracy and the macro and support-weighted averages.
func ClassificationReport(yTrue, yPred []int) Report {
	cm := Confusion(yTrue, yPred)
	// class 0 is the positive class of the mirrored matrix
	negative := ConfusionMatrix{TP: cm.TN, FP: cm.FN, FN: cm.FP, TN: cm.TP}

	classes := []ClassMetrics{
		{Label: "0", Precision: negative.Precision(), Recall: negative.Recall(), F1: negative.F1(), Support: cm.TN + cm.FP},
		{Label: "1", Precision: cm.Precision(), Recall: cm.Recall(), F1: cm.F1(), Support: cm.TP + cm.FN},
	}

	report := Report{
		Classes:     classes,
		Accuracy:    safeDiv(float64(cm.TP+cm.TN), float64(len(yTrue))),
		MacroAvg:    ClassMetrics{Label: "macro avg"},
		WeightedAvg: ClassMetrics{Label: "weighted avg"},
	}

	total := float64(len(yTrue))
	for _, c := range classes {
		report.MacroAvg.Precision += c.Precision / 2
		report.MacroAvg.Recall += c.Recall / 2
		report.MacroAvg.F1 += c.F1 / 2
		w := safeDiv(float64(c.Support), total)
		report.WeightedAvg.Precision += c.Precision * w
		report.WeightedAvg.Recall += c.Recall * w
		report.WeightedAvg.F1 += c.F1 * w
	}
	report.MacroAvg.Support = len(yTrue)
	report.WeightedAvg.Support = len(yTrue)

	return report
}

// String renders the report as a fixed-width table.
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%14s %9s %9s %9s %9s\n", "", "precision", "recall", "f1-score", "support")
	for _, c := range r.Classes {
		fmt.Fprintf(&b, "%14s %9.3f %9.3f %9.3f %9d\n", c.Label, c.Precision, c.Recall, c.F1, c.Support)
	}
	fmt.Fprintf(&b, "%14s %9s %9s %9.3f %9d\n", "accuracy", "", "", r.Accuracy, r.MacroAvg.Support)
	for _, c := range []ClassMetrics{r.MacroAvg, r.WeightedAvg} {
		fmt.Fprintf(&b, "%14s %9.3f %9.3f %9.3f %9d\n", c.Label, c.Precision, c.Recall, c.F1, c.Support)
	}
	return b.String()
}

// ROCAUC is the probability that a random positive scores above a random
// negative, ties counting half (the Mann-Whitney U statistic).
func ROCAUC(yTrue []int, scores []float64) (float64, error) {
	if len(yTrue) != len(scores) {
		return 0, fmt.Errorf("got %d labels and %d scores", len(yTrue), len(scores))
	}

	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	// average ranks over ties, 1-based
	ranks := make([]float64, len(scores))
	for start := 0; start < len(idx); {
		end := start + 1
		for end < len(idx) && scores[idx[end]] == scores[idx[start]] {
			end++
		}
		avg := float64(start+end+1) / 2
		for k := start; k < end; k++ {
			ranks[idx[k]] = avg
		}
		start = end
	}

	var nPos, nNeg int
	rankSum := 0.0
	for i, label := range yTrue {
		if label == 1 {
			nPos++
			rankSum += ranks[i]
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0, ErrSingleClass
	}

	u := rankSum - float64(nPos*(nPos+1))/2
	return u / float64(nPos*nNeg), nil
}

// ThresholdResult is one point of the threshold sweep.
type ThresholdResult struct {
	Threshold float64 `json:"threshold"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	ConfusionMatrix
}

// DefaultThresholds is 0.10, 0.20, ..., 0.60.
func DefaultThresholds() []float64 {
	out := make([]float64, 6)
	for i := range out {
		out[i] = math.Round((0.1+0.1*float64(i))*100) / 100
	}
	return out
}

// SweepThresholds evaluates each threshold against the held-out labels.
func SweepThresholds(yTrue []int, scores []float64, thresholds []float64) []ThresholdResult {
	results := make([]ThresholdResult, 0, len(thresholds))
	for _, th := range thresholds {
		cm := Confusion(yTrue, Predict(scores, th))
		results = append(results, ThresholdResult{
			Threshold:       th,
			Precision:       cm.Precision(),
			Recall:          cm.Recall(),
			F1:              cm.F1(),
			ConfusionMatrix: cm,
		})
	}
	return results
}

// SelectThreshold returns the sweep point with the highest F-beta. Ties keep
// the earliest point, i.e. the lowest threshold of an ascending grid.
func SelectThreshold(results []ThresholdResult, beta float64) (ThresholdResult, error) {
	if len(results) == 0 {
		return ThresholdResult{}, fmt.Errorf("no thresholds to select from")
	}
	best := results[0]
	bestScore := FBeta(best.Precision, best.Recall, beta)
	for _, r := range results[1:] {
		if score := FBeta(r.Precision, r.Recall, beta); score > bestScore {
			best, bestScore = r, score
		}
	}
	return best, nil
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
