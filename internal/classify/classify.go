// Package classify implements the learners and the chunk-wise cross-validation
// used to decode stimulus properties from masked voxel patterns.
package classify

import (
	"errors"
	"sort"
)

var ErrSingleClass = errors.New("training data has fewer than two classes")

type Classifier interface {
	Name() string
	Fit(x [][]float64, y []int) (Predictor, error)
}

type Predictor interface {
	Predict(x []float64) int
}

type Regressor interface {
	Name() string
	Fit(x [][]float64, y []float64) (RegressionPredictor, error)
}

type RegressionPredictor interface {
	Predict(x []float64) float64
}

// Majority predicts the most frequent training label, the smallest label on
// ties. It is the chance-level reference learner.
type Majority struct{}

func (Majority) Name() string { return "majority" }

func (Majority) Fit(_ [][]float64, y []int) (Predictor, error) {
	if len(y) == 0 {
		return nil, ErrSingleClass
	}
	counts := make(map[int]int)
	for _, label := range y {
		counts[label]++
	}
	best, bestCount := 0, -1
	for _, label := range distinctSorted(y) {
		if counts[label] > bestCount {
			best, bestCount = label, counts[label]
		}
	}
	return constantPredictor(best), nil
}

type constantPredictor int

func (p constantPredictor) Predict(_ []float64) int { return int(p) }

func distinctSorted(y []int) []int {
	seen := make(map[int]struct{}, len(y))
	var out []int
	for _, v := range y {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}
