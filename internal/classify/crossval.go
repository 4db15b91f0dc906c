package classify

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Fold is one train/test split of row indices.
type Fold struct {
	Train []int
	Test  []int
}

// CrossValidationError reports a fold that cannot be trained or evaluated.
type CrossValidationError struct {
	Fold   int
	Reason string
}

func (e *CrossValidationError) Error() string {
	if e.Fold == 0 {
		return "cross-validation: " + e.Reason
	}
	return fmt.Sprintf("cross-validation fold %d: %s", e.Fold, e.Reason)
}

// HalfPartition splits the sorted unique chunks in two halves and returns two
// folds: the first holds out the first half, the second holds out the rest.
// Row indices keep their original order within each fold.
func HalfPartition(chunks []int) ([]Fold, error) {
	unique := distinctSorted(chunks)
	if len(unique) < 2 {
		return nil, &CrossValidationError{Reason: fmt.Sprintf("need at least two chunks, have %d", len(unique))}
	}
	half := len(unique) / 2
	firstHalf := make(map[int]bool, half)
	for _, c := range unique[:half] {
		firstHalf[c] = true
	}
	folds := make([]Fold, 2)
	for row, c := range chunks {
		if firstHalf[c] {
			folds[0].Test = append(folds[0].Test, row)
			folds[1].Train = append(folds[1].Train, row)
		} else {
			folds[0].Train = append(folds[0].Train, row)
			folds[1].Test = append(folds[1].Test, row)
		}
	}
	for i, f := range folds {
		if len(f.Train) == 0 || len(f.Test) == 0 {
			return nil, &CrossValidationError{Fold: i + 1, Reason: "empty split"}
		}
	}
	return folds, nil
}

// CrossValidate trains clf on every fold and returns the held-out targets
// and predictions concatenated in fold order.
func CrossValidate(clf Classifier, x [][]float64, y []int, chunks []int) ([]int, []int, error) {
	folds, err := HalfPartition(chunks)
	if err != nil {
		return nil, nil, err
	}
	var targets, predictions []int
	for i, fold := range folds {
		trainX, trainY := pickRows(x, fold.Train), pickInts(y, fold.Train)
		if len(distinctSorted(trainY)) < 2 {
			return nil, nil, &CrossValidationError{Fold: i + 1, Reason: "training split has fewer than two classes"}
		}
		model, err := clf.Fit(trainX, trainY)
		if err != nil {
			return nil, nil, &CrossValidationError{Fold: i + 1, Reason: err.Error()}
		}
		for _, row := range fold.Test {
			targets = append(targets, y[row])
			predictions = append(predictions, model.Predict(x[row]))
		}
	}
	return targets, predictions, nil
}

// CrossValidateRegression returns the mean held-out RMSE over the folds.
func CrossValidateRegression(reg Regressor, x [][]float64, y []float64, chunks []int) (float64, error) {
	folds, err := HalfPartition(chunks)
	if err != nil {
		return 0, err
	}
	scores := make([]float64, len(folds))
	for i, fold := range folds {
		model, err := reg.Fit(pickRows(x, fold.Train), pickFloats(y, fold.Train))
		if err != nil {
			return 0, &CrossValidationError{Fold: i + 1, Reason: err.Error()}
		}
		truth := pickFloats(y, fold.Test)
		pred := make([]float64, len(fold.Test))
		for j, row := range fold.Test {
			pred[j] = model.Predict(x[row])
		}
		scores[i] = RMSE(truth, pred)
	}
	return stat.Mean(scores, nil), nil
}

func pickRows(x [][]float64, rows []int) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = x[r]
	}
	return out
}

func pickInts(v []int, rows []int) []int {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = v[r]
	}
	return out
}

func pickFloats(v []float64, rows []int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = v[r]
	}
	return out
}
