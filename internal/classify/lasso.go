package classify

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var ErrNoTrainingRows = errors.New("no training rows")

// Lasso fits a linear model with an L1 penalty by cyclic coordinate descent,
// minimizing (1/2n)|y - Xw - b|^2 + Alpha*|w|_1 with an unpenalized intercept.
type Lasso struct {
	Alpha   float64
	MaxIter int
	Tol     float64
}

func (Lasso) Name() string { return "lasso" }

func (l Lasso) Fit(x [][]float64, y []float64) (RegressionPredictor, error) {
	n := len(x)
	if n == 0 || len(y) != n {
		return nil, ErrNoTrainingRows
	}
	maxIter := l.MaxIter
	if maxIter <= 0 {
		maxIter = 1000
	}
	tol := l.Tol
	if tol <= 0 {
		tol = 1e-4
	}
	d := len(x[0])

	xMean := make([]float64, d)
	col := make([]float64, n)
	xc := make([][]float64, d)
	norms := make([]float64, d)
	for j := 0; j < d; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		xMean[j] = stat.Mean(col, nil)
		xc[j] = make([]float64, n)
		for i := range col {
			xc[j][i] = col[i] - xMean[j]
		}
		norms[j] = floats.Dot(xc[j], xc[j])
	}
	yMean := stat.Mean(y, nil)
	resid := make([]float64, n)
	for i := range y {
		resid[i] = y[i] - yMean
	}

	w := make([]float64, d)
	threshold := float64(n) * l.Alpha
	for iter := 0; iter < maxIter; iter++ {
		var maxDelta, maxW float64
		for j := 0; j < d; j++ {
			if norms[j] == 0 {
				continue
			}
			rho := floats.Dot(xc[j], resid) + norms[j]*w[j]
			next := softThreshold(rho, threshold) / norms[j]
			if delta := next - w[j]; delta != 0 {
				floats.AddScaled(resid, -delta, xc[j])
				maxDelta = math.Max(maxDelta, math.Abs(delta))
			}
			w[j] = next
			maxW = math.Max(maxW, math.Abs(next))
		}
		if maxW == 0 || maxDelta/maxW < tol {
			break
		}
	}
	return linearModel{weights: w, intercept: yMean - floats.Dot(xMean, w)}, nil
}

func softThreshold(v, t float64) float64 {
	switch {
	case v > t:
		return v - t
	case v < -t:
		return v + t
	default:
		return 0
	}
}

type linearModel struct {
	weights   []float64
	intercept float64
}

func (m linearModel) Predict(x []float64) float64 {
	return floats.Dot(m.weights, x) + m.intercept
}

// RMSE is the root mean squared difference of two equal-length series.
func RMSE(truth, pred []float64) float64 {
	if len(truth) == 0 {
		return math.NaN()
	}
	return floats.Distance(truth, pred, 2) / math.Sqrt(float64(len(truth)))
}
