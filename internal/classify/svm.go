package classify

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// LinearSVM is a soft-margin linear SVM trained by dual coordinate descent on
// the hinge loss, with a constant bias feature. Multi-class problems are
// solved one-vs-one with majority voting; vote ties go to the smaller label.
//
// C <= 0 selects C = 1/mean(|x|)^2 from the training data.
type LinearSVM struct {
	C       float64
	MaxIter int
	Tol     float64
}

func (LinearSVM) Name() string { return "linear_csvm" }

func (s LinearSVM) Fit(x [][]float64, y []int) (Predictor, error) {
	classes := distinctSorted(y)
	if len(classes) < 2 {
		return nil, ErrSingleClass
	}
	c := s.C
	if c <= 0 {
		c = scaledC(x)
	}
	maxIter := s.MaxIter
	if maxIter <= 0 {
		maxIter = 1000
	}
	tol := s.Tol
	if tol <= 0 {
		tol = 1e-3
	}

	model := &ovoModel{classes: classes}
	for a := 0; a < len(classes); a++ {
		for b := a + 1; b < len(classes); b++ {
			var xs [][]float64
			var sign []float64
			for i, label := range y {
				switch label {
				case classes[a]:
					xs = append(xs, x[i])
					sign = append(sign, 1)
				case classes[b]:
					xs = append(xs, x[i])
					sign = append(sign, -1)
				}
			}
			model.pairs = append(model.pairs, pairModel{
				a: a, b: b,
				hyperplane: trainBinary(xs, sign, c, maxIter, tol),
			})
		}
	}
	return model, nil
}

func scaledC(x [][]float64) float64 {
	if len(x) == 0 {
		return 1
	}
	var mean float64
	for _, row := range x {
		mean += floats.Norm(row, 2)
	}
	mean /= float64(len(x))
	if mean == 0 {
		return 1
	}
	return 1 / (mean * mean)
}

// hyperplane stores the feature weights followed by the bias weight.
type hyperplane []float64

func (h hyperplane) decision(x []float64) float64 {
	d := len(h) - 1
	return floats.Dot(h[:d], x) + h[d]
}

func trainBinary(x [][]float64, sign []float64, c float64, maxIter int, tol float64) hyperplane {
	if len(x) == 0 {
		return nil
	}
	d := len(x[0])
	w := make(hyperplane, d+1)
	alpha := make([]float64, len(x))
	qd := make([]float64, len(x))
	for i, row := range x {
		qd[i] = floats.Dot(row, row) + 1
	}

	for iter := 0; iter < maxIter; iter++ {
		maxPG, minPG := math.Inf(-1), math.Inf(1)
		for i, row := range x {
			g := sign[i]*w.decision(row) - 1
			pg := g
			switch {
			case alpha[i] == 0 && g > 0:
				pg = 0
			case alpha[i] == c && g < 0:
				pg = 0
			}
			maxPG = math.Max(maxPG, pg)
			minPG = math.Min(minPG, pg)
			if pg == 0 {
				continue
			}
			old := alpha[i]
			alpha[i] = math.Min(math.Max(old-g/qd[i], 0), c)
			delta := (alpha[i] - old) * sign[i]
			floats.AddScaled(w[:d], delta, row)
			w[d] += delta
		}
		if maxPG-minPG < tol {
			break
		}
	}
	return w
}

type pairModel struct {
	a, b       int
	hyperplane hyperplane
}

type ovoModel struct {
	classes []int
	pairs   []pairModel
}

func (m *ovoModel) Predict(x []float64) int {
	votes := make([]int, len(m.classes))
	for _, p := range m.pairs {
		if p.hyperplane.decision(x) > 0 {
			votes[p.a]++
		} else {
			votes[p.b]++
		}
	}
	best := 0
	for i := 1; i < len(votes); i++ {
		if votes[i] > votes[best] {
			best = i
		}
	}
	return m.classes[best]
}
