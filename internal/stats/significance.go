package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// MeanSE returns the mean and the standard error computed from the
// population standard deviation.
func MeanSE(x []float64) (mean, se float64) {
	n := float64(len(x))
	if n == 0 {
		return math.NaN(), math.NaN()
	}
	mean = stat.Mean(x, nil)
	if n < 2 {
		return mean, 0
	}
	variance := stat.Variance(x, nil) * (n - 1) / n
	return mean, math.Sqrt(variance) / math.Sqrt(n)
}

// TTestGreater is the one-sample t-test of mean(x) > mu. Zero spread yields
// an infinite statistic with p 0 or 1, or NaN when the mean equals mu.
func TTestGreater(x []float64, mu float64) (t, p float64) {
	n := len(x)
	if n < 2 {
		return math.NaN(), math.NaN()
	}
	mean, sd := stat.MeanStdDev(x, nil)
	diff := mean - mu
	se := sd / math.Sqrt(float64(n))
	if se == 0 {
		switch {
		case diff > 0:
			return math.Inf(1), 0
		case diff < 0:
			return math.Inf(-1), 1
		default:
			return math.NaN(), math.NaN()
		}
	}
	t = diff / se
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
	return t, dist.Survival(t)
}

// WilcoxonSignedRank tests whether the differences d are symmetric about
// zero. Zero differences are dropped; ties get average ranks and the
// normal approximation carries the tie correction. The statistic is the
// smaller of the positive and negative rank sums; p is two-sided.
func WilcoxonSignedRank(d []float64) (statistic, p float64) {
	var nonzero []float64
	for _, v := range d {
		if v != 0 && !math.IsNaN(v) {
			nonzero = append(nonzero, v)
		}
	}
	n := float64(len(nonzero))
	if n == 0 {
		return math.NaN(), math.NaN()
	}

	order := make([]int, len(nonzero))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return math.Abs(nonzero[order[a]]) < math.Abs(nonzero[order[b]])
	})

	ranks := make([]float64, len(nonzero))
	var tieTerm float64
	for start := 0; start < len(order); {
		end := start + 1
		for end < len(order) && math.Abs(nonzero[order[end]]) == math.Abs(nonzero[order[start]]) {
			end++
		}
		avg := float64(start+end+1) / 2
		for k := start; k < end; k++ {
			ranks[order[k]] = avg
		}
		t := float64(end - start)
		tieTerm += t * (t*t - 1)
		start = end
	}

	var plus, minus float64
	for i, v := range nonzero {
		if v > 0 {
			plus += ranks[i]
		} else {
			minus += ranks[i]
		}
	}
	statistic = math.Min(plus, minus)
	mn := n * (n + 1) / 4
	se := math.Sqrt((n*(n+1)*(2*n+1) - 0.5*tieTerm) / 24)
	if se == 0 {
		return statistic, math.NaN()
	}
	z := (statistic - mn) / se
	return statistic, 2 * distuv.UnitNormal.Survival(math.Abs(z))
}

// Stars grades a result above baseline: * p<0.05, ** p<0.005, *** p<0.0005.
func Stars(mean, baseline, p float64) string {
	if !(mean > baseline) || math.IsNaN(p) {
		return ""
	}
	switch {
	case p < 0.0005:
		return "***"
	case p < 0.005:
		return "**"
	case p < 0.05:
		return "*"
	default:
		return ""
	}
}
