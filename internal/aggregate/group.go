package aggregate

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"audimg/internal/model"
	"audimg/internal/stats"
	"audimg/internal/study"
)

type Options struct {
	// Null adds the statistics of the permuted-target repetitions.
	Null bool
}

// CellStatistics summarizes one cell over the subjects that have it. It
// reports false when no subject does.
func CellStatistics(cohort Cohort, task study.Task, r study.Region, h study.Hemisphere, c study.Condition, opts Options) (model.CellStats, bool) {
	out := model.CellStats{Kind: model.ScoreAccuracy}
	if task.IsStimulusEncoding() {
		out.Kind = model.ScoreRMSEImprovement
	}

	targets := make(map[int]struct{})
	var nullScores []float64
	for _, subject := range cohort.Subjects {
		partial, ok := cohort.Partial(subject, task)
		if !ok {
			continue
		}
		cell, ok := partial.Tree.Get(r, h, c)
		if !ok {
			continue
		}
		if task.IsStimulusEncoding() {
			if len(cell.VoxelRMSE) == 0 || len(cell.VoxelNullRMSE) == 0 {
				continue
			}
			out.Scores = append(out.Scores, stat.Mean(cell.VoxelNullRMSE, nil)-stat.Mean(cell.VoxelRMSE, nil))
		} else {
			out.Scores = append(out.Scores, cell.Result.Accuracy())
			for _, target := range cell.Result.Targets {
				targets[target] = struct{}{}
			}
			if opts.Null {
				for _, null := range cell.Null {
					nullScores = append(nullScores, null.Accuracy())
				}
			}
		}
		out.Subjects = append(out.Subjects, subject)
	}
	if len(out.Scores) == 0 {
		return model.CellStats{}, false
	}

	out.UniqueTargets = len(targets)
	if out.Kind == model.ScoreAccuracy && out.UniqueTargets > 0 {
		out.Baseline = 1 / float64(out.UniqueTargets)
	}
	out.Mean, out.SE = stats.MeanSE(out.Scores)

	tStat, tP := stats.TTestGreater(out.Scores, out.Baseline)
	out.TTest = model.TestResult{Statistic: tStat, PValue: tP, Stars: stats.Stars(out.Mean, out.Baseline, tP)}

	diffs := make([]float64, len(out.Scores))
	for i, s := range out.Scores {
		diffs[i] = s - out.Baseline
	}
	wStat, wP := stats.WilcoxonSignedRank(diffs)
	out.Wilcoxon = model.TestResult{Statistic: wStat, PValue: wP, Stars: stats.Stars(out.Mean, out.Baseline, wP)}

	out.NullMean, out.NullSE = math.NaN(), math.NaN()
	if len(nullScores) > 0 {
		out.NullMean, out.NullSE = stats.MeanSE(nullScores)
		out.NullCount = len(nullScores)
	}
	return out, true
}

// GroupStatistics evaluates every cell present in any subject's tree.
func GroupStatistics(cohort Cohort, opts Options) model.GroupTree {
	tree := model.GroupTree{}
	for _, task := range cohort.Tasks {
		for _, key := range cellKeys(cohort, task) {
			if cs, ok := CellStatistics(cohort, task, key.region, key.hemisphere, key.condition, opts); ok {
				tree.Set(task, key.region, key.hemisphere, key.condition, cs)
			}
		}
	}
	return tree
}

type cellKey struct {
	region     study.Region
	hemisphere study.Hemisphere
	condition  study.Condition
}

func cellKeys(cohort Cohort, task study.Task) []cellKey {
	seen := make(map[cellKey]struct{})
	for _, partial := range cohort.Partials[task] {
		for r, byHemi := range partial.Tree {
			for h, byCond := range byHemi {
				for c := range byCond {
					seen[cellKey{region: r, hemisphere: h, condition: c}] = struct{}{}
				}
			}
		}
	}
	keys := make([]cellKey, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.region != b.region {
			return a.region < b.region
		}
		if a.hemisphere != b.hemisphere {
			return a.hemisphere < b.hemisphere
		}
		return a.condition < b.condition
	})
	return keys
}
