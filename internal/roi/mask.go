// Package roi restricts full-brain sample matrices to atlas regions and
// normalizes the masked time courses per run.
package roi

import (
	"fmt"
	"math"
	"os"
	"sync"

	"gonum.org/v1/gonum/stat"

	"audimg/internal/dataset"
)

// Parcellation assigns one atlas label to each voxel column of a subject's
// sample matrix.
type Parcellation []int

// LoadParcellation reads labels separated by whitespace or commas.
func LoadParcellation(path string) (Parcellation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	labels, err := dataset.ParseLabels(f)
	if err != nil {
		return nil, fmt.Errorf("read parcellation %s: %w", path, err)
	}
	return Parcellation(labels), nil
}

// Voxels returns the columns whose label is in labels, in column order.
func (p Parcellation) Voxels(labels []int) []int {
	want := make(map[int]struct{}, len(labels))
	for _, l := range labels {
		want[l] = struct{}{}
	}
	var cols []int
	for col, label := range p {
		if _, ok := want[label]; ok {
			cols = append(cols, col)
		}
	}
	return cols
}

// NoVoxelsError reports a region set that resolves to no voxels.
type NoVoxelsError struct {
	Subject string
	Labels  []int
}

func (e *NoVoxelsError) Error() string {
	return fmt.Sprintf("no voxels for labels %v in subject %s", e.Labels, e.Subject)
}

// baselineTargets are the rest-trial labels used to estimate z-score parameters.
var baselineTargets = map[int]bool{1: true, 2: true}

// Masker resolves region sets against a subject's reference-run parcellation.
type Masker struct {
	subject      string
	parcellation Parcellation
}

func NewMasker(subject string, parcellation Parcellation) *Masker {
	return &Masker{subject: subject, parcellation: parcellation}
}

// Mask selects the voxels of the given atlas labels, then detrends and
// z-scores every chunk. The input matrix is not modified.
func (m *Masker) Mask(samples dataset.SampleMatrix, labels []int) (dataset.SampleMatrix, error) {
	if samples.Columns() != 0 && len(m.parcellation) != samples.Columns() {
		return dataset.SampleMatrix{}, fmt.Errorf("%w: parcellation has %d voxels, samples have %d", dataset.ErrShapeMismatch, len(m.parcellation), samples.Columns())
	}
	cols := m.parcellation.Voxels(labels)
	if len(cols) == 0 {
		return dataset.SampleMatrix{}, &NoVoxelsError{Subject: m.subject, Labels: append([]int(nil), labels...)}
	}
	masked := samples.SelectColumns(cols)
	Normalize(masked)
	return masked, nil
}

// Normalize detrends (order 1) and z-scores each chunk in place. Chunks own
// disjoint rows and are processed concurrently.
func Normalize(m dataset.SampleMatrix) {
	chunks, rows := m.ChunkRows()
	var wg sync.WaitGroup
	wg.Add(len(chunks))
	for _, c := range chunks {
		go func(rows []int) {
			defer wg.Done()
			detrend(m, rows)
			zscore(m, rows)
		}(rows[c])
	}
	wg.Wait()
}

func detrend(m dataset.SampleMatrix, rows []int) {
	if len(rows) < 2 {
		return
	}
	x := make([]float64, len(rows))
	for i := range x {
		x[i] = float64(i)
	}
	y := make([]float64, len(rows))
	for col := 0; col < m.Columns(); col++ {
		for i, r := range rows {
			y[i] = m.Samples[r][col]
		}
		alpha, beta := stat.LinearRegression(x, y, nil, false)
		for i, r := range rows {
			m.Samples[r][col] = y[i] - (alpha + beta*x[i])
		}
	}
}

func zscore(m dataset.SampleMatrix, rows []int) {
	ref := make([]int, 0, len(rows))
	for _, r := range rows {
		if baselineTargets[m.Targets[r]] {
			ref = append(ref, r)
		}
	}
	if len(ref) == 0 {
		ref = rows
	}
	vals := make([]float64, len(ref))
	for col := 0; col < m.Columns(); col++ {
		for i, r := range ref {
			vals[i] = m.Samples[r][col]
		}
		mean, std := popMeanStd(vals)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		for _, r := range rows {
			m.Samples[r][col] = (m.Samples[r][col] - mean) / std
		}
	}
}

func popMeanStd(x []float64) (float64, float64) {
	mean := stat.Mean(x, nil)
	if len(x) < 2 {
		return mean, 0
	}
	variance := stat.Variance(x, nil) * float64(len(x)-1) / float64(len(x))
	return mean, math.Sqrt(variance)
}
