// Package dataset provides the per-subject sample matrix and its loaders.
package dataset

import (
	"errors"
	"fmt"
	"sort"
)

var ErrShapeMismatch = errors.New("sample matrix shape mismatch")

// SampleMatrix holds observations (rows) over voxels (columns), each tagged
// with a raw target label and the chunk (run 1-8) it was acquired in. Origin
// carries the row identity in the matrix the rows were derived from.
type SampleMatrix struct {
	Samples [][]float64 `json:"samples"`
	Targets []int       `json:"targets"`
	Chunks  []int       `json:"chunks"`
	Origin  []int       `json:"origin"`
}

// New builds a matrix with identity row origins.
func New(samples [][]float64, targets, chunks []int) (SampleMatrix, error) {
	m := SampleMatrix{
		Samples: samples,
		Targets: targets,
		Chunks:  chunks,
		Origin:  make([]int, len(samples)),
	}
	for i := range m.Origin {
		m.Origin[i] = i
	}
	if err := m.Validate(); err != nil {
		return SampleMatrix{}, err
	}
	return m, nil
}

func (m SampleMatrix) Validate() error {
	n := len(m.Samples)
	if len(m.Targets) != n || len(m.Chunks) != n || len(m.Origin) != n {
		return fmt.Errorf("%w: %d rows, %d targets, %d chunks, %d origins", ErrShapeMismatch, n, len(m.Targets), len(m.Chunks), len(m.Origin))
	}
	cols := m.Columns()
	for i, row := range m.Samples {
		if len(row) != cols {
			return fmt.Errorf("%w: row %d has %d columns, want %d", ErrShapeMismatch, i, len(row), cols)
		}
	}
	return nil
}

func (m SampleMatrix) Rows() int {
	return len(m.Samples)
}

func (m SampleMatrix) Columns() int {
	if len(m.Samples) == 0 {
		return 0
	}
	return len(m.Samples[0])
}

// Subset copies the given rows, preserving their origin identity.
func (m SampleMatrix) Subset(rows []int) SampleMatrix {
	out := SampleMatrix{
		Samples: make([][]float64, len(rows)),
		Targets: make([]int, len(rows)),
		Chunks:  make([]int, len(rows)),
		Origin:  make([]int, len(rows)),
	}
	for i, r := range rows {
		out.Samples[i] = append([]float64(nil), m.Samples[r]...)
		out.Targets[i] = m.Targets[r]
		out.Chunks[i] = m.Chunks[r]
		out.Origin[i] = m.Origin[r]
	}
	return out
}

// Filter returns the rows for which keep reports true.
func (m SampleMatrix) Filter(keep func(i int) bool) SampleMatrix {
	rows := make([]int, 0, len(m.Samples))
	for i := range m.Samples {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	return m.Subset(rows)
}

// SelectColumns copies the given voxel columns for every row.
func (m SampleMatrix) SelectColumns(cols []int) SampleMatrix {
	out := SampleMatrix{
		Samples: make([][]float64, len(m.Samples)),
		Targets: append([]int(nil), m.Targets...),
		Chunks:  append([]int(nil), m.Chunks...),
		Origin:  append([]int(nil), m.Origin...),
	}
	for i, row := range m.Samples {
		sel := make([]float64, len(cols))
		for j, c := range cols {
			sel[j] = row[c]
		}
		out.Samples[i] = sel
	}
	return out
}

// Column copies one voxel time course.
func (m SampleMatrix) Column(col int) []float64 {
	out := make([]float64, len(m.Samples))
	for i, row := range m.Samples {
		out[i] = row[col]
	}
	return out
}

// UniqueChunks returns the sorted distinct chunk values.
func (m SampleMatrix) UniqueChunks() []int {
	return uniqueInts(m.Chunks)
}

// UniqueTargets returns the sorted distinct target values.
func (m SampleMatrix) UniqueTargets() []int {
	return uniqueInts(m.Targets)
}

// ChunkRows groups row indices by chunk, in ascending chunk order.
func (m SampleMatrix) ChunkRows() ([]int, map[int][]int) {
	byChunk := make(map[int][]int)
	for i, c := range m.Chunks {
		byChunk[c] = append(byChunk[c], i)
	}
	return m.UniqueChunks(), byChunk
}

// Stack concatenates matrices row-wise; every part must share a column count.
func Stack(parts ...SampleMatrix) (SampleMatrix, error) {
	var out SampleMatrix
	cols := -1
	for _, p := range parts {
		if p.Rows() == 0 {
			continue
		}
		if cols >= 0 && p.Columns() != cols {
			return SampleMatrix{}, fmt.Errorf("%w: stacking %d columns onto %d", ErrShapeMismatch, p.Columns(), cols)
		}
		cols = p.Columns()
		out.Samples = append(out.Samples, p.Samples...)
		out.Targets = append(out.Targets, p.Targets...)
		out.Chunks = append(out.Chunks, p.Chunks...)
	}
	out.Origin = make([]int, len(out.Samples))
	for i := range out.Origin {
		out.Origin[i] = i
	}
	return out, nil
}

func uniqueInts(values []int) []int {
	seen := make(map[int]struct{}, len(values))
	out := make([]int, 0)
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
