// Package encode derives task-specific targets from compound stimulus labels.
package encode

import (
	"errors"
	"fmt"
	"math"

	"audimg/internal/dataset"
	"audimg/internal/study"
)

var ErrUnmappedPitchClass = errors.New("pitch class has no circle-of-fifths position")

// IsStimulus reports whether a raw label marks a stimulus trial.
func IsStimulus(label int) bool {
	return label > 99 && label < 1000
}

// Encode keeps stimulus trials and rewrites their targets for the task. The
// result may be empty; callers decide whether that is an error.
func Encode(samples dataset.SampleMatrix, tonic int, task study.Task) (dataset.SampleMatrix, error) {
	out := samples.Filter(func(i int) bool { return IsStimulus(samples.Targets[i]) })

	switch task {
	case study.TaskPitchClass:
		for i, label := range out.Targets {
			out.Targets[i] = PitchClass(label, tonic)
		}
	case study.TaskPitchHiLo:
		reduced := make([]int, len(out.Targets))
		for i, label := range out.Targets {
			reduced[i] = label % 100
		}
		out = out.Filter(func(i int) bool { return reduced[i] <= 66 || reduced[i] > 75 })
		for i, label := range out.Targets {
			if label%100 <= 66 {
				out.Targets[i] = 1
			} else {
				out.Targets[i] = 2
			}
		}
	case study.TaskTimbre:
		for i, chunk := range out.Chunks {
			out.Targets[i] = chunk % 2
		}
	case study.TaskPitchHeight, study.TaskStimulusEncoding:
	default:
		return dataset.SampleMatrix{}, fmt.Errorf("%w: %q", study.ErrUnknownTask, task)
	}
	return out, nil
}

// PitchClass maps a raw label to its pitch class relative to the tonic.
func PitchClass(label, tonic int) int {
	return mod(mod(label-tonic, 100), 12)
}

var fifths = map[int]int{0: 0, 2: 2, 4: 4, 5: -1, 7: 1, 9: 3, 11: 5}

// HelixTargets is the circular pitch embedding of the retained rows.
// Index holds row positions in the matrix passed to Helix.
type HelixTargets struct {
	Embedding [][]float64
	Index     []int
}

// Helix embeds pitch labels in (100, 500) on the circle of fifths as
// (cos(f*pi/2), sin(f*pi/2)).
func Helix(labels []int, tonic int) (HelixTargets, error) {
	var out HelixTargets
	for i, label := range labels {
		if label <= 100 || label >= 500 {
			continue
		}
		pc := mod(label-tonic, 100) % 12
		f, ok := fifths[pc]
		if !ok {
			return HelixTargets{}, fmt.Errorf("%w: label %d class %d", ErrUnmappedPitchClass, label, pc)
		}
		angle := float64(f) * math.Pi / 2
		out.Embedding = append(out.Embedding, []float64{math.Cos(angle), math.Sin(angle)})
		out.Index = append(out.Index, i)
	}
	return out, nil
}

func mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}
