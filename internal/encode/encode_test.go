package encode

import (
	"errors"
	"math"
	"testing"

	"audimg/internal/dataset"
	"audimg/internal/study"
)

func matrix(t *testing.T, targets, chunks []int) dataset.SampleMatrix {
	t.Helper()
	samples := make([][]float64, len(targets))
	for i := range samples {
		samples[i] = []float64{float64(i)}
	}
	m, err := dataset.New(samples, targets, chunks)
	if err != nil {
		t.Fatalf("new matrix: %v", err)
	}
	return m
}

func TestEncodeDropsNonStimulusRows(t *testing.T) {
	targets := []int{1, 2, 99, 100, 152, 999, 1000, 1203}
	m := matrix(t, targets, []int{1, 1, 1, 1, 2, 2, 2, 2})
	for _, task := range study.Tasks() {
		out, err := Encode(m, 52, task)
		if err != nil {
			t.Fatalf("%s: encode: %v", task, err)
		}
		if out.Rows() > m.Rows() {
			t.Fatalf("%s: encode grew the matrix", task)
		}
		for _, origin := range out.Origin {
			if !IsStimulus(targets[origin]) {
				t.Fatalf("%s: retained non-stimulus label %d", task, targets[origin])
			}
		}
	}
}

func TestEncodeEmptyWhenNoStimulus(t *testing.T) {
	out, err := Encode(matrix(t, []int{1, 2, 1}, []int{1, 2, 3}), 52, study.TaskPitchClass)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if out.Rows() != 0 {
		t.Fatalf("expected empty matrix, got %d rows", out.Rows())
	}
}

func TestPitchClassIsOctaveInvariant(t *testing.T) {
	for _, tonic := range []int{52, 53} {
		for label := 152; label < 400; label++ {
			a, b := PitchClass(label, tonic), PitchClass(label+100, tonic)
			if a != b {
				t.Fatalf("tonic %d: labels %d and %d map to %d and %d", tonic, label, label+100, a, b)
			}
			if a < 0 || a > 11 {
				t.Fatalf("class %d out of range", a)
			}
		}
	}
	if got := PitchClass(152, 52); got != 0 {
		t.Fatalf("tonic should map to class 0, got %d", got)
	}
}

func TestHiLoSkipsAmbiguousBand(t *testing.T) {
	var targets, chunks []int
	for v := 100; v < 200; v++ {
		targets = append(targets, v)
		chunks = append(chunks, 1)
	}
	m := matrix(t, targets, chunks)
	out, err := Encode(m, 52, study.TaskPitchHiLo)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for i, target := range out.Targets {
		raw := targets[out.Origin[i]] % 100
		if raw > 66 && raw <= 75 {
			t.Fatalf("emitted ambiguous value %d", raw)
		}
		if target != 1 && target != 2 {
			t.Fatalf("unexpected hi/lo class %d", target)
		}
		if (raw <= 66) != (target == 1) {
			t.Fatalf("raw %d encoded as %d", raw, target)
		}
	}
	if out.Rows() != 100-9 {
		t.Fatalf("expected 91 rows, got %d", out.Rows())
	}
}

func TestTimbreFollowsChunkParity(t *testing.T) {
	m := matrix(t, []int{152, 160, 1, 170, 180}, []int{1, 2, 2, 5, 6})
	out, err := Encode(m, 52, study.TaskTimbre)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []int{1, 0, 1, 0}
	for i, target := range out.Targets {
		if target != want[i] {
			t.Fatalf("row %d: want %d got %d", i, want[i], target)
		}
	}
}

func TestEncodeRejectsUnknownTask(t *testing.T) {
	if _, err := Encode(matrix(t, []int{152}, []int{1}), 52, "melody"); !errors.Is(err, study.ErrUnknownTask) {
		t.Fatalf("expected unknown task, got %v", err)
	}
}

func TestHelixEmbeddingIsUnitCircle(t *testing.T) {
	labels := []int{1, 152, 154, 156, 157, 159, 161, 163, 252, 459, 552}
	h, err := Helix(labels, 52)
	if err != nil {
		t.Fatalf("helix: %v", err)
	}
	if len(h.Index) != 9 || len(h.Embedding) != 9 {
		t.Fatalf("expected 9 retained rows, got %d", len(h.Index))
	}
	for i, row := range h.Embedding {
		if r := row[0]*row[0] + row[1]*row[1]; math.Abs(r-1) > 1e-12 {
			t.Fatalf("row %d off the unit circle: %v", i, r)
		}
	}
	if h.Index[0] != 1 {
		t.Fatalf("index must point at the original rows, got %v", h.Index)
	}
	// the tonic sits at fifths position 0
	if math.Abs(h.Embedding[0][0]-1) > 1e-12 || math.Abs(h.Embedding[0][1]) > 1e-12 {
		t.Fatalf("unexpected tonic embedding: %v", h.Embedding[0])
	}
	// the fifth (7 semitones) sits a quarter turn away
	if math.Abs(h.Embedding[4][1]-1) > 1e-12 {
		t.Fatalf("unexpected fifth embedding: %v", h.Embedding[4])
	}
}

func TestHelixRejectsChromaticClass(t *testing.T) {
	if _, err := Helix([]int{153}, 52); !errors.Is(err, ErrUnmappedPitchClass) {
		t.Fatalf("expected unmapped pitch class, got %v", err)
	}
}
