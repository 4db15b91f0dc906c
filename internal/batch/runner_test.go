package batch

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"audimg/internal/classify"
	"audimg/internal/dataset"
	"audimg/internal/decode"
	"audimg/internal/roi"
	"audimg/internal/study"
	"audimg/internal/telemetry"
)

func subjectData(t *testing.T) SubjectData {
	t.Helper()
	pitches := []int{152, 154, 156, 159}
	var samples [][]float64
	var targets, chunks []int
	row := 0
	for chunk := 1; chunk <= 8; chunk++ {
		samples = append(samples, []float64{0.1, -0.2, 0.3, 0})
		targets = append(targets, 1)
		chunks = append(chunks, chunk)
		for i := 0; i < 6; i++ {
			label := pitches[row%len(pitches)]
			x := float64(row)
			samples = append(samples, []float64{float64(label % 10), math.Sin(x), math.Cos(x), x})
			targets = append(targets, label)
			chunks = append(chunks, chunk)
			row++
		}
	}
	m, err := dataset.New(samples, targets, chunks)
	if err != nil {
		t.Fatalf("new matrix: %v", err)
	}
	return SubjectData{
		Subject:      "sid001401",
		Samples:      m,
		Parcellation: roi.Parcellation{1030, 1030, 2030, 0},
	}
}

func majorityRunner() *Runner {
	s := study.New(nil)
	d := decode.New(s)
	d.Classifier = classify.Majority{}
	return &Runner{
		Study:           s,
		Decoder:         d,
		Workers:         4,
		Null:            true,
		NullRepetitions: 2,
		Seed:            42,
		Metrics:         telemetry.NewMetrics(),
	}
}

func TestGridCoversRegionsHemispheresConditions(t *testing.T) {
	cells := Grid(study.New(nil))
	if len(cells) != 35*2*2 {
		t.Fatalf("expected 140 cells, got %d", len(cells))
	}
	if cells[0] != (Cell{Region: 1000, Hemisphere: study.Left, Condition: study.Heard}) {
		t.Fatalf("unexpected first cell %+v", cells[0])
	}
}

func TestRunSubjectTaskSkipsEmptyRegions(t *testing.T) {
	tree, err := majorityRunner().RunSubjectTask(context.Background(), subjectData(t), study.TaskTimbre)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if tree.Cells() != 4 {
		t.Fatalf("expected only the 4 cells of region 1030, got %d", tree.Cells())
	}
	for _, h := range study.Hemispheres() {
		for _, c := range study.Conditions() {
			cell, ok := tree.Get(1030, h, c)
			if !ok {
				t.Fatalf("missing cell %s %s", h, c)
			}
			if len(cell.Null) != 2 {
				t.Fatalf("expected 2 null repetitions, got %d", len(cell.Null))
			}
			for _, null := range cell.Null {
				if len(null.Targets) != len(cell.Result.Targets) {
					t.Fatal("null repetition length differs from the real result")
				}
			}
			if len(cell.VoxelRMSE) != 0 {
				t.Fatal("classification cells must not carry voxel scores")
			}
		}
	}
}

func TestRunSubjectTaskIsDeterministicAcrossWorkers(t *testing.T) {
	data := subjectData(t)
	r := majorityRunner()
	first, err := r.RunSubjectTask(context.Background(), data, study.TaskPitchClass)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	r.Workers = 1
	second, err := r.RunSubjectTask(context.Background(), data, study.TaskPitchClass)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("results depend on worker scheduling")
	}
}

func TestRunSubjectTaskStimulusEncoding(t *testing.T) {
	tree, err := majorityRunner().RunSubjectTask(context.Background(), subjectData(t), study.TaskStimulusEncoding)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	cell, ok := tree.Get(1030, study.Left, study.Imagined)
	if !ok {
		t.Fatal("missing stimulus encoding cell")
	}
	if len(cell.VoxelRMSE) != 2 || len(cell.VoxelNullRMSE) != 2 {
		t.Fatalf("expected scores for 2 voxels, got %d/%d", len(cell.VoxelRMSE), len(cell.VoxelNullRMSE))
	}
	if len(cell.Null) != 0 {
		t.Fatal("stimulus encoding must not fill null repetitions")
	}
}

func TestRunSubjectTaskHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := majorityRunner().RunSubjectTask(ctx, subjectData(t), study.TaskTimbre)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunSubjectTaskRejectsUnknownInputs(t *testing.T) {
	data := subjectData(t)
	if _, err := majorityRunner().RunSubjectTask(context.Background(), data, "pitch"); !errors.Is(err, study.ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask, got %v", err)
	}
	data.Subject = "sid000000"
	if _, err := majorityRunner().RunSubjectTask(context.Background(), data, study.TaskTimbre); !errors.Is(err, study.ErrUnknownSubject) {
		t.Fatalf("expected ErrUnknownSubject, got %v", err)
	}
}
