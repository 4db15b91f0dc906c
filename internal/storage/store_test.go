package storage

import (
	"context"
	"reflect"
	"testing"
	"time"

	"audimg/internal/model"
	"audimg/internal/study"
)

func samplePartial(subject study.Subject, task study.Task) model.PartialResult {
	tree := model.ResultTree{}
	tree.Set(1030, study.Left, study.Heard, model.CellResult{
		Result: model.Pair{Targets: []int{0, 1, 0, 1}, Predictions: []int{0, 1, 1, 1}},
		Null:   []model.Pair{{Targets: []int{1, 0, 0, 1}, Predictions: []int{0, 0, 0, 0}}},
	})
	tree.Set(1035, study.Right, study.Imagined, model.CellResult{
		Result: model.Pair{Targets: []int{2}, Predictions: []int{2}},
	})
	return model.PartialResult{
		VersionedRecord: CurrentVersion(),
		RunID:           "4f0e1c36-8d2b-4b7e-9a7f-0d5c1b2a3e4f",
		Subject:         subject,
		Task:            task,
		CreatedAtUTC:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Seed:            7,
		NullRepetitions: 1,
		Tree:            tree,
	}
}

// exerciseStore checks the contract every backend shares.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	if _, ok, err := store.GetPartial(ctx, "sid001401", study.TaskTimbre); err != nil || ok {
		t.Fatalf("expected a miss, got ok=%v err=%v", ok, err)
	}

	first := samplePartial("sid001401", study.TaskTimbre)
	if err := store.SavePartial(ctx, first); err != nil {
		t.Fatalf("save: %v", err)
	}
	second := samplePartial("sid000388", study.TaskPitchClass)
	if err := store.SavePartial(ctx, second); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := store.GetPartial(ctx, "sid001401", study.TaskTimbre)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got, first) {
		t.Fatalf("round trip changed the record:\n got %+v\nwant %+v", got, first)
	}

	first.Seed = 8
	if err := store.SavePartial(ctx, first); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _, err = store.GetPartial(ctx, "sid001401", study.TaskTimbre)
	if err != nil || got.Seed != 8 {
		t.Fatalf("expected the overwritten record, got seed %d err %v", got.Seed, err)
	}

	keys, err := store.ListPartials(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"sid000388_pch-class_res_part", "sid001401_timbre_res_part"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("unexpected keys %v", keys)
	}
}
