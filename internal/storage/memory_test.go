package storage

import (
	"context"
	"testing"

	"audimg/internal/study"
)

func TestMemoryStoreContract(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	if err := store.SavePartial(context.Background(), samplePartial("sid001401", study.TaskTimbre)); err == nil {
		t.Fatal("expected an error before init")
	}
}

func TestMemoryStoreDoesNotShareTrees(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	input := samplePartial("sid001401", study.TaskTimbre)
	if err := store.SavePartial(ctx, input); err != nil {
		t.Fatalf("save: %v", err)
	}
	input.Tree.Set(1001, study.Left, study.Heard, input.Tree[1030][study.Left][study.Heard])

	output, _, err := store.GetPartial(ctx, "sid001401", study.TaskTimbre)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, ok := output.Tree.Get(1001, study.Left, study.Heard); ok {
		t.Fatal("stored record changed after the caller mutated its tree")
	}
	if err := store.DeletePartial(ctx, "sid001401", study.TaskTimbre); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.GetPartial(ctx, "sid001401", study.TaskTimbre); ok {
		t.Fatal("expected the record to be deleted")
	}
}
