package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"audimg/internal/study"
)

func TestFileStoreContract(t *testing.T) {
	exerciseStore(t, NewFileStore(filepath.Join(t.TempDir(), "partials")))
}

func TestFileStoreIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	keys, err := store.ListPartials(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected no keys, got %v", keys)
	}
}

func TestFileStoreCorruptRecord(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	path := filepath.Join(dir, "sid001401_timbre_res_part"+partialExt)
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, ok, err := store.GetPartial(context.Background(), "sid001401", study.TaskTimbre)
	if err == nil || ok {
		t.Fatalf("expected a decode error, got ok=%v err=%v", ok, err)
	}
	if errors.Is(err, os.ErrNotExist) {
		t.Fatal("corrupt record reported as missing")
	}
}

func TestFileStoreRequiresDirectory(t *testing.T) {
	if err := NewFileStore("").Init(context.Background()); err == nil {
		t.Fatal("expected an error for an empty directory")
	}
}
