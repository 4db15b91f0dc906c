package storage

import (
	"context"
	"os"
	"testing"
)

func TestPostgresStoreContract(t *testing.T) {
	dsn := os.Getenv("AUDIMG_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AUDIMG_TEST_POSTGRES_DSN not set")
	}
	store := NewPostgresStore(dsn)
	defer func() { _ = store.Close() }()
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := store.db.ExecContext(context.Background(), `DELETE FROM partials`); err != nil {
		t.Fatalf("reset table: %v", err)
	}
	exerciseStore(t, store)
}

func TestPostgresStoreRequiresDSN(t *testing.T) {
	if err := NewPostgresStore("").Init(context.Background()); err == nil {
		t.Fatal("expected an error without a data source")
	}
}
