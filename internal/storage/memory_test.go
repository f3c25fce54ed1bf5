package storage

import (
	"context"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	exerciseStore(t, store)
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	if err := store.SaveRun(context.Background(), sampleRun("r", "2026-01-01T00:00:00Z")); err == nil {
		t.Fatal("expected error before init")
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	matrix := sampleMismatch("run-1")
	if err := store.SaveMismatch(ctx, matrix); err != nil {
		t.Fatalf("save mismatch: %v", err)
	}
	matrix.Cells[0].Correlations[0] = 99

	loaded, _, err := store.GetMismatch(ctx, "run-1")
	if err != nil {
		t.Fatalf("get mismatch: %v", err)
	}
	if loaded.Cells[0].Correlations[0] == 99 {
		t.Fatal("store shares correlation slices with the caller")
	}
	loaded.Cells[0].Correlations[0] = 77
	again, _, _ := store.GetMismatch(ctx, "run-1")
	if again.Cells[0].Correlations[0] == 77 {
		t.Fatal("store shares correlation slices with readers")
	}
}
