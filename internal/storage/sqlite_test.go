//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "coherence.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	exerciseStore(t, store)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "coherence.db")

	first := NewSQLiteStore(dbPath)
	if err := first.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := first.SaveLeaderboard(ctx, sampleLeaderboard("run-1")); err != nil {
		t.Fatalf("save leaderboard: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second := NewSQLiteStore(dbPath)
	if err := second.Init(ctx); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() {
		_ = second.Close()
	})
	board, ok, err := second.GetLeaderboard(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get leaderboard after reopen: ok=%v err=%v", ok, err)
	}
	if len(board.Rows) != 2 {
		t.Fatalf("unexpected rows after reopen: %+v", board.Rows)
	}
}

func TestSQLiteStoreRequiresPathAndInit(t *testing.T) {
	if err := NewSQLiteStore("").Init(context.Background()); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, _, err := NewSQLiteStore("x.db").GetRun(context.Background(), "r"); err == nil {
		t.Fatal("expected error before init")
	}
}
