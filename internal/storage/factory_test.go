package storage

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewStoreMemory(t *testing.T) {
	store, err := NewStore(" Memory ", "")
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
	if err := CloseIfSupported(store); err != nil {
		t.Fatalf("close memory store: %v", err)
	}
}

func TestNewStoreEmptyKindUsesDefault(t *testing.T) {
	store, err := NewStore("", filepath.Join(t.TempDir(), "coherence.db"))
	if err != nil {
		t.Fatalf("new default store: %v", err)
	}
	defer func() {
		_ = CloseIfSupported(store)
	}()
	_, isMemory := store.(*MemoryStore)
	if isMemory != (DefaultStoreKind() == KindMemory) {
		t.Fatalf("empty kind opened %T, default kind is %s", store, DefaultStoreKind())
	}
}

func TestNewStoreSQLiteNeedsPath(t *testing.T) {
	if _, err := NewStore(KindSQLite, " "); err == nil {
		t.Fatal("expected missing path error")
	}
}

func TestNewStoreUnsupported(t *testing.T) {
	_, err := NewStore("postgres", "")
	if !errors.Is(err, ErrUnsupportedStore) {
		t.Fatalf("expected unsupported store error, got %v", err)
	}
	if !strings.Contains(err.Error(), "memory, sqlite") {
		t.Fatalf("error does not name the supported kinds: %v", err)
	}
}
