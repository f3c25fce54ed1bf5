package storage

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	KindMemory = "memory"
	KindSQLite = "sqlite"
)

var ErrUnsupportedStore = errors.New("unsupported store backend")

// Kinds lists the backends NewStore accepts, whether or not this build can open them.
func Kinds() []string { return []string{KindMemory, KindSQLite} }

// NewStore opens the backend named by kind. An empty kind resolves through
// DefaultStoreKind, so sqlite-tagged builds persist unless told otherwise.
func NewStore(kind, sqlitePath string) (Store, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		kind = DefaultStoreKind()
	}
	switch kind {
	case KindMemory:
		return NewMemoryStore(), nil
	case KindSQLite:
		if strings.TrimSpace(sqlitePath) == "" {
			return nil, errors.New("sqlite store needs a database path")
		}
		return newSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("%w %q (supported: %s)", ErrUnsupportedStore, kind, strings.Join(Kinds(), ", "))
	}
}

// CloseIfSupported releases stores that hold a database handle.
func CloseIfSupported(store Store) error {
	if closer, ok := store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
