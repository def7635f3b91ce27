package store

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/amishk599/boardwatch/internal/model"
)

// Backend is a durable job store with maintenance operations.
type Backend interface {
	model.JobStore
	LastRun() time.Time
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

var (
	_ Backend = (*JSONStore)(nil)
	_ Backend = (*SQLiteStore)(nil)
)

// Open returns the backend named by kind ("json" or "sqlite") at path.
// The returned closer must be called when the store is no longer used.
func Open(kind, path string) (Backend, io.Closer, error) {
	switch kind {
	case "", "json":
		s, err := OpenJSONStore(path)
		if err != nil {
			return nil, nil, err
		}
		return s, nopCloser{}, nil
	case "sqlite":
		s, err := OpenSQLiteStore(path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown store type %q", kind)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
