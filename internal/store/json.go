package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/amishk599/boardwatch/internal/model"
)

// Ensure JSONStore implements model.JobStore.
var _ model.JobStore = (*JSONStore)(nil)

const fileVersion = 1

// lockRetryDelay is how often a blocked Append re-polls the file lock.
const lockRetryDelay = 50 * time.Millisecond

// storeFile is the on-disk layout. Array order is insertion order.
type storeFile struct {
	Version int               `json:"version"`
	LastRun *time.Time        `json:"last_run,omitempty"`
	Jobs    []model.JobRecord `json:"jobs"`
}

// JSONStore keeps every seen record in a single JSON file.
//
// Writes go to a temp file in the same directory followed by a rename, so a
// crash mid-write leaves the previous file intact. Append holds an exclusive
// lock on <path>.lock for its whole read-merge-write cycle, so concurrent
// processes sharing one file never drop each other's records.
type JSONStore struct {
	path string
	lock *flock.Flock
	now  func() time.Time

	mu      sync.RWMutex
	records []model.JobRecord
	index   map[string]struct{}
	lastRun time.Time
}

// OpenJSONStore loads the store at path. A missing file yields an empty store.
func OpenJSONStore(path string) (*JSONStore, error) {
	s := &JSONStore{
		path:  path,
		lock:  flock.New(path + ".lock"),
		now:   time.Now,
		index: make(map[string]struct{}),
	}

	f, err := readStoreFile(path)
	if err != nil {
		return nil, &model.StorageError{Path: path, Op: "load", Err: err}
	}
	s.replace(f.Jobs)
	if f.LastRun != nil {
		s.lastRun = *f.LastRun
	}
	return s, nil
}

// Path returns the backing file path.
func (s *JSONStore) Path() string { return s.path }

// Contains reports whether a record with the fingerprint has been stored.
func (s *JSONStore) Contains(fingerprint string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[fingerprint]
	return ok
}

// Records returns a copy of all records in insertion order.
func (s *JSONStore) Records() []model.JobRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.JobRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of stored records.
func (s *JSONStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// LastRun returns the time of the last successful persist, zero if never.
func (s *JSONStore) LastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun
}

// Append adds records whose fingerprints are not yet stored and persists the
// result. It returns the records this call added; a fingerprint that another
// Append (in this process or another one sharing the file) stored first is
// left out. The in-memory state keeps the append even when persisting fails;
// the failure is returned as a *model.StorageError.
func (s *JSONStore) Append(ctx context.Context, records []model.JobRecord) ([]model.JobRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var added []model.JobRecord
	for _, r := range records {
		if _, ok := s.index[r.Fingerprint]; ok {
			continue
		}
		s.index[r.Fingerprint] = struct{}{}
		s.records = append(s.records, r)
		added = append(added, r)
	}

	err := s.withFileLock(ctx, func() error {
		onDisk, err := readStoreFile(s.path)
		if err != nil {
			return &model.StorageError{Path: s.path, Op: "persist", Err: fmt.Errorf("re-read before merge: %w", err)}
		}
		added = withoutStored(added, onDisk.Jobs)

		merged := mergeRecords(onDisk.Jobs, s.records)
		runAt := s.now().UTC()
		if err := writeStoreFile(s.path, storeFile{Version: fileVersion, LastRun: &runAt, Jobs: merged}); err != nil {
			return &model.StorageError{Path: s.path, Op: "persist", Err: err}
		}

		s.replace(merged)
		s.lastRun = runAt
		return nil
	})
	return added, err
}

// withoutStored drops the records whose fingerprint stored already holds.
func withoutStored(records, stored []model.JobRecord) []model.JobRecord {
	if len(records) == 0 || len(stored) == 0 {
		return records
	}
	held := make(map[string]struct{}, len(stored))
	for _, r := range stored {
		held[r.Fingerprint] = struct{}{}
	}
	out := records[:0]
	for _, r := range records {
		if _, ok := held[r.Fingerprint]; !ok {
			out = append(out, r)
		}
	}
	return out
}

// Prune removes records extracted before cutoff and returns how many were removed.
func (s *JSONStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	err := s.withFileLock(ctx, func() error {
		onDisk, err := readStoreFile(s.path)
		if err != nil {
			return &model.StorageError{Path: s.path, Op: "prune", Err: err}
		}

		kept := make([]model.JobRecord, 0, len(onDisk.Jobs))
		for _, r := range onDisk.Jobs {
			if r.ExtractedAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		if removed == 0 {
			s.replace(kept)
			return nil
		}

		if err := writeStoreFile(s.path, storeFile{Version: fileVersion, LastRun: onDisk.LastRun, Jobs: kept}); err != nil {
			return &model.StorageError{Path: s.path, Op: "prune", Err: err}
		}
		s.replace(kept)
		return nil
	})
	return removed, err
}

func (s *JSONStore) withFileLock(ctx context.Context, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return &model.StorageError{Path: s.path, Op: "lock", Err: err}
	}

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return &model.StorageError{Path: s.path, Op: "lock", Err: err}
	}
	if !locked {
		return &model.StorageError{Path: s.path, Op: "lock", Err: errors.New("lock not acquired")}
	}
	defer s.lock.Unlock()

	return fn()
}

// replace swaps in a new record list and rebuilds the index. Caller holds mu.
func (s *JSONStore) replace(records []model.JobRecord) {
	s.records = records
	s.index = make(map[string]struct{}, len(records))
	for _, r := range records {
		s.index[r.Fingerprint] = struct{}{}
	}
}

// mergeRecords returns base followed by every record in extra whose
// fingerprint base does not already hold, preserving both orders.
func mergeRecords(base, extra []model.JobRecord) []model.JobRecord {
	seen := make(map[string]struct{}, len(base)+len(extra))
	merged := make([]model.JobRecord, 0, len(base)+len(extra))
	for _, r := range base {
		if _, ok := seen[r.Fingerprint]; ok {
			continue
		}
		seen[r.Fingerprint] = struct{}{}
		merged = append(merged, r)
	}
	for _, r := range extra {
		if _, ok := seen[r.Fingerprint]; ok {
			continue
		}
		seen[r.Fingerprint] = struct{}{}
		merged = append(merged, r)
	}
	return merged
}

func readStoreFile(path string) (storeFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return storeFile{Version: fileVersion}, nil
	}
	if err != nil {
		return storeFile{}, fmt.Errorf("read: %w", err)
	}

	var f storeFile
	if err := json.Unmarshal(data, &f); err != nil {
		return storeFile{}, fmt.Errorf("decode: %w", err)
	}
	return f, nil
}

func writeStoreFile(path string, f storeFile) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp: %w", err)
	}
	return nil
}
