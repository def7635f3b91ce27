package store

import (
	"context"
	"sync"

	"github.com/amishk599/boardwatch/internal/model"
)

// Ensure DryRunStore implements model.JobStore.
var _ model.JobStore = (*DryRunStore)(nil)

// DryRunStore answers membership from an optional base store but keeps
// appends in memory only, so a dry run dedups against real history without
// writing anything.
type DryRunStore struct {
	base model.JobStore

	mu      sync.RWMutex
	pending []model.JobRecord
	index   map[string]struct{}
}

// NewDryRunStore wraps base, which may be nil for a store that starts empty.
func NewDryRunStore(base model.JobStore) *DryRunStore {
	return &DryRunStore{base: base, index: make(map[string]struct{})}
}

// Contains reports whether the base store or an earlier dry-run append holds
// the fingerprint.
func (s *DryRunStore) Contains(fingerprint string) bool {
	if s.base != nil && s.base.Contains(fingerprint) {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[fingerprint]
	return ok
}

// Append records new fingerprints in memory only and returns them.
func (s *DryRunStore) Append(_ context.Context, records []model.JobRecord) ([]model.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var added []model.JobRecord
	for _, r := range records {
		if _, ok := s.index[r.Fingerprint]; ok {
			continue
		}
		if s.base != nil && s.base.Contains(r.Fingerprint) {
			continue
		}
		s.index[r.Fingerprint] = struct{}{}
		s.pending = append(s.pending, r)
		added = append(added, r)
	}
	return added, nil
}

// Records returns the base records followed by the dry-run appends.
func (s *DryRunStore) Records() []model.JobRecord {
	var out []model.JobRecord
	if s.base != nil {
		out = s.base.Records()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(out, s.pending...)
}

// Len counts base and dry-run records together.
func (s *DryRunStore) Len() int {
	n := 0
	if s.base != nil {
		n = s.base.Len()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return n + len(s.pending)
}
