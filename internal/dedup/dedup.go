// Package dedup removes already-seen postings from a batch of candidates.
package dedup

import "github.com/amishk599/boardwatch/internal/model"

// Membership answers whether a fingerprint is already known.
type Membership interface {
	Contains(fingerprint string) bool
}

// Dedupe returns the candidates whose fingerprint is neither in seen nor
// earlier in the same batch. Order is preserved; seen is only read.
func Dedupe(candidates []model.JobRecord, seen Membership) []model.JobRecord {
	batch := make(map[string]struct{}, len(candidates))
	out := make([]model.JobRecord, 0, len(candidates))
	for _, c := range candidates {
		if _, dup := batch[c.Fingerprint]; dup {
			continue
		}
		batch[c.Fingerprint] = struct{}{}
		if seen != nil && seen.Contains(c.Fingerprint) {
			continue
		}
		out = append(out, c)
	}
	return out
}
