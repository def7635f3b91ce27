package model

import (
	"context"
	"time"
)

// JobRecord is one posting extracted from a job board page.
// Records are values: nothing mutates a record after extraction.
type JobRecord struct {
	Fingerprint string    `json:"fingerprint"`
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Location    string    `json:"location"`
	URL         string    `json:"url"`
	Salary      string    `json:"salary,omitempty"`
	Description string    `json:"description,omitempty"`
	JobType     string    `json:"job_type,omitempty"`
	PostedAt    string    `json:"posted_at,omitempty"` // as reported by the board, e.g. "3 days ago"
	ExtractedAt time.Time `json:"extracted_at"`
	Source      string    `json:"source"`

	ApplicationType   string `json:"application_type,omitempty"` // "email" or "url"
	ApplicationTarget string `json:"application_target,omitempty"`
}

// ApplyTarget returns the address a user should follow to apply.
func (r JobRecord) ApplyTarget() string {
	if r.ApplicationTarget != "" {
		return r.ApplicationTarget
	}
	return r.URL
}

// JobStore is the durable set of records already seen, keyed by fingerprint.
type JobStore interface {
	Contains(fingerprint string) bool
	// Append stores records not yet present and returns the ones it added,
	// in input order. On error the returned records are those the store
	// claimed before failing.
	Append(ctx context.Context, records []JobRecord) ([]JobRecord, error)
	Records() []JobRecord
	Len() int
}

// Notifier sends notifications for newly discovered records.
type Notifier interface {
	Notify(ctx context.Context, records []JobRecord) error
}

// Page is a navigated, rendered board page.
type Page interface {
	URL() string
	HTML() string
	Screenshot(ctx context.Context, path string) error
	Close() error
}

// Browser navigates to a URL and returns the rendered page.
type Browser interface {
	Fetch(ctx context.Context, url string) (Page, error)
}
