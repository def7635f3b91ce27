package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/amishk599/boardwatch/internal/model"
)

// Digest is the run-level context a notification is sent under.
type Digest struct {
	Keywords string
	Location string
	Summary  string // optional LLM summary of the new records
}

type digestKey struct{}

// WithDigest attaches d to ctx for notifiers that render a heading or intro.
func WithDigest(ctx context.Context, d Digest) context.Context {
	return context.WithValue(ctx, digestKey{}, d)
}

// DigestFrom returns the digest attached to ctx, if any.
func DigestFrom(ctx context.Context) Digest {
	d, _ := ctx.Value(digestKey{}).(Digest)
	return d
}

// Subject renders the headline used by email and chat notifiers.
func Subject(d Digest, count int) string {
	s := fmt.Sprintf("%d New Job(s) Found", count)
	if d.Keywords != "" {
		s += " - " + d.Keywords
	}
	return s
}

// SendTestMessage sends a dummy job notification to verify the integration works.
func SendTestMessage(ctx context.Context, n model.Notifier) error {
	rec := model.JobRecord{
		Title:       "Test Notification - Integration Verified",
		Company:     "Boardwatch Test",
		Location:    "Everywhere",
		URL:         "https://www.indeed.com/jobs",
		JobType:     "Full-time",
		PostedAt:    "just now",
		ExtractedAt: time.Now(),
		Source:      "test",
	}
	rec.Fingerprint = model.Fingerprint(rec.Title, rec.Company, rec.URL)

	ctx = WithDigest(ctx, Digest{Keywords: "integration test", Summary: "This is a test notification."})
	return n.Notify(ctx, []model.JobRecord{rec})
}
