package notifier

import (
	"context"
	"log/slog"

	"github.com/amishk599/boardwatch/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes new job matches to the given logger as structured messages.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each job via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the digest summary, then each record with company, title,
// location, URL and posted date. Returns nil (log output does not fail).
func (n *LogNotifier) Notify(ctx context.Context, records []model.JobRecord) error {
	if len(records) == 0 {
		return nil
	}
	if d := DigestFrom(ctx); d.Summary != "" {
		n.logger.Info(Subject(d, len(records)), "summary", d.Summary)
	}
	for _, r := range records {
		args := []any{"company", r.Company, "title", r.Title, "location", r.Location, "url", r.ApplyTarget()}
		if r.PostedAt != "" {
			args = append(args, "posted_at", r.PostedAt)
		}
		if r.Salary != "" {
			args = append(args, "salary", r.Salary)
		}
		n.logger.Info("new job", args...)
	}
	return nil
}
