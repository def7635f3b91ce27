package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"text/template"
	"time"

	"github.com/amishk599/boardwatch/internal/model"
)

const (
	// DefaultMaxContentChars caps how much page content is sent to the model.
	DefaultMaxContentChars = 12000
	// DefaultExtractRetries is the number of extra attempts after malformed output.
	DefaultExtractRetries = 2

	maxDescriptionRunes = 500
)

// Extractor turns rendered page content into job records with an LLM.
type Extractor struct {
	provider LLMProvider
	tmpl     *template.Template
	maxChars int
	retries  int
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewExtractor creates an extractor. maxChars <= 0 and retries < 0 select the
// defaults; timeout bounds each model call (0 = only the caller's context).
func NewExtractor(provider LLMProvider, tmpl *template.Template, maxChars, retries int, timeout time.Duration, logger *slog.Logger) *Extractor {
	if maxChars <= 0 {
		maxChars = DefaultMaxContentChars
	}
	if retries < 0 {
		retries = DefaultExtractRetries
	}
	return &Extractor{
		provider: provider,
		tmpl:     tmpl,
		maxChars: maxChars,
		retries:  retries,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// Extract asks the model for the postings in content. Malformed output is
// retried with a strict-format prompt up to the configured bound; when every
// attempt fails it returns a *model.ExtractionError and no records.
// baseURL resolves relative posting links.
func (e *Extractor) Extract(ctx context.Context, content, source, baseURL string) ([]model.JobRecord, error) {
	content = truncateRunes(content, e.maxChars)
	attempts := 1 + e.retries

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		prompt, err := e.render(ExtractPromptData{Source: source, Content: content, Strict: attempt > 1})
		if err != nil {
			return nil, &model.ExtractionError{Source: source, Attempts: attempt, Err: err}
		}

		raw, err := e.complete(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("llm complete: %w", err)
			e.logger.Warn("extraction attempt failed", "source", source, "attempt", attempt, "error", err)
			continue
		}

		cands, err := parseCandidates(raw)
		if err != nil {
			lastErr = err
			e.logger.Warn("extraction output unparseable", "source", source, "attempt", attempt, "error", err)
			continue
		}

		records := e.toRecords(cands, source, baseURL)
		e.logger.Debug("extracted postings", "source", source, "attempt", attempt, "count", len(records))
		return records, nil
	}

	return nil, &model.ExtractionError{Source: source, Attempts: attempts, Err: lastErr}
}

func (e *Extractor) render(data ExtractPromptData) (string, error) {
	var buf bytes.Buffer
	if err := e.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

func (e *Extractor) complete(ctx context.Context, prompt string) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return e.provider.Complete(ctx, prompt)
}

func (e *Extractor) toRecords(cands []rawCandidate, source, baseURL string) []model.JobRecord {
	extractedAt := e.now().UTC()
	records := make([]model.JobRecord, 0, len(cands))
	for _, c := range cands {
		title := clean(string(c.Title))
		if title == "" {
			continue
		}
		company := clean(string(c.Company))
		link := resolveURL(baseURL, clean(string(c.URL)))

		posted := clean(string(c.PostedDate))
		if posted == "" {
			posted = clean(string(c.PostedAt))
		}

		appType := strings.ToLower(clean(string(c.ApplicationType)))
		if appType != "email" && appType != "url" {
			appType = ""
		}
		appTarget := clean(string(c.ApplicationTarget))
		if appType == "url" {
			appTarget = resolveURL(baseURL, appTarget)
		}

		records = append(records, model.JobRecord{
			Fingerprint:       model.Fingerprint(title, company, link),
			Title:             title,
			Company:           company,
			Location:          clean(string(c.Location)),
			URL:               link,
			Salary:            clean(string(c.Salary)),
			Description:       truncateRunes(clean(string(c.Description)), maxDescriptionRunes),
			JobType:           clean(string(c.JobType)),
			PostedAt:          posted,
			ExtractedAt:       extractedAt,
			Source:            source,
			ApplicationType:   appType,
			ApplicationTarget: appTarget,
		})
	}
	return records
}

// rawCandidate is one element of the model's JSON array. Every field
// tolerates strings, numbers, booleans and null.
type rawCandidate struct {
	Title             looseString `json:"title"`
	Company           looseString `json:"company"`
	Location          looseString `json:"location"`
	JobType           looseString `json:"job_type"`
	Salary            looseString `json:"salary"`
	PostedDate        looseString `json:"posted_date"`
	PostedAt          looseString `json:"posted_at"`
	URL               looseString `json:"url"`
	Description       looseString `json:"description"`
	ApplicationType   looseString `json:"application_type"`
	ApplicationTarget looseString `json:"application_target"`
}

type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = looseString(str)
		return nil
	}
	// Numbers and booleans keep their literal text; objects and arrays are rejected.
	if len(data) > 0 && (data[0] == '{' || data[0] == '[') {
		return fmt.Errorf("unexpected JSON %c for string field", data[0])
	}
	*s = looseString(data)
	return nil
}

var errNoJSON = errors.New("no JSON array in model output")

// parseCandidates decodes the model output, tolerating code fences and prose
// around the payload. A top-level object with a "jobs" array is also accepted.
func parseCandidates(raw string) ([]rawCandidate, error) {
	s := stripCodeFences(strings.TrimSpace(raw))

	if start, end := strings.Index(s, "["), strings.LastIndex(s, "]"); start >= 0 && end > start {
		var cands []rawCandidate
		if err := json.Unmarshal([]byte(s[start:end+1]), &cands); err == nil {
			return cands, nil
		}
	}

	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		var wrapped struct {
			Jobs []rawCandidate `json:"jobs"`
		}
		if err := json.Unmarshal([]byte(s[start:end+1]), &wrapped); err == nil && wrapped.Jobs != nil {
			return wrapped.Jobs, nil
		}
	}

	return nil, errNoJSON
}

func stripCodeFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:] // drop the language tag line
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

func resolveURL(base, ref string) string {
	if ref == "" || base == "" {
		return ref
	}
	if strings.HasPrefix(ref, "mailto:") {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
