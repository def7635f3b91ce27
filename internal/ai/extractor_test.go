package ai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"text/template"
	"time"

	"github.com/amishk599/boardwatch/internal/model"
)

// scriptedProvider returns the next canned response on each call and records the prompts.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	prompts   []string
}

func (p *scriptedProvider) Complete(_ context.Context, prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := len(p.prompts)
	p.prompts = append(p.prompts, prompt)
	var err error
	if i < len(p.errs) {
		err = p.errs[i]
	}
	resp := ""
	if i < len(p.responses) {
		resp = p.responses[i]
	}
	return resp, err
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func newTestExtractor(p LLMProvider, maxChars, retries int) *Extractor {
	e := NewExtractor(p, ExtractTemplate, maxChars, retries, 0, discardLogger())
	e.now = func() time.Time { return fixedNow }
	return e
}

const twoJobs = `[
  {"title": "Go Engineer", "company": "Acme", "location": "Remote", "url": "/viewjob?jk=1", "salary": "$150k"},
  {"title": "SRE", "company": "Globex", "location": "Berlin", "url": "https://jobs.example.com/2", "posted_date": "2 days ago"}
]`

func TestExtract_ParsesRecords(t *testing.T) {
	p := &scriptedProvider{responses: []string{twoJobs}}
	e := newTestExtractor(p, 0, 2)

	recs, err := e.Extract(context.Background(), "page text", "indeed:golang", "https://www.indeed.com/jobs?q=golang")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}

	first := recs[0]
	if first.URL != "https://www.indeed.com/viewjob?jk=1" {
		t.Errorf("relative URL not resolved: %q", first.URL)
	}
	if first.Fingerprint != model.Fingerprint("Go Engineer", "Acme", first.URL) {
		t.Error("fingerprint not computed from title, company and URL")
	}
	if !first.ExtractedAt.Equal(fixedNow) {
		t.Errorf("ExtractedAt = %v, want %v", first.ExtractedAt, fixedNow)
	}
	if first.Source != "indeed:golang" || first.Salary != "$150k" {
		t.Errorf("unexpected record: %+v", first)
	}
	if recs[1].PostedAt != "2 days ago" {
		t.Errorf("PostedAt = %q, want posted_date value", recs[1].PostedAt)
	}
	if p.calls() != 1 {
		t.Errorf("provider called %d times, want 1", p.calls())
	}
}

func TestExtract_ToleratesFencesAndProse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"fenced", "```json\n" + twoJobs + "\n```"},
		{"prose", "Here are the jobs I found:\n" + twoJobs + "\nLet me know if you need more."},
		{"wrapped object", `{"jobs": ` + twoJobs + `}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExtractor(&scriptedProvider{responses: []string{tt.raw}}, 0, 0)
			recs, err := e.Extract(context.Background(), "c", "s", "")
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if len(recs) != 2 {
				t.Errorf("got %d records, want 2", len(recs))
			}
		})
	}
}

func TestExtract_RecoversAfterMalformedOutput(t *testing.T) {
	p := &scriptedProvider{responses: []string{"Sorry, I cannot do that.", twoJobs}}
	e := newTestExtractor(p, 0, 2)

	recs, err := e.Extract(context.Background(), "c", "s", "")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("got %d records, want 2", len(recs))
	}
	if p.calls() != 2 {
		t.Errorf("provider called %d times, want 2", p.calls())
	}
	if strings.Contains(p.prompts[0], "could not be parsed") {
		t.Error("first prompt should not be the strict variant")
	}
	if !strings.Contains(p.prompts[1], "could not be parsed") {
		t.Error("retry prompt should be the strict variant")
	}
}

func TestExtract_BoundedRetriesThenExtractionError(t *testing.T) {
	p := &scriptedProvider{responses: []string{"nope", "still nope", "nope again", twoJobs}}
	e := newTestExtractor(p, 0, 2)

	recs, err := e.Extract(context.Background(), "c", "indeed", "")

	var extErr *model.ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected *model.ExtractionError, got %v", err)
	}
	if extErr.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", extErr.Attempts)
	}
	if len(recs) != 0 {
		t.Errorf("expected no records, got %d", len(recs))
	}
	if p.calls() != 3 {
		t.Errorf("provider called %d times, want exactly 3", p.calls())
	}
}

func TestExtract_ProviderErrorsCountAsAttempts(t *testing.T) {
	boom := errors.New("upstream 503")
	p := &scriptedProvider{errs: []error{boom, boom, boom}}
	e := newTestExtractor(p, 0, 2)

	_, err := e.Extract(context.Background(), "c", "s", "")
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped provider error, got %v", err)
	}
	if p.calls() != 3 {
		t.Errorf("provider called %d times, want 3", p.calls())
	}
}

func TestExtract_TruncatesContent(t *testing.T) {
	p := &scriptedProvider{responses: []string{"[]"}}
	tmpl := template.Must(template.New("t").Parse("{{.Content}}"))
	e := NewExtractor(p, tmpl, 10, 0, 0, discardLogger())

	if _, err := e.Extract(context.Background(), strings.Repeat("é", 50), "s", ""); err != nil {
		t.Fatal(err)
	}
	if got := p.prompts[0]; got != strings.Repeat("é", 10) {
		t.Errorf("prompt = %q, want 10 runes", got)
	}
}

func TestExtract_EmptyArrayIsNotAnError(t *testing.T) {
	e := newTestExtractor(&scriptedProvider{responses: []string{"[]"}}, 0, 2)
	recs, err := e.Extract(context.Background(), "c", "s", "")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("got %d records, want 0", len(recs))
	}
}

func TestExtract_DropsUntitledAndToleratesOddTypes(t *testing.T) {
	raw := `[{"title": "", "company": "Acme"},
	         {"title": "Go Engineer", "company": null, "salary": 120000, "url": "https://x.example/1"}]`
	e := newTestExtractor(&scriptedProvider{responses: []string{raw}}, 0, 0)

	recs, err := e.Extract(context.Background(), "c", "s", "")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0].Salary != "120000" || recs[0].Company != "" {
		t.Errorf("unexpected record: %+v", recs[0])
	}
}

func TestExtract_CancelledContext(t *testing.T) {
	p := &scriptedProvider{responses: []string{twoJobs}}
	e := newTestExtractor(p, 0, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.Extract(ctx, "c", "s", ""); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if p.calls() != 0 {
		t.Errorf("provider should not be called after cancellation")
	}
}

func TestExtract_ApplicationFields(t *testing.T) {
	raw := `[{"title": "Go Engineer", "company": "Acme", "url": "/job/1",
	          "application_type": "URL", "application_target": "/apply/1"},
	         {"title": "SRE", "company": "Acme", "url": "/job/2",
	          "application_type": "email", "application_target": "jobs@acme.example"},
	         {"title": "PM", "company": "Acme", "application_type": "fax"}]`
	e := newTestExtractor(&scriptedProvider{responses: []string{raw}}, 0, 0)

	recs, err := e.Extract(context.Background(), "c", "s", "https://board.example")
	if err != nil {
		t.Fatal(err)
	}
	if recs[0].ApplicationType != "url" || recs[0].ApplicationTarget != "https://board.example/apply/1" {
		t.Errorf("url application: %+v", recs[0])
	}
	if recs[1].ApplicationType != "email" || recs[1].ApplicationTarget != "jobs@acme.example" {
		t.Errorf("email application: %+v", recs[1])
	}
	if recs[2].ApplicationType != "" {
		t.Errorf("unknown application type should be dropped, got %q", recs[2].ApplicationType)
	}
}
