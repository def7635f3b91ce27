package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/amishk599/boardwatch/internal/ai"
	"github.com/amishk599/boardwatch/internal/filter"
	"github.com/amishk599/boardwatch/internal/model"
	"github.com/amishk599/boardwatch/internal/notifier"
)

// --- Fakes ---

type fakePage struct {
	url      string
	html     string
	shotErr  error
	shotPath string
	closed   bool
}

func (p *fakePage) URL() string  { return p.url }
func (p *fakePage) HTML() string { return p.html }

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

func (p *fakePage) Screenshot(_ context.Context, path string) error {
	if p.shotErr != nil {
		return p.shotErr
	}
	p.shotPath = path
	return nil
}

type fakeBrowser struct {
	page  *fakePage
	err   error
	calls []string
}

func (b *fakeBrowser) Fetch(_ context.Context, url string) (model.Page, error) {
	b.calls = append(b.calls, url)
	if b.err != nil {
		return nil, b.err
	}
	b.page.url = url
	return b.page, nil
}

// routedProvider answers filter prompts with verdicts and everything else
// with the extraction reply.
type routedProvider struct {
	mu         sync.Mutex
	extraction string
	extractErr error
	reject     map[string]bool // titles to reject
	filterErr  error
	prompts    int

	// stalled calls block until their context ends
	stallExtract bool
	stallFilter  bool
}

func (p *routedProvider) Complete(ctx context.Context, prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts++

	if strings.HasPrefix(prompt, "Decide whether") {
		if p.stallFilter {
			<-ctx.Done()
			return "", fmt.Errorf("llm request: %w", ctx.Err())
		}
		if p.filterErr != nil {
			return "", p.filterErr
		}
		for title := range p.reject {
			if strings.Contains(prompt, "Title: "+title+"\n") {
				return "REJECT", nil
			}
		}
		return "ACCEPT", nil
	}
	if p.stallExtract {
		<-ctx.Done()
		return "", fmt.Errorf("llm request: %w", ctx.Err())
	}
	if p.extractErr != nil {
		return "", p.extractErr
	}
	return p.extraction, nil
}

type memStore struct {
	mu        sync.Mutex
	seen      map[string]bool
	appended  []model.JobRecord
	appendErr error

	beforeAppend func() // runs outside the lock
}

func newMemStore(fps ...string) *memStore {
	s := &memStore{seen: make(map[string]bool)}
	for _, fp := range fps {
		s.seen[fp] = true
	}
	return s
}

func (s *memStore) Contains(fp string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[fp]
}

func (s *memStore) Append(_ context.Context, records []model.JobRecord) ([]model.JobRecord, error) {
	if s.beforeAppend != nil {
		s.beforeAppend()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var added []model.JobRecord
	for _, r := range records {
		if s.seen[r.Fingerprint] {
			continue
		}
		s.seen[r.Fingerprint] = true
		added = append(added, r)
	}
	s.appended = append(s.appended, added...)
	return added, s.appendErr
}

type recordingNotifier struct {
	calls   [][]model.JobRecord
	digests []notifier.Digest
	err     error
}

func (n *recordingNotifier) Notify(ctx context.Context, records []model.JobRecord) error {
	n.calls = append(n.calls, records)
	n.digests = append(n.digests, notifier.DigestFrom(ctx))
	return n.err
}

type fixedSummarizer string

func (s fixedSummarizer) Summarize(context.Context, string, string, []model.JobRecord) (string, error) {
	return string(s), nil
}

// --- Helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type posting struct {
	Title   string `json:"title"`
	Company string `json:"company"`
	URL     string `json:"url"`
}

var fivePostings = []posting{
	{"Go Engineer", "Acme", "/viewjob?jk=1"},
	{"Backend Developer", "Beta", "/viewjob?jk=2"},
	{"Platform Engineer", "Gamma", "/viewjob?jk=3"},
	{"Senior Java Engineer", "Delta", "/viewjob?jk=4"},
	{"Site Reliability Engineer", "Epsilon", "/viewjob?jk=5"},
}

func extractionReply(t *testing.T, ps []posting) string {
	t.Helper()
	b, err := json.Marshal(ps)
	if err != nil {
		t.Fatal(err)
	}
	return "```json\n" + string(b) + "\n```"
}

func fingerprintOf(p posting) string {
	return model.Fingerprint(p.Title, p.Company, "https://board.example"+p.URL)
}

type harness struct {
	browser  *fakeBrowser
	provider *routedProvider
	store    *memStore
	notifier *recordingNotifier
	pipeline *Pipeline
}

func newHarness(t *testing.T, store *memStore, opts Options) *harness {
	t.Helper()
	h := &harness{
		browser:  &fakeBrowser{page: &fakePage{html: "<html><body><p>results</p></body></html>"}},
		provider: &routedProvider{extraction: extractionReply(t, fivePostings)},
		store:    store,
		notifier: &recordingNotifier{},
	}
	if opts.BoardURL == "" {
		opts.BoardURL = "https://board.example"
	}
	logger := discardLogger()
	h.pipeline = New(Deps{
		Browser:    h.browser,
		Condense:   func(html, _ string) (string, error) { return html, nil },
		Extractor:  ai.NewExtractor(h.provider, ai.ExtractTemplate, 0, 2, 0, logger),
		Filter:     filter.NewCriterionFilter(h.provider, ai.FilterTemplate, 0, logger),
		Store:      store,
		Notifier:   h.notifier,
		Summarizer: fixedSummarizer("one strong match"),
	}, opts, logger)
	return h
}

// --- Tests ---

func TestRun_EndToEnd_FiveCandidatesOneNew(t *testing.T) {
	// 5 extracted, 3 already stored, criterion rejects 1 of the remaining 2.
	store := newMemStore(
		fingerprintOf(fivePostings[0]),
		fingerprintOf(fivePostings[1]),
		fingerprintOf(fivePostings[2]),
	)
	h := newHarness(t, store, Options{})
	h.provider.reject = map[string]bool{"Senior Java Engineer": true}

	out := h.pipeline.Run(context.Background(), RunContext{
		Keywords:  "engineer",
		Location:  "Remote",
		Criterion: "no Java roles",
		Notify:    true,
	})

	if out.State != Done {
		t.Fatalf("state = %v (err %v), want done", out.State, out.Err)
	}
	if out.Extracted != 5 || out.New != 1 {
		t.Errorf("extracted=%d new=%d, want 5 and 1", out.Extracted, out.New)
	}
	if out.Rejected != 1 {
		t.Errorf("rejected = %d, want 1", out.Rejected)
	}
	if len(out.Records) != 1 || out.Records[0].Title != "Site Reliability Engineer" {
		t.Fatalf("records = %+v", out.Records)
	}

	if len(store.appended) != 1 || store.appended[0].Fingerprint != out.Records[0].Fingerprint {
		t.Errorf("store appended %+v", store.appended)
	}
	if len(h.notifier.calls) != 1 || len(h.notifier.calls[0]) != 1 {
		t.Fatalf("notifier calls = %+v, want exactly one call with one record", h.notifier.calls)
	}
	if d := h.notifier.digests[0]; d.Keywords != "engineer" || d.Summary != "one strong match" {
		t.Errorf("digest = %+v", d)
	}
	if out.NotifyStatus != NotifySent {
		t.Errorf("notify status = %q, want sent", out.NotifyStatus)
	}
	if out.Degraded {
		t.Errorf("unexpected degraded run: %v", out.DegradedReasons)
	}
	if want := "https://board.example/jobs?l=Remote&q=engineer"; h.browser.calls[0] != want {
		t.Errorf("fetched %q, want %q", h.browser.calls[0], want)
	}
	if !h.browser.page.closed {
		t.Error("page not closed")
	}
	if out.RunID == "" || out.Finished.Before(out.Started) {
		t.Errorf("run bookkeeping: id=%q started=%v finished=%v", out.RunID, out.Started, out.Finished)
	}
}

func TestRun_SecondRunFindsNothingNew(t *testing.T) {
	store := newMemStore()
	h := newHarness(t, store, Options{})

	first := h.pipeline.Run(context.Background(), RunContext{Keywords: "go", Notify: true})
	if first.New != 5 {
		t.Fatalf("first run new = %d, want 5", first.New)
	}

	second := h.pipeline.Run(context.Background(), RunContext{Keywords: "go", Notify: true})
	if second.State != Done || second.New != 0 {
		t.Fatalf("second run state=%v new=%d, want done with 0 new", second.State, second.New)
	}
	if second.NotifyStatus != NotifySkipped {
		t.Errorf("notify status = %q, want skipped", second.NotifyStatus)
	}
	if len(h.notifier.calls) != 1 {
		t.Errorf("notifier called %d times, want 1", len(h.notifier.calls))
	}
}

func TestRun_StorageFailureStillNotifies(t *testing.T) {
	store := newMemStore()
	store.appendErr = &model.StorageError{Path: "jobs.json", Op: "persist", Err: errors.New("disk full")}
	h := newHarness(t, store, Options{ScreenshotDir: t.TempDir()})

	out := h.pipeline.Run(context.Background(), RunContext{Keywords: "go", Notify: true})

	if out.State != Failed || out.FailedStage != Persisting {
		t.Fatalf("state=%v failed_stage=%v, want failed at persisting", out.State, out.FailedStage)
	}
	var storageErr *model.StorageError
	if !errors.As(out.Err, &storageErr) {
		t.Errorf("err = %v, want *model.StorageError", out.Err)
	}
	if len(h.notifier.calls) != 1 || len(h.notifier.calls[0]) != 5 {
		t.Fatalf("notifier calls = %d, want one call with the 5 in-memory records", len(h.notifier.calls))
	}
	if out.NotifyStatus != NotifySent {
		t.Errorf("notify status = %q, want sent", out.NotifyStatus)
	}
	if h.browser.page.shotPath != "" {
		t.Error("screenshot taken after failed persist")
	}
}

func TestRun_FetchFailureIsFatal(t *testing.T) {
	h := newHarness(t, newMemStore(), Options{})
	h.browser.err = errors.New("net::ERR_NAME_NOT_RESOLVED")

	out := h.pipeline.Run(context.Background(), RunContext{Keywords: "go", Notify: true})

	if out.State != Failed || out.FailedStage != Fetching {
		t.Fatalf("state=%v stage=%v, want failed at fetching", out.State, out.FailedStage)
	}
	var fetchErr *model.FetchError
	if !errors.As(out.Err, &fetchErr) {
		t.Errorf("err = %v, want *model.FetchError", out.Err)
	}
	if h.provider.prompts != 0 || len(h.notifier.calls) != 0 {
		t.Error("stages after fetch must not run")
	}
}

func TestRun_ExtractionErrorEndsDoneEmpty(t *testing.T) {
	h := newHarness(t, newMemStore(), Options{})
	h.provider.extraction = "I could not find any jobs, sorry."

	out := h.pipeline.Run(context.Background(), RunContext{Keywords: "go", Notify: true})

	if out.State != Done || out.New != 0 {
		t.Fatalf("state=%v new=%d, want done with zero records", out.State, out.New)
	}
	if h.provider.prompts != 3 {
		t.Errorf("extraction attempts = %d, want 3", h.provider.prompts)
	}
	if len(h.notifier.calls) != 0 {
		t.Error("notifier called without records")
	}
}

func TestRun_FilterOutageDegradesAndKeepsAll(t *testing.T) {
	h := newHarness(t, newMemStore(), Options{})
	h.provider.filterErr = errors.New("rate limited")

	out := h.pipeline.Run(context.Background(), RunContext{Keywords: "go", Criterion: "remote only", Notify: true})

	if out.State != Done {
		t.Fatalf("state = %v (%v), want done", out.State, out.Err)
	}
	if !out.Degraded || len(out.DegradedReasons) == 0 {
		t.Error("expected degraded run")
	}
	if out.New != 5 {
		t.Errorf("new = %d, want all 5 kept unfiltered", out.New)
	}
}

// withLLMTimeout rebuilds h.pipeline with a per-call LLM deadline.
func withLLMTimeout(h *harness, timeout time.Duration) {
	logger := discardLogger()
	h.pipeline = New(Deps{
		Browser:    h.browser,
		Condense:   func(html, _ string) (string, error) { return html, nil },
		Extractor:  ai.NewExtractor(h.provider, ai.ExtractTemplate, 0, 2, timeout, logger),
		Filter:     filter.NewCriterionFilter(h.provider, ai.FilterTemplate, timeout, logger),
		Store:      h.store,
		Notifier:   h.notifier,
		Summarizer: fixedSummarizer("one strong match"),
	}, Options{BoardURL: "https://board.example"}, logger)
}

func TestRun_ExtractionTimeoutEndsDoneEmpty(t *testing.T) {
	h := newHarness(t, newMemStore(), Options{})
	h.provider.stallExtract = true
	withLLMTimeout(h, 10*time.Millisecond)

	out := h.pipeline.Run(context.Background(), RunContext{Keywords: "go", Notify: true})

	if out.State != Done || out.New != 0 {
		t.Fatalf("state=%v stage=%v err=%v new=%d, want done with zero records",
			out.State, out.FailedStage, out.Err, out.New)
	}
	if h.provider.prompts != 3 {
		t.Errorf("extraction attempts = %d, want 3", h.provider.prompts)
	}
}

func TestRun_ExtractionDeadlineErrorEndsDoneEmpty(t *testing.T) {
	h := newHarness(t, newMemStore(), Options{})
	h.provider.extractErr = fmt.Errorf("llm request: %w", context.DeadlineExceeded)

	out := h.pipeline.Run(context.Background(), RunContext{Keywords: "go", Notify: true})

	if out.State != Done || out.New != 0 {
		t.Fatalf("state=%v stage=%v err=%v, want done with zero records", out.State, out.FailedStage, out.Err)
	}
}

func TestRun_FilterTimeoutDegradesAndKeepsAll(t *testing.T) {
	h := newHarness(t, newMemStore(), Options{})
	h.provider.stallFilter = true
	withLLMTimeout(h, 10*time.Millisecond)

	out := h.pipeline.Run(context.Background(), RunContext{Keywords: "go", Criterion: "remote only", Notify: true})

	if out.State != Done {
		t.Fatalf("state=%v stage=%v err=%v, want done", out.State, out.FailedStage, out.Err)
	}
	if !out.Degraded {
		t.Error("expected degraded run")
	}
	if out.New != 5 || out.NotifyStatus != NotifySent {
		t.Errorf("new=%d notify=%q, want 5 unfiltered records sent", out.New, out.NotifyStatus)
	}
}

func TestRun_FilterDeadlineErrorDegrades(t *testing.T) {
	h := newHarness(t, newMemStore(), Options{})
	h.provider.filterErr = fmt.Errorf("llm request: %w", context.DeadlineExceeded)

	out := h.pipeline.Run(context.Background(), RunContext{Keywords: "go", Criterion: "remote only", Notify: true})

	if out.State != Done || !out.Degraded || out.New != 5 {
		t.Fatalf("state=%v degraded=%v new=%d err=%v, want degraded done with 5", out.State, out.Degraded, out.New, out.Err)
	}
}

func TestRun_ConcurrentRunsSharingStoreNotifyOnce(t *testing.T) {
	store := newMemStore()
	// Hold every Append until both runs have deduped against the empty store.
	var ready sync.WaitGroup
	ready.Add(2)
	store.beforeAppend = func() {
		ready.Done()
		ready.Wait()
	}

	h1 := newHarness(t, store, Options{})
	h2 := newHarness(t, store, Options{})

	var wg sync.WaitGroup
	outs := make([]Outcome, 2)
	for i, h := range []*harness{h1, h2} {
		wg.Add(1)
		go func(i int, h *harness) {
			defer wg.Done()
			outs[i] = h.pipeline.Run(context.Background(), RunContext{Keywords: "go", Notify: true})
		}(i, h)
	}
	wg.Wait()

	if outs[0].New+outs[1].New != 5 {
		t.Errorf("new = %d + %d, want 5 in total", outs[0].New, outs[1].New)
	}
	notified := 0
	for _, h := range []*harness{h1, h2} {
		for _, call := range h.notifier.calls {
			notified += len(call)
		}
	}
	if notified != 5 {
		t.Errorf("notified %d records, want each of the 5 exactly once", notified)
	}
	for i, out := range outs {
		if out.State != Done {
			t.Errorf("run %d state = %v (%v)", i, out.State, out.Err)
		}
	}
}

func TestRun_LimitCapsCandidates(t *testing.T) {
	h := newHarness(t, newMemStore(), Options{})

	out := h.pipeline.Run(context.Background(), RunContext{Keywords: "go", Limit: 2, Notify: true})

	if out.Extracted != 5 || out.New != 2 {
		t.Fatalf("extracted=%d new=%d, want 5 and 2", out.Extracted, out.New)
	}
	if out.Records[0].Title != "Go Engineer" || out.Records[1].Title != "Backend Developer" {
		t.Errorf("limit must keep the first candidates, got %+v", out.Records)
	}
}

func TestRun_NotifyDisabled(t *testing.T) {
	h := newHarness(t, newMemStore(), Options{})

	out := h.pipeline.Run(context.Background(), RunContext{Keywords: "go", Notify: false})

	if out.NotifyStatus != NotifyDisabled {
		t.Errorf("notify status = %q, want disabled", out.NotifyStatus)
	}
	if len(h.notifier.calls) != 0 {
		t.Error("notifier called while disabled")
	}
	if out.Summary != "one strong match" {
		t.Errorf("summary = %q, want it computed regardless", out.Summary)
	}
}

func TestRun_NotifyFailureIsNonFatal(t *testing.T) {
	h := newHarness(t, newMemStore(), Options{})
	h.notifier.err = &model.NotificationError{Channel: "email", Err: errors.New("535 auth")}

	out := h.pipeline.Run(context.Background(), RunContext{Keywords: "go", Notify: true})

	if out.State != Done {
		t.Fatalf("state = %v, want done", out.State)
	}
	if out.NotifyStatus != NotifyFailed || out.NotifyErr == nil {
		t.Errorf("notify status=%q err=%v, want failed with error", out.NotifyStatus, out.NotifyErr)
	}
	if len(h.store.appended) != 5 {
		t.Errorf("records must stay persisted, got %d", len(h.store.appended))
	}
}

func TestRun_ScreenshotCapturedAndFailureNonFatal(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, newMemStore(), Options{ScreenshotDir: dir})
	h.pipeline.now = func() time.Time { return time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC) }

	out := h.pipeline.Run(context.Background(), RunContext{Keywords: "go", Location: "Remote", Notify: true})
	if out.State != Done {
		t.Fatalf("state = %v", out.State)
	}
	if !strings.HasPrefix(out.Screenshot, dir) || !strings.HasSuffix(out.Screenshot, "board_example_go_remote_20260504_030201.png") {
		t.Errorf("screenshot = %q", out.Screenshot)
	}

	h2 := newHarness(t, newMemStore(), Options{ScreenshotDir: dir})
	h2.browser.page.shotErr = errors.New("target closed")
	out2 := h2.pipeline.Run(context.Background(), RunContext{Keywords: "go", Notify: true})
	if out2.State != Done || out2.ScreenshotErr == nil {
		t.Errorf("state=%v shotErr=%v, want done with screenshot error recorded", out2.State, out2.ScreenshotErr)
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	h := newHarness(t, newMemStore(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := h.pipeline.Run(ctx, RunContext{Keywords: "go", Notify: true})

	if out.State != Failed || out.FailedStage != Fetching || !errors.Is(out.Err, context.Canceled) {
		t.Fatalf("state=%v stage=%v err=%v, want cancelled at fetching", out.State, out.FailedStage, out.Err)
	}
	if len(h.browser.calls) != 0 {
		t.Error("fetch must not start after cancellation")
	}
}

func TestRun_ExplicitURLAndSource(t *testing.T) {
	h := newHarness(t, newMemStore(), Options{})

	out := h.pipeline.Run(context.Background(), RunContext{
		URL:    "https://board.example/jobs?q=custom",
		Source: "custom-search",
		Notify: true,
	})

	if h.browser.calls[0] != "https://board.example/jobs?q=custom" {
		t.Errorf("fetched %q", h.browser.calls[0])
	}
	if out.Source != "custom-search" || out.Records[0].Source != "custom-search" {
		t.Errorf("source = %q / %q", out.Source, out.Records[0].Source)
	}
}

func TestPolicyTable(t *testing.T) {
	cases := map[Stage]Policy{
		Fetching:      Fatal,
		Extracting:    EndEmpty,
		Filtering:     Degrade,
		Persisting:    NotifyThenFail,
		Notifying:     Continue,
		Capturing:     Continue,
		Deduplicating: Fatal,
	}
	for stage, want := range cases {
		if got := PolicyFor(stage); got != want {
			t.Errorf("PolicyFor(%v) = %v, want %v", stage, got, want)
		}
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if got := policy(cancelled, Extracting); got != Fatal {
		t.Errorf("cancelled extraction policy = %v, want fatal", got)
	}
	if got := policy(cancelled, Notifying); got != Continue {
		t.Errorf("cancelled notify policy = %v, want continue", got)
	}
	if got := policy(context.Background(), Filtering); got != Degrade {
		t.Errorf("live filter policy = %v, want degrade", got)
	}
}

func TestStageString(t *testing.T) {
	if Persisting.String() != "persisting" || Stage(99).String() != "unknown" {
		t.Errorf("unexpected stage names %q %q", Persisting.String(), Stage(99).String())
	}
}
