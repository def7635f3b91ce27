// Package pipeline runs one monitoring pass over a job board search:
// fetch, extract, filter, dedupe, persist, notify, capture.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/boardwatch/internal/ai"
	"github.com/amishk599/boardwatch/internal/board"
	"github.com/amishk599/boardwatch/internal/dedup"
	"github.com/amishk599/boardwatch/internal/filter"
	"github.com/amishk599/boardwatch/internal/model"
	"github.com/amishk599/boardwatch/internal/notifier"
)

// Extractor turns condensed page content into candidate records.
type Extractor interface {
	Extract(ctx context.Context, content, source, baseURL string) ([]model.JobRecord, error)
}

// Filter narrows candidates to those matching a criterion.
type Filter interface {
	Filter(ctx context.Context, candidates []model.JobRecord, criterion string) (filter.Result, error)
}

// Store is the history a run dedups against and appends to.
type Store interface {
	dedup.Membership
	Append(ctx context.Context, records []model.JobRecord) ([]model.JobRecord, error)
}

// Condenser reduces a rendered page to the text handed to the extractor.
type Condenser func(html, pageURL string) (string, error)

// Deps are the collaborators of a Pipeline. Summarizer and Condense are optional.
type Deps struct {
	Browser    model.Browser
	Condense   Condenser
	Extractor  Extractor
	Filter     Filter
	Store      Store
	Notifier   model.Notifier
	Summarizer ai.Summarizer
}

// Options bound external calls and configure optional stages.
type Options struct {
	BoardURL       string        // base URL for keyword searches
	FetchTimeout   time.Duration // per fetch, including retries
	NotifyTimeout  time.Duration
	CaptureTimeout time.Duration
	ScreenshotDir  string // empty disables capturing
}

// RunContext describes one monitoring run. It is not persisted.
type RunContext struct {
	URL       string // explicit page URL; built from Keywords and Location when empty
	Keywords  string
	Location  string
	Source    string // defaults to board.SourceName
	Criterion string // optional natural-language filter
	Notify    bool
	Limit     int // cap on candidates after extraction, 0 = unlimited
}

// Outcome is the structured result of a run.
type Outcome struct {
	RunID       string
	URL         string
	Source      string
	State       Stage // Done or Failed
	FailedStage Stage // set when State == Failed
	Err         error

	Extracted int // candidates produced by extraction, before Limit
	Filtered  int // candidates remaining after the filter
	Rejected  int
	New       int
	Records   []model.JobRecord // the new records

	Degraded        bool
	DegradedReasons []string

	Summary      string
	NotifyStatus NotifyStatus
	NotifyErr    error

	Screenshot    string
	ScreenshotErr error

	Started  time.Time
	Finished time.Time
}

// OK reports whether the run reached Done.
func (o Outcome) OK() bool { return o.State == Done }

// Pipeline sequences the stages of a run and applies the declared error policy.
type Pipeline struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// New creates a pipeline wired with all its collaborators.
func New(deps Deps, opts Options, logger *slog.Logger) *Pipeline {
	if deps.Condense == nil {
		deps.Condense = board.Condense
	}
	if deps.Summarizer == nil {
		deps.Summarizer = ai.NewNopSummarizer()
	}
	return &Pipeline{deps: deps, opts: opts, logger: logger, now: time.Now}
}

type run struct {
	out    *Outcome
	logger *slog.Logger
}

// enter moves the run to stage unless ctx is done.
func (r *run) enter(ctx context.Context, stage Stage) bool {
	if err := ctx.Err(); err != nil {
		r.fail(stage, err)
		return false
	}
	r.out.State = stage
	r.logger.Debug("stage", "stage", stage.String())
	return true
}

func (r *run) fail(stage Stage, err error) {
	r.out.State = Failed
	r.out.FailedStage = stage
	r.out.Err = err
	r.logger.Error("run failed", "stage", stage.String(), "error", err)
}

func (r *run) degrade(reason string) {
	r.out.Degraded = true
	r.out.DegradedReasons = append(r.out.DegradedReasons, reason)
	r.logger.Warn("run degraded", "reason", reason)
}

// policy resolves the error policy at stage. A run whose own context is
// done fails at any stage before notification; a timeout a collaborator hit
// on its own per-call deadline follows the stage's declared policy.
func policy(ctx context.Context, stage Stage) Policy {
	if ctx.Err() != nil {
		if stage == Notifying || stage == Capturing {
			return Continue
		}
		return Fatal
	}
	return PolicyFor(stage)
}

// Run executes one monitoring run and returns its outcome. Run never panics
// on collaborator failures; inspect Outcome.State and Outcome.Err.
func (p *Pipeline) Run(ctx context.Context, rc RunContext) Outcome {
	out := Outcome{
		RunID:        uuid.NewString(),
		State:        Idle,
		NotifyStatus: NotifySkipped,
		Started:      p.now(),
	}

	r := &run{out: &out, logger: p.logger.With("run_id", out.RunID)}
	p.execute(ctx, rc, r)
	out.Finished = p.now()

	r.logger.Info("run complete",
		"state", out.State.String(),
		"source", out.Source,
		"extracted", out.Extracted,
		"filtered", out.Filtered,
		"new", out.New,
		"degraded", out.Degraded,
		"notify", string(out.NotifyStatus),
	)
	return out
}

func (p *Pipeline) execute(ctx context.Context, rc RunContext, r *run) {
	out := r.out

	url := rc.URL
	if url == "" {
		u, err := board.SearchURL(p.opts.BoardURL, rc.Keywords, rc.Location)
		if err != nil {
			r.fail(Fetching, &model.FetchError{URL: p.opts.BoardURL, Err: err})
			return
		}
		url = u
	}
	out.URL = url
	out.Source = rc.Source
	if out.Source == "" {
		out.Source = board.SourceName(url, rc.Keywords, rc.Location)
	}
	r.logger = r.logger.With("source", out.Source)

	// Fetching
	if !r.enter(ctx, Fetching) {
		return
	}
	page, err := p.fetch(ctx, url)
	if err != nil {
		r.fail(Fetching, &model.FetchError{URL: url, Err: err})
		return
	}
	defer page.Close()

	// Extracting
	if !r.enter(ctx, Extracting) {
		return
	}
	content, err := p.deps.Condense(page.HTML(), page.URL())
	if err != nil {
		r.logger.Warn("condense failed, extracting from raw page", "error", err)
		content = page.HTML()
	}
	candidates, err := p.deps.Extractor.Extract(ctx, content, out.Source, page.URL())
	if err != nil {
		switch policy(ctx, Extracting) {
		case EndEmpty:
			r.logger.Warn("extraction produced no usable output", "error", err)
			out.State = Done
		default:
			r.fail(Extracting, err)
		}
		return
	}
	out.Extracted = len(candidates)
	if rc.Limit > 0 && len(candidates) > rc.Limit {
		candidates = candidates[:rc.Limit]
	}

	// Filtering
	if !r.enter(ctx, Filtering) {
		return
	}
	res, err := p.deps.Filter.Filter(ctx, candidates, rc.Criterion)
	if err != nil {
		switch policy(ctx, Filtering) {
		case Degrade:
			r.degrade(err.Error())
			res = filter.Result{Accepted: candidates}
		default:
			r.fail(Filtering, err)
			return
		}
	} else if res.Degraded > 0 {
		r.degrade(fmt.Sprintf("%d candidate(s) accepted without a filter verdict", res.Degraded))
	}
	candidates = res.Accepted
	out.Filtered = len(candidates)
	out.Rejected = res.Rejected

	// Deduplicating
	if !r.enter(ctx, Deduplicating) {
		return
	}
	fresh := dedup.Dedupe(candidates, p.deps.Store)
	out.New = len(fresh)
	out.Records = fresh

	// Persisting
	if !r.enter(ctx, Persisting) {
		return
	}
	// The store decides which records are new: a concurrent run may have
	// stored some of fresh since the dedup pass.
	var persistErr error
	if len(fresh) > 0 {
		added, err := p.deps.Store.Append(ctx, fresh)
		if len(added) < len(fresh) {
			r.logger.Debug("records stored by another run", "count", len(fresh)-len(added))
		}
		out.New = len(added)
		out.Records = added
		if err != nil {
			if policy(ctx, Persisting) != NotifyThenFail {
				r.fail(Persisting, err)
				return
			}
			r.logger.Error("persist failed, notifying from memory", "error", err)
			persistErr = err
		}
	}

	// Notifying runs even after a persist failure.
	if persistErr == nil {
		if !r.enter(ctx, Notifying) {
			return
		}
	} else {
		out.State = Notifying
	}
	p.notify(ctx, rc, r)

	if persistErr != nil {
		r.fail(Persisting, persistErr)
		return
	}

	// Capturing
	if !r.enter(ctx, Capturing) {
		return
	}
	p.capture(ctx, page, r)

	out.State = Done
}

func (p *Pipeline) fetch(ctx context.Context, url string) (model.Page, error) {
	if p.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.FetchTimeout)
		defer cancel()
	}
	return p.deps.Browser.Fetch(ctx, url)
}

func (p *Pipeline) notify(ctx context.Context, rc RunContext, r *run) {
	out := r.out
	if len(out.Records) == 0 {
		out.NotifyStatus = NotifySkipped
		return
	}

	summary, err := p.deps.Summarizer.Summarize(ctx, rc.Keywords, rc.Location, out.Records)
	if err != nil {
		r.logger.Warn("summary failed", "error", err)
	}
	out.Summary = summary

	if !rc.Notify || p.deps.Notifier == nil {
		out.NotifyStatus = NotifyDisabled
		return
	}
	if err := ctx.Err(); err != nil {
		out.NotifyStatus = NotifyFailed
		out.NotifyErr = err
		return
	}

	nctx := notifier.WithDigest(ctx, notifier.Digest{
		Keywords: rc.Keywords,
		Location: rc.Location,
		Summary:  summary,
	})
	if p.opts.NotifyTimeout > 0 {
		var cancel context.CancelFunc
		nctx, cancel = context.WithTimeout(nctx, p.opts.NotifyTimeout)
		defer cancel()
	}

	if err := p.deps.Notifier.Notify(nctx, out.Records); err != nil {
		out.NotifyStatus = NotifyFailed
		out.NotifyErr = err
		r.logger.Error("notification failed", "policy", policy(ctx, Notifying).String(), "error", err)
		return
	}
	out.NotifyStatus = NotifySent
}

func (p *Pipeline) capture(ctx context.Context, page model.Page, r *run) {
	if p.opts.ScreenshotDir == "" {
		return
	}
	if p.opts.CaptureTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.CaptureTimeout)
		defer cancel()
	}

	path := filepath.Join(p.opts.ScreenshotDir, screenshotName(r.out.Source, p.now()))
	if err := page.Screenshot(ctx, path); err != nil {
		r.out.ScreenshotErr = err
		if errors.Is(err, model.ErrScreenshotUnsupported) {
			r.logger.Debug("screenshot skipped", "reason", err)
			return
		}
		r.logger.Warn("screenshot failed", "policy", policy(ctx, Capturing).String(), "error", err)
		return
	}
	r.out.Screenshot = path
	r.logger.Debug("screenshot saved", "path", path)
}

var unsafeName = regexp.MustCompile(`[^a-z0-9]+`)

func screenshotName(source string, at time.Time) string {
	slug := strings.Trim(unsafeName.ReplaceAllString(strings.ToLower(source), "_"), "_")
	if slug == "" {
		slug = "page"
	}
	return fmt.Sprintf("%s_%s.png", slug, at.UTC().Format("20060102_150405"))
}
