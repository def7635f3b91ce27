package scheduler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/amishk599/boardwatch/internal/pipeline"
)

// Runner executes one monitoring run.
type Runner interface {
	Run(ctx context.Context, rc pipeline.RunContext) pipeline.Outcome
}

// Search is a named, configured run.
type Search struct {
	Name string
	Run  pipeline.RunContext
}

// Scheduler owns the main loop: ticks on an interval and runs every search,
// at most concurrency at a time.
type Scheduler struct {
	runner      Runner
	searches    []Search
	interval    time.Duration
	concurrency int
	logger      *slog.Logger
}

// NewScheduler creates a scheduler that runs all searches at the given interval.
// concurrency < 1 runs searches one at a time.
func NewScheduler(runner Runner, searches []Search, interval time.Duration, concurrency int, logger *slog.Logger) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scheduler{
		runner:      runner,
		searches:    searches,
		interval:    interval,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run starts the polling loop. It runs one immediate cycle, then ticks on the
// configured interval. It returns nil when ctx is cancelled (graceful shutdown).
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting scheduler",
		"interval", s.interval.String(),
		"searches", len(s.searches),
		"concurrency", s.concurrency,
	)

	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down scheduler")
			return nil
		case <-time.After(s.interval):
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs every search once and returns their outcomes in search order.
// A failed search never stops the others.
func (s *Scheduler) RunOnce(ctx context.Context) []pipeline.Outcome {
	outcomes := make([]pipeline.Outcome, len(s.searches))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, search := range s.searches {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out := s.runner.Run(ctx, search.Run)
			outcomes[i] = out
			s.report(search, out)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (s *Scheduler) report(search Search, out pipeline.Outcome) {
	if out.OK() {
		s.logger.Info("search complete",
			"search", search.Name,
			"new", out.New,
			"notify", string(out.NotifyStatus),
			"degraded", out.Degraded,
		)
		return
	}
	s.logger.Error("search failed",
		"search", search.Name,
		"stage", out.FailedStage.String(),
		"error", out.Err,
	)
}
