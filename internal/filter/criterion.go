// Package filter narrows extracted postings to those matching a
// natural-language criterion.
package filter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/amishk599/boardwatch/internal/ai"
	"github.com/amishk599/boardwatch/internal/model"
)

// Result is the outcome of one Filter call.
type Result struct {
	Accepted []model.JobRecord
	Rejected int
	// Degraded counts candidates accepted only because their verdict could not be obtained.
	Degraded int
}

// CriterionFilter asks an LLM, one candidate at a time, whether a posting
// matches the criterion.
type CriterionFilter struct {
	provider ai.LLMProvider
	tmpl     *template.Template
	timeout  time.Duration
	logger   *slog.Logger
}

// NewCriterionFilter creates a filter. timeout bounds each per-candidate call.
func NewCriterionFilter(provider ai.LLMProvider, tmpl *template.Template, timeout time.Duration, logger *slog.Logger) *CriterionFilter {
	return &CriterionFilter{
		provider: provider,
		tmpl:     tmpl,
		timeout:  timeout,
		logger:   logger,
	}
}

type verdict int

const (
	verdictUnknown verdict = iota
	verdictAccept
	verdictReject
)

// Filter keeps the candidates the model accepts, preserving order.
//
// An empty criterion returns candidates unchanged. A candidate whose verdict
// cannot be obtained is kept and counted as degraded. If the criterion cannot
// be evaluated at all, every candidate is kept and a *model.FilterDegradedError
// is returned alongside the result.
func (f *CriterionFilter) Filter(ctx context.Context, candidates []model.JobRecord, criterion string) (Result, error) {
	criterion = strings.TrimSpace(criterion)
	if criterion == "" || len(candidates) == 0 {
		return Result{Accepted: candidates}, nil
	}

	res := Result{Accepted: make([]model.JobRecord, 0, len(candidates))}
	var lastErr error
	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			// Keep the unevaluated tail so callers never silently lose candidates.
			res.Accepted = append(res.Accepted, candidates[i:]...)
			return res, err
		}

		prompt, err := f.render(criterion, c)
		if err != nil {
			return Result{Accepted: candidates, Degraded: len(candidates)},
				&model.FilterDegradedError{Criterion: criterion, Err: err}
		}

		v, err := f.ask(ctx, prompt)
		switch {
		case err != nil:
			lastErr = err
			res.Degraded++
			res.Accepted = append(res.Accepted, c)
			f.logger.Warn("filter degraded, accepting candidate",
				"title", c.Title,
				"company", c.Company,
				"error", err,
			)
		case v == verdictReject:
			res.Rejected++
			f.logger.Debug("filter rejected candidate", "title", c.Title, "company", c.Company)
		default:
			res.Accepted = append(res.Accepted, c)
		}
	}

	if res.Degraded == len(candidates) {
		return res, &model.FilterDegradedError{Criterion: criterion, Err: lastErr}
	}
	return res, nil
}

func (f *CriterionFilter) render(criterion string, job model.JobRecord) (string, error) {
	var buf bytes.Buffer
	if err := f.tmpl.Execute(&buf, struct {
		Criterion string
		Job       model.JobRecord
	}{criterion, job}); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

var errNoVerdict = errors.New("model answer contains neither ACCEPT nor REJECT")

func (f *CriterionFilter) ask(ctx context.Context, prompt string) (verdict, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	raw, err := f.provider.Complete(ctx, prompt)
	if err != nil {
		return verdictUnknown, fmt.Errorf("llm complete: %w", err)
	}

	v := parseVerdict(raw)
	if v == verdictUnknown {
		return v, fmt.Errorf("%w: %q", errNoVerdict, truncate(raw, 80))
	}
	return v, nil
}

// parseVerdict takes whichever of ACCEPT or REJECT appears first in the answer.
func parseVerdict(raw string) verdict {
	upper := strings.ToUpper(raw)
	a := strings.Index(upper, "ACCEPT")
	r := strings.Index(upper, "REJECT")
	switch {
	case a < 0 && r < 0:
		return verdictUnknown
	case r < 0 || (a >= 0 && a < r):
		return verdictAccept
	default:
		return verdictReject
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
