package ai

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/amishk599/boardwatch/internal/model"
)

// maxSummaryJobs bounds how many postings are listed in the summary prompt.
const maxSummaryJobs = 25

// Summarizer writes a short digest of newly found postings.
type Summarizer interface {
	Summarize(ctx context.Context, keywords, location string, records []model.JobRecord) (string, error)
}

// LLMSummarizer implements Summarizer using an LLM.
type LLMSummarizer struct {
	provider LLMProvider
	tmpl     *template.Template
	timeout  time.Duration
	logger   *slog.Logger
}

// NewLLMSummarizer creates a summarizer backed by provider.
func NewLLMSummarizer(provider LLMProvider, tmpl *template.Template, timeout time.Duration, logger *slog.Logger) *LLMSummarizer {
	return &LLMSummarizer{
		provider: provider,
		tmpl:     tmpl,
		timeout:  timeout,
		logger:   logger,
	}
}

// Summarize returns an empty string for an empty batch without calling the model.
func (s *LLMSummarizer) Summarize(ctx context.Context, keywords, location string, records []model.JobRecord) (string, error) {
	if len(records) == 0 {
		return "", nil
	}
	if len(records) > maxSummaryJobs {
		records = records[:maxSummaryJobs]
	}

	var promptBuf bytes.Buffer
	if err := s.tmpl.Execute(&promptBuf, struct {
		Keywords string
		Location string
		Jobs     []model.JobRecord
	}{keywords, location, records}); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	raw, err := s.provider.Complete(ctx, promptBuf.String())
	if err != nil {
		return "", fmt.Errorf("llm complete: %w", err)
	}

	summary := strings.TrimSpace(stripCodeFences(strings.TrimSpace(raw)))
	s.logger.Debug("summary generated", "jobs", len(records), "chars", len(summary))
	return summary, nil
}

// NopSummarizer is used when no LLM is configured for summaries.
type NopSummarizer struct{}

// NewNopSummarizer returns a NopSummarizer.
func NewNopSummarizer() *NopSummarizer {
	return &NopSummarizer{}
}

// Summarize returns an empty summary.
func (NopSummarizer) Summarize(context.Context, string, string, []model.JobRecord) (string, error) {
	return "", nil
}
