package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/amishk599/boardwatch/internal/model"
)

// Ensure RetryBrowser implements model.Browser.
var _ model.Browser = (*RetryBrowser)(nil)

// RetryBrowser is a decorator that retries transient fetch failures with
// exponential backoff and jitter before giving up.
type RetryBrowser struct {
	inner      model.Browser
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// NewRetryBrowser wraps a Browser with retry logic.
// maxRetries is the number of additional attempts after the first failure.
// baseDelay is the delay before the first retry, doubled on each subsequent retry.
func NewRetryBrowser(inner model.Browser, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *RetryBrowser {
	return &RetryBrowser{
		inner:      inner,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
	}
}

// Fetch attempts to fetch url, retrying on transient errors.
func (b *RetryBrowser) Fetch(ctx context.Context, url string) (model.Page, error) {
	page, err := b.inner.Fetch(ctx, url)
	if err == nil {
		return page, nil
	}

	if !isRetryable(err) {
		return nil, err
	}

	lastErr := err
	for attempt := 1; attempt <= b.maxRetries; attempt++ {
		delay := b.backoffDelay(attempt, lastErr)

		b.logger.Warn("retrying fetch after transient error",
			"url", url,
			"attempt", attempt,
			"max_retries", b.maxRetries,
			"delay", delay,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}

		page, err = b.inner.Fetch(ctx, url)
		if err == nil {
			return page, nil
		}

		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

// backoffDelay computes the delay for a given attempt with ±30% jitter.
// If the error includes a Retry-After duration (HTTP 429), that takes precedence.
func (b *RetryBrowser) backoffDelay(attempt int, err error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}

	delay := b.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}

	jitter := float64(delay) * 0.3
	return time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)
}

// isRetryable returns true if the error represents a transient failure worth retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Context cancellation is final.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}

	// Network, DNS and browser driver errors.
	return true
}
