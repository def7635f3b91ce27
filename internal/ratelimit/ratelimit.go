package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/time/rate"

	"github.com/amishk599/boardwatch/internal/model"
)

// HostLimiter keeps one token bucket per hostname so searches against the
// same board share a budget while different boards do not block each other.
type HostLimiter struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	limit rate.Limit
	burst int
}

// NewHostLimiter creates a limiter allowing reqPerSec requests per host with
// the given burst. A non-positive reqPerSec disables limiting.
func NewHostLimiter(reqPerSec float64, burst int) *HostLimiter {
	limit := rate.Limit(reqPerSec)
	if reqPerSec <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{
		m:     make(map[string]*rate.Limiter),
		limit: limit,
		burst: burst,
	}
}

func (hl *HostLimiter) limiterFor(host string) *rate.Limiter {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	if lim, ok := hl.m[host]; ok {
		return lim
	}
	lim := rate.NewLimiter(hl.limit, hl.burst)
	hl.m[host] = lim
	return lim
}

// WaitURL blocks until a request to raw's host is allowed.
// Unparseable URLs share a single fallback bucket.
func (hl *HostLimiter) WaitURL(ctx context.Context, raw string) error {
	host := "_"
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		host = u.Hostname()
	}
	if err := hl.limiterFor(host).Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait for %s: %w", host, err)
	}
	return nil
}

// Ensure RateLimitedBrowser implements model.Browser.
var _ model.Browser = (*RateLimitedBrowser)(nil)

// RateLimitedBrowser is a decorator that waits on the host limiter before
// delegating to the wrapped Browser.
type RateLimitedBrowser struct {
	inner   model.Browser
	limiter *HostLimiter
}

// NewRateLimitedBrowser wraps a Browser with per-host rate limiting.
// All browsers hitting the same boards should share the same limiter instance.
func NewRateLimitedBrowser(inner model.Browser, limiter *HostLimiter) *RateLimitedBrowser {
	return &RateLimitedBrowser{inner: inner, limiter: limiter}
}

// Fetch waits for the limiter, then delegates to the wrapped browser.
func (b *RateLimitedBrowser) Fetch(ctx context.Context, url string) (model.Page, error) {
	if err := b.limiter.WaitURL(ctx, url); err != nil {
		return nil, err
	}
	return b.inner.Fetch(ctx, url)
}
