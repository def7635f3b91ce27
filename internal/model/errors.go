package model

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// ParseRetryAfter parses the Retry-After header value into a duration.
// Supports seconds format (e.g. "120"). Returns zero if absent or unparseable.
func ParseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// ErrScreenshotUnsupported is returned by pages that cannot render an image.
var ErrScreenshotUnsupported = errors.New("screenshot not supported by this browser")

// FetchError reports that the board page could not be navigated or rendered.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ExtractionError reports that the model never produced parseable output.
type ExtractionError struct {
	Source   string
	Attempts int
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: no parseable output after %d attempts: %v", e.Source, e.Attempts, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// FilterDegradedError reports that the criterion could not be evaluated at all.
// Callers continue with the unfiltered candidates.
type FilterDegradedError struct {
	Criterion string
	Err       error
}

func (e *FilterDegradedError) Error() string {
	return fmt.Sprintf("filter %q degraded: %v", e.Criterion, e.Err)
}

func (e *FilterDegradedError) Unwrap() error { return e.Err }

// StorageError reports a failure to read or durably write the job store.
type StorageError struct {
	Path string
	Op   string // "load", "persist", "lock"
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NotificationError reports a failed notification delivery.
type NotificationError struct {
	Channel string
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify via %s: %v", e.Channel, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }
