package adapter

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/amishk599/boardwatch/internal/model"
)

// Ensure HTTPBrowser implements model.Browser.
var _ model.Browser = (*HTTPBrowser)(nil)

// maxPageBytes bounds how much of a response body is read.
const maxPageBytes = 8 << 20

// HTTPBrowser fetches pages with a plain GET. It does not run scripts or
// render images, so its pages cannot take screenshots.
type HTTPBrowser struct {
	client    *http.Client
	userAgent string
}

// NewHTTPBrowser returns a browser backed by client. An empty userAgent picks one at random.
func NewHTTPBrowser(client *http.Client, userAgent string) *HTTPBrowser {
	if userAgent == "" {
		userAgent = randomUserAgent()
	}
	return &HTTPBrowser{client: client, userAgent: userAgent}
}

// Fetch GETs url. Non-2xx responses are returned as *model.HTTPError.
func (b *HTTPBrowser) Fetch(ctx context.Context, url string) (model.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("http fetch %s: %w", url, err)
	}
	req.Header.Set("User-Agent", b.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: model.ParseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("http fetch %s: unexpected status", url),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("http fetch %s: read body: %w", url, err)
	}

	return &staticPage{url: resp.Request.URL.String(), html: string(body)}, nil
}

// staticPage is a fetched document with no live browser behind it.
type staticPage struct {
	url  string
	html string
}

func (p *staticPage) URL() string  { return p.url }
func (p *staticPage) HTML() string { return p.html }
func (p *staticPage) Close() error { return nil }

func (p *staticPage) Screenshot(context.Context, string) error {
	return model.ErrScreenshotUnsupported
}
