package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/amishk599/boardwatch/internal/model"
)

// Ensure PlaywrightBrowser implements model.Browser.
var _ model.Browser = (*PlaywrightBrowser)(nil)

// PlaywrightOptions configures the headless Chromium browser.
type PlaywrightOptions struct {
	Headless bool
	Timeout  time.Duration // navigation timeout
	Settle   time.Duration // pause after load so client-rendered results appear
}

// PlaywrightBrowser renders pages in Chromium with stealth settings.
// Each Fetch opens a fresh browser context, closed with the page.
type PlaywrightBrowser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    PlaywrightOptions
	logger  *slog.Logger
}

// NewPlaywrightBrowser starts the Playwright driver and launches Chromium.
// Call Close to shut both down.
func NewPlaywrightBrowser(opts PlaywrightOptions, logger *slog.Logger) (*PlaywrightBrowser, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     launchArgs,
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	logger.Debug("browser launched", "headless", opts.Headless, "timeout", opts.Timeout)
	return &PlaywrightBrowser{pw: pw, browser: browser, opts: opts, logger: logger}, nil
}

// Fetch navigates to url and waits for the DOM to load.
func (b *PlaywrightBrowser) Fetch(ctx context.Context, url string) (model.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timeout := b.navigationTimeout(ctx)

	bctx, err := b.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(randomUserAgent()),
		Viewport:  &playwright.Size{Width: 1920, Height: 1080},
		Locale:    playwright.String("en-US"),
	})
	if err != nil {
		return nil, fmt.Errorf("new browser context: %w", err)
	}
	if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(stealthScript)}); err != nil {
		bctx.Close()
		return nil, fmt.Errorf("add init script: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	page.SetDefaultTimeout(float64(timeout.Milliseconds()))

	resp, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	if resp != nil && resp.Status() >= 400 {
		bctx.Close()
		return nil, &model.HTTPError{StatusCode: resp.Status(), Err: fmt.Errorf("navigate %s", url)}
	}

	if b.opts.Settle > 0 {
		select {
		case <-ctx.Done():
			bctx.Close()
			return nil, ctx.Err()
		case <-time.After(b.opts.Settle):
		}
	}

	html, err := page.Content()
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("read page content: %w", err)
	}

	b.logger.Debug("page rendered", "url", page.URL(), "bytes", len(html))
	return &renderedPage{page: page, bctx: bctx, html: html}, nil
}

// navigationTimeout shortens the configured timeout to the context deadline.
func (b *PlaywrightBrowser) navigationTimeout(ctx context.Context) time.Duration {
	timeout := b.opts.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = max(left, time.Millisecond)
		}
	}
	return timeout
}

// Close shuts down Chromium and the Playwright driver.
func (b *PlaywrightBrowser) Close() error {
	if err := b.browser.Close(); err != nil {
		b.pw.Stop()
		return fmt.Errorf("close browser: %w", err)
	}
	if err := b.pw.Stop(); err != nil {
		return fmt.Errorf("stop playwright: %w", err)
	}
	return nil
}

type renderedPage struct {
	page playwright.Page
	bctx playwright.BrowserContext
	html string
}

func (p *renderedPage) URL() string  { return p.page.URL() }
func (p *renderedPage) HTML() string { return p.html }

// Screenshot writes a full-page PNG to path, creating parent directories.
func (p *renderedPage) Screenshot(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create screenshot dir: %w", err)
	}
	if _, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	}); err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}
	return nil
}

func (p *renderedPage) Close() error {
	return p.bctx.Close()
}
