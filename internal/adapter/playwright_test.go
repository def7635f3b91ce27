package adapter

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Requires installed browsers: go run github.com/playwright-community/playwright-go/cmd/playwright install chromium
func TestPlaywrightBrowser_RendersAndCaptures(t *testing.T) {
	if os.Getenv("BOARDWATCH_PLAYWRIGHT") == "" {
		t.Skip("set BOARDWATCH_PLAYWRIGHT=1 to run browser tests")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><div id="out"></div>
			<script>document.getElementById('out').textContent = navigator.webdriver === undefined ? 'stealth' : 'detected';</script>
			</body></html>`))
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b, err := NewPlaywrightBrowser(PlaywrightOptions{Headless: true, Timeout: 20 * time.Second}, logger)
	if err != nil {
		t.Fatalf("NewPlaywrightBrowser: %v", err)
	}
	defer b.Close()

	page, err := b.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer page.Close()

	if !strings.Contains(page.HTML(), "stealth") {
		t.Errorf("expected rendered DOM with webdriver hidden, got %q", page.HTML())
	}

	shot := filepath.Join(t.TempDir(), "shots", "page.png")
	if err := page.Screenshot(context.Background(), shot); err != nil {
		t.Fatalf("Screenshot: %v", err)
	}
	if fi, err := os.Stat(shot); err != nil || fi.Size() == 0 {
		t.Errorf("screenshot not written: %v", err)
	}
}

func TestPlaywrightBrowser_NavigationTimeoutHonoursDeadline(t *testing.T) {
	b := &PlaywrightBrowser{opts: PlaywrightOptions{Timeout: time.Minute}}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if got := b.navigationTimeout(ctx); got > 2*time.Second {
		t.Errorf("timeout = %v, want <= 2s", got)
	}
	if got := b.navigationTimeout(context.Background()); got != time.Minute {
		t.Errorf("timeout = %v, want 1m", got)
	}
}
