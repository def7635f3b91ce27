package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/boardwatch/internal/adapter"
	"github.com/amishk599/boardwatch/internal/ai"
	"github.com/amishk599/boardwatch/internal/config"
	"github.com/amishk599/boardwatch/internal/filter"
	"github.com/amishk599/boardwatch/internal/model"
	"github.com/amishk599/boardwatch/internal/notifier"
	"github.com/amishk599/boardwatch/internal/pipeline"
	"github.com/amishk599/boardwatch/internal/ratelimit"
	"github.com/amishk599/boardwatch/internal/retry"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "boardwatch",
	Short: "Job board monitor",
	Long:  "Boardwatch searches a job board, extracts postings with an LLM, filters them by a plain-language criterion and alerts you to new ones.",
	// Default to `start` so that `boardwatch` with no args runs the daemon.
	RunE: runStart,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: BOARDWATCH_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > BOARDWATCH_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("BOARDWATCH_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

// setupBrowser builds the configured engine wrapped with per-host rate
// limiting and retries. The returned func releases the engine.
func setupBrowser(cfg *config.Config, headless bool, logger *slog.Logger) (model.Browser, func(), error) {
	var inner model.Browser
	release := func() {}

	switch cfg.Browser.Engine {
	case "http":
		inner = adapter.NewHTTPBrowser(&http.Client{Timeout: cfg.Browser.Timeout}, "")
	default:
		pb, err := adapter.NewPlaywrightBrowser(adapter.PlaywrightOptions{
			Headless: headless,
			Timeout:  cfg.Browser.Timeout,
			Settle:   cfg.Browser.Settle,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		inner = pb
		release = func() {
			if err := pb.Close(); err != nil {
				logger.Warn("failed to close browser", "error", err)
			}
		}
	}

	limiter := ratelimit.NewHostLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	limited := ratelimit.NewRateLimitedBrowser(inner, limiter)
	return retry.NewRetryBrowser(limited, cfg.Browser.Retries, cfg.Browser.RetryDelay, logger), release, nil
}

func setupProvider(cfg *config.Config) (*ai.OpenAIProvider, error) {
	if err := cfg.RequireLLM(); err != nil {
		return nil, err
	}
	httpClient := &http.Client{Timeout: cfg.LLM.Timeout}
	return ai.NewOpenAIProvider(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Temperature, httpClient), nil
}

func setupNotifier(cfg *config.Config, logger *slog.Logger) (model.Notifier, error) {
	n := cfg.Notification
	switch n.Type {
	case "email":
		logger.Info("using email notifier", "to", len(n.Email.To))
		return notifier.NewEmailNotifier(notifier.EmailOptions{
			Host:     n.Email.SMTPHost,
			Port:     n.Email.SMTPPort,
			Username: n.Email.Username,
			Password: n.Email.Password,
			From:     n.Email.From,
			To:       n.Email.To,
		}, logger), nil
	case "slack":
		logger.Info("using slack notifier")
		return notifier.NewSlackNotifier(n.Slack.WebhookURL, &http.Client{Timeout: n.Timeout}, logger), nil
	case "telegram":
		logger.Info("using telegram notifier")
		t, err := notifier.NewTelegramNotifier(notifier.TelegramOptions{
			Token:    n.Telegram.Token,
			ChatID:   n.Telegram.ChatID,
			Endpoint: n.Telegram.APIEndpoint,
			Timeout:  n.Timeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("setup telegram notifier: %w", err)
		}
		return t, nil
	default:
		return notifier.NewLogNotifier(logger), nil
	}
}

// buildPipeline wires every collaborator of a run around browser, store and n.
func buildPipeline(cfg *config.Config, browser model.Browser, store pipeline.Store, n model.Notifier, logger *slog.Logger) (*pipeline.Pipeline, error) {
	provider, err := setupProvider(cfg)
	if err != nil {
		return nil, err
	}

	extractor := ai.NewExtractor(provider, ai.ExtractTemplate, cfg.LLM.MaxContentChars, cfg.LLM.ExtractRetries, cfg.LLM.Timeout, logger)
	criterion := filter.NewCriterionFilter(provider, ai.FilterTemplate, cfg.LLM.Timeout, logger)

	var summarizer ai.Summarizer = ai.NewNopSummarizer()
	if cfg.LLM.Summary {
		summarizer = ai.NewLLMSummarizer(provider, ai.SummaryTemplate, cfg.LLM.Timeout, logger)
	}

	deps := pipeline.Deps{
		Browser:    browser,
		Extractor:  extractor,
		Filter:     criterion,
		Store:      store,
		Notifier:   n,
		Summarizer: summarizer,
	}
	opts := pipeline.Options{
		BoardURL:       cfg.Board.BaseURL,
		FetchTimeout:   fetchBudget(cfg),
		NotifyTimeout:  cfg.Notification.Timeout,
		CaptureTimeout: cfg.Browser.Timeout,
		ScreenshotDir:  cfg.Browser.ScreenshotDir,
	}
	return pipeline.New(deps, opts, logger), nil
}

// fetchBudget bounds a whole fetch including retries, their backoff and
// the wait for a rate limit token shared by concurrent searches.
func fetchBudget(cfg *config.Config) time.Duration {
	b := cfg.Browser
	budget := time.Duration(b.Retries+1) * (b.Timeout + b.Settle)
	delay := b.RetryDelay
	for i := 0; i < b.Retries; i++ {
		budget += delay + delay/2 // jitter headroom
		delay *= 2
	}
	if rps := cfg.RateLimit.RequestsPerSecond; rps > 0 {
		budget += time.Duration(float64(time.Second)/rps) * time.Duration(cfg.Concurrency*(b.Retries+1))
	}
	return budget
}

func runContext(s config.SearchConfig, notify bool) pipeline.RunContext {
	return pipeline.RunContext{
		URL:       s.URL,
		Keywords:  s.Keywords,
		Location:  s.Location,
		Criterion: s.Filter,
		Notify:    notify,
		Limit:     s.Limit,
	}
}
