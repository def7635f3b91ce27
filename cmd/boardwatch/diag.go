package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/boardwatch/internal/board"
	"github.com/amishk599/boardwatch/internal/model"
)

var testBrowserFlags struct {
	url    string
	headed bool
	out    string
}

var testBrowserCmd = &cobra.Command{
	Use:   "test-browser",
	Short: "Open a board page and take a screenshot",
	Long:  "Fetches one page with the configured browser stack (rate limit and retries included), condenses it and saves a screenshot.",
	RunE:  runTestBrowser,
}

var testLLMPrompt string

var testLLMCmd = &cobra.Command{
	Use:   "test-llm",
	Short: "Send one prompt to the configured LLM",
	RunE:  runTestLLM,
}

func init() {
	testBrowserCmd.Flags().StringVar(&testBrowserFlags.url, "url", "", "page to open (default: a board search for \"software engineer\")")
	testBrowserCmd.Flags().BoolVar(&testBrowserFlags.headed, "headed", false, "show the browser window")
	testBrowserCmd.Flags().StringVar(&testBrowserFlags.out, "out", "screenshots/test_browser.png", "screenshot path")
	testLLMCmd.Flags().StringVar(&testLLMPrompt, "prompt", "Reply with the single word OK.", "prompt to send")
	rootCmd.AddCommand(testBrowserCmd, testLLMCmd)
}

func runTestBrowser(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	target := testBrowserFlags.url
	if target == "" {
		if target, err = board.SearchURL(cfg.Board.BaseURL, "software engineer", ""); err != nil {
			logger.Error("failed to build search url", "error", err)
			os.Exit(1)
		}
	}

	browser, release, err := setupBrowser(cfg, !testBrowserFlags.headed, logger)
	if err != nil {
		logger.Error("failed to start browser", "error", err)
		os.Exit(1)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), fetchBudget(cfg))
	defer cancel()

	start := time.Now()
	page, err := browser.Fetch(ctx, target)
	if err != nil {
		logger.Error("fetch failed", "url", target, "error", err)
		os.Exit(1)
	}
	defer page.Close()

	content, err := board.Condense(page.HTML(), page.URL())
	if err != nil {
		logger.Warn("condense failed", "error", err)
	}
	logger.Info("page loaded",
		"url", page.URL(),
		"elapsed", time.Since(start).Round(time.Millisecond),
		"html_bytes", len(page.HTML()),
		"condensed_chars", len(content),
	)

	if err := os.MkdirAll(filepath.Dir(testBrowserFlags.out), 0o755); err != nil {
		logger.Error("failed to create screenshot dir", "error", err)
		os.Exit(1)
	}
	if err := page.Screenshot(ctx, testBrowserFlags.out); err != nil {
		if errors.Is(err, model.ErrScreenshotUnsupported) {
			logger.Warn("screenshot skipped", "engine", cfg.Browser.Engine, "reason", err)
			return nil
		}
		logger.Error("screenshot failed", "error", err)
		os.Exit(1)
	}
	logger.Info("screenshot saved", "path", testBrowserFlags.out)
	return nil
}

func runTestLLM(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	provider, err := setupProvider(cfg)
	if err != nil {
		logger.Error("llm not configured", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.LLM.Timeout)
	defer cancel()

	start := time.Now()
	reply, err := provider.Complete(ctx, testLLMPrompt)
	if err != nil {
		logger.Error("completion failed", "model", provider.Model(), "error", err)
		os.Exit(1)
	}
	logger.Info("completion ok", "model", provider.Model(), "elapsed", time.Since(start).Round(time.Millisecond))
	fmt.Println(reply)
	return nil
}
