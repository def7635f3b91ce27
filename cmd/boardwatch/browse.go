package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/boardwatch/internal/ai"
	"github.com/amishk599/boardwatch/internal/audit"
	"github.com/amishk599/boardwatch/internal/board"
	"github.com/amishk599/boardwatch/internal/config"
	"github.com/amishk599/boardwatch/internal/filter"
	"github.com/amishk599/boardwatch/internal/model"
	"github.com/amishk599/boardwatch/internal/store"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Audit a search's filter interactively (TUI)",
	Long: "Shows the search picker, runs the search without storing or notifying, " +
		"then launches the split-pane view of extracted versus matched postings.",
	RunE: runBrowse,
}

func init() {
	rootCmd.AddCommand(browseCmd)
}

// auditResult is what one audited search produced.
type auditResult struct {
	extracted []model.JobRecord
	matched   []model.JobRecord
}

// searchAuditor runs the first half of a pipeline run (fetch, extract, filter)
// for the browse view.
type searchAuditor struct {
	cfg       *config.Config
	browser   model.Browser
	extractor *ai.Extractor
	filter    *filter.CriterionFilter
}

func (a *searchAuditor) run(ctx context.Context, s config.SearchConfig) (auditResult, error) {
	target := s.URL
	if target == "" {
		u, err := board.SearchURL(a.cfg.Board.BaseURL, s.Keywords, s.Location)
		if err != nil {
			return auditResult{}, err
		}
		target = u
	}

	page, err := a.browser.Fetch(ctx, target)
	if err != nil {
		return auditResult{}, &model.FetchError{URL: target, Err: err}
	}
	defer page.Close()

	content, err := board.Condense(page.HTML(), page.URL())
	if err != nil {
		content = page.HTML()
	}
	source := board.SourceName(page.URL(), s.Keywords, s.Location)
	extracted, err := a.extractor.Extract(ctx, content, source, page.URL())
	if err != nil {
		return auditResult{}, err
	}
	if s.Limit > 0 && len(extracted) > s.Limit {
		extracted = extracted[:s.Limit]
	}

	// A degraded filter still returns every candidate; show what we have.
	res, _ := a.filter.Filter(ctx, extracted, s.Filter)
	return auditResult{extracted: extracted, matched: res.Accepted}, nil
}

func runBrowse(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	searches := cfg.EnabledSearches()
	if len(searches) == 0 {
		fmt.Println("No enabled searches in config.")
		return nil
	}

	provider, err := setupProvider(cfg)
	if err != nil {
		logger.Error("llm not configured", "error", err)
		os.Exit(1)
	}

	backend, closer, err := store.Open(cfg.Store.Type, cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closer.Close()

	// Any log output once the TUI starts corrupts the display.
	silentLogger := slog.New(slog.NewTextHandler(io.Discard, nil))

	browser, release, err := setupBrowser(cfg, cfg.Browser.Headless, silentLogger)
	if err != nil {
		logger.Error("failed to start browser", "error", err)
		os.Exit(1)
	}
	defer release()

	auditor := &searchAuditor{
		cfg:       cfg,
		browser:   browser,
		extractor: ai.NewExtractor(provider, ai.ExtractTemplate, cfg.LLM.MaxContentChars, cfg.LLM.ExtractRetries, cfg.LLM.Timeout, silentLogger),
		filter:    filter.NewCriterionFilter(provider, ai.FilterTemplate, cfg.LLM.Timeout, silentLogger),
	}
	// Extraction retries plus one filter call per posting.
	budget := fetchBudget(cfg) + 10*time.Minute

	for {
		choice, err := audit.RunSearchPicker(searches)
		if err != nil {
			fmt.Printf("Picker error: %v\n", err)
			return nil
		}
		if choice < 0 {
			return nil
		}
		search := searches[choice]

		res, err := audit.RunLoader("Searching "+search.Name, budget, func(ctx context.Context) (auditResult, error) {
			return auditor.run(ctx, search)
		})
		if err != nil {
			fmt.Printf("Error running search: %v\n", err)
			continue
		}

		wantQuit, err := audit.RunAuditTUI(res.extracted, res.matched, search.Filter, backend)
		if err != nil {
			fmt.Printf("TUI error: %v\n", err)
		}
		if wantQuit {
			return nil
		}
		// else: loop → back to picker
	}
}
