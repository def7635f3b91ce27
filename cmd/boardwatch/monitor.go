package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/boardwatch/internal/config"
	"github.com/amishk599/boardwatch/internal/model"
	"github.com/amishk599/boardwatch/internal/pipeline"
	"github.com/amishk599/boardwatch/internal/store"
)

var monitorFlags struct {
	keywords string
	location string
	filter   string
	url      string
	limit    int
	noEmail  bool
	dryRun   bool
}

var monitorCmd = &cobra.Command{
	Use:   "monitor-jobs",
	Short: "Run one search, print new jobs, exit",
	Long: "Fetches one board search, extracts and filters postings, stores the new ones and notifies. " +
		"Exits non-zero when the run fails.",
	RunE: runMonitor,
}

func init() {
	f := monitorCmd.Flags()
	f.StringVarP(&monitorFlags.keywords, "keywords", "k", "", "search keywords")
	f.StringVarP(&monitorFlags.location, "location", "l", "", "search location")
	f.StringVarP(&monitorFlags.filter, "filter", "f", "", "plain-language criterion postings must match")
	f.StringVar(&monitorFlags.url, "url", "", "explicit board page URL (overrides keywords and location)")
	f.IntVarP(&monitorFlags.limit, "limit", "n", 0, "max postings considered after extraction (0 = no limit)")
	f.BoolVar(&monitorFlags.noEmail, "no-email", false, "do not send notifications")
	f.BoolVar(&monitorFlags.dryRun, "dry-run", false, "dedup against the store but do not write to it")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	if monitorFlags.keywords == "" && monitorFlags.url == "" {
		return fmt.Errorf("either --keywords or --url is required")
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	backend, closer, err := store.Open(cfg.Store.Type, cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closer.Close()

	var jobStore pipeline.Store = backend
	if monitorFlags.dryRun {
		logger.Info("dry-run mode: no jobs will be stored")
		jobStore = store.NewDryRunStore(backend)
	}

	var n model.Notifier
	if !monitorFlags.noEmail {
		if n, err = setupNotifier(cfg, logger); err != nil {
			logger.Error("failed to set up notifier", "error", err)
			os.Exit(1)
		}
	}

	browser, release, err := setupBrowser(cfg, cfg.Browser.Headless, logger)
	if err != nil {
		logger.Error("failed to start browser", "error", err)
		os.Exit(1)
	}
	defer release()

	p, err := buildPipeline(cfg, browser, jobStore, n, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rc := runContext(config.SearchConfig{
		Keywords: monitorFlags.keywords,
		Location: monitorFlags.location,
		URL:      monitorFlags.url,
		Filter:   monitorFlags.filter,
		Limit:    monitorFlags.limit,
	}, !monitorFlags.noEmail)

	out := p.Run(ctx, rc)
	printOutcome(out)

	if !out.OK() {
		stop()
		release()
		closer.Close()
		os.Exit(1)
	}
	return nil
}
