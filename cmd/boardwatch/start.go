package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/boardwatch/internal/scheduler"
	"github.com/amishk599/boardwatch/internal/store"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the monitoring daemon",
	Long:  "Start the scheduler daemon; runs every enabled search each polling interval and blocks until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	searches := cfg.EnabledSearches()
	logger.Info("config loaded",
		"interval", cfg.PollingInterval.String(),
		"searches", len(searches),
		"engine", cfg.Browser.Engine,
		"store", cfg.Store.Type,
		"notifier", cfg.Notification.Type,
	)
	if len(searches) == 0 {
		logger.Error("no searches to run")
		os.Exit(1)
	}

	backend, closer, err := store.Open(cfg.Store.Type, cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closer.Close()

	n, err := setupNotifier(cfg, logger)
	if err != nil {
		logger.Error("failed to set up notifier", "error", err)
		os.Exit(1)
	}

	browser, release, err := setupBrowser(cfg, cfg.Browser.Headless, logger)
	if err != nil {
		logger.Error("failed to start browser", "error", err)
		os.Exit(1)
	}
	defer release()

	p, err := buildPipeline(cfg, browser, backend, n, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	scheduled := make([]scheduler.Search, 0, len(searches))
	for _, s := range searches {
		scheduled = append(scheduled, scheduler.Search{Name: s.Name, Run: runContext(s, true)})
		logger.Info("registered search", "name", s.Name, "keywords", s.Keywords, "location", s.Location, "filter", s.Filter != "")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.NewScheduler(p, scheduled, cfg.PollingInterval, cfg.Concurrency, logger)
	if err := sched.Run(ctx); err != nil {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}
