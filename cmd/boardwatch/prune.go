package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/boardwatch/internal/store"
)

var pruneOlderThan time.Duration

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete stored jobs extracted before a cutoff",
	Long:  "Removes stored jobs older than --older-than. Pruned jobs can be notified again if they reappear on the board.",
	RunE:  runPrune,
}

func init() {
	pruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 720*time.Hour, "age after which stored jobs are removed")
	rootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if pruneOlderThan <= 0 {
		logger.Error("--older-than must be positive")
		os.Exit(1)
	}

	backend, closer, err := store.Open(cfg.Store.Type, cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closer.Close()

	cutoff := time.Now().Add(-pruneOlderThan)
	removed, err := backend.Prune(context.Background(), cutoff)
	if err != nil {
		logger.Error("prune failed", "error", err)
		os.Exit(1)
	}
	logger.Info("prune complete", "removed", removed, "remaining", backend.Len(), "cutoff", cutoff.Format(time.RFC3339))
	return nil
}
