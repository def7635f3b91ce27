package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/boardwatch/internal/notifier"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Notification subcommands",
}

var notifyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a test notification",
	Long:  "Sends a test notification using the configured notifier.",
	RunE:  runNotifyTest,
}

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifyTestCmd)
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	n, err := setupNotifier(cfg, logger)
	if err != nil {
		logger.Error("failed to set up notifier", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Notification.Timeout)
	defer cancel()

	if err := notifier.SendTestMessage(ctx, n); err != nil {
		logger.Error("test notification failed", "type", cfg.Notification.Type, "error", err)
		os.Exit(1)
	}
	logger.Info("test notification sent successfully", "type", cfg.Notification.Type)
	return nil
}
