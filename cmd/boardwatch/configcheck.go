package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var configCheckCmd = &cobra.Command{
	Use:   "config-check",
	Short: "Validate the config and print effective settings",
	Long:  "Loads the config (and .env), validates it and prints the effective settings with secrets masked.",
	RunE:  runConfigCheck,
}

func init() {
	rootCmd.AddCommand(configCheckCmd)
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Println(failStyle.Render("✗ config is invalid"))
		fmt.Printf("  %v\n", err)
		os.Exit(1)
	}
	fmt.Println(okStyle.Render("✓ config is valid"))

	settings := [][2]string{
		{"polling_interval", cfg.PollingInterval.String()},
		{"concurrency", fmt.Sprint(cfg.Concurrency)},
		{"board.base_url", cfg.Board.BaseURL},
		{"searches", fmt.Sprintf("%d (%d enabled)", len(cfg.Searches), len(cfg.EnabledSearches()))},
		{"browser.engine", cfg.Browser.Engine},
		{"browser.headless", fmt.Sprint(cfg.Browser.Headless)},
		{"browser.timeout", cfg.Browser.Timeout.String()},
		{"browser.retries", fmt.Sprintf("%d (base delay %s)", cfg.Browser.Retries, cfg.Browser.RetryDelay)},
		{"browser.screenshot_dir", orDash(cfg.Browser.ScreenshotDir)},
		{"llm.base_url", cfg.LLM.BaseURL},
		{"llm.model", cfg.LLM.Model},
		{"llm.api_key", mask(cfg.LLM.APIKey)},
		{"llm.temperature", fmt.Sprint(cfg.LLM.Temperature)},
		{"llm.summary", fmt.Sprint(cfg.LLM.Summary)},
		{"store", fmt.Sprintf("%s at %s", cfg.Store.Type, cfg.Store.Path)},
		{"rate_limit", fmt.Sprintf("%g req/s per host, burst %d", cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)},
		{"notification.type", cfg.Notification.Type},
	}

	n := cfg.Notification
	switch n.Type {
	case "email":
		settings = append(settings,
			[2]string{"notification.email.smtp", fmt.Sprintf("%s:%d", n.Email.SMTPHost, n.Email.SMTPPort)},
			[2]string{"notification.email.username", n.Email.Username},
			[2]string{"notification.email.password", mask(n.Email.Password)},
			[2]string{"notification.email.to", strings.Join(n.Email.To, ", ")},
		)
	case "slack":
		settings = append(settings, [2]string{"notification.slack.webhook_url", mask(n.Slack.WebhookURL)})
	case "telegram":
		settings = append(settings,
			[2]string{"notification.telegram.token", mask(n.Telegram.Token)},
			[2]string{"notification.telegram.chat_id", fmt.Sprint(n.Telegram.ChatID)},
		)
	}

	for _, kv := range settings {
		fmt.Printf("  %-32s %s\n", kv[0], kv[1])
	}

	if err := cfg.RequireLLM(); err != nil {
		fmt.Println(warnStyle.Render("  warning: " + err.Error()))
	}
	return nil
}
