package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var searchesCmd = &cobra.Command{
	Use:   "searches",
	Short: "List all configured searches",
	Long:  "Reads the config and prints a table of all configured searches.",
	RunE:  runSearches,
}

func init() {
	rootCmd.AddCommand(searchesCmd)
}

func runSearches(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%-20s %-25s %-15s %-8s %s\n", "Search", "Keywords", "Location", "Filter", "Status")
	fmt.Println(strings.Repeat("─", 80))

	enabled, disabled := 0, 0
	for _, s := range cfg.Searches {
		status := "enabled"
		if !s.Enabled {
			status = "disabled"
			disabled++
		} else {
			enabled++
		}
		keywords := s.Keywords
		if s.URL != "" {
			keywords = "(url)"
		}
		hasFilter := "no"
		if s.Filter != "" {
			hasFilter = "yes"
		}
		fmt.Printf("%-20s %-25s %-15s %-8s %s\n", truncate(s.Name, 20), truncate(keywords, 25), truncate(orDash(s.Location), 15), hasFilter, status)
	}

	fmt.Printf("\nTotal: %d searches (%d enabled, %d disabled)\n", len(cfg.Searches), enabled, disabled)
	return nil
}
