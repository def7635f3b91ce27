package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/boardwatch/internal/model"
	"github.com/amishk599/boardwatch/internal/store"
)

var showFlags struct {
	limit  int
	source string
}

var showCmd = &cobra.Command{
	Use:   "show-jobs",
	Short: "List stored jobs, newest first",
	RunE:  runShow,
}

func init() {
	showCmd.Flags().IntVarP(&showFlags.limit, "limit", "n", 20, "max jobs to print (0 = all)")
	showCmd.Flags().StringVar(&showFlags.source, "source", "", "only jobs whose source contains this text")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	backend, closer, err := store.Open(cfg.Store.Type, cfg.Store.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	jobs := newestFirst(backend.Records(), showFlags.source, showFlags.limit)

	lastRun := "never"
	if t := backend.LastRun(); !t.IsZero() {
		lastRun = t.Local().Format(time.RFC1123)
	}
	fmt.Println(mutedStyle.Render(fmt.Sprintf("store: %s (%s) | %d jobs | last run: %s",
		cfg.Store.Path, cfg.Store.Type, backend.Len(), lastRun)))

	if len(jobs) == 0 {
		fmt.Println("No jobs stored yet.")
		return nil
	}
	fmt.Println(jobsTable(jobs))
	return nil
}

// newestFirst reverses insertion order, keeps records whose source contains
// source and returns at most limit of them.
func newestFirst(records []model.JobRecord, source string, limit int) []model.JobRecord {
	out := make([]model.JobRecord, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		if source != "" && !strings.Contains(strings.ToLower(r.Source), strings.ToLower(source)) {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
