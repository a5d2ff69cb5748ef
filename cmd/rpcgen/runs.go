package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ngAnzar/rpc/adapters/sqlite"
	"github.com/ngAnzar/rpc/core/formatter"
	"github.com/ngAnzar/rpc/ports"
	"github.com/spf13/cobra"
)

var runColumns = []string{"id", "started_at", "duration", "written", "skipped", "inputs", "error"}

func newRunsCmd(c *cli) *cobra.Command {
	var cachePath, output string
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent compile runs recorded in the build cache",
		Long: `List the compile runs recorded in the build cache, newest first.

Examples:
  rpcgen runs
  rpcgen runs --limit 5 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if cachePath != "" {
				cfg.Cache.Path = cachePath
			}
			f, err := formatter.Lookup(output)
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.Cache.Path); err != nil {
				return fmt.Errorf("no build cache at %s", cfg.Cache.Path)
			}

			cache, err := sqlite.OpenCache(cmd.Context(), cfg.Cache.Path)
			if err != nil {
				return fmt.Errorf("open build cache: %w", err)
			}
			defer cache.Close()

			runs, err := cache.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			records := make([]map[string]any, len(runs))
			for i, r := range runs {
				records[i] = runRecord(r)
			}
			return f.FormatList(c.stdout, records, formatter.FormatOptions{Columns: runColumns, MaxWidth: 60})
		},
	}
	cmd.Flags().StringVar(&cachePath, "cache", "", "build cache file (default from config)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show; 0 shows all")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json or yaml")
	return cmd
}

func runRecord(r ports.Run) map[string]any {
	rec := map[string]any{
		"id":         r.ID,
		"started_at": r.StartedAt.UTC().Format(time.RFC3339),
		"written":    r.Written,
		"skipped":    r.Skipped,
		"inputs":     r.Inputs,
	}
	if !r.FinishedAt.IsZero() {
		rec["duration"] = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
	}
	if r.Error != "" {
		rec["error"] = r.Error
	}
	return rec
}
