package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"csfdoverlay/internal/logs"
)

const logFileName = "csfdoverlay.log"

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int
	var filter logs.Filter
	var raw bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Paths.LogDir, logFileName)
			out := cmd.OutOrStdout()
			runCtx := cmd.Context()

			opts := logs.TailOptions{Offset: -1, Limit: lines, Match: filter.Matches}
			if lines <= 0 {
				opts.Offset = 0
			}
			printed := false
			for {
				result, err := logs.Tail(runCtx, path, opts)
				if err != nil {
					if follow && runCtx.Err() != nil {
						return nil
					}
					return fmt.Errorf("tail logs: %w", err)
				}
				for _, line := range result.Lines {
					fmt.Fprintln(out, formatLogLine(line, raw))
					printed = true
				}
				if !follow {
					if !printed {
						fmt.Fprintln(out, "No log entries available")
					}
					return nil
				}
				opts = logs.TailOptions{Offset: result.Offset, Follow: true, Wait: time.Second, Match: filter.Matches}
			}
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of lines to show (0 for all)")
	cmd.Flags().StringVar(&filter.MinLevel, "level", "", "Minimum level (debug, info, warn, error)")
	cmd.Flags().StringVar(&filter.Component, "component", "", "Only show this component")
	cmd.Flags().StringVar(&filter.ItemID, "item", "", "Only show this library item")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print JSON lines unchanged")
	return cmd
}

func formatLogLine(line string, raw bool) string {
	if raw {
		return line
	}
	if rec, ok := logs.ParseRecord(line); ok {
		return rec.Format()
	}
	return line
}

func newJournalCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var contextFilter string
	var preview bool

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recorded CSFD request failures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			entries, err := logs.ReadJournal(cmd.Context(), cfg.FailureJournalPath(), logs.JournalOptions{
				Limit:   limit,
				Context: contextFilter,
			})
			if err != nil {
				return fmt.Errorf("read failure journal: %w", err)
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, entries)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No recorded failures")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					entry.Timestamp.Local().Format("2006-01-02 15:04:05"),
					entry.Context,
					entry.Reason,
					entry.URL,
				})
			}
			fmt.Fprintln(out, renderTable([]string{"Time", "Context", "Reason", "URL"}, rows, nil))
			if preview {
				last := entries[len(entries)-1]
				fmt.Fprintf(out, "\nResponse preview (%s):\n%s\n", last.Context, last.ResponsePreview)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "lines", "n", 20, "Number of entries to show (0 for all)")
	cmd.Flags().StringVar(&contextFilter, "context", "", "Only show entries whose context contains this text")
	cmd.Flags().BoolVar(&preview, "preview", false, "Print the response preview of the newest entry")
	return cmd
}
