package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"csfdoverlay/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue, cache and throttle state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *api.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, status)
				}
				out := cmd.OutOrStdout()
				for _, line := range renderStatus(status, shouldColorize(out)) {
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}
}

func renderStatus(status api.StatusResponse, colorize bool) []string {
	var lines []string
	lines = append(lines, renderSectionHeader("Queue", colorize)...)
	queueKind := statusOK
	if status.IsPaused {
		queueKind = statusWarn
	}
	lines = append(lines,
		renderStatusLine("Pending", statusInfo, strconv.Itoa(status.QueueSize), colorize),
		renderStatusLine("Paused", queueKind, yesNo(status.IsPaused), colorize),
		renderStatusLine("Library items", statusInfo, strconv.Itoa(status.TotalLibraryItems), colorize),
	)

	stats := status.CacheStats
	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Cache", colorize)...)
	lines = append(lines,
		renderStatusLine("Entries", statusInfo, strconv.Itoa(stats.TotalEntries), colorize),
		renderStatusLine("Resolved", statusOK, strconv.Itoa(stats.Resolved), colorize),
		renderStatusLine("Not found", countKind(stats.NotFound, statusWarn), strconv.Itoa(stats.NotFound), colorize),
		renderStatusLine("Errors", countKind(stats.Errors, statusError), strconv.Itoa(stats.Errors), colorize),
	)

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Remote", colorize)...)
	if status.Throttle == nil {
		lines = append(lines, renderStatusLine("Throttle", statusOK, "none", colorize))
	} else {
		msg := fmt.Sprintf("cooling down until %s (backoff %ss)",
			status.Throttle.CooldownUntil, strconv.FormatFloat(status.Throttle.BackoffSeconds, 'f', 0, 64))
		lines = append(lines, renderStatusLine("Throttle", statusWarn, msg, colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Overlay", colorize)...)
	overlayKind := statusOK
	if !status.InjectionEnabled || strings.TrimSpace(status.InjectionMessage) != "" {
		overlayKind = statusWarn
	}
	lines = append(lines, renderStatusLine("Injection", overlayKind, injectionText(status), colorize))
	return lines
}

func countKind(n int, nonZero statusKind) statusKind {
	if n > 0 {
		return nonZero
	}
	return statusOK
}

func injectionText(status api.StatusResponse) string {
	text := "enabled"
	if !status.InjectionEnabled {
		text = "disabled"
	}
	if msg := strings.TrimSpace(status.InjectionMessage); msg != "" && status.InjectionEnabled {
		text += "; " + msg
	}
	return text
}
