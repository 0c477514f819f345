package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"csfdoverlay/internal/api"
)

type actionDef struct {
	use   string
	short string
}

var actionDefs = []actionDef{
	{use: "pause", short: "Pause the fetch queue"},
	{use: "resume", short: "Resume the fetch queue"},
	{use: "backfill", short: "Queue every library item that needs a lookup"},
	{use: "retry-notfound", short: "Retry items no match was found for"},
	{use: "retry-errors", short: "Retry items whose lookup failed"},
	{use: "reset-cache", short: "Drop every cached rating"},
}

func newActionCommands(ctx *commandContext) []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(actionDefs))
	for _, def := range actionDefs {
		cmds = append(cmds, newActionCommand(ctx, def))
	}
	return cmds
}

func newActionCommand(ctx *commandContext, def actionDef) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   def.use,
		Short: def.short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if def.use == "reset-cache" && !yes {
				return fmt.Errorf("reset-cache removes every cached rating; rerun with --yes to confirm")
			}
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Action(cmd.Context(), def.use)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintln(cmd.OutOrStdout(), describeAction(def.use, resp))
				return nil
			})
		},
	}
	if def.use == "reset-cache" {
		cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm removal of all cached ratings")
	}
	return cmd
}

func describeAction(name string, resp api.ActionResponse) string {
	switch {
	case resp.Enqueued != nil:
		return fmt.Sprintf("%s: queued %d item(s)", name, *resp.Enqueued)
	case resp.Removed != nil:
		return fmt.Sprintf("Cache cleared: removed %d entr%s", *resp.Removed, plural(*resp.Removed, "y", "ies"))
	case resp.Status != "":
		return fmt.Sprintf("Queue %s", resp.Status)
	default:
		return name + ": done"
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
