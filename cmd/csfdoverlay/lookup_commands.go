package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"csfdoverlay/internal/api"
)

func newGetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "get <item-id> [item-id...]",
		Short: "Show cached ratings, queueing unknown items",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				var ratings api.BatchResponse
				if len(args) == 1 {
					rating, err := client.Get(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					ratings = api.BatchResponse{rating.ItemID: rating}
				} else {
					var err error
					if ratings, err = client.Batch(cmd.Context(), args); err != nil {
						return err
					}
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, ratings)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderRatings(ratings, shouldColorize(out)))
				return nil
			})
		},
	}
}

func renderRatings(ratings api.BatchResponse, colorize bool) string {
	ids := make([]string, 0, len(ratings))
	for id := range ratings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		r := ratings[id]
		rows = append(rows, []string{id, ratingStatusCell(r.Status, colorize), optionalPercent(r.Percent), r.DisplayText, r.CSFDID})
	}
	return renderTable([]string{"Item", "Status", "Rating", "Stars", "CSFD"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight})
}

func newUnmatchedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unmatched",
		Short: "List library items without a rating",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *api.Client) error {
				items, err := client.Unmatched(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, items)
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "Every looked-up item has a rating")
					return nil
				}
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{item.ItemID, item.Title, optionalYear(item.Year),
						ratingStatusCell(item.Status, colorize), item.LastError})
				}
				fmt.Fprintln(out, renderTable([]string{"Item", "Title", "Year", "Status", "Last error"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newEntryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "entry <item-id>",
		Short: "Show the full cache entry of an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				details, err := client.Entry(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, details)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderEntry(details, shouldColorize(out)))
				return nil
			})
		},
	}
}

func renderEntry(details api.EntryDetails, colorize bool) string {
	e := details.Entry
	library := details.LibraryTitle
	if year := optionalYear(details.LibraryYear); year != "" {
		library = fmt.Sprintf("%s (%s)", library, year)
	}
	matched := e.MatchedTitle
	if year := optionalYear(e.MatchedYear); year != "" && matched != "" {
		matched = fmt.Sprintf("%s (%s)", matched, year)
	}
	return renderFields([][2]string{
		{"Item", e.ItemID},
		{"Library title", library},
		{"Status", ratingStatusCell(e.Status, colorize)},
		{"CSFD id", e.CSFDID},
		{"Rating", optionalPercent(e.Percent)},
		{"Stars", e.DisplayText},
		{"Matched", matched},
		{"Query", e.QueryUsed},
		{"Attempts", strconv.Itoa(e.AttemptCount)},
		{"Last error", e.LastError},
		{"Retry after", e.RetryAfter},
		{"Attempted", e.AttemptedAt},
		{"Updated", e.UpdatedAt},
		{"Fingerprint", e.Fingerprint},
	})
}

func newSearchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search CSFD directly",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return ctx.withClient(func(client *api.Client) error {
				candidates, err := client.Search(cmd.Context(), query)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, candidates)
				}
				out := cmd.OutOrStdout()
				if len(candidates) == 0 {
					fmt.Fprintf(out, "No results for %q\n", query)
					return nil
				}
				rows := make([][]string, 0, len(candidates))
				for _, c := range candidates {
					kind := "movie"
					if c.IsSeries {
						kind = "series"
					}
					rows = append(rows, []string{c.CSFDID, c.Title, optionalYear(c.Year), kind})
				}
				fmt.Fprintln(out, renderTable([]string{"CSFD", "Title", "Year", "Kind"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newMatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "match <item-id> <csfd-id>",
		Short: "Pin an item to a CSFD record and fetch its rating",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				entry, err := client.Match(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, entry)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Matched %s to CSFD %s: %s %s\n",
					entry.ItemID, entry.CSFDID, optionalPercent(entry.Percent), entry.DisplayText)
				return nil
			})
		},
	}
}

func optionalPercent(value *int) string {
	if value == nil {
		return ""
	}
	return strconv.Itoa(*value) + "%"
}

func optionalYear(value *int) string {
	if value == nil || *value == 0 {
		return ""
	}
	return strconv.Itoa(*value)
}
