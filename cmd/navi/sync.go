package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jask/navi/internal/tui"
)

func newSyncCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued writes and refresh the cache from the remote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.engine.Resync(ctx)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "applied %d, skipped %d, dropped %d, remaining %d\n",
				report.Applied, report.Skipped, report.Dropped, report.Remaining)
			if len(report.IDs) > 0 {
				locals := make([]string, 0, len(report.IDs))
				for id := range report.IDs {
					locals = append(locals, id)
				}
				sort.Strings(locals)
				rows := make([][]string, 0, len(locals))
				for _, id := range locals {
					rows = append(rows, []string{id, report.IDs[id]})
				}
				fmt.Fprintln(out, tui.Table([]string{"Local id", "Server id"}, rows))
			}
			return err
		},
	}
}
