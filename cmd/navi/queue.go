package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jask/navi/internal/tui"
)

func newQueueCmd(c *cli) *cobra.Command {
	var clear bool
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List writes waiting for the remote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if clear {
				if err := a.cache.ClearPendingOperations(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, "queue cleared")
				return nil
			}

			ops, err := a.cache.PendingOperations(ctx)
			if err != nil {
				return err
			}
			if len(ops) == 0 {
				fmt.Fprintln(out, tui.Muted("nothing queued"))
				return nil
			}
			rows := make([][]string, 0, len(ops))
			for _, op := range ops {
				rows = append(rows, []string{
					op.Collection,
					string(op.Op),
					op.RecordID(),
					humanize.Time(time.Unix(0, op.Timestamp)),
					strconv.Itoa(op.Attempts),
					op.LastError,
				})
			}
			fmt.Fprintln(out, tui.Table([]string{"Collection", "Op", "Record", "Queued", "Attempts", "Last error"}, rows))
			return nil
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "discard every queued write")
	return cmd
}
