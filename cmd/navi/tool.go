package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jask/navi/internal/tools"
	"github.com/jask/navi/internal/tui"
)

// decider answers a staged action: flags first, then the interactive prompt.
type decider struct {
	yes, no bool
	in      io.Reader
	out     io.Writer
}

func (d decider) decide(ctx context.Context, action tools.PendingToolAction) (tui.Decision, error) {
	switch {
	case d.yes:
		return tui.Confirmed, nil
	case d.no:
		return tui.Cancelled, nil
	case d.in == nil:
		return tui.Cancelled, fmt.Errorf("no terminal to confirm %q; pass --yes or --no", action.Description)
	}
	return tui.Prompt(ctx, action, d.in, d.out)
}

func newToolCmd(c *cli) *cobra.Command {
	d := decider{in: os.Stdin, out: os.Stderr}
	cmd := &cobra.Command{
		Use:   "tool NAME [ARGS_JSON]",
		Short: "Run one finance tool call",
		Long: `Runs a tool the way the assistant would. Read-only tools print their
result at once; mutating tools show what they will do and wait for confirmation.

Tools: financial_forecast, search_bills, search_debts, search_allocations,
log_expense, add_bill, add_debt, pay_bill, pay_debt.

Example:
  navi tool log_expense '{"amount":12.5,"description":"lunch"}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			a.refresh(ctx)

			var raw json.RawMessage
			if len(args) == 2 {
				raw = json.RawMessage(args[1])
			}
			out := a.pipeline.Handle(ctx, args[0], raw, "cli")
			if !out.NeedsConfirmation {
				fmt.Fprintln(cmd.OutOrStdout(), out.Result)
				return nil
			}

			decision, err := d.decide(ctx, *out.Pending)
			if err != nil {
				a.pipeline.Cancel()
				return err
			}
			var resp tools.Response
			if decision == tui.Confirmed {
				resp = a.pipeline.Confirm(ctx)
			} else {
				resp = a.pipeline.Cancel()
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Result)
			a.settle(ctx)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&d.yes, "yes", "y", false, "confirm without prompting")
	cmd.Flags().BoolVar(&d.no, "no", false, "cancel without prompting")
	cmd.MarkFlagsMutuallyExclusive("yes", "no")
	return cmd
}
