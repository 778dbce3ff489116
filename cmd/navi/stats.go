package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jask/navi/internal/finance"
	"github.com/jask/navi/internal/tui"
)

func newStatsCmd(c *cli) *cobra.Command {
	var offlineOnly bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the active cycle, wallet health and spending pace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if !offlineOnly {
				a.refresh(ctx)
			}

			out := cmd.OutOrStdout()
			snap := a.ledger.Snapshot()
			now := time.Now().In(c.cfg.Assistant.Location())
			cycle, ok := finance.ActiveCycle(snap.Cycles)
			if !ok {
				fmt.Fprintln(out, tui.Muted("no active cycle"))
			} else {
				writeCycle(out, snap, cycle, now)
			}

			queued, err := a.ledger.Queued(ctx)
			if err != nil {
				return err
			}
			last := "never"
			if t, ok, err := a.cache.LastSyncTime(ctx); err != nil {
				return err
			} else if ok {
				last = humanize.Time(t)
			}
			fmt.Fprintln(out, tui.Muted(fmt.Sprintf("last sync %s, %d queued", last, queued)))
			if queued > 0 {
				fmt.Fprintln(out, tui.Warn("run `navi sync` to push queued writes"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offlineOnly, "offline", false, "use the cached snapshot without contacting the remote")
	return cmd
}

func writeCycle(out io.Writer, snap finance.Snapshot, cycle finance.FinancialCycle, now time.Time) {
	days := finance.DaysRemaining(cycle, now)
	total := finance.CycleDays(cycle)
	fmt.Fprintln(out, tui.Heading(fmt.Sprintf("%s: %d of %d days left", cycle.Name, days, total)))

	var (
		allocs   []finance.Allocation
		incomes  []finance.Income
		spending float64
		spendIDs = map[string]bool{}
	)
	for _, al := range snap.Allocations {
		if al.CycleID != cycle.ID {
			continue
		}
		allocs = append(allocs, al)
		if al.Category == finance.CategoryLiving || al.Category == finance.CategoryPlay {
			spending = finance.Add(spending, al.TotalBudget)
			spendIDs[al.ID] = true
		}
	}
	for _, in := range snap.Incomes {
		if in.CycleID == cycle.ID {
			incomes = append(incomes, in)
		}
	}

	ov := finance.CycleOverview(incomes, allocs)
	fmt.Fprintln(out, tui.Table(
		[]string{"Income", "Allocated", "Spent", "Unallocated"},
		[][]string{{dollars(ov.TotalIncome), dollars(ov.TotalAllocated), dollars(ov.TotalSpent), dollars(ov.Unallocated)}},
	))

	rows := make([][]string, 0, len(allocs))
	for _, al := range allocs {
		st := finance.WalletStats(al, days, total)
		pace := "on track"
		if !st.IsOnTrack {
			pace = "behind"
		}
		rows = append(rows, []string{al.Name, string(al.Category), dollars(al.CurrentBalance), dollars(st.Spent), dollars(st.DailySafeSpend), pace})
	}
	fmt.Fprintln(out, tui.Table([]string{"Wallet", "Category", "Balance", "Spent", "Safe/day", "Pace"}, rows))

	var txs []finance.Transaction
	for _, tx := range snap.Transactions {
		if spendIDs[tx.AllocationID] && tx.Type == finance.TransactionExpense {
			txs = append(txs, tx)
		}
	}
	points := finance.PaceSeries(cycle, spending, txs)
	if len(points) == 0 {
		return
	}
	today := finance.DateOf(now.In(points[0].Date.Location()))
	prows := make([][]string, 0, len(points))
	for _, p := range points {
		if p.Date.After(today) {
			break
		}
		prows = append(prows, []string{strconv.Itoa(p.Day), p.Date.Format("Mon Jan 2"), dollars(p.Ideal), dollars(p.Actual)})
	}
	if len(prows) > 0 {
		fmt.Fprintln(out, tui.Table([]string{"Day", "Date", "Ideal", "Actual"}, prows))
	}
}

func dollars(v float64) string {
	if v < 0 {
		return "-$" + humanize.FormatFloat("#,###.##", -v)
	}
	return "$" + humanize.FormatFloat("#,###.##", v)
}
