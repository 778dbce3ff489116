package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/jask/navi/internal/finance"
)

type walletView struct {
	finance.Allocation
	Stats finance.Stats `json:"stats"`
}

type debtView struct {
	finance.Debt
	PaidOff bool `json:"isPaidOff"`
}

type billView struct {
	finance.Subscription
	NextDue *time.Time `json:"nextDue,omitempty"`
}

// window is the span the read tools report against: the active cycle, or
// ForecastDays from today when no cycle is active.
type window struct {
	cycle     *finance.FinancialCycle
	now       time.Time
	end       time.Time
	remaining int
	total     int
}

func (p *Pipeline) window(s finance.Snapshot) window {
	now := p.now().In(p.opts.Location)
	if c, ok := finance.ActiveCycle(s.Cycles); ok && !c.EndDate.IsZero() {
		return window{
			cycle:     &c,
			now:       now,
			end:       c.EndDate.Time,
			remaining: finance.DaysRemaining(c, now),
			total:     finance.CycleDays(c),
		}
	}
	return window{
		now:       now,
		end:       now.AddDate(0, 0, p.opts.ForecastDays),
		remaining: p.opts.ForecastDays,
		total:     p.opts.ForecastDays,
	}
}

func (w window) wallets(allocs []finance.Allocation) []walletView {
	out := make([]walletView, len(allocs))
	for i, a := range allocs {
		out[i] = walletView{Allocation: a, Stats: finance.WalletStats(a, w.remaining, w.total)}
	}
	return out
}

func (p *Pipeline) query(_ context.Context, intent Intent) string {
	s := p.ledger.Snapshot()
	switch in := intent.(type) {
	case FinancialForecast:
		return p.forecast(s)
	case SearchBills:
		return p.searchBills(s, in.Query)
	case SearchDebts:
		return searchDebts(s, in.Query)
	case SearchAllocations:
		return p.searchAllocations(s, in.Query)
	}
	return failuref("%s is not a read-only tool", intent.ToolName())
}

func (p *Pipeline) forecast(s finance.Snapshot) string {
	w := p.window(s)
	wallets := w.wallets(s.Allocations)
	upcoming := finance.UpcomingBills(s.Subscriptions, w.now, w.end)
	billsDue := finance.Sum(upcoming, func(b finance.UpcomingBill) float64 { return b.Subscription.Amount })
	available := finance.Sum(s.Allocations, func(a finance.Allocation) float64 { return a.CurrentBalance })
	debt := finance.Sum(s.Debts, func(d finance.Debt) float64 { return d.RemainingAmount })
	projected := finance.Sub(available, billsDue)

	cycle := fields{
		"daysRemaining": w.remaining,
		"totalDays":     w.total,
		"endDate":       w.end.Format(time.DateOnly),
	}
	if w.cycle != nil {
		cycle["id"] = w.cycle.ID
		cycle["name"] = w.cycle.Name
	}

	msg := fmt.Sprintf("%s available across %d %s with %d days left. %d %s (%s) due before %s, leaving %s.",
		money(available), len(wallets), plural(len(wallets), "wallet", "wallets"), w.remaining,
		len(upcoming), plural(len(upcoming), "bill", "bills"), money(billsDue),
		w.end.Format("Jan 2"), money(projected))
	if finance.Less(0, debt) {
		msg += fmt.Sprintf(" Outstanding debt: %s.", money(debt))
	}

	return success(msg, fields{
		"cycle":              cycle,
		"overview":           finance.CycleOverview(s.Incomes, s.Allocations),
		"wallets":            wallets,
		"upcomingBills":      upcoming,
		"upcomingBillsTotal": billsDue,
		"totalAvailable":     available,
		"projectedBalance":   projected,
		"totalDebt":          debt,
	})
}

func (p *Pipeline) searchBills(s finance.Snapshot, query string) string {
	now := p.now().In(p.opts.Location)
	matches := finance.Filter(s.Subscriptions, query)
	bills := make([]billView, 0, len(matches))
	for _, b := range matches {
		v := billView{Subscription: b}
		if due := finance.UpcomingBills([]finance.Subscription{b}, now, now.AddDate(0, 1, 0)); len(due) > 0 {
			v.NextDue = &due[0].DueDate
		}
		bills = append(bills, v)
	}
	total := finance.Sum(matches, func(b finance.Subscription) float64 { return b.Amount })
	return success(searchMessage("bill", "bills", query, len(bills), s.Subscriptions),
		fields{"bills": bills, "count": len(bills), "total": total})
}

func searchDebts(s finance.Snapshot, query string) string {
	matches := finance.Filter(s.Debts, query)
	debts := make([]debtView, len(matches))
	for i, d := range matches {
		debts[i] = debtView{Debt: d, PaidOff: d.IsPaidOff()}
	}
	remaining := finance.Sum(matches, func(d finance.Debt) float64 { return d.RemainingAmount })
	return success(searchMessage("debt", "debts", query, len(debts), s.Debts),
		fields{"debts": debts, "count": len(debts), "totalRemaining": remaining})
}

func (p *Pipeline) searchAllocations(s finance.Snapshot, query string) string {
	w := p.window(s)
	wallets := w.wallets(finance.Filter(s.Allocations, query))
	return success(searchMessage("wallet", "wallets", query, len(wallets), s.Allocations),
		fields{"wallets": wallets, "count": len(wallets), "daysRemaining": w.remaining})
}

func searchMessage[T finance.Matchable](one, many, query string, n int, all []T) string {
	switch {
	case n > 0 && query == "":
		return fmt.Sprintf("%d %s.", n, plural(n, one, many))
	case n > 0:
		return fmt.Sprintf("Found %d %s matching %q.", n, plural(n, one, many), query)
	case query == "":
		return fmt.Sprintf("There are no %s.", many)
	}
	msg := fmt.Sprintf("No %s match %q.", many, query)
	if hint, ok := finance.Suggest(all, query); ok {
		msg += fmt.Sprintf(" Did you mean %q?", hint)
	}
	return msg
}
