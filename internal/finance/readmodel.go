package finance

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCycleDays is assumed when a cycle's real span is unknown.
const DefaultCycleDays = 14

// onTrackBuffer tolerates 10% below an ideal linear drawdown.
var onTrackBuffer = decimal.NewFromFloat(0.9)

// Stats is the derived view of one wallet.
type Stats struct {
	Spent          float64 `json:"spent"`
	DailySafeSpend float64 `json:"dailySafeSpend"`
	IsOnTrack      bool    `json:"isOnTrack"`
	DaysRemaining  int     `json:"daysRemaining"`
}

// WalletStats derives spend figures for a. totalCycleDays <= 0 falls back
// to DefaultCycleDays.
func WalletStats(a Allocation, daysRemaining, totalCycleDays int) Stats {
	if totalCycleDays <= 0 {
		totalCycleDays = DefaultCycleDays
	}
	if daysRemaining < 0 {
		daysRemaining = 0
	}
	safe := FloorDiv(a.CurrentBalance, max(1, daysRemaining))
	if limit, ok := a.Limit(); ok && Less(limit, safe) {
		safe = limit
	}
	ideal := decimal.NewFromInt(int64(daysRemaining)).
		Div(decimal.NewFromInt(int64(totalCycleDays))).
		Mul(dec(a.TotalBudget)).
		Mul(onTrackBuffer)
	return Stats{
		Spent:          Sub(a.TotalBudget, a.CurrentBalance),
		DailySafeSpend: safe,
		IsOnTrack:      dec(a.CurrentBalance).GreaterThanOrEqual(ideal),
		DaysRemaining:  daysRemaining,
	}
}

// DaysRemaining counts whole days from today until the cycle's end date.
// Today is now's calendar date in now's own location; the end date is
// taken as stored.
func DaysRemaining(c FinancialCycle, now time.Time) int {
	if c.EndDate.IsZero() {
		return 0
	}
	return max(0, DaysBetween(civil(now), civil(c.EndDate.Time)))
}

// CycleDays is the cycle's span in days, at least 1.
func CycleDays(c FinancialCycle) int {
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return DefaultCycleDays
	}
	return max(1, DaysBetween(c.StartDate.Time, c.EndDate.Time))
}

// ActiveCycle returns the first cycle marked active.
func ActiveCycle(cycles []FinancialCycle) (FinancialCycle, bool) {
	for _, c := range cycles {
		if c.Status == CycleActive {
			return c, true
		}
	}
	return FinancialCycle{}, false
}

// Overview summarises a cycle's money flow.
type Overview struct {
	TotalIncome    float64 `json:"totalIncome"`
	TotalAllocated float64 `json:"totalAllocated"`
	TotalSpent     float64 `json:"totalSpent"`
	Unallocated    float64 `json:"unallocated"`
}

// CycleOverview sums confirmed incomes against allocation budgets.
func CycleOverview(incomes []Income, allocs []Allocation) Overview {
	income := Sum(incomes, func(i Income) float64 {
		if !i.IsConfirmed {
			return 0
		}
		return i.Amount
	})
	allocated := Sum(allocs, func(a Allocation) float64 { return a.TotalBudget })
	spent := Sum(allocs, func(a Allocation) float64 { return Sub(a.TotalBudget, a.CurrentBalance) })
	return Overview{
		TotalIncome:    income,
		TotalAllocated: allocated,
		TotalSpent:     spent,
		Unallocated:    Sub(income, allocated),
	}
}

// PacePoint is one calendar day of a burndown.
type PacePoint struct {
	Date   time.Time `json:"date"`
	Day    int       `json:"day"`
	Ideal  float64   `json:"ideal"`
	Actual float64   `json:"actual"`
}

// PaceSeries returns one point per calendar day in [start, end] inclusive.
// Ideal drops linearly to zero at the end date; actual subtracts every
// transaction dated on or before the day.
func PaceSeries(c FinancialCycle, totalBudget float64, txs []Transaction) []PacePoint {
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return nil
	}
	start := DateOf(c.StartDate.Time)
	span := DaysBetween(start, c.EndDate.Time)
	if span < 0 {
		return nil
	}
	drop := dec(totalBudget).Div(decimal.NewFromInt(int64(max(1, span))))
	budget := dec(totalBudget)

	points := make([]PacePoint, 0, span+1)
	for day := 0; day <= span; day++ {
		date := start.AddDate(0, 0, day)
		spent := decimal.Zero
		for _, tx := range txs {
			if !DateOf(tx.Timestamp.In(start.Location())).After(date) {
				spent = spent.Add(dec(tx.Amount))
			}
		}
		points = append(points, PacePoint{
			Date:   date,
			Day:    day,
			Ideal:  budget.Sub(drop.Mul(decimal.NewFromInt(int64(day)))).InexactFloat64(),
			Actual: budget.Sub(spent).InexactFloat64(),
		})
	}
	return points
}

// UpcomingBill is an active subscription falling due inside a window.
type UpcomingBill struct {
	Subscription Subscription `json:"bill"`
	DueDate      time.Time    `json:"dueDate"`
}

// UpcomingBills lists active subscriptions whose next billing day after
// from falls on or before to, ordered as given.
func UpcomingBills(subs []Subscription, from, to time.Time) []UpcomingBill {
	var out []UpcomingBill
	for _, s := range subs {
		if !s.IsActive || s.BillingDay < 1 {
			continue
		}
		due := nextBillingDate(DateOf(from), s.BillingDay)
		if due.After(DateOf(to.In(from.Location()))) {
			continue
		}
		if !s.EndDate.IsZero() && due.After(DateOf(s.EndDate.In(from.Location()))) {
			continue
		}
		out = append(out, UpcomingBill{Subscription: s, DueDate: due})
	}
	return out
}

// nextBillingDate is the first date strictly after from whose day of month
// is billingDay, clamped to short months.
func nextBillingDate(from time.Time, billingDay int) time.Time {
	y, m, _ := from.Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, from.Location())
	if due := clampedDay(first, billingDay); due.After(from) {
		return due
	}
	return clampedDay(first.AddDate(0, 1, 0), billingDay)
}

func clampedDay(firstOfMonth time.Time, day int) time.Time {
	last := firstOfMonth.AddDate(0, 1, -1).Day()
	return firstOfMonth.AddDate(0, 0, min(day, last)-1)
}
