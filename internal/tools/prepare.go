package tools

import (
	"fmt"
	"strings"
	"time"

	"github.com/jask/navi/internal/finance"
)

// prepare resolves the records a mutating call refers to without changing
// anything. On failure it returns nil and the message for the assistant.
func (p *Pipeline) prepare(s finance.Snapshot, call Call) (*PendingToolAction, string) {
	action := &PendingToolAction{
		ToolName:   call.Name,
		Args:       call.Args,
		ToolCallID: call.ID,
		Intent:     call.Intent,
	}

	switch in := call.Intent.(type) {
	case LogExpense:
		alloc, ok := finance.WalletFor(s.Allocations, in.AllocationName, p.opts.LivingCategory)
		if !ok {
			return nil, walletNotFound(s.Allocations, in.AllocationName, p.opts.LivingCategory)
		}
		action.Resolved.Allocation = &alloc
		action.Description = fmt.Sprintf("Log %s expense %q from %s (balance %s, %s after)",
			money(in.Amount), in.Description, alloc.Name,
			money(alloc.CurrentBalance), money(finance.Sub(alloc.CurrentBalance, in.Amount)))

	case AddBill:
		sub, err := in.subscription(p.now())
		if err != nil {
			return nil, err.Error()
		}
		desc := fmt.Sprintf("Add %s bill %q for %s on day %d of each month",
			sub.Category, sub.Name, money(sub.Amount), sub.BillingDay)
		if !sub.EndDate.IsZero() {
			desc += ", ending " + sub.EndDate.Format("Jan 2, 2006")
		}
		action.Description = desc

	case AddDebt:
		debt, err := in.debt()
		if err != nil {
			return nil, err.Error()
		}
		desc := fmt.Sprintf("Add debt %q: %s total, %s remaining, %s priority",
			debt.Name, money(debt.TotalAmount), money(debt.RemainingAmount), debt.Priority)
		if !debt.DueDate.IsZero() {
			desc += ", due " + debt.DueDate.Format("Jan 2, 2006")
		}
		action.Description = desc

	case PayBill:
		bill, ok := finance.FindSubscription(s.Subscriptions, in.BillName)
		if !ok {
			return nil, notFound("bill", in.BillName, s.Subscriptions)
		}
		alloc, ok := finance.WalletFor(s.Allocations, in.AllocationName, p.opts.BillsCategory)
		if !ok {
			return nil, walletNotFound(s.Allocations, in.AllocationName, p.opts.BillsCategory)
		}
		action.Resolved.Subscription = &bill
		action.Resolved.Allocation = &alloc
		action.Description = fmt.Sprintf("Pay bill %q (%s) from %s (balance %s, %s after)",
			bill.Name, money(bill.Amount), alloc.Name,
			money(alloc.CurrentBalance), money(finance.Sub(alloc.CurrentBalance, bill.Amount)))

	case PayDebt:
		debt, ok := finance.FindDebt(s.Debts, in.DebtName)
		if !ok {
			return nil, notFound("debt", in.DebtName, s.Debts)
		}
		action.Resolved.Debt = &debt
		desc := fmt.Sprintf("Pay %s toward %q (remaining %s, %s after)",
			money(in.Amount), debt.Name, money(debt.RemainingAmount),
			money(finance.ClampZero(finance.Sub(debt.RemainingAmount, in.Amount))))
		if strings.TrimSpace(in.AllocationName) != "" {
			alloc, ok := finance.FindAllocation(s.Allocations, in.AllocationName)
			if !ok {
				return nil, walletNotFound(s.Allocations, in.AllocationName, "")
			}
			action.Resolved.Allocation = &alloc
			desc += " from " + alloc.Name
		}
		action.Description = desc

	default:
		return nil, fmt.Sprintf("%s cannot be staged for confirmation", call.Name)
	}
	return action, ""
}

func (in AddBill) subscription(now time.Time) (finance.Subscription, error) {
	sub := finance.Subscription{
		Name:       strings.TrimSpace(in.Name),
		Amount:     in.Amount,
		BillingDay: in.BillingDay,
		Category:   in.Category,
		IsActive:   true,
	}
	if sub.Category == "" {
		sub.Category = finance.SubscriptionService
	}
	if in.EndDate != "" {
		end, err := finance.ParseTime(in.EndDate)
		if err != nil {
			return finance.Subscription{}, fmt.Errorf("end_date %q is not a date", in.EndDate)
		}
		if finance.DaysBetween(now, end) < 0 {
			return finance.Subscription{}, fmt.Errorf("end_date %s is already in the past", end.Format(time.DateOnly))
		}
		sub.EndDate = finance.NewTime(end)
	}
	return sub, nil
}

func (in AddDebt) debt() (finance.Debt, error) {
	d := finance.Debt{
		Name:            strings.TrimSpace(in.Name),
		TotalAmount:     in.TotalAmount,
		RemainingAmount: in.TotalAmount,
		Priority:        in.Priority,
		Notes:           in.Notes,
	}
	if in.RemainingAmount != nil {
		if finance.Less(in.TotalAmount, *in.RemainingAmount) {
			return finance.Debt{}, fmt.Errorf("remaining_amount %s cannot exceed total_amount %s",
				money(*in.RemainingAmount), money(in.TotalAmount))
		}
		d.RemainingAmount = *in.RemainingAmount
	}
	if d.Priority == "" {
		d.Priority = finance.PriorityMedium
	}
	if in.DueDate != "" {
		due, err := finance.ParseTime(in.DueDate)
		if err != nil {
			return finance.Debt{}, fmt.Errorf("due_date %q is not a date", in.DueDate)
		}
		d.DueDate = finance.NewTime(due)
	}
	return d, nil
}

func notFound[T finance.Matchable](kind, query string, items []T) string {
	msg := fmt.Sprintf("No %s matching %q was found.", kind, query)
	if hint, ok := finance.Suggest(items, query); ok {
		msg += fmt.Sprintf(" Did you mean %q?", hint)
	}
	return msg
}

func walletNotFound(allocs []finance.Allocation, name string, fallback finance.AllocationCategory) string {
	var msg string
	if strings.TrimSpace(name) == "" {
		msg = fmt.Sprintf("No %s wallet was found. Ask the user which wallet to use.", fallback)
	} else {
		msg = notFound("wallet", name, allocs)
	}
	if len(allocs) > 0 {
		names := make([]string, len(allocs))
		for i, a := range allocs {
			names[i] = a.Name
		}
		msg += " Available wallets: " + strings.Join(names, ", ") + "."
	}
	return msg
}
