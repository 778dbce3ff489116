package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/jask/navi/internal/finance"
	"github.com/jask/navi/internal/service"
)

var (
	errGone         = errors.New("tools: resolved record no longer exists")
	errInsufficient = errors.New("tools: insufficient balance")
)

// execute re-checks a pending action against the current snapshot and
// applies it through the ledger. The error is for logging only; the
// returned string is always a complete result.
func (p *Pipeline) execute(ctx context.Context, action PendingToolAction) (string, error) {
	s := p.ledger.Snapshot()

	switch in := action.Intent.(type) {
	case LogExpense:
		alloc, msg, err := p.recheckWallet(s, action.Resolved.Allocation, in.Amount)
		if err != nil {
			return msg, err
		}
		tx, alloc, err := p.ledger.LogTransaction(ctx, finance.Transaction{
			Amount:       in.Amount,
			Description:  in.Description,
			AllocationID: alloc.ID,
			Type:         finance.TransactionExpense,
		})
		if err != nil {
			return ledgerFailure("log the expense", err), err
		}
		return success(
			fmt.Sprintf("Logged %s for %s from %s. New balance: %s.", money(tx.Amount), tx.Description, alloc.Name, money(alloc.CurrentBalance)),
			fields{"newBalance": alloc.CurrentBalance, "transaction": tx},
		), nil

	case AddBill:
		sub, err := in.subscription(p.now())
		if err != nil {
			return failure(err.Error()), err
		}
		sub, err = p.ledger.AddSubscription(ctx, sub)
		if err != nil {
			return ledgerFailure("add the bill", err), err
		}
		return success(
			fmt.Sprintf("Added %s bill %s: %s on day %d.", sub.Category, sub.Name, money(sub.Amount), sub.BillingDay),
			fields{"bill": sub},
		), nil

	case AddDebt:
		debt, err := in.debt()
		if err != nil {
			return failure(err.Error()), err
		}
		debt, err = p.ledger.AddDebt(ctx, debt)
		if err != nil {
			return ledgerFailure("add the debt", err), err
		}
		return success(
			fmt.Sprintf("Added debt %s with %s remaining.", debt.Name, money(debt.RemainingAmount)),
			fields{"debt": debt},
		), nil

	case PayBill:
		bill, ok := s.Subscription(action.Resolved.Subscription.ID)
		if !ok {
			return failuref("The bill %s no longer exists.", action.Resolved.Subscription.Name), errGone
		}
		alloc, msg, err := p.recheckWallet(s, action.Resolved.Allocation, bill.Amount)
		if err != nil {
			return msg, err
		}
		tx, alloc, err := p.ledger.LogTransaction(ctx, finance.Transaction{
			Amount:       bill.Amount,
			Description:  "Bill payment: " + bill.Name,
			AllocationID: alloc.ID,
			Type:         finance.TransactionPayment,
		})
		if err != nil {
			return ledgerFailure("pay the bill", err), err
		}
		return success(
			fmt.Sprintf("Paid %s (%s) from %s. New balance: %s.", bill.Name, money(bill.Amount), alloc.Name, money(alloc.CurrentBalance)),
			fields{"newBalance": alloc.CurrentBalance, "transaction": tx, "bill": bill},
		), nil

	case PayDebt:
		return p.payDebt(ctx, s, action, in)
	}
	return failuref("%s cannot be executed", action.ToolName), fmt.Errorf("tools: unexpected intent %T", action.Intent)
}

func (p *Pipeline) payDebt(ctx context.Context, s finance.Snapshot, action PendingToolAction, in PayDebt) (string, error) {
	debt, ok := s.Debt(action.Resolved.Debt.ID)
	if !ok {
		return failuref("The debt %s no longer exists.", action.Resolved.Debt.Name), errGone
	}
	walletID := ""
	if action.Resolved.Allocation != nil {
		applied := in.Amount
		if finance.Less(debt.RemainingAmount, applied) {
			applied = finance.ClampZero(debt.RemainingAmount)
		}
		if finance.Less(0, applied) {
			alloc, msg, err := p.recheckWallet(s, action.Resolved.Allocation, applied)
			if err != nil {
				return msg, err
			}
			walletID = alloc.ID
		}
	}

	paid, err := p.ledger.PayDebt(ctx, debt.ID, walletID, in.Amount)
	if err != nil {
		return ledgerFailure("pay the debt", err), err
	}
	debt = paid.Debt
	extra := fields{
		"newRemaining": debt.RemainingAmount,
		"isPaidOff":    debt.IsPaidOff(),
		"debt":         debt,
	}
	if paid.Transaction != nil {
		extra["newBalance"] = paid.Allocation.CurrentBalance
		extra["transaction"] = *paid.Transaction
	}

	msg := fmt.Sprintf("Paid %s toward %s. Remaining: %s.", money(paid.Applied), debt.Name, money(debt.RemainingAmount))
	if debt.IsPaidOff() {
		msg = fmt.Sprintf("Paid %s toward %s. It is now paid off.", money(paid.Applied), debt.Name)
	}
	return success(msg, extra), nil
}

// recheckWallet confirms the resolved wallet still exists and can cover amount.
func (p *Pipeline) recheckWallet(s finance.Snapshot, resolved *finance.Allocation, amount float64) (finance.Allocation, string, error) {
	if resolved == nil {
		return finance.Allocation{}, failure("No wallet was resolved for this action."), errGone
	}
	alloc, ok := s.Allocation(resolved.ID)
	if !ok {
		return finance.Allocation{}, failuref("The wallet %s no longer exists.", resolved.Name), errGone
	}
	if finance.Less(alloc.CurrentBalance, amount) {
		return finance.Allocation{}, insufficient(alloc, amount), errInsufficient
	}
	return alloc, "", nil
}

func insufficient(alloc finance.Allocation, amount float64) string {
	return failuref("Insufficient balance in %s: it has %s but this needs %s.",
		alloc.Name, money(alloc.CurrentBalance), money(amount))
}

func ledgerFailure(what string, err error) string {
	switch {
	case errors.Is(err, service.ErrInsufficientFunds):
		return failuref("Could not %s: the wallet balance is too low.", what)
	case errors.Is(err, service.ErrUnknownRecord):
		return failuref("Could not %s: a record it refers to no longer exists.", what)
	}
	return failuref("Could not %s: %v", what, err)
}
