// Package seed builds sample finance data for the memory driver.
package seed

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/jask/navi/internal/finance"
	"github.com/jask/navi/internal/remote"
)

// Demo returns one active two-week cycle around now, with wallets,
// bills, debts and a few days of spending. The same seed gives the same
// amounts.
func Demo(now time.Time, seed uint64) map[string][]remote.Record {
	r := rand.New(rand.NewPCG(seed, seed))
	day := finance.DateOf(now)
	start := day.AddDate(0, 0, -5)
	end := start.AddDate(0, 0, 14)
	stamp := now.UTC().Format(time.RFC3339)

	out := make(map[string][]remote.Record, len(finance.Collections))
	add := func(collection string, rec remote.Record) string {
		id := uuid.NewString()
		rec["id"] = id
		rec["updated"] = stamp
		out[collection] = append(out[collection], rec)
		return id
	}
	date := func(t time.Time) string { return t.Format("2006-01-02") }

	cycle := add(finance.CollectionCycles, remote.Record{
		"name":       fmt.Sprintf("%s pay cycle", start.Format("Jan 2")),
		"start_date": date(start),
		"end_date":   date(end),
		"status":     string(finance.CycleActive),
	})
	add(finance.CollectionIncomes, remote.Record{
		"source": "Salary", "amount": 4200.0, "date": date(start),
		"cycle_id": cycle, "is_confirmed": true,
	})

	type wallet struct {
		name     string
		category finance.AllocationCategory
		budget   float64
	}
	wallets := []wallet{
		{"Living Wallet", finance.CategoryLiving, 1200},
		{"Bills Wallet", finance.CategoryBills, 1900},
		{"Fun Money", finance.CategoryPlay, 250},
		{"Savings", finance.CategorySavings, 600},
	}
	spend := map[string][]string{
		"Living Wallet": {"WOOLWORTHS", "Coles groceries", "Opal top-up", "Pharmacy"},
		"Fun Money":     {"UBER EATS sushi", "Cinema", "Bar tab"},
	}
	for _, w := range wallets {
		balance := w.budget
		id := uuid.NewString()
		for i := 0; i < 2+r.IntN(4) && len(spend[w.name]) > 0; i++ {
			amount := float64(500+r.IntN(6000)) / 100
			if finance.Less(balance, amount) {
				break
			}
			balance = finance.Sub(balance, amount)
			add(finance.CollectionTransactions, remote.Record{
				"amount":        amount,
				"description":   spend[w.name][r.IntN(len(spend[w.name]))],
				"timestamp":     start.AddDate(0, 0, r.IntN(6)).Add(time.Duration(9+r.IntN(10)) * time.Hour).UTC().Format(time.RFC3339),
				"allocation_id": id,
				"type":          string(finance.TransactionExpense),
			})
		}
		out[finance.CollectionAllocations] = append(out[finance.CollectionAllocations], remote.Record{
			"id": id, "name": w.name, "category": string(w.category),
			"total_budget": w.budget, "current_balance": balance,
			"is_strict": w.category == finance.CategoryBills, "cycle_id": cycle, "updated": stamp,
		})
	}

	for _, b := range []struct {
		name     string
		amount   float64
		day      int
		category finance.SubscriptionCategory
	}{
		{"Rent", 1650, 1, finance.SubscriptionRent},
		{"Netflix", 18.99, 12, finance.SubscriptionService},
		{"Electricity", 140, 20, finance.SubscriptionUtility},
	} {
		add(finance.CollectionSubscriptions, remote.Record{
			"name": b.name, "amount": b.amount, "billing_day": b.day,
			"category": string(b.category), "is_active": true,
		})
	}

	add(finance.CollectionDebts, remote.Record{
		"name": "Visa", "total_amount": 2400.0, "remaining_amount": 860.0,
		"priority": string(finance.PriorityHigh), "due_date": date(end),
	})
	add(finance.CollectionDebts, remote.Record{
		"name": "Car loan", "total_amount": 9000.0, "remaining_amount": 6100.0,
		"priority": string(finance.PriorityMedium), "due_date": date(end.AddDate(0, 1, 0)),
	})
	return out
}
