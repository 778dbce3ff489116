// Package finance holds the budgeting data model, the derived read model
// and the name resolver used to turn spoken names into records.
package finance

// Remote collection names.
const (
	CollectionAllocations   = "allocations"
	CollectionTransactions  = "transactions"
	CollectionSubscriptions = "subscriptions"
	CollectionDebts         = "debts"
	CollectionCycles        = "financial_cycles"
	CollectionIncomes       = "incomes"
)

// Collections lists every finance collection in load order.
var Collections = []string{
	CollectionCycles,
	CollectionIncomes,
	CollectionAllocations,
	CollectionTransactions,
	CollectionSubscriptions,
	CollectionDebts,
}

type AllocationCategory string

const (
	CategoryLiving  AllocationCategory = "living"
	CategoryPlay    AllocationCategory = "play"
	CategoryBills   AllocationCategory = "bills"
	CategoryDebt    AllocationCategory = "debt"
	CategorySavings AllocationCategory = "savings"
)

// Allocation is a wallet: a budget bucket for one cycle.
type Allocation struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	Icon           string             `json:"icon,omitempty"`
	Category       AllocationCategory `json:"category"`
	TotalBudget    float64            `json:"total_budget"`
	CurrentBalance float64            `json:"current_balance"`
	IsStrict       bool               `json:"is_strict"`
	Color          string             `json:"color,omitempty"`
	CycleID        string             `json:"cycle_id"`
	DailyLimit     *float64           `json:"daily_limit,omitempty"`
	SubscriptionID string             `json:"subscription_id,omitempty"`
	DebtID         string             `json:"debt_id,omitempty"`
	Updated        Time               `json:"updated"`
}

// Limit returns the daily limit; stores report an unset number as 0.
func (a Allocation) Limit() (float64, bool) {
	if a.DailyLimit == nil || *a.DailyLimit <= 0 {
		return 0, false
	}
	return *a.DailyLimit, true
}

type TransactionType string

const (
	TransactionExpense  TransactionType = "expense"
	TransactionTransfer TransactionType = "transfer"
	TransactionPayment  TransactionType = "payment"
)

// Transaction debits its allocation once, at creation.
type Transaction struct {
	ID           string          `json:"id"`
	Amount       float64         `json:"amount"`
	Description  string          `json:"description"`
	Timestamp    Time            `json:"timestamp"`
	AllocationID string          `json:"allocation_id"`
	Type         TransactionType `json:"type"`
	Updated      Time            `json:"updated"`
}

type SubscriptionCategory string

const (
	SubscriptionService SubscriptionCategory = "subscription"
	SubscriptionUtility SubscriptionCategory = "utility"
	SubscriptionRent    SubscriptionCategory = "rent"
)

// Subscription is a recurring bill.
type Subscription struct {
	ID         string               `json:"id"`
	Name       string               `json:"name"`
	Amount     float64              `json:"amount"`
	BillingDay int                  `json:"billing_day"`
	Category   SubscriptionCategory `json:"category"`
	IsActive   bool                 `json:"is_active"`
	EndDate    Time                 `json:"end_date"`
	Updated    Time                 `json:"updated"`
}

type DebtPriority string

const (
	PriorityCritical DebtPriority = "critical"
	PriorityHigh     DebtPriority = "high"
	PriorityMedium   DebtPriority = "medium"
	PriorityLow      DebtPriority = "low"
)

type Debt struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	TotalAmount     float64      `json:"total_amount"`
	RemainingAmount float64      `json:"remaining_amount"`
	Priority        DebtPriority `json:"priority"`
	DueDate         Time         `json:"due_date"`
	Notes           string       `json:"notes,omitempty"`
	Updated         Time         `json:"updated"`
}

// IsPaidOff reports whether nothing remains owed.
func (d Debt) IsPaidOff() bool { return !Less(0, d.RemainingAmount) }

type CycleStatus string

const (
	CycleUpcoming  CycleStatus = "upcoming"
	CycleActive    CycleStatus = "active"
	CycleCompleted CycleStatus = "completed"
)

// FinancialCycle is a pay period scoping incomes and allocations.
type FinancialCycle struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	StartDate Time        `json:"start_date"`
	EndDate   Time        `json:"end_date"`
	Status    CycleStatus `json:"status"`
	Updated   Time        `json:"updated"`
}

type Income struct {
	ID          string  `json:"id"`
	Source      string  `json:"source"`
	Amount      float64 `json:"amount"`
	Date        Time    `json:"date"`
	CycleID     string  `json:"cycle_id"`
	IsConfirmed bool    `json:"is_confirmed"`
	Updated     Time    `json:"updated"`
}

// Snapshot is a full materialisation of every finance collection. Values
// handed out by the ledger are never modified in place; writers Clone first.
type Snapshot struct {
	Cycles        []FinancialCycle `json:"cycles"`
	Incomes       []Income         `json:"incomes"`
	Allocations   []Allocation     `json:"allocations"`
	Transactions  []Transaction    `json:"transactions"`
	Subscriptions []Subscription   `json:"subscriptions"`
	Debts         []Debt           `json:"debts"`
}

// Clone returns a copy whose slices can be modified freely.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Cycles:        append([]FinancialCycle(nil), s.Cycles...),
		Incomes:       append([]Income(nil), s.Incomes...),
		Allocations:   append([]Allocation(nil), s.Allocations...),
		Transactions:  append([]Transaction(nil), s.Transactions...),
		Subscriptions: append([]Subscription(nil), s.Subscriptions...),
		Debts:         append([]Debt(nil), s.Debts...),
	}
}

func (s Snapshot) Allocation(id string) (Allocation, bool) {
	for _, a := range s.Allocations {
		if a.ID == id {
			return a, true
		}
	}
	return Allocation{}, false
}

func (s Snapshot) Debt(id string) (Debt, bool) {
	for _, d := range s.Debts {
		if d.ID == id {
			return d, true
		}
	}
	return Debt{}, false
}

func (s Snapshot) Subscription(id string) (Subscription, bool) {
	for _, sub := range s.Subscriptions {
		if sub.ID == id {
			return sub, true
		}
	}
	return Subscription{}, false
}

// ActiveSubscriptions filters out deactivated bills.
func (s Snapshot) ActiveSubscriptions() []Subscription {
	out := make([]Subscription, 0, len(s.Subscriptions))
	for _, sub := range s.Subscriptions {
		if sub.IsActive {
			out = append(out, sub)
		}
	}
	return out
}
