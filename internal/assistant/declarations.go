package assistant

import "github.com/jask/navi/internal/tools"

// Schema is the JSON-schema subset used for tool parameters.
type Schema struct {
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Properties  map[string]Schema `json:"properties,omitempty"`
	Required    []string          `json:"required,omitempty"`
	Enum        []string          `json:"enum,omitempty"`
	Minimum     *float64          `json:"minimum,omitempty"`
	Maximum     *float64          `json:"maximum,omitempty"`
}

// Declaration is one function the model may call.
type Declaration struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  Schema `json:"parameters"`
}

func bound(v float64) *float64 { return &v }

func object(required []string, props map[string]Schema) Schema {
	return Schema{Type: "object", Properties: props, Required: required}
}

func str(desc string) Schema    { return Schema{Type: "string", Description: desc} }
func amount(desc string) Schema { return Schema{Type: "number", Description: desc, Minimum: bound(0.01)} }

var query = map[string]Schema{
	"query": str("Name or category to search for. Omit to list everything."),
}

// Declarations is the tool surface offered to the model, in tools.Names order.
func Declarations() []Declaration {
	return []Declaration{
		{
			Name:        string(tools.FinancialForecastTool),
			Description: "Summarise the current cycle: wallet balances, safe daily spend, bills due before the cycle ends and outstanding debt.",
			Parameters:  object(nil, map[string]Schema{}),
		},
		{
			Name:        string(tools.SearchBillsTool),
			Description: "Find recurring bills by name or category.",
			Parameters:  object(nil, query),
		},
		{
			Name:        string(tools.SearchDebtsTool),
			Description: "Find debts by name.",
			Parameters:  object(nil, query),
		},
		{
			Name:        string(tools.SearchAllocationsTool),
			Description: "Find wallets by name or category with their spend stats.",
			Parameters:  object(nil, query),
		},
		{
			Name:        string(tools.LogExpenseTool),
			Description: "Record an expense against a wallet. The user confirms before it is saved.",
			Parameters: object([]string{"amount", "description"}, map[string]Schema{
				"amount":          amount("Amount spent."),
				"description":     str("What the money was spent on."),
				"allocation_name": str("Wallet to debit. Defaults to the living wallet."),
			}),
		},
		{
			Name:        string(tools.AddBillTool),
			Description: "Add a recurring monthly bill. The user confirms before it is saved.",
			Parameters: object([]string{"name", "amount", "billing_day"}, map[string]Schema{
				"name":        str("Bill name."),
				"amount":      amount("Amount charged each month."),
				"billing_day": {Type: "integer", Description: "Day of month the bill is charged.", Minimum: bound(1), Maximum: bound(31)},
				"category":    {Type: "string", Enum: []string{"subscription", "utility", "rent"}},
				"end_date":    str("Last billing date, YYYY-MM-DD."),
			}),
		},
		{
			Name:        string(tools.AddDebtTool),
			Description: "Track a new debt. The user confirms before it is saved.",
			Parameters: object([]string{"name", "total_amount"}, map[string]Schema{
				"name":             str("Debt name."),
				"total_amount":     amount("Original amount owed."),
				"remaining_amount": {Type: "number", Description: "Amount still owed. Defaults to the total.", Minimum: bound(0)},
				"priority":         {Type: "string", Enum: []string{"critical", "high", "medium", "low"}},
				"due_date":         str("Due date, YYYY-MM-DD."),
				"notes":            str("Free-form notes."),
			}),
		},
		{
			Name:        string(tools.PayBillTool),
			Description: "Pay one month of a bill from a wallet. The user confirms before it is saved.",
			Parameters: object([]string{"bill_name"}, map[string]Schema{
				"bill_name":       str("Bill to pay."),
				"allocation_name": str("Wallet to pay from. Defaults to the bills wallet."),
			}),
		},
		{
			Name:        string(tools.PayDebtTool),
			Description: "Reduce a debt's remaining amount, optionally paying from a wallet. The user confirms before it is saved.",
			Parameters: object([]string{"debt_name", "amount"}, map[string]Schema{
				"debt_name":       str("Debt to pay down."),
				"amount":          amount("Amount paid."),
				"allocation_name": str("Wallet to pay from. When omitted no wallet is debited."),
			}),
		},
	}
}
