package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jask/navi/internal/finance"
)

// Name is a tool exposed to the assistant model.
type Name string

const (
	FinancialForecastTool Name = "financial_forecast"
	SearchBillsTool       Name = "search_bills"
	SearchDebtsTool       Name = "search_debts"
	SearchAllocationsTool Name = "search_allocations"
	LogExpenseTool        Name = "log_expense"
	AddBillTool           Name = "add_bill"
	AddDebtTool           Name = "add_debt"
	PayBillTool           Name = "pay_bill"
	PayDebtTool           Name = "pay_debt"
)

// Names lists every tool in declaration order.
var Names = []Name{
	FinancialForecastTool,
	SearchBillsTool,
	SearchDebtsTool,
	SearchAllocationsTool,
	LogExpenseTool,
	AddBillTool,
	AddDebtTool,
	PayBillTool,
	PayDebtTool,
}

// Mutating reports whether n changes state and so needs confirmation.
func (n Name) Mutating() bool {
	switch n {
	case LogExpenseTool, AddBillTool, AddDebtTool, PayBillTool, PayDebtTool:
		return true
	}
	return false
}

var ErrUnknownTool = errors.New("tools: unknown tool")

// Intent is the typed payload of one tool call. The set of implementations
// is closed; switch on the concrete type.
type Intent interface {
	ToolName() Name
}

type FinancialForecast struct{}

type SearchBills struct {
	Query string `json:"query"`
}

type SearchDebts struct {
	Query string `json:"query"`
}

type SearchAllocations struct {
	Query string `json:"query"`
}

type LogExpense struct {
	Amount         float64 `json:"amount" validate:"gt=0"`
	Description    string  `json:"description" validate:"required"`
	AllocationName string  `json:"allocation_name"`
}

type AddBill struct {
	Name       string                       `json:"name" validate:"required"`
	Amount     float64                      `json:"amount" validate:"gt=0"`
	BillingDay int                          `json:"billing_day" validate:"min=1,max=31"`
	Category   finance.SubscriptionCategory `json:"category" validate:"omitempty,oneof=subscription utility rent"`
	EndDate    string                       `json:"end_date"`
}

type AddDebt struct {
	Name            string               `json:"name" validate:"required"`
	TotalAmount     float64              `json:"total_amount" validate:"gt=0"`
	RemainingAmount *float64             `json:"remaining_amount" validate:"omitempty,gte=0"`
	Priority        finance.DebtPriority `json:"priority" validate:"omitempty,oneof=critical high medium low"`
	DueDate         string               `json:"due_date"`
	Notes           string               `json:"notes"`
}

type PayBill struct {
	BillName       string `json:"bill_name" validate:"required"`
	AllocationName string `json:"allocation_name"`
}

type PayDebt struct {
	DebtName       string  `json:"debt_name" validate:"required"`
	Amount         float64 `json:"amount" validate:"gt=0"`
	AllocationName string  `json:"allocation_name"`
}

func (FinancialForecast) ToolName() Name { return FinancialForecastTool }
func (SearchBills) ToolName() Name       { return SearchBillsTool }
func (SearchDebts) ToolName() Name       { return SearchDebtsTool }
func (SearchAllocations) ToolName() Name { return SearchAllocationsTool }
func (LogExpense) ToolName() Name        { return LogExpenseTool }
func (AddBill) ToolName() Name           { return AddBillTool }
func (AddDebt) ToolName() Name           { return AddDebtTool }
func (PayBill) ToolName() Name           { return PayBillTool }
func (PayDebt) ToolName() Name           { return PayDebtTool }

// Call is a parsed tool call.
type Call struct {
	ID     string
	Name   Name
	Args   json.RawMessage
	Intent Intent
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Parse decodes and validates the arguments of tool call id.
func Parse(name string, args json.RawMessage, id string) (Call, error) {
	call := Call{ID: id, Name: Name(name), Args: args}
	var intent Intent
	switch call.Name {
	case FinancialForecastTool:
		intent = &FinancialForecast{}
	case SearchBillsTool:
		intent = &SearchBills{}
	case SearchDebtsTool:
		intent = &SearchDebts{}
	case SearchAllocationsTool:
		intent = &SearchAllocations{}
	case LogExpenseTool:
		intent = &LogExpense{}
	case AddBillTool:
		intent = &AddBill{}
	case AddDebtTool:
		intent = &AddDebt{}
	case PayBillTool:
		intent = &PayBill{}
	case PayDebtTool:
		intent = &PayDebt{}
	default:
		return call, fmt.Errorf("%w %q", ErrUnknownTool, name)
	}

	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}
	if err := json.Unmarshal(trimmed, intent); err != nil {
		return call, fmt.Errorf("invalid arguments for %s: %w", name, err)
	}
	if err := validate.Struct(intent); err != nil {
		return call, fmt.Errorf("invalid arguments for %s: %s", name, describeValidation(err))
	}
	call.Intent = deref(intent)
	return call, nil
}

// deref stores intents by value so callers switch on the plain struct types.
func deref(i Intent) Intent {
	switch v := i.(type) {
	case *FinancialForecast:
		return *v
	case *SearchBills:
		return *v
	case *SearchDebts:
		return *v
	case *SearchAllocations:
		return *v
	case *LogExpense:
		return *v
	case *AddBill:
		return *v
	case *AddDebt:
		return *v
	case *PayBill:
		return *v
	case *PayDebt:
		return *v
	}
	return i
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "gt":
			parts = append(parts, fmt.Sprintf("%s must be greater than %s", field, fe.Param()))
		case "gte", "min":
			parts = append(parts, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s", field, fe.Param()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", ")))
		default:
			parts = append(parts, fmt.Sprintf("%s is invalid", field))
		}
	}
	return strings.Join(parts, "; ")
}
