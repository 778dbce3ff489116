// Package tools turns assistant tool calls into finance reads and
// confirmed finance writes.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jask/navi/internal/finance"
	"github.com/jask/navi/internal/service"
)

// ErrActionPending is logged when a mutating call arrives while another
// awaits confirmation. The new call is rejected.
var ErrActionPending = errors.New("tools: another action is awaiting confirmation")

var tracer = otel.Tracer("github.com/jask/navi/internal/tools")

// Ledger is the finance state the pipeline reads and writes.
type Ledger interface {
	Snapshot() finance.Snapshot
	LogTransaction(ctx context.Context, tx finance.Transaction) (finance.Transaction, finance.Allocation, error)
	PayDebt(ctx context.Context, debtID, allocationID string, amount float64) (service.DebtPayment, error)
	AddSubscription(ctx context.Context, sub finance.Subscription) (finance.Subscription, error)
	AddDebt(ctx context.Context, debt finance.Debt) (finance.Debt, error)
}

// Resolved holds the records a pending action was priced against.
type Resolved struct {
	Allocation   *finance.Allocation   `json:"allocation,omitempty"`
	Subscription *finance.Subscription `json:"subscription,omitempty"`
	Debt         *finance.Debt         `json:"debt,omitempty"`
}

// PendingToolAction is a prepared mutation awaiting the user's decision.
type PendingToolAction struct {
	ToolName    Name            `json:"toolName"`
	Args        json.RawMessage `json:"args"`
	ToolCallID  string          `json:"toolCallId"`
	Description string          `json:"description"`
	Resolved    Resolved        `json:"resolved"`
	Intent      Intent          `json:"-"`
}

// Outcome is the immediate answer to a tool call. When NeedsConfirmation
// is set, Result is empty and Pending describes what the user must approve.
type Outcome struct {
	ToolCallID        string
	ToolName          Name
	NeedsConfirmation bool
	Result            string
	Pending           *PendingToolAction
}

// Response is the deferred answer sent after a confirm or cancel.
type Response struct {
	ToolCallID string
	ToolName   Name
	Result     string
	// Handled is set when a staged action was confirmed or cancelled.
	Handled bool
}

// Options tunes wallet defaults.
type Options struct {
	// LivingCategory is the wallet category log_expense uses when no wallet is named.
	LivingCategory finance.AllocationCategory
	// BillsCategory is the wallet category pay_bill uses when no wallet is named.
	BillsCategory finance.AllocationCategory
	// ForecastDays bounds the upcoming-bills window when no cycle is active.
	ForecastDays int
	Location     *time.Location
}

func (o Options) withDefaults() Options {
	if o.LivingCategory == "" {
		o.LivingCategory = finance.CategoryLiving
	}
	if o.BillsCategory == "" {
		o.BillsCategory = finance.CategoryBills
	}
	if o.ForecastDays <= 0 {
		o.ForecastDays = finance.DefaultCycleDays
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

// Pipeline holds at most one pending action.
type Pipeline struct {
	ledger Ledger
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending *PendingToolAction
}

func NewPipeline(ledger Ledger, opts Options, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		ledger: ledger,
		opts:   opts.withDefaults(),
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the time source used by the forecast.
func (p *Pipeline) SetClock(now func() time.Time) { p.now = now }

// Pending returns a copy of the action awaiting confirmation, if any.
func (p *Pipeline) Pending() (PendingToolAction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return PendingToolAction{}, false
	}
	return *p.pending, true
}

// Handle answers read-only calls at once and stages mutating calls for
// confirmation. Every failure is folded into an error result.
func (p *Pipeline) Handle(ctx context.Context, name string, args json.RawMessage, callID string) Outcome {
	ctx, span := tracer.Start(ctx, "tools.Handle", trace.WithAttributes(
		attribute.String("tool.name", name),
		attribute.String("tool.call_id", callID),
	))
	defer span.End()

	out := Outcome{ToolCallID: callID, ToolName: Name(name)}
	call, err := Parse(name, args, callID)
	if err != nil {
		p.logger.Warn("tool call rejected", zap.String("tool", name), zap.Error(err))
		span.SetStatus(codes.Error, err.Error())
		out.Result = failure(err.Error())
		return out
	}

	if !call.Name.Mutating() {
		out.Result = p.query(ctx, call.Intent)
		return out
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending != nil {
		p.logger.Warn("tool call rejected", zap.String("tool", name),
			zap.String("pending", string(p.pending.ToolName)), zap.Error(ErrActionPending))
		span.SetStatus(codes.Error, ErrActionPending.Error())
		out.Result = failuref("Another action is awaiting confirmation: %s. Ask the user to confirm or cancel it first.",
			p.pending.Description)
		return out
	}

	action, msg := p.prepare(p.ledger.Snapshot(), call)
	if action == nil {
		span.SetStatus(codes.Error, msg)
		out.Result = failure(msg)
		return out
	}
	p.pending = action
	p.logger.Info("tool action staged", zap.String("tool", name), zap.String("description", action.Description))
	staged := *action
	out.NeedsConfirmation = true
	out.Pending = &staged
	return out
}

// Confirm executes the pending action. The slot is cleared whether or not
// execution succeeds.
func (p *Pipeline) Confirm(ctx context.Context) Response {
	p.mu.Lock()
	defer p.mu.Unlock()

	action := p.pending
	p.pending = nil
	if action == nil {
		return Response{Result: failure("No action awaiting confirmation")}
	}

	ctx, span := tracer.Start(ctx, "tools.Confirm", trace.WithAttributes(
		attribute.String("tool.name", string(action.ToolName)),
		attribute.String("tool.call_id", action.ToolCallID),
	))
	defer span.End()

	result, err := p.execute(ctx, *action)
	if err != nil {
		p.logger.Warn("tool action failed", zap.String("tool", string(action.ToolName)), zap.Error(err))
		span.SetStatus(codes.Error, err.Error())
	} else {
		p.logger.Info("tool action executed", zap.String("tool", string(action.ToolName)))
	}
	return Response{ToolCallID: action.ToolCallID, ToolName: action.ToolName, Result: result, Handled: true}
}

// Cancel discards the pending action.
func (p *Pipeline) Cancel() Response {
	p.mu.Lock()
	defer p.mu.Unlock()

	action := p.pending
	p.pending = nil
	if action == nil {
		return Response{Result: success("No action to cancel", fields{"cancelled": false})}
	}
	p.logger.Info("tool action cancelled", zap.String("tool", string(action.ToolName)))
	return Response{
		ToolCallID: action.ToolCallID,
		ToolName:   action.ToolName,
		Result:     cancelled("Action cancelled by user: " + action.Description),
		Handled:    true,
	}
}
