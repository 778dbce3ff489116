package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jask/navi/internal/finance"
	"github.com/jask/navi/internal/offline"
	"github.com/jask/navi/internal/remote"
)

var (
	// ErrUnknownRecord means a write referenced a record missing from the snapshot.
	ErrUnknownRecord = errors.New("ledger: unknown record")
	// ErrInsufficientFunds means a debit would take a wallet below zero.
	ErrInsufficientFunds = errors.New("ledger: insufficient balance")
)

// Ledger owns the in-memory finance snapshot shared by subscription
// handlers and confirmed tool mutations. Readers get an immutable value;
// every change clones, edits and swaps the whole snapshot.
type Ledger struct {
	remote remote.Store
	cache  *offline.Cache
	logger *zap.Logger
	now    func() time.Time

	writeMu sync.Mutex // serialises local mutations end to end
	swapMu  sync.Mutex // guards clone-and-swap of the snapshot
	current atomic.Pointer[finance.Snapshot]
}

func NewLedger(store remote.Store, cache *offline.Cache, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		remote: store,
		cache:  cache,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	l.current.Store(&finance.Snapshot{})
	return l
}

// SetClock overrides the time source used for offline stamps.
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

// Snapshot returns the current state. Callers must not modify its slices.
func (l *Ledger) Snapshot() finance.Snapshot { return *l.current.Load() }

// Replace swaps in a whole new snapshot.
func (l *Ledger) Replace(s finance.Snapshot) {
	l.swapMu.Lock()
	defer l.swapMu.Unlock()
	l.current.Store(&s)
}

func (l *Ledger) mutate(fn func(s *finance.Snapshot)) {
	l.swapMu.Lock()
	defer l.swapMu.Unlock()
	next := l.current.Load().Clone()
	fn(&next)
	l.current.Store(&next)
}

// Load seeds the snapshot from the finance cache. It reports whether a
// cached snapshot existed.
func (l *Ledger) Load(ctx context.Context) (bool, error) {
	s, ok, err := l.cache.GetFinance(ctx)
	if err != nil || !ok {
		return false, err
	}
	l.Replace(s)
	l.logger.Debug("finance snapshot seeded from cache",
		zap.Int("allocations", len(s.Allocations)), zap.Int("transactions", len(s.Transactions)))
	return true, nil
}

// Persist writes the current snapshot to the finance cache.
func (l *Ledger) Persist(ctx context.Context) error {
	return l.cache.SaveFinance(ctx, l.Snapshot())
}

// Apply folds one subscription event into the snapshot. An event older
// than the local copy of the same record is ignored.
func (l *Ledger) Apply(ev remote.Event) error {
	var err error
	l.mutate(func(s *finance.Snapshot) {
		switch ev.Collection {
		case finance.CollectionAllocations:
			s.Allocations, err = applyEvent(s.Allocations, ev, func(a finance.Allocation) (string, time.Time) { return a.ID, a.Updated.Time })
		case finance.CollectionTransactions:
			s.Transactions, err = applyEvent(s.Transactions, ev, func(t finance.Transaction) (string, time.Time) { return t.ID, t.Updated.Time })
		case finance.CollectionSubscriptions:
			s.Subscriptions, err = applyEvent(s.Subscriptions, ev, func(x finance.Subscription) (string, time.Time) { return x.ID, x.Updated.Time })
		case finance.CollectionDebts:
			s.Debts, err = applyEvent(s.Debts, ev, func(d finance.Debt) (string, time.Time) { return d.ID, d.Updated.Time })
		case finance.CollectionCycles:
			s.Cycles, err = applyEvent(s.Cycles, ev, func(c finance.FinancialCycle) (string, time.Time) { return c.ID, c.Updated.Time })
		case finance.CollectionIncomes:
			s.Incomes, err = applyEvent(s.Incomes, ev, func(i finance.Income) (string, time.Time) { return i.ID, i.Updated.Time })
		default:
			err = fmt.Errorf("ledger: unknown collection %q", ev.Collection)
		}
	})
	return err
}

func applyEvent[T any](items []T, ev remote.Event, key func(T) (string, time.Time)) ([]T, error) {
	var incoming T
	if err := remote.Decode(ev.Record, &incoming); err != nil {
		return items, err
	}
	id, updated := key(incoming)
	for i, existing := range items {
		eid, eupdated := key(existing)
		if eid != id {
			continue
		}
		if !updated.IsZero() && eupdated.After(updated) {
			return items, nil
		}
		if ev.Action == remote.ActionDelete {
			return append(items[:i:i], items[i+1:]...), nil
		}
		items[i] = incoming
		return items, nil
	}
	if ev.Action == remote.ActionDelete {
		return items, nil
	}
	return append(items, incoming), nil
}

func upsert[T any](items []T, v T, id func(T) string) []T {
	for i := range items {
		if id(items[i]) == id(v) {
			items[i] = v
			return items
		}
	}
	return append(items, v)
}

// Queued is the number of writes waiting for connectivity.
func (l *Ledger) Queued(ctx context.Context) (int, error) {
	return l.cache.PendingCount(ctx)
}

// push sends one write to the remote store, degrading to the offline queue
// when the store fails. Once anything is queued, later writes queue behind
// it so replay preserves their order.
func (l *Ledger) push(ctx context.Context, collection string, op offline.Op, rec remote.Record) (remote.Record, error) {
	queued, err := l.cache.PendingCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: read queue: %w", err)
	}
	if queued == 0 {
		out, err := l.send(ctx, collection, op, rec)
		if err == nil {
			return out, nil
		}
		l.logger.Warn("remote write failed, queueing",
			zap.String("collection", collection), zap.String("op", string(op)), zap.Error(err))
	}
	return l.enqueue(ctx, collection, op, rec)
}

func (l *Ledger) send(ctx context.Context, collection string, op offline.Op, rec remote.Record) (remote.Record, error) {
	switch op {
	case offline.OpCreate:
		data := rec.Clone()
		delete(data, "id")
		delete(data, "updated")
		return l.remote.Create(ctx, collection, data)
	case offline.OpUpdate:
		data := rec.Clone()
		delete(data, "id")
		return l.remote.Update(ctx, collection, rec.ID(), data)
	case offline.OpDelete:
		return rec, l.remote.Delete(ctx, collection, rec.ID())
	}
	return nil, fmt.Errorf("ledger: unknown op %q", op)
}

func (l *Ledger) enqueue(ctx context.Context, collection string, op offline.Op, rec remote.Record) (remote.Record, error) {
	rec = rec.Clone()
	localID := ""
	if op == offline.OpCreate {
		localID = offline.NewLocalID()
		rec["id"] = localID
	}
	if _, err := l.cache.AddPendingOperation(ctx, collection, op, rec, localID); err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	out := rec.Clone()
	out["updated"] = l.now().Format(time.RFC3339Nano)
	return out, nil
}

// LogTransaction records tx and debits its allocation. It returns the
// stored transaction and the allocation's new state.
func (l *Ledger) LogTransaction(ctx context.Context, tx finance.Transaction) (finance.Transaction, finance.Allocation, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	alloc, err := l.payable(l.Snapshot(), tx.AllocationID, tx.Amount)
	if err != nil {
		return finance.Transaction{}, finance.Allocation{}, err
	}
	tx, alloc, err = l.debit(ctx, tx, alloc)
	if err != nil {
		return finance.Transaction{}, finance.Allocation{}, err
	}
	l.mutate(func(s *finance.Snapshot) {
		s.Transactions = upsert(s.Transactions, tx, func(t finance.Transaction) string { return t.ID })
		s.Allocations = upsert(s.Allocations, alloc, func(a finance.Allocation) string { return a.ID })
	})
	l.logger.Info("transaction logged",
		zap.String("allocation", alloc.Name), zap.Float64("amount", tx.Amount), zap.Float64("balance", alloc.CurrentBalance))
	return tx, alloc, nil
}

// payable returns the allocation if it exists in s and can cover amount.
func (l *Ledger) payable(s finance.Snapshot, allocationID string, amount float64) (finance.Allocation, error) {
	alloc, ok := s.Allocation(allocationID)
	if !ok {
		return finance.Allocation{}, fmt.Errorf("%w: allocation %s", ErrUnknownRecord, allocationID)
	}
	if finance.Less(alloc.CurrentBalance, amount) {
		return finance.Allocation{}, ErrInsufficientFunds
	}
	return alloc, nil
}

// debit pushes the transaction and the allocation's new balance. The
// snapshot is left to the caller. writeMu must be held.
func (l *Ledger) debit(ctx context.Context, tx finance.Transaction, alloc finance.Allocation) (finance.Transaction, finance.Allocation, error) {
	if tx.Timestamp.IsZero() {
		tx.Timestamp = finance.NewTime(l.now())
	}
	tx.ID = ""
	tx.AllocationID = alloc.ID

	rec, err := remote.Encode(tx)
	if err != nil {
		return finance.Transaction{}, finance.Allocation{}, err
	}
	stored, err := l.push(ctx, finance.CollectionTransactions, offline.OpCreate, rec)
	if err != nil {
		return finance.Transaction{}, finance.Allocation{}, err
	}
	if err := remote.Decode(stored, &tx); err != nil {
		return finance.Transaction{}, finance.Allocation{}, err
	}

	alloc.CurrentBalance = finance.Sub(alloc.CurrentBalance, tx.Amount)
	updated, err := l.push(ctx, finance.CollectionAllocations, offline.OpUpdate,
		remote.Record{"id": alloc.ID, "current_balance": alloc.CurrentBalance})
	if err != nil {
		return finance.Transaction{}, finance.Allocation{}, err
	}
	alloc.Updated = finance.NewTime(updated.Updated())
	return tx, alloc, nil
}

// DebtPayment is the outcome of PayDebt. Transaction and Allocation are
// set only when a wallet was debited.
type DebtPayment struct {
	Debt        finance.Debt
	Applied     float64
	Transaction *finance.Transaction
	Allocation  *finance.Allocation
}

// PayDebt lowers a debt's remaining amount by amount, clamped at zero.
// When allocationID is set the wallet is debited with the amount actually
// applied. Every record involved is checked before anything is written, and
// the snapshot changes in a single swap.
func (l *Ledger) PayDebt(ctx context.Context, debtID, allocationID string, amount float64) (DebtPayment, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	snap := l.Snapshot()
	debt, ok := snap.Debt(debtID)
	if !ok {
		return DebtPayment{}, fmt.Errorf("%w: debt %s", ErrUnknownRecord, debtID)
	}
	out := DebtPayment{Applied: amount}
	if finance.Less(debt.RemainingAmount, amount) {
		out.Applied = finance.ClampZero(debt.RemainingAmount)
	}

	if allocationID != "" && finance.Less(0, out.Applied) {
		alloc, err := l.payable(snap, allocationID, out.Applied)
		if err != nil {
			return DebtPayment{}, err
		}
		tx, alloc, err := l.debit(ctx, finance.Transaction{
			Amount:      out.Applied,
			Description: "Debt payment: " + debt.Name,
			Type:        finance.TransactionPayment,
		}, alloc)
		if err != nil {
			return DebtPayment{}, err
		}
		out.Transaction, out.Allocation = &tx, &alloc
	}

	debt.RemainingAmount = finance.ClampZero(finance.Sub(debt.RemainingAmount, amount))
	updated, err := l.push(ctx, finance.CollectionDebts, offline.OpUpdate,
		remote.Record{"id": debt.ID, "remaining_amount": debt.RemainingAmount})
	if err != nil {
		return DebtPayment{}, err
	}
	debt.Updated = finance.NewTime(updated.Updated())
	out.Debt = debt

	l.mutate(func(s *finance.Snapshot) {
		if out.Transaction != nil {
			s.Transactions = upsert(s.Transactions, *out.Transaction, func(t finance.Transaction) string { return t.ID })
			s.Allocations = upsert(s.Allocations, *out.Allocation, func(a finance.Allocation) string { return a.ID })
		}
		s.Debts = upsert(s.Debts, debt, func(d finance.Debt) string { return d.ID })
	})
	l.logger.Info("debt paid",
		zap.String("debt", debt.Name), zap.Float64("applied", out.Applied), zap.Float64("remaining", debt.RemainingAmount))
	return out, nil
}

// AddSubscription creates a bill.
func (l *Ledger) AddSubscription(ctx context.Context, sub finance.Subscription) (finance.Subscription, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	sub.ID = ""
	if err := l.create(ctx, finance.CollectionSubscriptions, &sub); err != nil {
		return finance.Subscription{}, err
	}
	l.mutate(func(s *finance.Snapshot) {
		s.Subscriptions = upsert(s.Subscriptions, sub, func(x finance.Subscription) string { return x.ID })
	})
	l.logger.Info("bill added", zap.String("bill", sub.Name), zap.String("id", sub.ID))
	return sub, nil
}

// AddDebt creates a debt.
func (l *Ledger) AddDebt(ctx context.Context, debt finance.Debt) (finance.Debt, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	debt.ID = ""
	if err := l.create(ctx, finance.CollectionDebts, &debt); err != nil {
		return finance.Debt{}, err
	}
	l.mutate(func(s *finance.Snapshot) {
		s.Debts = upsert(s.Debts, debt, func(d finance.Debt) string { return d.ID })
	})
	l.logger.Info("debt added", zap.String("debt", debt.Name), zap.String("id", debt.ID))
	return debt, nil
}

// create pushes v as a new record and decodes the stored form back into it.
func (l *Ledger) create(ctx context.Context, collection string, v any) error {
	rec, err := remote.Encode(v)
	if err != nil {
		return err
	}
	stored, err := l.push(ctx, collection, offline.OpCreate, rec)
	if err != nil {
		return err
	}
	return remote.Decode(stored, v)
}
