// Package replay reconciles the local finance state with the remote store:
// it drains the offline queue, resolves local ids and refreshes the cache.
package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jask/navi/internal/finance"
	"github.com/jask/navi/internal/offline"
	"github.com/jask/navi/internal/remote"
)

// DefaultInterval is how often Watch retries a stalled queue.
const DefaultInterval = 30 * time.Second

// Ledger is the in-memory state the engine keeps current.
type Ledger interface {
	Apply(ev remote.Event) error
	Replace(s finance.Snapshot)
	Persist(ctx context.Context) error
}

// State is a full fetch of the remote finance collections.
type State map[string][]remote.Record

func (s State) find(collection, id string) (remote.Record, bool) {
	for _, r := range s[collection] {
		if r.ID() == id {
			return r, true
		}
	}
	return nil, false
}

// Report summarises one drain.
type Report struct {
	Applied   int
	Skipped   int
	Dropped   int
	Remaining int
	// IDs maps local ids to the ids the store assigned.
	IDs map[string]string
}

type Engine struct {
	remote   remote.Store
	cache    *offline.Cache
	ledger   Ledger
	logger   *zap.Logger
	interval time.Duration

	mu    sync.Mutex // one drain at a time
	dirty atomic.Bool
}

func New(store remote.Store, cache *offline.Cache, ledger Ledger, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		remote:   store,
		cache:    cache,
		ledger:   ledger,
		logger:   logger,
		interval: DefaultInterval,
	}
}

// SetInterval changes the Watch retry period.
func (e *Engine) SetInterval(d time.Duration) {
	if d > 0 {
		e.interval = d
	}
}

// Fetch loads every finance collection concurrently.
func (e *Engine) Fetch(ctx context.Context) (State, error) {
	results := make([][]remote.Record, len(finance.Collections))
	g, gctx := errgroup.WithContext(ctx)
	for i, collection := range finance.Collections {
		g.Go(func() error {
			recs, err := remote.ListAll(gctx, e.remote, collection, remote.ListOptions{})
			if err != nil {
				return err
			}
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch remote state: %w", err)
	}
	state := make(State, len(results))
	for i, collection := range finance.Collections {
		state[collection] = results[i]
	}
	return state, nil
}

// Resync fetches the remote state, replays the queue against it and
// installs the result as the new snapshot. When the queue cannot be fully
// drained the local snapshot is left alone so queued writes stay visible.
func (e *Engine) Resync(ctx context.Context) (Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.Fetch(ctx)
	if err != nil {
		return Report{}, err
	}
	report, err := e.drain(ctx, state)
	if err != nil {
		return report, err
	}
	if report.Applied > 0 {
		if state, err = e.Fetch(ctx); err != nil {
			return report, err
		}
	}

	snap, err := Snapshot(state)
	if err != nil {
		return report, err
	}
	e.ledger.Replace(snap)
	if err := e.cache.SaveFinance(ctx, snap); err != nil {
		return report, err
	}
	if err := e.cache.SaveDashboard(ctx, offline.DashboardSnapshot{Collections: state}); err != nil {
		return report, err
	}
	e.dirty.Store(false)
	e.logger.Info("resync complete",
		zap.Int("applied", report.Applied), zap.Int("skipped", report.Skipped), zap.Int("dropped", report.Dropped))
	return report, nil
}

// Drain replays queued writes against state, oldest first.
func (e *Engine) Drain(ctx context.Context, state State) (Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drain(ctx, state)
}

func (e *Engine) drain(ctx context.Context, state State) (Report, error) {
	report := Report{IDs: map[string]string{}}
	ops, err := e.cache.PendingOperations(ctx)
	if err != nil {
		return report, err
	}

	for i := 0; i < len(ops); i++ {
		op := ops[i]
		log := e.logger.With(zap.String("op", op.ID), zap.String("collection", op.Collection),
			zap.String("kind", string(op.Op)), zap.String("record", op.RecordID()))

		serverID, applied, err := e.replay(ctx, op, state)
		switch {
		case err == nil && applied:
			report.Applied++
		case err == nil:
			report.Skipped++
			log.Info("remote copy is newer, skipping queued write")
		case e.droppable(op, err):
			report.Dropped++
			log.Warn("dropping queued write", zap.Error(err))
		default:
			if markErr := e.cache.MarkAttempt(ctx, op.ID, err); markErr != nil {
				log.Error("record replay attempt", zap.Error(markErr))
			}
			report.Remaining = len(ops) - i
			return report, fmt.Errorf("replay %s %s: %w", op.Op, op.Collection, err)
		}

		if op.Op == offline.OpCreate && op.LocalID != "" && serverID != "" {
			report.IDs[op.LocalID] = serverID
			if err := e.rewrite(ctx, ops[i+1:], op.LocalID, serverID); err != nil {
				report.Remaining = len(ops) - i
				return report, err
			}
		}
		if err := e.cache.RemovePendingOperation(ctx, op.ID); err != nil {
			report.Remaining = len(ops) - i
			return report, err
		}
	}
	return report, nil
}

// replay sends one operation. It reports the id the store assigned to a
// created record and whether anything was written.
func (e *Engine) replay(ctx context.Context, op offline.PendingOperation, state State) (string, bool, error) {
	id := op.RecordID()
	data := op.Data.Clone()
	delete(data, "id")
	delete(data, "updated")

	switch op.Op {
	case offline.OpCreate:
		rec, err := e.remote.Create(ctx, op.Collection, data)
		if err != nil {
			return "", false, err
		}
		return rec.ID(), true, nil

	case offline.OpUpdate:
		if offline.IsLocalID(id) {
			return "", false, fmt.Errorf("%w: %s was never created", remote.ErrNotFound, id)
		}
		if current, ok := state.find(op.Collection, id); ok {
			if current.Updated().After(time.Unix(0, op.Timestamp)) {
				return "", false, nil
			}
		}
		_, err := e.remote.Update(ctx, op.Collection, id, data)
		return "", err == nil, err

	case offline.OpDelete:
		if offline.IsLocalID(id) {
			return "", false, fmt.Errorf("%w: %s was never created", remote.ErrNotFound, id)
		}
		err := e.remote.Delete(ctx, op.Collection, id)
		return "", err == nil, err
	}
	return "", false, fmt.Errorf("unknown operation %q", op.Op)
}

// droppable reports whether retrying op can never succeed.
func (e *Engine) droppable(op offline.PendingOperation, err error) bool {
	if errors.Is(err, remote.ErrNotFound) && op.Op != offline.OpCreate {
		return true
	}
	var apiErr *remote.APIError
	return errors.As(err, &apiErr)
}

// rewrite replaces localID with serverID in every later operation and
// persists the changed ones.
func (e *Engine) rewrite(ctx context.Context, later []offline.PendingOperation, localID, serverID string) error {
	for i := range later {
		changed := false
		for k, v := range later[i].Data {
			if s, ok := v.(string); ok && s == localID {
				later[i].Data[k] = serverID
				changed = true
			}
		}
		if !changed {
			continue
		}
		if err := e.cache.UpdatePendingOperation(ctx, later[i]); err != nil {
			return fmt.Errorf("rewrite %s: %w", later[i].ID, err)
		}
	}
	return nil
}

// Snapshot decodes a fetched state into the typed finance model.
func Snapshot(state State) (finance.Snapshot, error) {
	var s finance.Snapshot
	targets := []struct {
		collection string
		into       any
	}{
		{finance.CollectionCycles, &s.Cycles},
		{finance.CollectionIncomes, &s.Incomes},
		{finance.CollectionAllocations, &s.Allocations},
		{finance.CollectionTransactions, &s.Transactions},
		{finance.CollectionSubscriptions, &s.Subscriptions},
		{finance.CollectionDebts, &s.Debts},
	}
	for _, t := range targets {
		b, err := json.Marshal(state[t.collection])
		if err != nil {
			return finance.Snapshot{}, fmt.Errorf("encode %s: %w", t.collection, err)
		}
		if err := json.Unmarshal(b, t.into); err != nil {
			return finance.Snapshot{}, fmt.Errorf("decode %s: %w", t.collection, err)
		}
	}
	return s, nil
}
