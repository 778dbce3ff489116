package replay

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jask/navi/internal/database"
	"github.com/jask/navi/internal/finance"
	"github.com/jask/navi/internal/offline"
	"github.com/jask/navi/internal/remote"
	"github.com/jask/navi/internal/service"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	engine *Engine
	mem    *remote.Memory
	cache  *offline.Cache
	ledger *service.Ledger
}

func newFixture(t *testing.T, wrap func(*remote.Memory) remote.Store) fixture {
	t.Helper()
	db, err := database.OpenAndMigrate(filepath.Join(t.TempDir(), "navi.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mem := remote.NewMemory()
	mem.Put(finance.CollectionAllocations, remote.Record{
		"id": "a1", "name": "Living Wallet", "category": "living",
		"total_budget": 500.0, "current_balance": 200.0, "cycle_id": "c1",
	})
	var store remote.Store = mem
	if wrap != nil {
		store = wrap(mem)
	}
	cache := offline.New(db)
	ledger := service.NewLedger(store, cache, nil)
	return fixture{
		engine: New(store, cache, ledger, nil),
		mem:    mem,
		cache:  cache,
		ledger: ledger,
	}
}

// rejecting refuses creates in one collection the way a validating store would.
type rejecting struct {
	*remote.Memory
	collection string
}

func (r rejecting) Create(ctx context.Context, collection string, data remote.Record) (remote.Record, error) {
	if collection == r.collection {
		return nil, &remote.APIError{Status: 400, Message: "Failed to create record."}
	}
	return r.Memory.Create(ctx, collection, data)
}

func TestResyncReplaysOfflineWritesAndResolvesLocalIDs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)

	f.mem.SetOnline(false)
	debt, err := f.ledger.AddDebt(ctx, finance.Debt{Name: "Car Loan", TotalAmount: 5000, RemainingAmount: 5000, Priority: finance.PriorityHigh})
	require.NoError(t, err)
	require.True(t, offline.IsLocalID(debt.ID))
	_, err = f.ledger.PayDebt(ctx, debt.ID, "", 500)
	require.NoError(t, err)

	_, err = f.engine.Resync(ctx)
	require.ErrorIs(t, err, remote.ErrUnavailable)
	require.Equal(t, debt.ID, f.ledger.Snapshot().Debts[0].ID, "failed resync keeps the local snapshot")

	f.mem.SetOnline(true)
	report, err := f.engine.Resync(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.Applied)
	serverID := report.IDs[debt.ID]
	require.NotEmpty(t, serverID)
	require.False(t, offline.IsLocalID(serverID))

	stored, ok := f.mem.Get(finance.CollectionDebts, serverID)
	require.True(t, ok)
	require.Equal(t, 4500.0, stored["remaining_amount"])
	require.Equal(t, "Car Loan", stored["name"])

	n, err := f.cache.PendingCount(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	snap := f.ledger.Snapshot()
	require.Len(t, snap.Debts, 1)
	require.Equal(t, serverID, snap.Debts[0].ID)
	require.Len(t, snap.Allocations, 1)

	cached, ok, err := f.cache.GetFinance(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, serverID, cached.Debts[0].ID)

	dash, ok, err := f.cache.GetDashboard(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, dash.Collections[finance.CollectionAllocations], 1)
}

func TestDrainRewritesReferencesToLocalIDs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)

	allocLocal, txLocal := offline.NewLocalID(), offline.NewLocalID()
	_, err := f.cache.AddPendingOperation(ctx, finance.CollectionAllocations, offline.OpCreate, remote.Record{
		"id": allocLocal, "name": "Trip", "category": "play", "total_budget": 300.0, "current_balance": 300.0,
	}, allocLocal)
	require.NoError(t, err)
	_, err = f.cache.AddPendingOperation(ctx, finance.CollectionTransactions, offline.OpCreate, remote.Record{
		"id": txLocal, "amount": 20.0, "description": "train", "allocation_id": allocLocal, "type": "expense",
	}, txLocal)
	require.NoError(t, err)

	report, err := f.engine.Drain(ctx, State{})
	require.NoError(t, err)
	require.Equal(t, 2, report.Applied)
	require.Len(t, report.IDs, 2)

	allocID := report.IDs[allocLocal]
	page, err := f.mem.GetList(ctx, finance.CollectionTransactions, 1, 50, remote.ListOptions{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, allocID, page.Items[0]["allocation_id"])
	require.Equal(t, report.IDs[txLocal], page.Items[0].ID())
}

func TestDrainSkipsUpdatesOlderThanRemote(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)

	enqueued := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	f.cache.SetClock(func() time.Time { return enqueued })
	f.mem.Put(finance.CollectionAllocations, remote.Record{
		"id": "a1", "name": "Living Wallet", "current_balance": 180.0,
		"updated": enqueued.Add(time.Hour).Format(time.RFC3339Nano),
	})
	f.mem.Put(finance.CollectionAllocations, remote.Record{
		"id": "a2", "name": "Bills Wallet", "current_balance": 900.0,
		"updated": enqueued.Add(-time.Hour).Format(time.RFC3339Nano),
	})

	_, err := f.cache.AddPendingOperation(ctx, finance.CollectionAllocations, offline.OpUpdate, remote.Record{"id": "a1", "current_balance": 150.0}, "")
	require.NoError(t, err)
	_, err = f.cache.AddPendingOperation(ctx, finance.CollectionAllocations, offline.OpUpdate, remote.Record{"id": "a2", "current_balance": 850.0}, "")
	require.NoError(t, err)

	state, err := f.engine.Fetch(ctx)
	require.NoError(t, err)
	report, err := f.engine.Drain(ctx, state)
	require.NoError(t, err)
	require.Equal(t, 1, report.Skipped)
	require.Equal(t, 1, report.Applied)

	a1, _ := f.mem.Get(finance.CollectionAllocations, "a1")
	require.Equal(t, 180.0, a1["current_balance"])
	a2, _ := f.mem.Get(finance.CollectionAllocations, "a2")
	require.Equal(t, 850.0, a2["current_balance"])

	n, err := f.cache.PendingCount(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestDrainDropsWritesToMissingRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.cache.AddPendingOperation(ctx, finance.CollectionDebts, offline.OpUpdate, remote.Record{"id": "ghost", "remaining_amount": 1.0}, "")
	require.NoError(t, err)
	_, err = f.cache.AddPendingOperation(ctx, finance.CollectionDebts, offline.OpDelete, remote.Record{"id": offline.NewLocalID()}, "")
	require.NoError(t, err)
	_, err = f.cache.AddPendingOperation(ctx, finance.CollectionDebts, offline.OpCreate, remote.Record{"name": "Phone", "total_amount": 300.0, "remaining_amount": 300.0}, "")
	require.NoError(t, err)

	report, err := f.engine.Drain(ctx, State{})
	require.NoError(t, err)
	require.Equal(t, 2, report.Dropped)
	require.Equal(t, 1, report.Applied)

	page, err := f.mem.GetList(ctx, finance.CollectionDebts, 1, 50, remote.ListOptions{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
}

func TestDrainDropsRejectedWrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, func(m *remote.Memory) remote.Store {
		return rejecting{Memory: m, collection: finance.CollectionDebts}
	})

	_, err := f.cache.AddPendingOperation(ctx, finance.CollectionDebts, offline.OpCreate, remote.Record{"name": "Bad"}, "")
	require.NoError(t, err)
	_, err = f.cache.AddPendingOperation(ctx, finance.CollectionSubscriptions, offline.OpCreate, remote.Record{"name": "Gym", "amount": 40.0, "billing_day": 5.0}, "")
	require.NoError(t, err)

	report, err := f.engine.Drain(ctx, State{})
	require.NoError(t, err)
	require.Equal(t, 1, report.Dropped)
	require.Equal(t, 1, report.Applied)
}

func TestDrainStopsAtTransportErrorAndKeepsOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)

	first, err := f.cache.AddPendingOperation(ctx, finance.CollectionDebts, offline.OpCreate, remote.Record{"name": "One"}, "")
	require.NoError(t, err)
	second, err := f.cache.AddPendingOperation(ctx, finance.CollectionDebts, offline.OpCreate, remote.Record{"name": "Two"}, "")
	require.NoError(t, err)

	f.mem.SetOnline(false)
	report, err := f.engine.Drain(ctx, State{})
	require.ErrorIs(t, err, remote.ErrUnavailable)
	require.Equal(t, 2, report.Remaining)

	ops, err := f.cache.PendingOperations(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	require.Equal(t, first.ID, ops[0].ID)
	require.Equal(t, 1, ops[0].Attempts)
	require.Contains(t, ops[0].LastError, "unavailable")
	require.Equal(t, second.ID, ops[1].ID)
	require.Zero(t, ops[1].Attempts)

	f.mem.SetOnline(true)
	report, err = f.engine.Drain(ctx, State{})
	require.NoError(t, err)
	require.Equal(t, 2, report.Applied)

	page, err := f.mem.GetList(ctx, finance.CollectionDebts, 1, 50, remote.ListOptions{})
	require.NoError(t, err)
	require.Equal(t, "One", page.Items[0]["name"])
	require.Equal(t, "Two", page.Items[1]["name"])
}

func TestSnapshotDecodesState(t *testing.T) {
	t.Parallel()

	snap, err := Snapshot(State{
		finance.CollectionCycles: {{"id": "c1", "name": "March", "status": "active", "start_date": "2025-03-01 00:00:00.000Z", "end_date": "2025-03-15 00:00:00.000Z"}},
		finance.CollectionDebts:  {{"id": "d1", "name": "Visa", "total_amount": 1000.0, "remaining_amount": 0.0}},
	})
	require.NoError(t, err)
	require.Len(t, snap.Cycles, 1)
	require.Equal(t, finance.CycleActive, snap.Cycles[0].Status)
	require.Equal(t, 15, snap.Cycles[0].EndDate.Day())
	require.True(t, snap.Debts[0].IsPaidOff())
	require.Empty(t, snap.Allocations)
}
