package remote

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryCRUDAndEvents(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory()
	stamp := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return stamp })

	var mu sync.Mutex
	var events []Event
	sub, err := m.Subscribe(ctx, "debts", func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})
	require.NoError(t, err)
	defer sub.Cancel()

	created, err := m.Create(ctx, "debts", Record{"name": "Visa", "remaining_amount": 300.0})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID())
	require.Equal(t, stamp, created.Updated())

	updated, err := m.Update(ctx, "debts", created.ID(), Record{"remaining_amount": 100.0, "id": "ignored"})
	require.NoError(t, err)
	require.Equal(t, created.ID(), updated.ID())
	require.Equal(t, 100.0, updated["remaining_amount"])
	require.Equal(t, "Visa", updated["name"])

	_, err = m.Update(ctx, "debts", "missing", Record{})
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Delete(ctx, "debts", created.ID()))
	require.ErrorIs(t, m.Delete(ctx, "debts", created.ID()), ErrNotFound)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 3)
	require.Equal(t, ActionCreate, events[0].Action)
	require.Equal(t, ActionUpdate, events[1].Action)
	require.Equal(t, ActionDelete, events[2].Action)
}

func TestMemoryDisconnectEndsSubscriptions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory()
	var calls int
	sub, err := m.Subscribe(ctx, "debts", func(Event) { calls++ })
	require.NoError(t, err)

	m.Disconnect()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription not ended")
	}
	_, err = m.Create(ctx, "debts", Record{"name": "Visa"})
	require.NoError(t, err)
	require.Zero(t, calls)
	sub.Cancel()
}

func TestMemoryOffline(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory()
	m.SetOnline(false)

	_, err := m.Create(ctx, "debts", Record{"name": "x"})
	require.ErrorIs(t, err, ErrUnavailable)
	_, err = m.GetList(ctx, "debts", 1, 10, ListOptions{})
	require.ErrorIs(t, err, ErrUnavailable)
	_, err = m.Subscribe(ctx, "debts", func(Event) {})
	require.ErrorIs(t, err, ErrUnavailable)

	m.SetOnline(true)
	_, err = m.Create(ctx, "debts", Record{"name": "x"})
	require.NoError(t, err)
}

func TestListAllPages(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	for i := 0; i < DefaultPerPage+5; i++ {
		m.Put("transactions", Record{"amount": float64(i)})
	}
	all, err := ListAll(context.Background(), m, "transactions", ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, DefaultPerPage+5)
	require.Equal(t, 0.0, all[0]["amount"])
	require.Equal(t, float64(DefaultPerPage+4), all[len(all)-1]["amount"])

	empty, err := ListAll(context.Background(), m, "nothing", ListOptions{})
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestEncodeDecodeRecord(t *testing.T) {
	t.Parallel()

	type debt struct {
		ID   string  `json:"id"`
		Left float64 `json:"remaining_amount"`
	}
	rec, err := Encode(debt{ID: "d1", Left: 12.5})
	require.NoError(t, err)
	require.Equal(t, "d1", rec.ID())

	var back debt
	require.NoError(t, Decode(rec, &back))
	require.Equal(t, debt{ID: "d1", Left: 12.5}, back)
}
