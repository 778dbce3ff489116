package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store. It keeps insertion order, stamps
// `updated` on every write and can be switched offline. Sort and Filter
// options are ignored.
type Memory struct {
	mu      sync.Mutex
	data    map[string][]Record
	subs    map[string]map[int]*memorySub
	nextSub int
	offline bool
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		data: map[string][]Record{},
		subs: map[string]map[int]*memorySub{},
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the stamp source.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SetOnline toggles reachability; offline calls fail with ErrUnavailable.
func (m *Memory) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = !online
}

// Put stores rec as-is without notifying subscribers. Used for seeding.
func (m *Memory) Put(collection string, rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec = rec.Clone()
	if rec.ID() == "" {
		rec["id"] = uuid.NewString()
	}
	if i := m.indexLocked(collection, rec.ID()); i >= 0 {
		m.data[collection][i] = rec
		return
	}
	m.data[collection] = append(m.data[collection], rec)
}

// Get returns a copy of one record.
func (m *Memory) Get(collection, id string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.indexLocked(collection, id); i >= 0 {
		return m.data[collection][i].Clone(), true
	}
	return nil, false
}

func (m *Memory) GetList(ctx context.Context, collection string, page, perPage int, _ ListOptions) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return Page{}, ErrUnavailable
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	all := m.data[collection]
	total := len(all)
	p := Page{Page: page, PerPage: perPage, TotalItems: total, TotalPages: (total + perPage - 1) / perPage}
	start := (page - 1) * perPage
	if start < total {
		end := min(start+perPage, total)
		for _, r := range all[start:end] {
			p.Items = append(p.Items, r.Clone())
		}
	}
	return p, nil
}

func (m *Memory) Create(ctx context.Context, collection string, data Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	if m.offline {
		m.mu.Unlock()
		return nil, ErrUnavailable
	}
	rec := data.Clone()
	if rec.ID() == "" {
		rec["id"] = uuid.NewString()
	} else if m.indexLocked(collection, rec.ID()) >= 0 {
		m.mu.Unlock()
		return nil, fmt.Errorf("remote: %s/%s already exists", collection, rec.ID())
	}
	rec["updated"] = m.now().Format(time.RFC3339Nano)
	m.data[collection] = append(m.data[collection], rec)
	handlers := m.handlersLocked(collection)
	m.mu.Unlock()

	notify(handlers, Event{Collection: collection, Action: ActionCreate, Record: rec.Clone()})
	return rec.Clone(), nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, data Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	if m.offline {
		m.mu.Unlock()
		return nil, ErrUnavailable
	}
	i := m.indexLocked(collection, id)
	if i < 0 {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	rec := m.data[collection][i].Clone()
	for k, v := range data {
		if k == "id" {
			continue
		}
		rec[k] = v
	}
	rec["updated"] = m.now().Format(time.RFC3339Nano)
	m.data[collection][i] = rec
	handlers := m.handlersLocked(collection)
	m.mu.Unlock()

	notify(handlers, Event{Collection: collection, Action: ActionUpdate, Record: rec.Clone()})
	return rec.Clone(), nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.offline {
		m.mu.Unlock()
		return ErrUnavailable
	}
	i := m.indexLocked(collection, id)
	if i < 0 {
		m.mu.Unlock()
		return ErrNotFound
	}
	rec := m.data[collection][i]
	m.data[collection] = append(m.data[collection][:i:i], m.data[collection][i+1:]...)
	handlers := m.handlersLocked(collection)
	m.mu.Unlock()

	notify(handlers, Event{Collection: collection, Action: ActionDelete, Record: rec.Clone()})
	return nil
}

type memorySub struct {
	handler func(Event)
	end     func()
}

func (m *Memory) Subscribe(ctx context.Context, collection string, handler func(Event)) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return nil, ErrUnavailable
	}
	id := m.nextSub
	m.nextSub++

	var once sync.Once
	done := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs[collection], id)
			m.mu.Unlock()
			close(done)
		})
	}
	if m.subs[collection] == nil {
		m.subs[collection] = map[int]*memorySub{}
	}
	m.subs[collection][id] = &memorySub{handler: handler, end: cancel}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return NewSubscription(cancel, done), nil
}

// Disconnect ends every open subscription the way a dropped server
// connection would.
func (m *Memory) Disconnect() {
	m.mu.Lock()
	var ends []func()
	for _, subs := range m.subs {
		for _, sub := range subs {
			ends = append(ends, sub.end)
		}
	}
	m.mu.Unlock()
	for _, end := range ends {
		end()
	}
}

func (m *Memory) indexLocked(collection, id string) int {
	for i, r := range m.data[collection] {
		if r.ID() == id {
			return i
		}
	}
	return -1
}

func (m *Memory) handlersLocked(collection string) []func(Event) {
	out := make([]func(Event), 0, len(m.subs[collection]))
	for _, sub := range m.subs[collection] {
		out = append(out, sub.handler)
	}
	return out
}

func notify(handlers []func(Event), ev Event) {
	for _, h := range handlers {
		h(ev)
	}
}
