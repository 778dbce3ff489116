// Package offline persists domain snapshots and the queue of remote writes
// that could not be applied while disconnected.
package offline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jask/navi/internal/database"
	"github.com/jask/navi/internal/database/repository"
	"github.com/jask/navi/internal/finance"
	"github.com/jask/navi/internal/remote"
)

// Snapshot keys, one static key per domain.
const (
	DomainFinance   = "finance"
	DomainDashboard = "dashboard"
)

const metaLastSync = "last_sync_time"

// LocalIDPrefix marks ids minted offline for records the server has not seen.
const LocalIDPrefix = "local_"

// NewLocalID returns a fresh offline record id.
func NewLocalID() string { return LocalIDPrefix + uuid.NewString() }

// IsLocalID reports whether id was minted by NewLocalID.
func IsLocalID(id string) bool { return strings.HasPrefix(id, LocalIDPrefix) }

// Op is the kind of queued remote write.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// PendingOperation is a remote write waiting for connectivity.
type PendingOperation struct {
	ID         string        `json:"id"`
	Collection string        `json:"collection"`
	Op         Op            `json:"operation"`
	Data       remote.Record `json:"data"`
	Timestamp  int64         `json:"timestamp"`
	LocalID    string        `json:"localId,omitempty"`
	Attempts   int           `json:"attempts"`
	LastError  string        `json:"lastError,omitempty"`
}

// RecordID is the id of the record the operation targets.
func (op PendingOperation) RecordID() string { return op.Data.ID() }

// DashboardSnapshot caches the dashboard's collections verbatim.
type DashboardSnapshot struct {
	Collections map[string][]remote.Record `json:"collections"`
}

// Cache is the offline store. Appends are serialised so enqueue stamps are
// strictly increasing even under concurrent callers.
type Cache struct {
	db        *sql.DB
	snapshots *repository.SnapshotRepo
	ops       *repository.PendingOperationRepo
	meta      *repository.MetadataRepo

	mu        sync.Mutex
	lastStamp int64
	now       func() time.Time
}

func New(db *sql.DB) *Cache {
	return &Cache{
		db:        db,
		snapshots: repository.NewSnapshotRepo(db),
		ops:       repository.NewPendingOperationRepo(db),
		meta:      repository.NewMetadataRepo(db),
		now:       database.Now,
	}
}

// SetClock overrides the time source.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *Cache) clock() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now()
}

func (c *Cache) SaveFinance(ctx context.Context, s finance.Snapshot) error {
	return c.save(ctx, DomainFinance, s)
}

// GetFinance reports found=false before the first save.
func (c *Cache) GetFinance(ctx context.Context) (finance.Snapshot, bool, error) {
	var s finance.Snapshot
	ok, err := c.load(ctx, DomainFinance, &s)
	return s, ok, err
}

func (c *Cache) SaveDashboard(ctx context.Context, s DashboardSnapshot) error {
	return c.save(ctx, DomainDashboard, s)
}

func (c *Cache) GetDashboard(ctx context.Context) (DashboardSnapshot, bool, error) {
	var s DashboardSnapshot
	ok, err := c.load(ctx, DomainDashboard, &s)
	return s, ok, err
}

// save overwrites the domain snapshot and stamps the last sync time in one transaction.
func (c *Cache) save(ctx context.Context, domain string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s snapshot: %w", domain, err)
	}
	now := c.clock()
	return database.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		if err := c.snapshots.PutTx(ctx, tx, repository.Snapshot{Domain: domain, Payload: payload, SavedAt: now}); err != nil {
			return fmt.Errorf("save %s snapshot: %w", domain, err)
		}
		return c.meta.SetTx(ctx, tx, metaLastSync, strconv.FormatInt(now.UnixNano(), 10))
	})
}

func (c *Cache) load(ctx context.Context, domain string, v any) (bool, error) {
	row, err := c.snapshots.Get(ctx, domain)
	if err != nil {
		return false, fmt.Errorf("load %s snapshot: %w", domain, err)
	}
	if row == nil {
		return false, nil
	}
	if err := json.Unmarshal(row.Payload, v); err != nil {
		return false, fmt.Errorf("decode %s snapshot: %w", domain, err)
	}
	return true, nil
}

// LastSyncTime reports the last successful snapshot save.
func (c *Cache) LastSyncTime(ctx context.Context) (time.Time, bool, error) {
	v, ok, err := c.meta.Get(ctx, metaLastSync)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	ns, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse last sync time: %w", err)
	}
	return time.Unix(0, ns).UTC(), true, nil
}

// AddPendingOperation appends a write to the queue.
func (c *Cache) AddPendingOperation(ctx context.Context, collection string, op Op, data remote.Record, localID string) (PendingOperation, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return PendingOperation{}, fmt.Errorf("encode pending %s: %w", op, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	stamp := c.now().UnixNano()
	if stamp <= c.lastStamp {
		stamp = c.lastStamp + 1
	}
	row := repository.PendingOperation{
		ID:         uuid.NewString(),
		Collection: collection,
		Operation:  string(op),
		Payload:    payload,
		EnqueuedAt: stamp,
	}
	if localID != "" {
		row.LocalID = &localID
	}
	if err := c.ops.Insert(ctx, row); err != nil {
		return PendingOperation{}, fmt.Errorf("enqueue %s %s: %w", op, collection, err)
	}
	c.lastStamp = stamp
	return fromRow(row, data), nil
}

// PendingOperations returns the queue oldest first.
func (c *Cache) PendingOperations(ctx context.Context) ([]PendingOperation, error) {
	rows, err := c.ops.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending operations: %w", err)
	}
	out := make([]PendingOperation, 0, len(rows))
	for _, row := range rows {
		var data remote.Record
		if err := json.Unmarshal(row.Payload, &data); err != nil {
			return nil, fmt.Errorf("decode pending operation %s: %w", row.ID, err)
		}
		out = append(out, fromRow(row, data))
	}
	return out, nil
}

// PendingCount is the queue length.
func (c *Cache) PendingCount(ctx context.Context) (int, error) {
	return c.ops.Count(ctx)
}

// UpdatePendingOperation rewrites op's data in place without moving it in the queue.
func (c *Cache) UpdatePendingOperation(ctx context.Context, op PendingOperation) error {
	payload, err := json.Marshal(op.Data)
	if err != nil {
		return fmt.Errorf("encode pending operation %s: %w", op.ID, err)
	}
	return c.ops.UpdatePayload(ctx, op.ID, payload)
}

// MarkAttempt records a failed replay attempt.
func (c *Cache) MarkAttempt(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return c.ops.RecordAttempt(ctx, id, msg)
}

// RemovePendingOperation is a no-op for unknown ids.
func (c *Cache) RemovePendingOperation(ctx context.Context, id string) error {
	return c.ops.Delete(ctx, id)
}

// ClearPendingOperations empties the queue.
func (c *Cache) ClearPendingOperations(ctx context.Context) error {
	return c.ops.DeleteAll(ctx)
}

func fromRow(row repository.PendingOperation, data remote.Record) PendingOperation {
	op := PendingOperation{
		ID:         row.ID,
		Collection: row.Collection,
		Op:         Op(row.Operation),
		Data:       data,
		Timestamp:  row.EnqueuedAt,
		Attempts:   row.Attempts,
	}
	if row.LocalID != nil {
		op.LocalID = *row.LocalID
	}
	if row.LastError != nil {
		op.LastError = *row.LastError
	}
	return op
}
