package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SnapshotRepo handles per-domain cached snapshots.
type SnapshotRepo struct {
	db *sql.DB
}

func NewSnapshotRepo(db *sql.DB) *SnapshotRepo { return &SnapshotRepo{db: db} }

// Put overwrites the snapshot for s.Domain.
func (r *SnapshotRepo) Put(ctx context.Context, s Snapshot) error {
	return r.PutTx(ctx, r.db, s)
}

// PutTx is Put against an open transaction.
func (r *SnapshotRepo) PutTx(ctx context.Context, ex execer, s Snapshot) error {
	_, err := ex.ExecContext(ctx, `
	INSERT INTO snapshots(domain, payload, saved_at)
	VALUES (?, ?, ?)
	ON CONFLICT(domain) DO UPDATE SET
	 payload=excluded.payload,
	 saved_at=excluded.saved_at;
	`, s.Domain, string(s.Payload), s.SavedAt.UnixNano())
	return err
}

// Get returns nil when no snapshot is stored for domain.
func (r *SnapshotRepo) Get(ctx context.Context, domain string) (*Snapshot, error) {
	row := r.db.QueryRowContext(ctx, `SELECT domain, payload, saved_at FROM snapshots WHERE domain = ?`, domain)
	var s Snapshot
	var payload string
	var savedAt int64
	if err := row.Scan(&s.Domain, &payload, &savedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.Payload = []byte(payload)
	s.SavedAt = time.Unix(0, savedAt).UTC()
	return &s, nil
}

func (r *SnapshotRepo) Delete(ctx context.Context, domain string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM snapshots WHERE domain = ?`, domain)
	return err
}
