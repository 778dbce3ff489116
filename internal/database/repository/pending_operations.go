package repository

import (
	"context"
	"database/sql"
	"errors"
)

// PendingOperationRepo handles the offline write queue.
type PendingOperationRepo struct {
	db *sql.DB
}

func NewPendingOperationRepo(db *sql.DB) *PendingOperationRepo {
	return &PendingOperationRepo{db: db}
}

func (r *PendingOperationRepo) Insert(ctx context.Context, op PendingOperation) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO pending_operations(id, collection, operation, payload, enqueued_at, local_id)
	VALUES (?, ?, ?, ?, ?, ?);
	`, op.ID, op.Collection, op.Operation, string(op.Payload), op.EnqueuedAt, op.LocalID)
	return err
}

// List returns the queue oldest first. Equal stamps fall back to insertion order.
func (r *PendingOperationRepo) List(ctx context.Context) ([]PendingOperation, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT seq, id, collection, operation, payload, enqueued_at, local_id, attempts, last_error
	FROM pending_operations
	ORDER BY enqueued_at ASC, seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PendingOperation
	for rows.Next() {
		op, err := scanPendingOperation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

func (r *PendingOperationRepo) Get(ctx context.Context, id string) (*PendingOperation, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT seq, id, collection, operation, payload, enqueued_at, local_id, attempts, last_error
	FROM pending_operations WHERE id = ?`, id)
	op, err := scanPendingOperation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &op, nil
}

func (r *PendingOperationRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_operations`).Scan(&n)
	return n, err
}

// UpdatePayload rewrites the payload of a queued op in place; its position is kept.
func (r *PendingOperationRepo) UpdatePayload(ctx context.Context, id string, payload []byte) error {
	_, err := r.db.ExecContext(ctx, `UPDATE pending_operations SET payload = ? WHERE id = ?`, string(payload), id)
	return err
}

func (r *PendingOperationRepo) RecordAttempt(ctx context.Context, id string, lastErr string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE pending_operations SET attempts = attempts + 1, last_error = ? WHERE id = ?`, lastErr, id)
	return err
}

func (r *PendingOperationRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_operations WHERE id = ?`, id)
	return err
}

func (r *PendingOperationRepo) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_operations`)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPendingOperation(row scanner) (PendingOperation, error) {
	var op PendingOperation
	var payload string
	var localID, lastErr sql.NullString
	if err := row.Scan(&op.Seq, &op.ID, &op.Collection, &op.Operation, &payload, &op.EnqueuedAt,
		&localID, &op.Attempts, &lastErr); err != nil {
		return PendingOperation{}, err
	}
	op.Payload = []byte(payload)
	if localID.Valid {
		op.LocalID = &localID.String
	}
	if lastErr.Valid {
		op.LastError = &lastErr.String
	}
	return op, nil
}
