package repository

import (
	"context"
	"database/sql"
	"errors"
)

// MetadataRepo handles sync bookkeeping key/values.
type MetadataRepo struct {
	db *sql.DB
}

func NewMetadataRepo(db *sql.DB) *MetadataRepo { return &MetadataRepo{db: db} }

func (r *MetadataRepo) Set(ctx context.Context, key, value string) error {
	return r.SetTx(ctx, r.db, key, value)
}

func (r *MetadataRepo) SetTx(ctx context.Context, ex execer, key, value string) error {
	_, err := ex.ExecContext(ctx, `
	INSERT INTO sync_metadata(key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value=excluded.value;
	`, key, value)
	return err
}

// Get reports ok=false when the key is absent.
func (r *MetadataRepo) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM sync_metadata WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}
