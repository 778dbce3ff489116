package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jask/navi/internal/database"
)

// MaintenanceService houses destructive operations on the local cache.
type MaintenanceService struct {
	DB *sql.DB
}

// Reset wipes cached snapshots, queued writes and sync metadata. The schema
// is kept so the process can continue running.
func (s *MaintenanceService) Reset(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("maintenance: db not configured")
	}
	if err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		for _, t := range []string{"pending_operations", "snapshots", "sync_metadata"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				return fmt.Errorf("reset table %s: %w", t, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}
	_, _ = s.DB.ExecContext(ctx, "VACUUM")
	return nil
}
