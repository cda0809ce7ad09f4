package store

import (
	"context"
	"database/sql"
	"fmt"

	"shopify-sync/internal/models"
)

// CreateSyncLog persists the raw webhook payload before any processing
func (s *Store) CreateSyncLog(ctx context.Context, log *models.SyncLog) error {
	query := `
		INSERT INTO sync_logs (id, topic, shopify_order_id, status, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	return s.db.GetContext(ctx, log, query,
		log.ID, log.Topic, log.ShopifyOrderID, log.Status, log.Payload)
}

// GetSyncLog retrieves a sync log by id
func (s *Store) GetSyncLog(ctx context.Context, id string) (*models.SyncLog, error) {
	var log models.SyncLog
	err := s.db.GetContext(ctx, &log, "SELECT * FROM sync_logs WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sync log not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// MarkSyncLogSuccess marks a queued attempt as successful. A log that
// already recorded a stage error keeps its Error status.
func (s *Store) MarkSyncLogSuccess(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sync_logs SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		models.SyncStatusSuccess, id, models.SyncStatusQueued)
	return err
}

// MarkSyncLogError records a stage failure. Repeated failures within one
// attempt append their detail.
func (s *Store) MarkSyncLogError(ctx context.Context, id, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_logs
		SET status = $1,
		    error_detail = CASE WHEN error_detail IS NULL OR error_detail = ''
		        THEN $2 ELSE error_detail || E'\n' || $2 END,
		    updated_at = NOW()
		WHERE id = $3`,
		models.SyncStatusError, detail, id)
	return err
}

// RequeueSyncLog resets a log for a replay attempt so a successful re-run
// can transition it to Success again. The previous error detail is cleared;
// a replay that fails records its own.
func (s *Store) RequeueSyncLog(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sync_logs SET status = $1, error_detail = NULL, updated_at = NOW() WHERE id = $2",
		models.SyncStatusQueued, id)
	return err
}

// SetSyncLogOrder attaches the Shopify order id once the payload is parsed
func (s *Store) SetSyncLogOrder(ctx context.Context, id string, shopifyOrderID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sync_logs SET shopify_order_id = $1, updated_at = NOW() WHERE id = $2",
		shopifyOrderID, id)
	return err
}

// ListSyncLogs retrieves recent sync logs, newest first
func (s *Store) ListSyncLogs(ctx context.Context, status string, limit int) ([]models.SyncLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []models.SyncLog
	if status != "" {
		err := s.db.SelectContext(ctx, &logs,
			"SELECT * FROM sync_logs WHERE status = $1 ORDER BY created_at DESC LIMIT $2", status, limit)
		return logs, err
	}
	err := s.db.SelectContext(ctx, &logs,
		"SELECT * FROM sync_logs ORDER BY created_at DESC LIMIT $1", limit)
	return logs, err
}
