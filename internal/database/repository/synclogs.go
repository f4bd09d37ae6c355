package repository

import (
	"context"
	"database/sql"
	"time"
)

// SyncLogRepo records one summary row per sync attempt.
type SyncLogRepo struct{ db *sql.DB }

func NewSyncLogRepo(db *sql.DB) *SyncLogRepo { return &SyncLogRepo{db: db} }

// Start inserts a running sync log.
func (r *SyncLogRepo) Start(ctx context.Context, l SyncLog) error {
	if l.Status == "" {
		l.Status = SyncRunning
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO open_finance_sync_logs(id, organization_id, item_id, sync_type, status, started_at)
	VALUES(?, ?, ?, ?, ?, ?)
	`, l.ID, l.OrganizationID, l.ItemID, l.SyncType, l.Status, l.StartedAt)
	return err
}

// Finish stores the final counters and status.
func (r *SyncLogRepo) Finish(ctx context.Context, l SyncLog) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE open_finance_sync_logs
	SET status = ?, transactions_fetched = ?, transactions_imported = ?, transactions_skipped = ?,
	 transactions_failed = ?, transactions_classified = ?, error_message = ?, finished_at = ?
	WHERE id = ?
	`, l.Status, l.Fetched, l.Imported, l.Skipped, l.Failed, l.Classified, l.ErrorMessage, l.FinishedAt, l.ID)
	return err
}

// List returns sync logs for an upstream item, newest first.
func (r *SyncLogRepo) List(ctx context.Context, itemID string) ([]SyncLog, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, organization_id, item_id, sync_type, status, transactions_fetched, transactions_imported,
	 transactions_skipped, transactions_failed, transactions_classified, error_message, started_at, finished_at
	FROM open_finance_sync_logs WHERE item_id = ? ORDER BY started_at DESC, rowid DESC
	`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SyncLog
	for rows.Next() {
		var l SyncLog
		var message sql.NullString
		var finished sql.NullTime
		if err := rows.Scan(&l.ID, &l.OrganizationID, &l.ItemID, &l.SyncType, &l.Status, &l.Fetched, &l.Imported,
			&l.Skipped, &l.Failed, &l.Classified, &message, &l.StartedAt, &finished); err != nil {
			return nil, err
		}
		l.ErrorMessage = nullString(message)
		if finished.Valid {
			l.FinishedAt = &finished.Time
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
