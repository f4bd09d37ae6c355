package repository

import (
	"context"
	"database/sql"
	"time"
)

// OpenFinanceItemRepo handles open finance items.
type OpenFinanceItemRepo struct{ db *sql.DB }

func NewOpenFinanceItemRepo(db *sql.DB) *OpenFinanceItemRepo { return &OpenFinanceItemRepo{db: db} }

const itemColumns = `id, organization_id, pluggy_item_id, connector_name, status, execution_status,
 consecutive_failures, error_message, error_code, last_sync_at, created_at, updated_at`

func (r *OpenFinanceItemRepo) Create(ctx context.Context, it OpenFinanceItem) error {
	if it.Status == "" {
		it.Status = ItemInProgress
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO open_finance_items(id, organization_id, pluggy_item_id, connector_name, status, execution_status,
	 consecutive_failures, error_message, error_code, last_sync_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, it.ID, it.OrganizationID, it.PluggyItemID, it.ConnectorName, it.Status, it.ExecutionStatus,
		it.ConsecutiveFailures, it.ErrorMessage, it.ErrorCode, it.LastSyncAt)
	return wrapInsert(err)
}

func (r *OpenFinanceItemRepo) Get(ctx context.Context, id string) (*OpenFinanceItem, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM open_finance_items WHERE id = ?`, id)
	return scanItemRow(row)
}

func (r *OpenFinanceItemRepo) ByPluggyID(ctx context.Context, pluggyItemID string) (*OpenFinanceItem, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM open_finance_items WHERE pluggy_item_id = ?`, pluggyItemID)
	return scanItemRow(row)
}

// RecordSuccess marks the item completed and resets the failure streak.
func (r *OpenFinanceItemRepo) RecordSuccess(ctx context.Context, id string, executionStatus *string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE open_finance_items
	SET status = 'completed', execution_status = COALESCE(?, execution_status), consecutive_failures = 0,
	 error_message = NULL, error_code = NULL, last_sync_at = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ?
	`, executionStatus, at, id)
	return err
}

// RecordFailure moves the item to status and increments its failure streak.
func (r *OpenFinanceItemRepo) RecordFailure(ctx context.Context, id, status string, executionStatus, message, code *string) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE open_finance_items
	SET status = ?, execution_status = COALESCE(?, execution_status), consecutive_failures = consecutive_failures + 1,
	 error_message = ?, error_code = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ?
	`, status, executionStatus, message, code, id)
	return err
}

func (r *OpenFinanceItemRepo) SetStatus(ctx context.Context, id, status string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE open_finance_items SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, status, id)
	return err
}

// MarkSynced stamps last_sync_at and records the connector name when known.
func (r *OpenFinanceItemRepo) MarkSynced(ctx context.Context, id string, at time.Time, connectorName *string) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE open_finance_items
	SET last_sync_at = ?, connector_name = COALESCE(?, connector_name), updated_at = CURRENT_TIMESTAMP
	WHERE id = ?
	`, at, connectorName, id)
	return err
}

func scanItemRow(row scanner) (*OpenFinanceItem, error) {
	var it OpenFinanceItem
	var connector, execStatus, message, code sql.NullString
	var lastSync sql.NullTime
	if err := row.Scan(&it.ID, &it.OrganizationID, &it.PluggyItemID, &connector, &it.Status, &execStatus,
		&it.ConsecutiveFailures, &message, &code, &lastSync, &it.CreatedAt, &it.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if connector.Valid {
		it.ConnectorName = &connector.String
	}
	if execStatus.Valid {
		it.ExecutionStatus = &execStatus.String
	}
	if message.Valid {
		it.ErrorMessage = &message.String
	}
	if code.Valid {
		it.ErrorCode = &code.String
	}
	if lastSync.Valid {
		it.LastSyncAt = &lastSync.Time
	}
	return &it, nil
}
