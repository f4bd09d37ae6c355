package repository

import (
	"context"
	"database/sql"
	"time"
)

// BankConnectionRepo handles bank connections.
type BankConnectionRepo struct{ db *sql.DB }

func NewBankConnectionRepo(db *sql.DB) *BankConnectionRepo { return &BankConnectionRepo{db: db} }

const connectionColumns = `id, organization_id, provider, external_account_id, provider_name, status,
 last_sync_at, sync_error, metadata, created_at, updated_at`

func (r *BankConnectionRepo) Create(ctx context.Context, c BankConnection) error {
	if c.Metadata == "" {
		c.Metadata = "{}"
	}
	if c.Provider == "" {
		c.Provider = ProviderPluggy
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO bank_connections(id, organization_id, provider, external_account_id, provider_name, status,
	 last_sync_at, sync_error, metadata, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, c.ID, c.OrganizationID, c.Provider, c.ExternalAccountID, c.ProviderName, c.Status,
		c.LastSyncAt, c.SyncError, c.Metadata)
	return wrapInsert(err)
}

func (r *BankConnectionRepo) Get(ctx context.Context, id string) (*BankConnection, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM bank_connections WHERE id = ?`, id)
	return scanConnectionRow(row)
}

// ByExternalID finds the connection for an aggregator item. When several rows
// share the item id the active one wins, then the most recently updated.
func (r *BankConnectionRepo) ByExternalID(ctx context.Context, externalAccountID, provider string) (*BankConnection, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT `+connectionColumns+`
	FROM bank_connections
	WHERE external_account_id = ? AND provider = ?
	ORDER BY (status = 'active') DESC, updated_at DESC, id
	LIMIT 1
	`, externalAccountID, provider)
	return scanConnectionRow(row)
}

// SetStatus moves a connection to status and replaces its sync error.
func (r *BankConnectionRepo) SetStatus(ctx context.Context, id, status string, syncError *string) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE bank_connections SET status = ?, sync_error = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, status, syncError, id)
	return err
}

// MarkActive records a successful upstream refresh.
func (r *BankConnectionRepo) MarkActive(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE bank_connections
	SET status = 'active', sync_error = NULL, last_sync_at = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ?
	`, at, id)
	return err
}

// MarkSynced stamps last_sync_at and clears sync_error without touching status.
func (r *BankConnectionRepo) MarkSynced(ctx context.Context, id string, at time.Time, providerName *string) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE bank_connections
	SET last_sync_at = ?, sync_error = NULL, provider_name = COALESCE(?, provider_name), updated_at = CURRENT_TIMESTAMP
	WHERE id = ?
	`, at, providerName, id)
	return err
}

// SetSyncError records a failed sync without changing status.
func (r *BankConnectionRepo) SetSyncError(ctx context.Context, id, message string) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE bank_connections SET sync_error = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, message, id)
	return err
}

func scanConnectionRow(row scanner) (*BankConnection, error) {
	c, err := scanConnection(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func scanConnection(row scanner) (BankConnection, error) {
	var c BankConnection
	var providerName, syncError sql.NullString
	var lastSync sql.NullTime
	if err := row.Scan(&c.ID, &c.OrganizationID, &c.Provider, &c.ExternalAccountID, &providerName, &c.Status,
		&lastSync, &syncError, &c.Metadata, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return BankConnection{}, err
	}
	if providerName.Valid {
		c.ProviderName = &providerName.String
	}
	if syncError.Valid {
		c.SyncError = &syncError.String
	}
	if lastSync.Valid {
		c.LastSyncAt = &lastSync.Time
	}
	return c, nil
}
