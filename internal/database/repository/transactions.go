package repository

import (
	"context"
	"database/sql"
	"strings"
)

// TransactionFilters defines list filters.
type TransactionFilters struct {
	OrganizationID   string
	AccountID        string
	ValidationStatus string
}

// TransactionRepo handles transactions.
type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

const transactionColumns = `id, organization_id, account_id, bank_connection_id, external_transaction_id, sync_dedup_key,
 date, description, amount, type, category_id, cost_center_id, classification_source, validation_status, notes,
 created_at, updated_at`

// Insert stores a new transaction. A unique-constraint race with another
// writer surfaces as ErrDuplicate.
func (r *TransactionRepo) Insert(ctx context.Context, t Transaction) error {
	if t.ValidationStatus == "" {
		t.ValidationStatus = PendingValidation
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO transactions(
	 id, organization_id, account_id, bank_connection_id, external_transaction_id, sync_dedup_key,
	 date, description, amount, type, category_id, cost_center_id, classification_source, validation_status, notes,
	 created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`,
		t.ID, t.OrganizationID, t.AccountID, t.BankConnectionID, t.ExternalTransactionID, t.SyncDedupKey,
		t.Date, t.Description, t.Amount.Abs().StringFixed(2), t.Type, t.CategoryID, t.CostCenterID,
		t.ClassificationSource, t.ValidationStatus, t.Notes)
	return wrapInsert(err)
}

// ExistsByExternalID reports whether the organization already has a row with this upstream id.
func (r *TransactionRepo) ExistsByExternalID(ctx context.Context, organizationID, externalID string) (bool, error) {
	return r.exists(ctx, `SELECT 1 FROM transactions WHERE organization_id = ? AND external_transaction_id = ? LIMIT 1`, organizationID, externalID)
}

// ExistsByDedupKey reports whether the organization already has a row with this dedup key.
func (r *TransactionRepo) ExistsByDedupKey(ctx context.Context, organizationID, dedupKey string) (bool, error) {
	return r.exists(ctx, `SELECT 1 FROM transactions WHERE organization_id = ? AND sync_dedup_key = ? LIMIT 1`, organizationID, dedupKey)
}

func (r *TransactionRepo) exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateClassification writes the outcome of the classification cascade.
func (r *TransactionRepo) UpdateClassification(ctx context.Context, id string, c Classification) error {
	status := c.ValidationStatus
	if status == "" {
		status = PendingValidation
	}
	_, err := r.db.ExecContext(ctx, `
	UPDATE transactions
	SET category_id = ?, cost_center_id = ?, classification_source = ?, validation_status = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ?
	`, c.CategoryID, c.CostCenterID, c.Source, status, id)
	return err
}

func (r *TransactionRepo) Get(ctx context.Context, id string) (*Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepo) List(ctx context.Context, f TransactionFilters) ([]Transaction, error) {
	var where []string
	var args []interface{}

	if f.OrganizationID != "" {
		where = append(where, "organization_id = ?")
		args = append(args, f.OrganizationID)
	}
	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.ValidationStatus != "" {
		where = append(where, "validation_status = ?")
		args = append(args, f.ValidationStatus)
	}

	query := "SELECT " + transactionColumns + " FROM transactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, created_at DESC, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(row scanner) (Transaction, error) {
	var t Transaction
	var connID, external, dedup, category, costCenter, source, notes sql.NullString
	if err := row.Scan(&t.ID, &t.OrganizationID, &t.AccountID, &connID, &external, &dedup,
		&t.Date, &t.Description, &t.Amount, &t.Type, &category, &costCenter, &source, &t.ValidationStatus, &notes,
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		return Transaction{}, err
	}
	t.BankConnectionID = nullString(connID)
	t.ExternalTransactionID = nullString(external)
	t.SyncDedupKey = nullString(dedup)
	t.CategoryID = nullString(category)
	t.CostCenterID = nullString(costCenter)
	t.ClassificationSource = nullString(source)
	t.Notes = nullString(notes)
	return t, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
