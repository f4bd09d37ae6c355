package repository

import (
	"context"
	"database/sql"
)

// AccountRepo handles accounts.
type AccountRepo struct {
	db *sql.DB
}

func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{db: db}
}

const accountColumns = `id, organization_id, bank_connection_id, external_account_id, name, institution, created_at, updated_at`

func (r *AccountRepo) Upsert(ctx context.Context, a Account) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO accounts(id, organization_id, bank_connection_id, external_account_id, name, institution, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(id) DO UPDATE SET
	 bank_connection_id=COALESCE(excluded.bank_connection_id, accounts.bank_connection_id),
	 name=excluded.name,
	 institution=excluded.institution,
	 updated_at=CURRENT_TIMESTAMP;
	`, a.ID, a.OrganizationID, a.BankConnectionID, a.ExternalAccountID, a.Name, a.Institution)
	return err
}

func (r *AccountRepo) Get(ctx context.Context, id string) (*Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) ListByConnection(ctx context.Context, connectionID string) ([]Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE bank_connection_id = ? ORDER BY name`, connectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAccount(row scanner) (Account, error) {
	var a Account
	var connID, externalID, institution sql.NullString
	if err := row.Scan(&a.ID, &a.OrganizationID, &connID, &externalID, &a.Name, &institution, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Account{}, err
	}
	if connID.Valid {
		a.BankConnectionID = &connID.String
	}
	if externalID.Valid {
		a.ExternalAccountID = &externalID.String
	}
	if institution.Valid {
		a.Institution = &institution.String
	}
	return a, nil
}

// ByExternalID finds the organization's account for an upstream account id.
func (r *AccountRepo) ByExternalID(ctx context.Context, organizationID, externalAccountID string) (*Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE organization_id = ? AND external_account_id = ?`,
		organizationID, externalAccountID)
	a, err := scanAccount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}
