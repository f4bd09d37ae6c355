package repository

import (
	"context"
	"database/sql"
)

// RawDataRepo archives upstream payloads.
type RawDataRepo struct{ db *sql.DB }

func NewRawDataRepo(db *sql.DB) *RawDataRepo { return &RawDataRepo{db: db} }

// Upsert stores the payload, replacing any earlier copy with the same
// organization, data type and external id.
func (r *RawDataRepo) Upsert(ctx context.Context, d RawData) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO open_finance_raw_data(id, organization_id, data_type, external_id, item_id, payload, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(organization_id, data_type, external_id) DO UPDATE SET
	 item_id=excluded.item_id,
	 payload=excluded.payload,
	 updated_at=CURRENT_TIMESTAMP;
	`, d.ID, d.OrganizationID, d.DataType, d.ExternalID, d.ItemID, d.Payload)
	return err
}

func (r *RawDataRepo) Get(ctx context.Context, organizationID, dataType, externalID string) (*RawData, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, organization_id, data_type, external_id, item_id, payload
	FROM open_finance_raw_data WHERE organization_id = ? AND data_type = ? AND external_id = ?
	`, organizationID, dataType, externalID)
	var d RawData
	var itemID sql.NullString
	if err := row.Scan(&d.ID, &d.OrganizationID, &d.DataType, &d.ExternalID, &itemID, &d.Payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	d.ItemID = nullString(itemID)
	return &d, nil
}
