package repository

import (
	"context"
	"database/sql"
)

// TransactionPatternRepo stores learned description patterns.
type TransactionPatternRepo struct{ db *sql.DB }

func NewTransactionPatternRepo(db *sql.DB) *TransactionPatternRepo {
	return &TransactionPatternRepo{db: db}
}

func (r *TransactionPatternRepo) Add(ctx context.Context, p TransactionPattern) error {
	if p.Occurrences == 0 {
		p.Occurrences = 1
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO transaction_patterns(id, organization_id, normalized_description, category_id, cost_center_id,
	 transaction_type, confidence, occurrences, last_used_at, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, p.ID, p.OrganizationID, p.NormalizedDescription, p.CategoryID, p.CostCenterID,
		p.TransactionType, p.Confidence, p.Occurrences, p.LastUsedAt)
	return wrapInsert(err)
}

// ListCandidates returns at most limit patterns for the organization and type
// whose confidence is at least minConfidence, most confident first.
func (r *TransactionPatternRepo) ListCandidates(ctx context.Context, organizationID, txType string, minConfidence float64, limit int) ([]TransactionPattern, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, organization_id, normalized_description, category_id, cost_center_id, transaction_type,
	 confidence, occurrences, last_used_at, created_at
	FROM transaction_patterns
	WHERE organization_id = ? AND transaction_type = ? AND confidence >= ?
	ORDER BY confidence DESC, occurrences DESC, id
	LIMIT ?
	`, organizationID, txType, minConfidence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TransactionPattern
	for rows.Next() {
		var p TransactionPattern
		var category, costCenter sql.NullString
		var lastUsed sql.NullTime
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.NormalizedDescription, &category, &costCenter,
			&p.TransactionType, &p.Confidence, &p.Occurrences, &lastUsed, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CategoryID = nullString(category)
		p.CostCenterID = nullString(costCenter)
		if lastUsed.Valid {
			p.LastUsedAt = &lastUsed.Time
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
