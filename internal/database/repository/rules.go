package repository

import (
	"context"
	"database/sql"
)

// ReconciliationRuleRepo stores user-authored categorization rules.
type ReconciliationRuleRepo struct{ db *sql.DB }

func NewReconciliationRuleRepo(db *sql.DB) *ReconciliationRuleRepo {
	return &ReconciliationRuleRepo{db: db}
}

func (r *ReconciliationRuleRepo) Add(ctx context.Context, rule ReconciliationRule) error {
	var amount interface{}
	if rule.Amount.Valid {
		amount = rule.Amount.Decimal.StringFixed(2)
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO reconciliation_rules(id, organization_id, description, category_id, cost_center_id,
	 transaction_type, amount, is_active, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`, rule.ID, rule.OrganizationID, rule.Description, rule.CategoryID, rule.CostCenterID,
		rule.TransactionType, amount, rule.IsActive, nullTime(rule.CreatedAt))
	return wrapInsert(err)
}

// ListActive returns active rules for one organization and transaction type
// in creation order.
func (r *ReconciliationRuleRepo) ListActive(ctx context.Context, organizationID, txType string) ([]ReconciliationRule, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, organization_id, description, category_id, cost_center_id, transaction_type, amount, is_active, created_at
	FROM reconciliation_rules
	WHERE organization_id = ? AND transaction_type = ? AND is_active = 1
	ORDER BY created_at, id
	`, organizationID, txType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ReconciliationRule
	for rows.Next() {
		var rule ReconciliationRule
		var category, costCenter sql.NullString
		if err := rows.Scan(&rule.ID, &rule.OrganizationID, &rule.Description, &category, &costCenter,
			&rule.TransactionType, &rule.Amount, &rule.IsActive, &rule.CreatedAt); err != nil {
			return nil, err
		}
		rule.CategoryID = nullString(category)
		rule.CostCenterID = nullString(costCenter)
		out = append(out, rule)
	}
	return out, rows.Err()
}
