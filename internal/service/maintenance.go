package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/labstack/gommon/log"

	"github.com/jask/finsync/internal/database"
)

// ErrConnectionNotFound is returned when disconnecting an unknown connection.
var ErrConnectionNotFound = errors.New("service: bank connection not found")

// DisconnectResult counts what a disconnect removed.
type DisconnectResult struct {
	Accounts     int64
	Transactions int64
}

// DisconnectService houses destructive actions triggered by an operator.
type DisconnectService struct {
	DB     *sql.DB
	Logger *log.Logger
}

// Disconnect deletes the connection's accounts and their transactions and
// marks both representations of the item disconnected, in one transaction.
// The connection row itself is kept.
func (s *DisconnectService) Disconnect(ctx context.Context, connectionID string) (DisconnectResult, error) {
	var res DisconnectResult
	if s.DB == nil {
		return res, fmt.Errorf("disconnect: db not configured")
	}
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		var externalID string
		err := tx.QueryRowContext(ctx, `SELECT external_account_id FROM bank_connections WHERE id = ?`, connectionID).Scan(&externalID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrConnectionNotFound
		}
		if err != nil {
			return err
		}

		out, err := tx.ExecContext(ctx, `
		DELETE FROM transactions
		WHERE bank_connection_id = ?
		 OR account_id IN (SELECT id FROM accounts WHERE bank_connection_id = ?)
		`, connectionID, connectionID)
		if err != nil {
			return fmt.Errorf("delete transactions: %w", err)
		}
		res.Transactions, _ = out.RowsAffected()

		out, err = tx.ExecContext(ctx, `DELETE FROM accounts WHERE bank_connection_id = ?`, connectionID)
		if err != nil {
			return fmt.Errorf("delete accounts: %w", err)
		}
		res.Accounts, _ = out.RowsAffected()

		if _, err := tx.ExecContext(ctx, `
		UPDATE bank_connections SET status = 'disconnected', sync_error = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ?
		`, connectionID); err != nil {
			return fmt.Errorf("mark connection disconnected: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
		UPDATE open_finance_items SET status = 'disconnected', updated_at = CURRENT_TIMESTAMP WHERE pluggy_item_id = ?
		`, externalID); err != nil {
			return fmt.Errorf("mark item disconnected: %w", err)
		}
		return nil
	})
	if err != nil {
		return DisconnectResult{}, err
	}
	loggerOr(s.Logger).Infoj(log.JSON{
		"component":    "disconnect",
		"connection":   connectionID,
		"accounts":     res.Accounts,
		"transactions": res.Transactions,
	})
	return res, nil
}
