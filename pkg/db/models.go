package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Closure lifecycle statuses surfaced to the profile record.
const (
	ClosurePending = "pending_closure"
	ClosureClosed  = "closed"
	ClosureFailed  = "failed"
)

// ClosureRecord tracks one account closure end to end.
type ClosureRecord struct {
	AccountID         string
	UserID            string
	ACHRelationshipID string
	Status            string
	Reason            string
	InitiatedAt       time.Time
	CompletedAt       sql.NullTime
	UpdatedAt         time.Time
}

// TransferLog is the audit row for one initiated ACH transfer. Amounts are
// stored as text to keep decimal exactness through the round trip.
type TransferLog struct {
	ID                string
	AccountID         string
	TransferID        string
	ACHRelationshipID string
	Amount            decimal.Decimal
	IsPartial         bool
	Status            string
	CreatedAt         time.Time
}

// UpsertClosure inserts or refreshes the closure row for an account.
func (d *Database) UpsertClosure(ctx context.Context, c ClosureRecord) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO account_closures (
			account_id, user_id, ach_relationship_id, status, reason, initiated_at, updated_at
		) VALUES (?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP), CURRENT_TIMESTAMP)
		ON CONFLICT(account_id) DO UPDATE SET
			user_id = excluded.user_id,
			ach_relationship_id = excluded.ach_relationship_id,
			status = excluded.status,
			reason = excluded.reason,
			updated_at = CURRENT_TIMESTAMP
	`, c.AccountID, c.UserID, c.ACHRelationshipID, c.Status, c.Reason, nullTime(c.InitiatedAt))
	return err
}

// GetClosure returns the closure row for an account or nil if none exists.
func (d *Database) GetClosure(ctx context.Context, accountID string) (*ClosureRecord, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT account_id, user_id, COALESCE(ach_relationship_id, ''), status,
		       COALESCE(reason, ''), initiated_at, completed_at, updated_at
		FROM account_closures WHERE account_id = ?
	`, accountID)

	var c ClosureRecord
	if err := row.Scan(&c.AccountID, &c.UserID, &c.ACHRelationshipID, &c.Status,
		&c.Reason, &c.InitiatedAt, &c.CompletedAt, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// UpdateClosureStatus moves a closure to a new status; closing stamps completed_at.
func (d *Database) UpdateClosureStatus(ctx context.Context, accountID, status, reason string) error {
	completed := any(nil)
	if status == ClosureClosed {
		completed = time.Now().UTC()
	}
	_, err := d.DB.ExecContext(ctx, `
		UPDATE account_closures
		SET status = ?, reason = ?, completed_at = COALESCE(?, completed_at), updated_at = CURRENT_TIMESTAMP
		WHERE account_id = ?
	`, status, reason, completed, accountID)
	return err
}

// ListClosuresByStatus returns closures in a given lifecycle status, oldest first.
func (d *Database) ListClosuresByStatus(ctx context.Context, status string) ([]ClosureRecord, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT account_id, user_id, COALESCE(ach_relationship_id, ''), status,
		       COALESCE(reason, ''), initiated_at, completed_at, updated_at
		FROM account_closures WHERE status = ?
		ORDER BY initiated_at ASC
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []ClosureRecord
	for rows.Next() {
		var c ClosureRecord
		if err := rows.Scan(&c.AccountID, &c.UserID, &c.ACHRelationshipID, &c.Status,
			&c.Reason, &c.InitiatedAt, &c.CompletedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// CreateTransferLog inserts an audit row for an initiated transfer.
func (d *Database) CreateTransferLog(ctx context.Context, t TransferLog) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO closure_transfers (
			id, account_id, transfer_id, ach_relationship_id, amount, is_partial, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`, t.ID, t.AccountID, t.TransferID, t.ACHRelationshipID, t.Amount.StringFixed(2),
		t.IsPartial, t.Status, nullTime(t.CreatedAt))
	return err
}

// UpdateTransferLogStatus records a status change reported by the broker.
func (d *Database) UpdateTransferLogStatus(ctx context.Context, transferID, status string) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE closure_transfers SET status = ? WHERE transfer_id = ?
	`, status, transferID)
	return err
}

// ListTransfersByAccount returns all transfers initiated for an account,
// newest first.
func (d *Database) ListTransfersByAccount(ctx context.Context, accountID string) ([]TransferLog, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, account_id, transfer_id, ach_relationship_id, amount, is_partial, status, created_at
		FROM closure_transfers WHERE account_id = ?
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []TransferLog
	for rows.Next() {
		var t TransferLog
		var amount string
		if err := rows.Scan(&t.ID, &t.AccountID, &t.TransferID, &t.ACHRelationshipID,
			&amount, &t.IsPartial, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		dec, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, err
		}
		t.Amount = dec
		res = append(res, t)
	}
	return res, rows.Err()
}

// nullTime maps the zero time to NULL so COALESCE can apply CURRENT_TIMESTAMP.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
