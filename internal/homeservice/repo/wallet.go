package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger entry types and sources.
const (
	TxCredit = "credit"
	TxDebit  = "debit"

	SourceJob        = "job"
	SourcePenalty    = "penalty"
	SourceWithdrawal = "withdrawal"
)

// WalletTransaction is an append-only ledger entry.
type WalletTransaction struct {
	ID           int64
	TechnicianID int64
	BookingID    sql.NullInt64
	WithdrawalID sql.NullInt64
	Amount       decimal.Decimal
	Type         string
	Source       string
	CreatedAt    time.Time
}

// WalletRepo keeps wallet_transactions and the cached technicians.wallet_balance in step.
type WalletRepo struct {
	db *sql.DB
}

func NewWalletRepo(db *sql.DB) *WalletRepo { return &WalletRepo{db: db} }

// HasJobCredit reports whether the booking was already settled.
func (r *WalletRepo) HasJobCredit(ctx context.Context, bookingID int64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM wallet_transactions WHERE booking_id = ? AND type = 'credit' AND source = 'job'`, bookingID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CreditJob writes the job credit and bumps the balance in one transaction.
// The unique (booking_id, type, source) key turns a concurrent second credit
// into ErrAlreadySettled.
func (r *WalletRepo) CreditJob(ctx context.Context, technicianID, bookingID int64, amount decimal.Decimal) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO wallet_transactions (technician_id, booking_id, amount, type, source) VALUES (?,?,?,'credit','job')`, technicianID, bookingID, amount); err != nil {
			if isDuplicateKey(err) {
				return ErrAlreadySettled
			}
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE technicians SET wallet_balance = wallet_balance + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, amount, technicianID)
		if err != nil {
			return err
		}
		if err := affectedOne(res); err != nil {
			return ErrNotFound
		}
		return nil
	})
}

// Balance returns the cached wallet balance.
func (r *WalletRepo) Balance(ctx context.Context, technicianID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.db.QueryRowContext(ctx, `SELECT wallet_balance FROM technicians WHERE id = ?`, technicianID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, ErrNotFound
		}
		return decimal.Zero, err
	}
	return balance, nil
}

// List returns ledger entries newest first.
func (r *WalletRepo) List(ctx context.Context, technicianID int64, limit, offset int) ([]WalletTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, technician_id, booking_id, withdrawal_id, amount, type, source, created_at FROM wallet_transactions
		WHERE technician_id = ? ORDER BY id DESC LIMIT ? OFFSET ?`, technicianID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WalletTransaction
	for rows.Next() {
		var t WalletTransaction
		if err := rows.Scan(&t.ID, &t.TechnicianID, &t.BookingID, &t.WithdrawalID, &t.Amount, &t.Type, &t.Source, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// lockBalance reads the balance with a row lock held until tx ends.
func lockBalance(ctx context.Context, tx *sql.Tx, technicianID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	if err := tx.QueryRowContext(ctx, `SELECT wallet_balance FROM technicians WHERE id = ? FOR UPDATE`, technicianID).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, ErrNotFound
		}
		return decimal.Zero, err
	}
	return balance, nil
}
