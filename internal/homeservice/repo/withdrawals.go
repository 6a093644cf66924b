package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Withdrawal statuses.
const (
	WithdrawalRequested = "requested"
	WithdrawalApproved  = "approved"
	WithdrawalRejected  = "rejected"
	WithdrawalPaid      = "paid"
	WithdrawalCancelled = "cancelled"
)

// Withdrawal represents withdrawal_requests.
type Withdrawal struct {
	ID           int64
	TechnicianID int64
	Amount       decimal.Decimal
	Status       string
	AdminNote    sql.NullString
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ApprovedAt   sql.NullTime
	PaidAt       sql.NullTime
}

const withdrawalColumns = `id, technician_id, amount, status, admin_note, created_at, updated_at, approved_at, paid_at`

// WithdrawalsRepo handles payout requests.
type WithdrawalsRepo struct {
	db *sql.DB
}

func NewWithdrawalsRepo(db *sql.DB) *WithdrawalsRepo { return &WithdrawalsRepo{db: db} }

func scanWithdrawal(row rowScanner) (Withdrawal, error) {
	var w Withdrawal
	err := row.Scan(&w.ID, &w.TechnicianID, &w.Amount, &w.Status, &w.AdminNote, &w.CreatedAt, &w.UpdatedAt, &w.ApprovedAt, &w.PaidAt)
	return w, err
}

// Create opens a request. The technician row lock serializes concurrent
// requests so the active-request check and the insert cannot interleave.
func (r *WithdrawalsRepo) Create(ctx context.Context, technicianID int64, amount decimal.Decimal) (int64, error) {
	var id int64
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		balance, err := lockBalance(ctx, tx, technicianID)
		if err != nil {
			return err
		}
		var active int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM withdrawal_requests WHERE technician_id = ? AND status IN ('requested','approved')`, technicianID).Scan(&active); err != nil {
			return err
		}
		if active > 0 {
			return ErrActiveWithdrawal
		}
		if balance.LessThan(amount) {
			return ErrInsufficientBalance
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO withdrawal_requests (technician_id, amount, status) VALUES (?,?,'requested')`, technicianID, amount)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Get loads a request.
func (r *WithdrawalsRepo) Get(ctx context.Context, id int64) (Withdrawal, error) {
	w, err := scanWithdrawal(r.db.QueryRowContext(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Withdrawal{}, ErrNotFound
		}
		return Withdrawal{}, err
	}
	return w, nil
}

// ListByTechnician returns the technician's requests newest first.
func (r *WithdrawalsRepo) ListByTechnician(ctx context.Context, technicianID int64) ([]Withdrawal, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE technician_id = ? ORDER BY id DESC`, technicianID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Approve reserves the amount: request CAS requested→approved, balance
// re-check under the row lock, debit and ledger entry, all in one transaction.
func (r *WithdrawalsRepo) Approve(ctx context.Context, id int64, now time.Time) (Withdrawal, error) {
	var w Withdrawal
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		w, err = scanWithdrawal(tx.QueryRowContext(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = ? FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if w.Status != WithdrawalRequested {
			return ErrConflict
		}
		balance, err := lockBalance(ctx, tx, w.TechnicianID)
		if err != nil {
			return err
		}
		if balance.LessThan(w.Amount) {
			return ErrInsufficientBalance
		}
		res, err := tx.ExecContext(ctx, `UPDATE withdrawal_requests SET status = 'approved', approved_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = 'requested'`, now, id)
		if err != nil {
			return err
		}
		if err := affectedOne(res); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE technicians SET wallet_balance = wallet_balance - ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, w.Amount, w.TechnicianID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO wallet_transactions (technician_id, withdrawal_id, amount, type, source) VALUES (?,?,?,'debit','withdrawal')`, w.TechnicianID, w.ID, w.Amount); err != nil {
			// uq_wallet_withdrawal: the request was already debited.
			if isDuplicateKey(err) {
				return ErrConflict
			}
			return err
		}
		w.Status = WithdrawalApproved
		w.ApprovedAt = sql.NullTime{Time: now, Valid: true}
		return nil
	})
	if err != nil {
		return Withdrawal{}, err
	}
	return w, nil
}

// Transition moves a request between statuses that do not touch the wallet
// (reject, cancel, paid). technicianID restricts the update to the owner when non-zero.
func (r *WithdrawalsRepo) Transition(ctx context.Context, id, technicianID int64, fromStatus, toStatus, note string, now time.Time) error {
	query := `UPDATE withdrawal_requests SET status = ?, admin_note = COALESCE(?, admin_note), paid_at = IF(? = 'paid', ?, paid_at), updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?`
	args := []interface{}{toStatus, nullIfEmpty(note), toStatus, now, id, fromStatus}
	if technicianID != 0 {
		query += ` AND technician_id = ?`
		args = append(args, technicianID)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return affectedOne(res)
}
