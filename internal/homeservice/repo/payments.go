package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Payment represents the payments table. One row per booking.
type Payment struct {
	ID                int64
	BookingID         int64
	Provider          string
	Receipt           string
	ProviderOrderID   sql.NullString
	ProviderPaymentID sql.NullString
	BaseAmount        decimal.Decimal
	TotalAmount       decimal.Decimal
	CommissionAmount  decimal.Decimal
	TechnicianAmount  decimal.Decimal
	Currency          string
	Status            string
	VerifiedAt        sql.NullTime
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// WebhookEvent is an audit record of a provider callback.
type WebhookEvent struct {
	Provider        string
	EventType       string
	ProviderOrderID string
	Signature       string
	SignatureValid  bool
	Body            []byte
}

const paymentColumns = `id, booking_id, provider, receipt, provider_order_id, provider_payment_id, base_amount, total_amount, commission_amount, technician_amount, currency, status, verified_at, created_at, updated_at`

// PaymentsRepo handles payments tables.
type PaymentsRepo struct {
	db *sql.DB
}

// NewPaymentsRepo creates repo.
func NewPaymentsRepo(db *sql.DB) *PaymentsRepo { return &PaymentsRepo{db: db} }

func scanPayment(row rowScanner) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.BookingID, &p.Provider, &p.Receipt, &p.ProviderOrderID, &p.ProviderPaymentID,
		&p.BaseAmount, &p.TotalAmount, &p.CommissionAmount, &p.TechnicianAmount, &p.Currency, &p.Status, &p.VerifiedAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// CreatePending inserts the booking's payment row unless one exists and
// returns whichever row is stored. created is false for the existing row.
func (r *PaymentsRepo) CreatePending(ctx context.Context, p Payment) (Payment, bool, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO payments (booking_id, provider, receipt, base_amount, total_amount, commission_amount, technician_amount, currency, status)
		VALUES (?,?,?,?,?,?,?,?,'pending') ON DUPLICATE KEY UPDATE id = id`,
		p.BookingID, p.Provider, p.Receipt, p.BaseAmount, p.TotalAmount, p.CommissionAmount, p.TechnicianAmount, p.Currency)
	if err != nil {
		return Payment{}, false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return Payment{}, false, err
	}
	stored, err := r.GetByBooking(ctx, p.BookingID)
	if err != nil {
		return Payment{}, false, err
	}
	return stored, rows == 1, nil
}

// GetByBooking loads the payment of a booking.
func (r *PaymentsRepo) GetByBooking(ctx context.Context, bookingID int64) (Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE booking_id = ?`, bookingID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, err
	}
	return p, nil
}

// SetProviderOrder stores the provider order id on a pending payment that has none.
func (r *PaymentsRepo) SetProviderOrder(ctx context.Context, paymentID int64, orderID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE payments SET provider_order_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = 'pending' AND provider_order_id IS NULL`, orderID, paymentID)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

// MarkSuccess moves pending to success and mirrors it on the booking.
func (r *PaymentsRepo) MarkSuccess(ctx context.Context, bookingID int64, orderID, paymentID string, now time.Time) error {
	return r.finish(ctx, bookingID, orderID, paymentID, PaymentSuccess, now)
}

// MarkFailed moves pending to failed and mirrors it on the booking.
func (r *PaymentsRepo) MarkFailed(ctx context.Context, bookingID int64, orderID, paymentID string, now time.Time) error {
	return r.finish(ctx, bookingID, orderID, paymentID, PaymentFailed, now)
}

func (r *PaymentsRepo) finish(ctx context.Context, bookingID int64, orderID, paymentID, status string, now time.Time) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE payments SET status = ?, provider_payment_id = ?, verified_at = ?, updated_at = CURRENT_TIMESTAMP
			WHERE booking_id = ? AND provider_order_id = ? AND status = 'pending'`, status, paymentID, now, bookingID, orderID)
		if err != nil {
			return err
		}
		if err := affectedOne(res); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE service_bookings SET payment_status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, status, bookingID)
		return err
	})
}

// SaveWebhook stores a webhook payload for audit.
func (r *PaymentsRepo) SaveWebhook(ctx context.Context, ev WebhookEvent) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO payment_webhook_events (provider, event_type, provider_order_id, signature, signature_valid, body) VALUES (?,?,?,?,?,?)`,
		ev.Provider, ev.EventType, nullIfEmpty(ev.ProviderOrderID), ev.Signature, ev.SignatureValid, ev.Body)
	return err
}
