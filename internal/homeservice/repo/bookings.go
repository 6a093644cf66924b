package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fixitBack/internal/homeservice/fsm"
)

// Payment statuses mirrored on the booking.
const (
	PaymentPending = "pending"
	PaymentSuccess = "success"
	PaymentFailed  = "failed"
)

// AddressSnapshot is the customer address copied onto the booking at creation.
type AddressSnapshot struct {
	AddressID int64    `json:"address_id"`
	Line1     string   `json:"line1"`
	Pincode   string   `json:"pincode,omitempty"`
	City      string   `json:"city,omitempty"`
	State     string   `json:"state,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Booking represents the service_bookings table.
type Booking struct {
	ID            int64
	CustomerID    int64
	ServiceID     int64
	TechnicianID  sql.NullInt64
	BaseAmount    decimal.Decimal
	Address       AddressSnapshot
	Latitude      sql.NullFloat64
	Longitude     sql.NullFloat64
	Pincode       string
	City          string
	State         string
	ScheduledAt   time.Time
	PaymentStatus string
	AssignedAt    sql.NullTime
	Status        string
	CancelReason  sql.NullString
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Point returns the booking coordinates when both are present.
func (b Booking) Point() (lat, lon float64, ok bool) {
	if !b.Latitude.Valid || !b.Longitude.Valid {
		return 0, 0, false
	}
	return b.Latitude.Float64, b.Longitude.Float64, true
}

// AssignedTo reports whether technicianID holds the booking.
func (b Booking) AssignedTo(technicianID int64) bool {
	return b.TechnicianID.Valid && b.TechnicianID.Int64 == technicianID
}

const bookingColumns = `id, customer_id, service_id, technician_id, base_amount, address_snapshot, latitude, longitude, pincode, city, state, scheduled_at, payment_status, assigned_at, status, cancel_reason, created_at, updated_at`

// BookingsRepo provides access to service bookings.
type BookingsRepo struct {
	db *sql.DB
}

// NewBookingsRepo constructs a BookingsRepo.
func NewBookingsRepo(db *sql.DB) *BookingsRepo {
	return &BookingsRepo{db: db}
}

func scanBooking(row rowScanner) (Booking, error) {
	var (
		b                    Booking
		snapshot             []byte
		pincode, city, state sql.NullString
	)
	if err := row.Scan(&b.ID, &b.CustomerID, &b.ServiceID, &b.TechnicianID, &b.BaseAmount, &snapshot, &b.Latitude, &b.Longitude,
		&pincode, &city, &state, &b.ScheduledAt, &b.PaymentStatus, &b.AssignedAt, &b.Status, &b.CancelReason, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return Booking{}, err
	}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &b.Address); err != nil {
			return Booking{}, fmt.Errorf("decode address snapshot of booking %d: %w", b.ID, err)
		}
	}
	b.Pincode, b.City, b.State = pincode.String, city.String, state.String
	return b, nil
}

// Create inserts a booking in status requested.
func (r *BookingsRepo) Create(ctx context.Context, b Booking) (int64, error) {
	snapshot, err := json.Marshal(b.Address)
	if err != nil {
		return 0, err
	}
	status := b.Status
	if status == "" {
		status = fsm.StatusRequested
	}
	paymentStatus := b.PaymentStatus
	if paymentStatus == "" {
		paymentStatus = PaymentPending
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO service_bookings (customer_id, service_id, base_amount, address_snapshot, latitude, longitude, pincode, city, state, scheduled_at, payment_status, status)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		b.CustomerID, b.ServiceID, b.BaseAmount, snapshot, b.Latitude, b.Longitude,
		nullIfEmpty(b.Pincode), nullIfEmpty(b.City), nullIfEmpty(b.State), b.ScheduledAt, paymentStatus, status)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Get loads a booking.
func (r *BookingsRepo) Get(ctx context.Context, id int64) (Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM service_bookings WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Booking{}, ErrNotFound
		}
		return Booking{}, err
	}
	return b, nil
}

// MarkBroadcasted moves an unassigned open booking to broadcasted. It returns
// false when the booking was claimed or closed in the meantime.
func (r *BookingsRepo) MarkBroadcasted(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE service_bookings SET status = 'broadcasted', updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('requested','broadcasted') AND technician_id IS NULL`, id)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// UpdateStatus applies a technician-reported transition with CAS semantics.
func (r *BookingsRepo) UpdateStatus(ctx context.Context, id, technicianID int64, fromStatus, toStatus string) error {
	err := fsm.Apply(ctx, r.db, id, technicianID, fromStatus, toStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrConflict
	}
	return err
}

// Cancel closes the booking and voids every outstanding offer in one
// transaction. It returns the technicians whose offers were voided.
func (r *BookingsRepo) Cancel(ctx context.Context, id int64, fromStatus, reason string, now time.Time) ([]int64, error) {
	if !fsm.Cancellable(fromStatus) {
		return nil, fsm.ErrInvalidTransition
	}
	var holders []int64
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE service_bookings SET status = 'cancelled', technician_id = NULL, cancel_reason = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND status = ?`, reason, id, fromStatus)
		if err != nil {
			return err
		}
		if err := affectedOne(res); err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx, `SELECT technician_id FROM job_broadcasts WHERE booking_id = ? AND status = 'sent' FOR UPDATE`, id)
		if err != nil {
			return err
		}
		if holders, err = scanIDs(rows); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE job_broadcasts SET status = 'expired', responded_at = ? WHERE booking_id = ? AND status = 'sent'`, now, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return holders, nil
}

// ListForRedispatch returns open, unassigned bookings created after since that
// have no live offer at now.
func (r *BookingsRepo) ListForRedispatch(ctx context.Context, since, now time.Time, limit int) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT b.id FROM service_bookings b
		WHERE b.status IN ('requested','broadcasted') AND b.technician_id IS NULL AND b.created_at >= ?
		AND NOT EXISTS (SELECT 1 FROM job_broadcasts j WHERE j.booking_id = b.id AND j.status = 'sent' AND j.expires_at > ?)
		ORDER BY b.id LIMIT ?`, since, now, limit)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
