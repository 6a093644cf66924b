package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// AcceptParams identifies one technician claiming one offer.
type AcceptParams struct {
	BookingID    int64
	BroadcastID  int64
	TechnicianID int64
	Now          time.Time
}

// AcceptOutcome lists who has to hear about the result once committed.
type AcceptOutcome struct {
	CustomerID int64
	Losers     []int64
}

// AssignmentRepo owns the claim transaction spanning bookings and broadcasts.
type AssignmentRepo struct {
	db *sql.DB
}

func NewAssignmentRepo(db *sql.DB) *AssignmentRepo { return &AssignmentRepo{db: db} }

// Accept assigns the booking and closes the race in one transaction:
//  1. booking CAS on status and technician_id IS NULL (the linearization point),
//  2. own offer CAS on status sent and live expiry,
//  3. every other sent offer of the booking becomes expired.
//
// ErrBookingTaken or ErrBroadcastClosed roll everything back.
func (r *AssignmentRepo) Accept(ctx context.Context, p AcceptParams) (AcceptOutcome, error) {
	var out AcceptOutcome
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE service_bookings SET technician_id = ?, status = 'accepted', assigned_at = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND status IN ('requested','broadcasted') AND technician_id IS NULL`,
			p.TechnicianID, p.Now, p.BookingID)
		if err != nil {
			return err
		}
		if err := affectedOne(res); err != nil {
			if errors.Is(err, ErrConflict) {
				return ErrBookingTaken
			}
			return err
		}

		res, err = tx.ExecContext(ctx, `UPDATE job_broadcasts SET status = 'accepted', responded_at = ?
			WHERE id = ? AND booking_id = ? AND technician_id = ? AND status = 'sent' AND expires_at > ?`,
			p.Now, p.BroadcastID, p.BookingID, p.TechnicianID, p.Now)
		if err != nil {
			return err
		}
		if err := affectedOne(res); err != nil {
			if errors.Is(err, ErrConflict) {
				return ErrBroadcastClosed
			}
			return err
		}

		rows, err := tx.QueryContext(ctx, `SELECT technician_id FROM job_broadcasts WHERE booking_id = ? AND id <> ? AND status = 'sent' FOR UPDATE`, p.BookingID, p.BroadcastID)
		if err != nil {
			return err
		}
		if out.Losers, err = scanIDs(rows); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `UPDATE job_broadcasts SET status = 'expired', responded_at = ? WHERE booking_id = ? AND id <> ? AND status = 'sent'`, p.Now, p.BookingID, p.BroadcastID); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `SELECT customer_id FROM service_bookings WHERE id = ?`, p.BookingID).Scan(&out.CustomerID)
	})
	if err != nil {
		return AcceptOutcome{}, err
	}
	return out, nil
}
