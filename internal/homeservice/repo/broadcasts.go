package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Job broadcast statuses.
const (
	BroadcastSent     = "sent"
	BroadcastAccepted = "accepted"
	BroadcastRejected = "rejected"
	BroadcastExpired  = "expired"
)

// Broadcast is one offer of a booking to one technician.
type Broadcast struct {
	ID           int64
	BookingID    int64
	TechnicianID int64
	SentAt       time.Time
	ExpiresAt    time.Time
	Status       string
	RespondedAt  sql.NullTime
}

// Live reports whether the offer can still be acted on at now. Expiry is
// decided here, not by the sweeper.
func (b Broadcast) Live(now time.Time) bool {
	return b.Status == BroadcastSent && now.Before(b.ExpiresAt)
}

const broadcastColumns = `id, booking_id, technician_id, sent_at, expires_at, status, responded_at`

// BroadcastsRepo handles job_broadcasts.
type BroadcastsRepo struct {
	db *sql.DB
}

// NewBroadcastsRepo builds repo.
func NewBroadcastsRepo(db *sql.DB) *BroadcastsRepo { return &BroadcastsRepo{db: db} }

func scanBroadcast(row rowScanner) (Broadcast, error) {
	var b Broadcast
	err := row.Scan(&b.ID, &b.BookingID, &b.TechnicianID, &b.SentAt, &b.ExpiresAt, &b.Status, &b.RespondedAt)
	return b, err
}

// InsertBatch offers bookingID to every technician with one INSERT IGNORE per
// pair. The unique key on (booking_id, technician_id) decides which call owns a
// pair, so under concurrent fan-outs each technician is reported fresh by
// exactly one caller.
func (r *BroadcastsRepo) InsertBatch(ctx context.Context, bookingID int64, technicianIDs []int64, sentAt, expiresAt time.Time) ([]int64, error) {
	if len(technicianIDs) == 0 {
		return nil, nil
	}
	var fresh []int64
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT IGNORE INTO job_broadcasts (booking_id, technician_id, sent_at, expires_at, status) VALUES (?,?,?,?,?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		seen := make(map[int64]struct{}, len(technicianIDs))
		for _, techID := range technicianIDs {
			if _, ok := seen[techID]; ok {
				continue
			}
			seen[techID] = struct{}{}
			res, err := stmt.ExecContext(ctx, bookingID, techID, sentAt, expiresAt, BroadcastSent)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 1 {
				fresh = append(fresh, techID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

// Get loads a broadcast.
func (r *BroadcastsRepo) Get(ctx context.Context, id int64) (Broadcast, error) {
	b, err := scanBroadcast(r.db.QueryRowContext(ctx, `SELECT `+broadcastColumns+` FROM job_broadcasts WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Broadcast{}, ErrNotFound
		}
		return Broadcast{}, err
	}
	return b, nil
}

// Reject marks the technician's own offer rejected if it is still sent.
func (r *BroadcastsRepo) Reject(ctx context.Context, id, technicianID int64, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE job_broadcasts SET status = 'rejected', responded_at = ? WHERE id = ? AND technician_id = ? AND status = 'sent'`, now, id, technicianID)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

// ListLive returns the technician's offers that can still be answered.
func (r *BroadcastsRepo) ListLive(ctx context.Context, technicianID int64, now time.Time) ([]Broadcast, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+broadcastColumns+` FROM job_broadcasts WHERE technician_id = ? AND status = 'sent' AND expires_at > ? ORDER BY sent_at DESC`, technicianID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Broadcast
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ExpireStale marks offers past their expiry as expired. Correctness never
// depends on it: responders compare expires_at themselves.
func (r *BroadcastsRepo) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE job_broadcasts SET status = 'expired' WHERE status = 'sent' AND expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
