package fsm

import (
	"context"
	"database/sql"
	"errors"
)

// Booking lifecycle statuses.
const (
	StatusRequested   = "requested"
	StatusBroadcasted = "broadcasted"
	StatusAccepted    = "accepted"
	StatusOnTheWay    = "on_the_way"
	StatusReached     = "reached"
	StatusInProgress  = "in_progress"
	StatusCompleted   = "completed"
	StatusCancelled   = "cancelled"
)

var ErrInvalidTransition = errors.New("invalid status transition")

var transitions = map[string]map[string]struct{}{
	StatusRequested: {
		StatusBroadcasted: {},
		StatusAccepted:    {},
		StatusCancelled:   {},
	},
	StatusBroadcasted: {
		StatusBroadcasted: {},
		StatusAccepted:    {},
		StatusCancelled:   {},
	},
	StatusAccepted: {
		StatusOnTheWay:  {},
		StatusReached:   {},
		StatusCancelled: {},
	},
	StatusOnTheWay: {
		StatusReached:   {},
		StatusCancelled: {},
	},
	StatusReached: {
		StatusInProgress: {},
		StatusCancelled:  {},
	},
	StatusInProgress: {StatusCompleted: {}},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// CanTransition reports whether a booking may move from one status to another.
func CanTransition(from, to string) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// Assigned reports whether status requires a technician on the booking.
func Assigned(status string) bool {
	switch status {
	case StatusAccepted, StatusOnTheWay, StatusReached, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Open reports whether the booking can still be claimed by a technician.
func Open(status string) bool {
	return status == StatusRequested || status == StatusBroadcasted
}

// Cancellable reports whether the customer may still cancel.
func Cancellable(status string) bool {
	return CanTransition(status, StatusCancelled)
}

// TechnicianStep reports whether to is a status the assigned technician reports.
func TechnicianStep(to string) bool {
	switch to {
	case StatusOnTheWay, StatusReached, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Apply moves a booking owned by technicianID from one status to another. The
// current status and owner are part of the UPDATE predicate; sql.ErrNoRows means
// the booking moved underneath the caller.
func Apply(ctx context.Context, db Execer, bookingID, technicianID int64, fromStatus, toStatus string) error {
	if !CanTransition(fromStatus, toStatus) {
		return ErrInvalidTransition
	}
	res, err := db.ExecContext(ctx, `UPDATE service_bookings SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ? AND technician_id = ?`, toStatus, bookingID, fromStatus, technicianID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
