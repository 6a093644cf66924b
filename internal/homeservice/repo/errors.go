package repo

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrNotFound indicates missing entities in the homeservice repositories.
	ErrNotFound = errors.New("homeservice: not found")
	// ErrConflict means a conditional update matched no rows.
	ErrConflict = errors.New("homeservice: state changed concurrently")
	// ErrBookingTaken means another technician already claimed the booking.
	ErrBookingTaken = errors.New("homeservice: booking already taken")
	// ErrBroadcastClosed means the offer is no longer sent or has passed its expiry.
	ErrBroadcastClosed     = errors.New("homeservice: broadcast no longer open")
	ErrAlreadySettled      = errors.New("homeservice: booking already settled")
	ErrInsufficientBalance = errors.New("homeservice: insufficient balance")
	ErrActiveWithdrawal    = errors.New("homeservice: active withdrawal exists")
)

const mysqlDuplicateEntry = 1062

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
