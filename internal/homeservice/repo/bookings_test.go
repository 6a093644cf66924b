package repo

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fixitBack/internal/homeservice/fsm"
)

var bookingCols = []string{"id", "customer_id", "service_id", "technician_id", "base_amount", "address_snapshot", "latitude", "longitude",
	"pincode", "city", "state", "scheduled_at", "payment_status", "assigned_at", "status", "cancel_reason", "created_at", "updated_at"}

func TestGetBookingDecodesSnapshot(t *testing.T) {
	db, mock := newMock(t)
	r := NewBookingsRepo(db)
	now := time.Now()

	mock.ExpectQuery(`SELECT .* FROM service_bookings WHERE id = \?`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(bookingCols).AddRow(int64(1), int64(100), int64(3), int64(7), "500.00",
			[]byte(`{"address_id":4,"line1":"12 MG Road","city":"Pune"}`), 18.52, 73.85, "411001", "Pune", nil,
			now, PaymentPending, now, fsm.StatusAccepted, nil, now, now))

	b, err := r.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, b.AssignedTo(7))
	assert.False(t, b.AssignedTo(8))
	assert.Equal(t, "12 MG Road", b.Address.Line1)
	assert.Equal(t, "", b.State)
	lat, lon, ok := b.Point()
	assert.True(t, ok)
	assert.InDelta(t, 18.52, lat, 1e-9)
	assert.InDelta(t, 73.85, lon, 1e-9)
}

func TestCancelVoidsOutstandingOffers(t *testing.T) {
	db, mock := newMock(t)
	r := NewBookingsRepo(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE service_bookings SET status = 'cancelled', technician_id = NULL.*WHERE id = \? AND status = \?`).
		WithArgs("changed plans", int64(1), fsm.StatusBroadcasted).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT technician_id FROM job_broadcasts WHERE booking_id = \? AND status = 'sent' FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"technician_id"}).AddRow(int64(7)).AddRow(int64(8)))
	mock.ExpectExec(`UPDATE job_broadcasts SET status = 'expired'`).
		WithArgs(now, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	holders, err := r.Cancel(context.Background(), 1, fsm.StatusBroadcasted, "changed plans", now)
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 8}, holders)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelRejectsTerminal(t *testing.T) {
	db, mock := newMock(t)
	r := NewBookingsRepo(db)

	_, err := r.Cancel(context.Background(), 1, fsm.StatusCompleted, "", time.Now())
	assert.ErrorIs(t, err, fsm.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkBroadcastedClaimed(t *testing.T) {
	db, mock := newMock(t)
	r := NewBookingsRepo(db)
	mock.ExpectExec(`UPDATE service_bookings SET status = 'broadcasted'.*technician_id IS NULL`).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := r.MarkBroadcasted(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateStatusConflict(t *testing.T) {
	db, mock := newMock(t)
	r := NewBookingsRepo(db)
	mock.ExpectExec(`UPDATE service_bookings SET status = \?`).
		WithArgs(fsm.StatusOnTheWay, int64(1), fsm.StatusAccepted, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := r.UpdateStatus(context.Background(), 1, 7, fsm.StatusAccepted, fsm.StatusOnTheWay)
	assert.ErrorIs(t, err, ErrConflict)
}
