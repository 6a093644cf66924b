package repo

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreditJobWritesLedgerAndBalance(t *testing.T) {
	db, mock := newMock(t)
	r := NewWalletRepo(db)
	amount := decimal.RequireFromString("450.00")

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO wallet_transactions \(technician_id, booking_id, amount, type, source\) VALUES \(\?,\?,\?,'credit','job'\)`).
		WithArgs(int64(7), int64(1), amount).
		WillReturnResult(sqlmock.NewResult(31, 1))
	mock.ExpectExec(`UPDATE technicians SET wallet_balance = wallet_balance \+ \?`).
		WithArgs(amount, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, r.CreditJob(context.Background(), 7, 1, amount))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditJobDuplicateIsAlreadySettled(t *testing.T) {
	db, mock := newMock(t)
	r := NewWalletRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO wallet_transactions`).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()

	err := r.CreditJob(context.Background(), 7, 1, decimal.NewFromInt(450))
	assert.ErrorIs(t, err, ErrAlreadySettled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasJobCredit(t *testing.T) {
	db, mock := newMock(t)
	r := NewWalletRepo(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM wallet_transactions WHERE booking_id = \? AND type = 'credit' AND source = 'job'`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))

	ok, err := r.HasJobCredit(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBalance(t *testing.T) {
	db, mock := newMock(t)
	r := NewWalletRepo(db)
	mock.ExpectQuery(`SELECT wallet_balance FROM technicians`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"wallet_balance"}).AddRow("1200.50"))

	b, err := r.Balance(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, b.Equal(decimal.RequireFromString("1200.5")))
}
