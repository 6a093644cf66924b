package repo

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var technicianCols = []string{"id", "user_id", "kyc_status", "profile_complete", "training_completed", "work_status", "is_online", "skills", "pincode", "city", "state", "wallet_balance"}

func TestListApprovedOnlineNormalizesSkills(t *testing.T) {
	db, mock := newMock(t)
	r := NewTechniciansRepo(db)

	mock.ExpectQuery(`SELECT .* FROM technicians WHERE kyc_status = 'approved' AND profile_complete = 1`).
		WillReturnRows(sqlmock.NewRows(technicianCols).
			AddRow(int64(1), int64(11), "approved", true, true, "approved", true, []byte(`[3,"4",{"serviceId":5}]`), "411001", "Pune", "MH", "0.00").
			AddRow(int64(2), int64(12), "approved", true, true, "approved", true, nil, nil, nil, nil, "10.00"))

	techs, err := r.ListApprovedOnline(context.Background())
	require.NoError(t, err)
	require.Len(t, techs, 2)
	assert.Equal(t, []int64{3, 4, 5}, techs[0].ServiceIDs)
	assert.True(t, techs[0].HasSkill(5))
	assert.Empty(t, techs[1].ServiceIDs)
	assert.False(t, techs[1].HasSkill(3))
}

func TestFilterByAreaCity(t *testing.T) {
	db, mock := newMock(t)
	r := NewTechniciansRepo(db)

	mock.ExpectQuery(`SELECT id FROM technicians WHERE id IN \(\?,\?,\?\) AND LOWER\(city\) = LOWER\(\?\) ORDER BY id`).
		WithArgs(int64(1), int64(2), int64(3), "Pune").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(3)))

	ids, err := r.FilterByArea(context.Background(), []int64{1, 2, 3}, AreaCity, " Pune ")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFilterByAreaEmptyValue(t *testing.T) {
	db, mock := newMock(t)
	r := NewTechniciansRepo(db)

	ids, err := r.FilterByArea(context.Background(), []int64{1}, AreaPincode, "  ")
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTechnicianNotFound(t *testing.T) {
	db, mock := newMock(t)
	r := NewTechniciansRepo(db)
	mock.ExpectQuery(`SELECT .* FROM technicians WHERE id = \?`).WillReturnRows(sqlmock.NewRows(technicianCols))

	_, err := r.Get(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}
