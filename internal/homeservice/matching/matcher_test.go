package matching

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fixitBack/internal/homeservice/fsm"
	"fixitBack/internal/homeservice/locator"
	"fixitBack/internal/homeservice/repo"
)

type stubBookings struct {
	b   repo.Booking
	err error
}

func (s stubBookings) Get(context.Context, int64) (repo.Booking, error) { return s.b, s.err }

type stubFilter struct {
	ids   []int64
	calls int
}

func (s *stubFilter) EligibleFor(context.Context, int64) ([]int64, error) {
	s.calls++
	return s.ids, nil
}

type stubLocator struct {
	got locator.Query
	res locator.Result
}

func (s *stubLocator) FindNearby(_ context.Context, q locator.Query) (locator.Result, error) {
	s.got = q
	return s.res, nil
}

func newMatcher(b repo.Booking, f *stubFilter, l *stubLocator) *Matcher {
	return New(stubBookings{b: b}, f, l, zap.NewNop().Sugar(), Config{RadiusMeters: 3000, Limit: 20})
}

func TestMatchComposesFilterAndLocator(t *testing.T) {
	b := repo.Booking{
		ID: 1, ServiceID: 3, Status: fsm.StatusRequested,
		Latitude:  sql.NullFloat64{Float64: 18.52, Valid: true},
		Longitude: sql.NullFloat64{Float64: 73.85, Valid: true},
		City:      "Pune",
	}
	f := &stubFilter{ids: []int64{1, 2, 3}}
	l := &stubLocator{res: locator.Result{TechnicianIDs: []int64{2, 1}, Stage: locator.StageRadius}}

	res, err := newMatcher(b, f, l).Match(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, res.TechnicianIDs)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, []int64{1, 2, 3}, l.got.CandidateIDs)
	require.NotNil(t, l.got.Point)
	assert.Equal(t, 18.52, l.got.Point.Lat)
	assert.Equal(t, "Pune", l.got.Area.City)
	assert.Equal(t, float64(3000), l.got.Radius)
}

func TestMatchNoopWhenAssignedOrClosed(t *testing.T) {
	cases := []repo.Booking{
		{ID: 1, Status: fsm.StatusAccepted, TechnicianID: sql.NullInt64{Int64: 7, Valid: true}},
		{ID: 1, Status: fsm.StatusBroadcasted, TechnicianID: sql.NullInt64{Int64: 7, Valid: true}},
		{ID: 1, Status: fsm.StatusCancelled},
		{ID: 1, Status: fsm.StatusCompleted},
	}
	for _, b := range cases {
		f := &stubFilter{ids: []int64{1}}
		res, err := newMatcher(b, f, &stubLocator{}).Match(context.Background(), 1)
		require.NoError(t, err)
		assert.Empty(t, res.TechnicianIDs)
		assert.Zero(t, f.calls, "status %s", b.Status)
	}
}

func TestMatchNoEligibleSkipsLocator(t *testing.T) {
	l := &stubLocator{}
	res, err := newMatcher(repo.Booking{ID: 1, Status: fsm.StatusRequested}, &stubFilter{}, l).Match(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, res.Count)
	assert.Nil(t, l.got.CandidateIDs)
}

func TestMatchWithoutPointPassesNilPoint(t *testing.T) {
	l := &stubLocator{}
	_, err := newMatcher(repo.Booking{ID: 1, Status: fsm.StatusBroadcasted, Pincode: "411001"}, &stubFilter{ids: []int64{5}}, l).Match(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, l.got.Point)
	assert.Equal(t, "411001", l.got.Area.Pincode)
}

func TestMatchBookingError(t *testing.T) {
	m := New(stubBookings{err: repo.ErrNotFound}, &stubFilter{}, &stubLocator{}, zap.NewNop().Sugar(), Config{})
	_, err := m.Match(context.Background(), 1)
	assert.True(t, errors.Is(err, repo.ErrNotFound))
}
