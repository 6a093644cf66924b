package availability

import (
	"context"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fixitBack/internal/apierror"
	"fixitBack/internal/homeservice/geo"
	"fixitBack/internal/identity"
)

type onlineSpy map[int64]bool

func (s onlineSpy) SetOnline(_ context.Context, id int64, online bool) error {
	s[id] = online
	return nil
}

var technician = identity.Identity{UserID: 1007, Role: identity.RoleTechnician, ProfileID: 7}

func TestReportLocation(t *testing.T) {
	db, mock := redismock.NewClientMock()
	online := onlineSpy{}
	svc := NewService(geo.NewTechnicianIndex(db, zap.NewNop().Sugar()), online, zap.NewNop().Sugar())

	mock.ExpectGeoAdd(geo.OnlineKey, &redis.GeoLocation{Name: "technician:7", Longitude: 73.85, Latitude: 18.52}).SetVal(1)

	require.NoError(t, svc.ReportLocation(context.Background(), technician, 18.52, 73.85))
	assert.True(t, online[7])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportLocationRejects(t *testing.T) {
	db, mock := redismock.NewClientMock()
	online := onlineSpy{}
	svc := NewService(geo.NewTechnicianIndex(db, zap.NewNop().Sugar()), online, zap.NewNop().Sugar())

	err := svc.ReportLocation(context.Background(), technician, 0, 0)
	assert.True(t, apierror.HasCode(err, apierror.CodeValidation))

	err = svc.ReportLocation(context.Background(), identity.Identity{UserID: 1, Role: identity.RoleCustomer}, 18.5, 73.8)
	assert.True(t, apierror.HasCode(err, apierror.CodeForbidden))

	assert.Empty(t, online)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGoOffline(t *testing.T) {
	db, mock := redismock.NewClientMock()
	online := onlineSpy{7: true}
	svc := NewService(geo.NewTechnicianIndex(db, zap.NewNop().Sugar()), online, zap.NewNop().Sugar())

	mock.ExpectZRem(geo.OnlineKey, "technician:7").SetVal(1)

	require.NoError(t, svc.GoOffline(context.Background(), technician))
	assert.False(t, online[7])
	assert.NoError(t, mock.ExpectationsWereMet())
}
