package homeservice

import (
	"database/sql"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fixitBack/internal/events"
	"fixitBack/internal/homeservice/notify"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.MatchRadiusMeters)
	assert.Equal(t, 20, cfg.MatchLimit)
	assert.Equal(t, time.Minute, cfg.BroadcastTTL)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 20*time.Second, cfg.DispatchTick)
	assert.Equal(t, 30*time.Minute, cfg.RedispatchWindow)
	assert.Equal(t, "100", cfg.MinWithdrawal.String())
	assert.Equal(t, "INR", cfg.Currency)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("MATCH_RADIUS_METERS", "5000")
	t.Setenv("BROADCAST_TTL_SECONDS", "90")
	t.Setenv("REDISPATCH_WINDOW_MINUTES", "10")
	t.Setenv("MIN_WITHDRAWAL", "250.50")
	t.Setenv("CURRENCY", "usd")
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "whsec")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.MatchRadiusMeters)
	assert.Equal(t, 90*time.Second, cfg.BroadcastTTL)
	assert.Equal(t, 10*time.Minute, cfg.RedispatchWindow)
	assert.Equal(t, "250.5", cfg.MinWithdrawal.String())
	assert.Equal(t, "USD", cfg.Currency)
	assert.Equal(t, "whsec", cfg.PaymentWebhookSecret)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"MATCH_LIMIT":            "many",
		"SWEEP_INTERVAL_SECONDS": "0",
		"DISPATCH_TICK_SECONDS":  "-5",
		"MIN_WITHDRAWAL":         "0",
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(name, value)
			_, err := LoadConfig()
			assert.ErrorContains(t, err, name)
		})
	}
}

func TestDepsValidate(t *testing.T) {
	var nilDeps *Deps
	assert.Error(t, nilDeps.Validate())

	deps := &Deps{}
	assert.ErrorContains(t, deps.Validate(), "DB")

	deps.DB = &sql.DB{}
	assert.ErrorContains(t, deps.Validate(), "RDB")

	deps.RDB = redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	assert.ErrorContains(t, deps.Validate(), "Logger")

	deps.Logger = zap.NewNop().Sugar()
	require.NoError(t, deps.Validate())
	assert.NotNil(t, deps.HTTPClient)
	assert.Equal(t, events.Nop{}, deps.Publisher)
}

func TestEnsureModuleIsBuiltOnce(t *testing.T) {
	deps := &Deps{
		DB:     &sql.DB{},
		RDB:    redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}),
		Logger: zap.NewNop().Sugar(),
	}
	cfg, err := LoadConfig()
	require.NoError(t, err)
	deps.Config = cfg

	first, err := ensureModule(deps)
	require.NoError(t, err)
	second, err := ensureModule(deps)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.NotNil(t, first.server)
	assert.NotNil(t, first.redispatcher)
	assert.NotNil(t, first.sweeper)
	// No FCM client: queued tasks have no channel left to deliver to.
	assert.Equal(t, notify.Nop{}, first.delivery)
}
