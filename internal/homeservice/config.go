package homeservice

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultMatchRadiusMeters = 3000
	defaultMatchLimit        = 20
	defaultBroadcastTTL      = 60 * time.Second
	defaultSweepInterval     = 30 * time.Second
	defaultDispatchTick      = 20 * time.Second
	defaultRedispatchWindow  = 30 * time.Minute
	defaultMinWithdrawal     = "100"
	defaultCurrency          = "INR"
)

// Config holds runtime configuration for the home-services module.
type Config struct {
	MatchRadiusMeters int
	MatchLimit        int
	BroadcastTTL      time.Duration
	SweepInterval     time.Duration
	DispatchTick      time.Duration
	RedispatchWindow  time.Duration
	MinWithdrawal     decimal.Decimal
	Currency          string

	PaymentProvider      string
	PaymentBaseURL       string
	PaymentKeyID         string
	PaymentKeySecret     string
	PaymentWebhookSecret string
}

// LoadConfig reads module configuration from environment variables and applies defaults.
func LoadConfig() (Config, error) {
	cfg := Config{
		MatchRadiusMeters: defaultMatchRadiusMeters,
		MatchLimit:        defaultMatchLimit,
		BroadcastTTL:      defaultBroadcastTTL,
		SweepInterval:     defaultSweepInterval,
		DispatchTick:      defaultDispatchTick,
		RedispatchWindow:  defaultRedispatchWindow,
		MinWithdrawal:     decimal.RequireFromString(defaultMinWithdrawal),
		Currency:          defaultCurrency,
		PaymentProvider:   os.Getenv("PAYMENT_PROVIDER"),
		PaymentBaseURL:    os.Getenv("PAYMENT_BASE_URL"),
		PaymentKeyID:      os.Getenv("PAYMENT_KEY_ID"),
		PaymentKeySecret:  os.Getenv("PAYMENT_KEY_SECRET"),

		PaymentWebhookSecret: os.Getenv("PAYMENT_WEBHOOK_SECRET"),
	}

	if v, err := readIntEnv("MATCH_RADIUS_METERS"); err != nil {
		return Config{}, fmt.Errorf("parse MATCH_RADIUS_METERS: %w", err)
	} else if v != nil {
		cfg.MatchRadiusMeters = *v
	}

	if v, err := readIntEnv("MATCH_LIMIT"); err != nil {
		return Config{}, fmt.Errorf("parse MATCH_LIMIT: %w", err)
	} else if v != nil {
		cfg.MatchLimit = *v
	}

	durations := []struct {
		name string
		unit time.Duration
		dst  *time.Duration
	}{
		{"BROADCAST_TTL_SECONDS", time.Second, &cfg.BroadcastTTL},
		{"SWEEP_INTERVAL_SECONDS", time.Second, &cfg.SweepInterval},
		{"DISPATCH_TICK_SECONDS", time.Second, &cfg.DispatchTick},
		{"REDISPATCH_WINDOW_MINUTES", time.Minute, &cfg.RedispatchWindow},
	}
	for _, d := range durations {
		v, err := readIntEnv(d.name)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.name, err)
		}
		if v != nil {
			*d.dst = time.Duration(*v) * d.unit
		}
	}

	if v := strings.TrimSpace(os.Getenv("MIN_WITHDRAWAL")); v != "" {
		amount, err := decimal.NewFromString(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse MIN_WITHDRAWAL: %w", err)
		}
		cfg.MinWithdrawal = amount
	}

	if v := strings.TrimSpace(os.Getenv("CURRENCY")); v != "" {
		cfg.Currency = strings.ToUpper(v)
	}

	if cfg.MatchRadiusMeters <= 0 {
		return Config{}, fmt.Errorf("MATCH_RADIUS_METERS must be positive")
	}
	if cfg.MatchLimit <= 0 {
		return Config{}, fmt.Errorf("MATCH_LIMIT must be positive")
	}
	if cfg.BroadcastTTL <= 0 {
		return Config{}, fmt.Errorf("BROADCAST_TTL_SECONDS must be positive")
	}
	if cfg.SweepInterval <= 0 {
		return Config{}, fmt.Errorf("SWEEP_INTERVAL_SECONDS must be positive")
	}
	if cfg.DispatchTick <= 0 {
		return Config{}, fmt.Errorf("DISPATCH_TICK_SECONDS must be positive")
	}
	if cfg.RedispatchWindow <= 0 {
		return Config{}, fmt.Errorf("REDISPATCH_WINDOW_MINUTES must be positive")
	}
	if !cfg.MinWithdrawal.IsPositive() {
		return Config{}, fmt.Errorf("MIN_WITHDRAWAL must be positive")
	}

	return cfg, nil
}

func readIntEnv(name string) (*int, error) {
	val := os.Getenv(name)
	if val == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(val)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
