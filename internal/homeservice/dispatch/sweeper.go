package dispatch

import (
	"context"
	"time"

	"fixitBack/internal/metrics"
)

type OfferExpirer interface {
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper marks lapsed offers expired. Offers are already void once past
// expires_at; the sweep only reclaims their rows.
type Sweeper struct {
	offers   OfferExpirer
	logger   Logger
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(offers OfferExpirer, logger Logger, interval time.Duration) *Sweeper {
	return &Sweeper{offers: offers, logger: logger, interval: interval, now: time.Now}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) int64 {
	n, err := s.offers.ExpireStale(ctx, s.now())
	if err != nil {
		s.logger.Errorf("offer sweep failed: %v", err)
		return 0
	}
	if n > 0 {
		metrics.SweepExpiredTotal.Add(float64(n))
		s.logger.Infof("offer sweep: expired %d offers", n)
	}
	return n
}
