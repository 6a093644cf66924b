package dispatch

import (
	"context"
	"errors"
	"time"

	"fixitBack/internal/homeservice/broadcast"
)

const redispatchBatch = 100

type BookingLister interface {
	ListForRedispatch(ctx context.Context, since, now time.Time, limit int) ([]int64, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, bookingID int64) (broadcast.Outcome, error)
}

// Redispatcher periodically retries open bookings whose offers all lapsed
// or that never found a candidate.
type Redispatcher struct {
	bookings BookingLister
	pipeline Dispatcher
	logger   Logger
	tick     time.Duration
	window   time.Duration
	now      func() time.Time
}

func NewRedispatcher(bookings BookingLister, pipeline Dispatcher, logger Logger, tick, window time.Duration) *Redispatcher {
	return &Redispatcher{bookings: bookings, pipeline: pipeline, logger: logger, tick: tick, window: window, now: time.Now}
}

// Run launches the loop until the context is cancelled.
func (r *Redispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Redispatcher) runOnce(ctx context.Context) int {
	now := r.now()
	ids, err := r.bookings.ListForRedispatch(ctx, now.Add(-r.window), now, redispatchBatch)
	if err != nil {
		r.logger.Errorf("redispatch: list bookings failed: %v", err)
		return 0
	}
	offered := 0
	for _, id := range ids {
		out, err := r.pipeline.Dispatch(ctx, id)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return offered
			}
			r.logger.Errorf("redispatch: booking %d failed: %v", id, err)
			continue
		}
		if len(out.Offered) > 0 {
			offered++
			r.logger.Infof("redispatch: booking %d offered to %d technicians", id, len(out.Offered))
		}
	}
	return offered
}
