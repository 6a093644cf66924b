// Package broadcast offers a booking to candidate technicians.
package broadcast

import (
	"context"
	"fmt"
	"time"

	"fixitBack/internal/events"
	"fixitBack/internal/homeservice/notify"
	"fixitBack/internal/homeservice/repo"
	"fixitBack/internal/metrics"
)

// DefaultTTL is how long an offer stays open.
const DefaultTTL = 60 * time.Second

// Logger is a minimal logger interface required by the fan-out.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// OfferStore persists offers.
type OfferStore interface {
	InsertBatch(ctx context.Context, bookingID int64, technicianIDs []int64, sentAt, expiresAt time.Time) ([]int64, error)
}

// BookingStore reads bookings and flags them broadcasted.
type BookingStore interface {
	Get(ctx context.Context, id int64) (repo.Booking, error)
	MarkBroadcasted(ctx context.Context, id int64) (bool, error)
}

// ServiceCatalog names services for offer summaries.
type ServiceCatalog interface {
	GetService(ctx context.Context, id int64) (repo.Service, error)
}

// Outcome reports what one fan-out did.
type Outcome struct {
	Offered     []int64
	Skipped     int
	Broadcasted bool
	ExpiresAt   time.Time
}

// Fanout writes offers and notifies technicians once they are stored.
type Fanout struct {
	offers    OfferStore
	bookings  BookingStore
	catalog   ServiceCatalog
	notifier  notify.Notifier
	publisher events.Publisher
	logger    Logger
	ttl       time.Duration
	now       func() time.Time
}

func New(offers OfferStore, bookings BookingStore, catalog ServiceCatalog, notifier notify.Notifier, publisher events.Publisher, logger Logger, ttl time.Duration) *Fanout {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Fanout{offers: offers, bookings: bookings, catalog: catalog, notifier: notifier, publisher: publisher, logger: logger, ttl: ttl, now: time.Now}
}

// Broadcast offers bookingID to technicianIDs. Technicians that already hold
// an offer for the booking are skipped, so repeated calls only reach new
// candidates. Notification failures are logged and never returned.
func (f *Fanout) Broadcast(ctx context.Context, bookingID int64, technicianIDs []int64) (Outcome, error) {
	if len(technicianIDs) == 0 {
		return Outcome{}, nil
	}
	now := f.now()
	expiresAt := now.Add(f.ttl)

	fresh, err := f.offers.InsertBatch(ctx, bookingID, technicianIDs, now, expiresAt)
	if err != nil {
		return Outcome{}, fmt.Errorf("insert offers for booking %d: %w", bookingID, err)
	}
	marked, err := f.bookings.MarkBroadcasted(ctx, bookingID)
	if err != nil {
		return Outcome{}, fmt.Errorf("mark booking %d broadcasted: %w", bookingID, err)
	}
	out := Outcome{Offered: fresh, Skipped: len(technicianIDs) - len(fresh), Broadcasted: marked, ExpiresAt: expiresAt}
	if !marked {
		f.logger.Infof("broadcast booking=%d: booking closed or claimed, offers not announced", bookingID)
		return out, nil
	}
	metrics.BroadcastsSentTotal.Add(float64(len(fresh)))
	if len(fresh) == 0 {
		return out, nil
	}

	summary := f.summary(ctx, bookingID, expiresAt)
	if err := f.notifier.NotifyTechnicians(ctx, fresh, summary); err != nil {
		metrics.NotificationFailuresTotal.WithLabelValues("job_offer").Inc()
		f.logger.Errorf("broadcast booking=%d: notify technicians: %v", bookingID, err)
	}
	if err := f.publisher.Publish(ctx, events.Event{Type: events.TypeBookingBroadcasted, BookingID: bookingID, OccurredAt: now}); err != nil {
		f.logger.Errorf("broadcast booking=%d: publish: %v", bookingID, err)
	}
	f.logger.Infof("broadcast booking=%d: offered=%d skipped=%d", bookingID, len(fresh), out.Skipped)
	return out, nil
}

func (f *Fanout) summary(ctx context.Context, bookingID int64, expiresAt time.Time) notify.JobSummary {
	s := notify.JobSummary{BookingID: bookingID, ExpiresAt: expiresAt}
	b, err := f.bookings.Get(ctx, bookingID)
	if err != nil {
		f.logger.Errorf("broadcast booking=%d: load summary: %v", bookingID, err)
		return s
	}
	s.ServiceID = b.ServiceID
	s.BaseAmount = b.BaseAmount.StringFixed(2)
	s.City = b.City
	s.Pincode = b.Pincode
	s.ScheduledAt = b.ScheduledAt
	if svc, err := f.catalog.GetService(ctx, b.ServiceID); err == nil {
		s.ServiceName = svc.Name
	}
	return s
}
