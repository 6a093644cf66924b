// Package matching composes eligibility and location into a candidate list.
package matching

import (
	"context"
	"fmt"

	"fixitBack/internal/homeservice/fsm"
	"fixitBack/internal/homeservice/locator"
	"fixitBack/internal/homeservice/repo"
	"fixitBack/internal/metrics"
)

// Logger is a minimal logger interface required by the matcher.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// BookingReader loads bookings.
type BookingReader interface {
	Get(ctx context.Context, id int64) (repo.Booking, error)
}

// EligibilityFilter returns technicians eligible for a service.
type EligibilityFilter interface {
	EligibleFor(ctx context.Context, serviceID int64) ([]int64, error)
}

// TechnicianLocator narrows candidates by location.
type TechnicianLocator interface {
	FindNearby(ctx context.Context, q locator.Query) (locator.Result, error)
}

// Config holds the search parameters.
type Config struct {
	RadiusMeters float64
	Limit        int
}

// Result is the candidate list of a booking.
type Result struct {
	TechnicianIDs []int64
	Count         int
	Stage         string
}

// Matcher produces candidates for open bookings. It never writes.
type Matcher struct {
	bookings BookingReader
	filter   EligibilityFilter
	locator  TechnicianLocator
	logger   Logger
	cfg      Config
}

func New(bookings BookingReader, filter EligibilityFilter, loc TechnicianLocator, logger Logger, cfg Config) *Matcher {
	return &Matcher{bookings: bookings, filter: filter, locator: loc, logger: logger, cfg: cfg}
}

// Match returns candidates for bookingID. A booking that is assigned or no
// longer open yields an empty result so repeated calls are harmless.
func (m *Matcher) Match(ctx context.Context, bookingID int64) (Result, error) {
	b, err := m.bookings.Get(ctx, bookingID)
	if err != nil {
		return Result{}, fmt.Errorf("load booking %d: %w", bookingID, err)
	}
	if !fsm.Open(b.Status) || b.TechnicianID.Valid {
		return Result{}, nil
	}

	eligible, err := m.filter.EligibleFor(ctx, b.ServiceID)
	if err != nil {
		return Result{}, err
	}
	if len(eligible) == 0 {
		metrics.MatchEmptyTotal.WithLabelValues("eligibility").Inc()
		m.logger.Infof("match booking=%d: no eligible technicians for service=%d", bookingID, b.ServiceID)
		return Result{}, nil
	}

	q := locator.Query{
		CandidateIDs: eligible,
		Area:         locator.Area{Pincode: b.Pincode, City: b.City, State: b.State},
		Radius:       m.cfg.RadiusMeters,
		Limit:        m.cfg.Limit,
	}
	if lat, lon, ok := b.Point(); ok {
		q.Point = &locator.Point{Lat: lat, Lon: lon}
	}
	found, err := m.locator.FindNearby(ctx, q)
	if err != nil {
		return Result{}, err
	}
	if len(found.TechnicianIDs) == 0 {
		metrics.MatchEmptyTotal.WithLabelValues("location").Inc()
		m.logger.Infof("match booking=%d: %d eligible, none nearby", bookingID, len(eligible))
		return Result{}, nil
	}
	m.logger.Infof("match booking=%d: %d candidates via %s", bookingID, len(found.TechnicianIDs), found.Stage)
	return Result{TechnicianIDs: found.TechnicianIDs, Count: len(found.TechnicianIDs), Stage: found.Stage}, nil
}
