// Package dispatch runs matching and fan-out for bookings, both inline at
// creation and from the background workers.
package dispatch

import (
	"context"
	"fmt"

	"fixitBack/internal/homeservice/broadcast"
	"fixitBack/internal/homeservice/matching"
)

// Logger provides minimal logging for dispatch workers.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type Matcher interface {
	Match(ctx context.Context, bookingID int64) (matching.Result, error)
}

type Broadcaster interface {
	Broadcast(ctx context.Context, bookingID int64, technicianIDs []int64) (broadcast.Outcome, error)
}

// Pipeline matches a booking and offers it to the candidates. Both steps
// are idempotent so a booking can be pushed through any number of times.
type Pipeline struct {
	matcher Matcher
	fanout  Broadcaster
}

func NewPipeline(matcher Matcher, fanout Broadcaster) *Pipeline {
	return &Pipeline{matcher: matcher, fanout: fanout}
}

// Dispatch returns the fan-out outcome; an empty outcome means no candidate
// was found and the booking stays requested.
func (p *Pipeline) Dispatch(ctx context.Context, bookingID int64) (broadcast.Outcome, error) {
	res, err := p.matcher.Match(ctx, bookingID)
	if err != nil {
		return broadcast.Outcome{}, fmt.Errorf("match booking %d: %w", bookingID, err)
	}
	if len(res.TechnicianIDs) == 0 {
		return broadcast.Outcome{}, nil
	}
	return p.fanout.Broadcast(ctx, bookingID, res.TechnicianIDs)
}
