// Package acceptance resolves technician responses to job offers.
package acceptance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fixitBack/internal/apierror"
	"fixitBack/internal/events"
	"fixitBack/internal/homeservice/eligibility"
	"fixitBack/internal/homeservice/fsm"
	"fixitBack/internal/homeservice/notify"
	"fixitBack/internal/homeservice/repo"
	"fixitBack/internal/identity"
	"fixitBack/internal/metrics"
)

// Actions a technician can take on an offer.
const (
	ActionAccept = "accept"
	ActionReject = "reject"
)

// Logger is a minimal logger interface required by the resolver.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type TechnicianReader interface {
	Get(ctx context.Context, id int64) (repo.Technician, error)
}

type OfferStore interface {
	Get(ctx context.Context, id int64) (repo.Broadcast, error)
	Reject(ctx context.Context, id, technicianID int64, now time.Time) error
}

type BookingReader interface {
	Get(ctx context.Context, id int64) (repo.Booking, error)
}

// Assigner runs the claim transaction.
type Assigner interface {
	Accept(ctx context.Context, p repo.AcceptParams) (repo.AcceptOutcome, error)
}

// Result is returned to the responding technician.
type Result struct {
	BroadcastID     int64  `json:"broadcast_id"`
	BookingID       int64  `json:"booking_id"`
	Action          string `json:"action"`
	BroadcastStatus string `json:"broadcast_status"`
	BookingStatus   string `json:"booking_status,omitempty"`
	TechnicianID    int64  `json:"technician_id,omitempty"`
}

// Resolver decides the race between technicians answering offers of the
// same booking. The first committed booking update wins; the resolver never
// retries on behalf of a loser.
type Resolver struct {
	technicians TechnicianReader
	offers      OfferStore
	bookings    BookingReader
	assigner    Assigner
	notifier    notify.Notifier
	publisher   events.Publisher
	logger      Logger
	now         func() time.Time
}

func New(technicians TechnicianReader, offers OfferStore, bookings BookingReader, assigner Assigner, notifier notify.Notifier, publisher events.Publisher, logger Logger) *Resolver {
	return &Resolver{
		technicians: technicians,
		offers:      offers,
		bookings:    bookings,
		assigner:    assigner,
		notifier:    notifier,
		publisher:   publisher,
		logger:      logger,
		now:         time.Now,
	}
}

// Respond applies action to broadcastID on behalf of who.
func (r *Resolver) Respond(ctx context.Context, who identity.Identity, broadcastID int64, action string) (Result, error) {
	res, err := r.respond(ctx, who, broadcastID, action)
	metrics.ResponsesTotal.WithLabelValues(action, outcomeLabel(err)).Inc()
	return res, err
}

func (r *Resolver) respond(ctx context.Context, who identity.Identity, broadcastID int64, action string) (Result, error) {
	if !who.IsTechnician() {
		return Result{}, apierror.New(apierror.CodeForbidden, "only technicians can respond to offers", nil)
	}
	if action != ActionAccept && action != ActionReject {
		return Result{}, apierror.New(apierror.CodeValidation, "action must be accept or reject", map[string]string{"action": action})
	}
	technicianID := who.ProfileID

	tech, err := r.technicians.Get(ctx, technicianID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Result{}, apierror.New(apierror.CodeNotFound, "technician profile not found", nil)
		}
		return Result{}, fmt.Errorf("load technician %d: %w", technicianID, err)
	}
	if d := eligibility.CheckResponder(tech); !d.Eligible {
		return Result{}, apierror.New(apierror.CodeNotEligible, "technician is not eligible to respond", map[string]interface{}{"failed": d.Failed})
	}

	bc, err := r.offers.Get(ctx, broadcastID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Result{}, apierror.New(apierror.CodeNotFound, "offer not found", nil)
		}
		return Result{}, fmt.Errorf("load broadcast %d: %w", broadcastID, err)
	}
	if bc.TechnicianID != technicianID {
		return Result{}, apierror.New(apierror.CodeNotFound, "offer not found", nil)
	}

	now := r.now()
	if bc.Status != repo.BroadcastSent {
		if action == ActionAccept {
			return Result{}, r.closedOfferError(ctx, bc)
		}
		return Result{}, alreadyProcessed(bc)
	}
	if !bc.Live(now) {
		return Result{}, apierror.New(apierror.CodeOfferExpired, "offer expired", map[string]interface{}{"expires_at": bc.ExpiresAt})
	}

	if action == ActionReject {
		return r.reject(ctx, bc, now)
	}
	return r.accept(ctx, bc, now)
}

func (r *Resolver) reject(ctx context.Context, bc repo.Broadcast, now time.Time) (Result, error) {
	if err := r.offers.Reject(ctx, bc.ID, bc.TechnicianID, now); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return Result{}, alreadyProcessed(bc)
		}
		return Result{}, fmt.Errorf("reject broadcast %d: %w", bc.ID, err)
	}
	r.logger.Infof("offer %d rejected by technician %d", bc.ID, bc.TechnicianID)
	return Result{BroadcastID: bc.ID, BookingID: bc.BookingID, Action: ActionReject, BroadcastStatus: repo.BroadcastRejected}, nil
}

func (r *Resolver) accept(ctx context.Context, bc repo.Broadcast, now time.Time) (Result, error) {
	out, err := r.assigner.Accept(ctx, repo.AcceptParams{
		BookingID:    bc.BookingID,
		BroadcastID:  bc.ID,
		TechnicianID: bc.TechnicianID,
		Now:          now,
	})
	switch {
	case errors.Is(err, repo.ErrBookingTaken):
		return Result{}, bookingTaken(bc)
	case errors.Is(err, repo.ErrBroadcastClosed):
		return Result{}, alreadyProcessed(bc)
	case err != nil:
		return Result{}, fmt.Errorf("accept broadcast %d: %w", bc.ID, err)
	}

	r.logger.Infof("booking %d assigned to technician %d, %d offers voided", bc.BookingID, bc.TechnicianID, len(out.Losers))
	r.afterAccept(ctx, bc, out, now)
	return Result{
		BroadcastID:     bc.ID,
		BookingID:       bc.BookingID,
		Action:          ActionAccept,
		BroadcastStatus: repo.BroadcastAccepted,
		BookingStatus:   fsm.StatusAccepted,
		TechnicianID:    bc.TechnicianID,
	}, nil
}

// afterAccept runs once the claim is committed. Failures are logged only.
func (r *Resolver) afterAccept(ctx context.Context, bc repo.Broadcast, out repo.AcceptOutcome, now time.Time) {
	ev := notify.Event{Type: notify.EventBookingAccepted, BookingID: bc.BookingID, TechnicianID: bc.TechnicianID, Status: fsm.StatusAccepted}
	if err := r.notifier.NotifyCustomer(ctx, out.CustomerID, ev); err != nil {
		r.logger.Errorf("booking %d: notify customer: %v", bc.BookingID, err)
	}
	if err := r.notifier.NotifyJobTaken(ctx, out.Losers, bc.BookingID); err != nil {
		r.logger.Errorf("booking %d: notify job taken: %v", bc.BookingID, err)
	}
	if err := r.publisher.Publish(ctx, events.Event{
		Type:         events.TypeBookingAccepted,
		BookingID:    bc.BookingID,
		TechnicianID: bc.TechnicianID,
		Status:       fsm.StatusAccepted,
		OccurredAt:   now,
	}); err != nil {
		r.logger.Errorf("booking %d: publish accepted: %v", bc.BookingID, err)
	}
}

// closedOfferError tells a late acceptor whether someone else holds the job.
func (r *Resolver) closedOfferError(ctx context.Context, bc repo.Broadcast) error {
	b, err := r.bookings.Get(ctx, bc.BookingID)
	if err != nil {
		return fmt.Errorf("load booking %d: %w", bc.BookingID, err)
	}
	if b.TechnicianID.Valid && b.TechnicianID.Int64 != bc.TechnicianID {
		return bookingTaken(bc)
	}
	return alreadyProcessed(bc)
}

func alreadyProcessed(bc repo.Broadcast) error {
	return apierror.New(apierror.CodeAlreadyProcessed, "offer already processed", map[string]interface{}{"broadcast_id": bc.ID, "status": bc.Status})
}

func bookingTaken(bc repo.Broadcast) error {
	return apierror.New(apierror.CodeBookingTaken, "booking already taken by another technician", map[string]interface{}{"booking_id": bc.BookingID})
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if apiErr, ok := apierror.As(err); ok {
		return string(apiErr.Code)
	}
	return "error"
}
