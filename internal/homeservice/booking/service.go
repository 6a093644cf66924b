// Package booking implements the customer-facing booking lifecycle.
package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"fixitBack/internal/apierror"
	"fixitBack/internal/events"
	"fixitBack/internal/homeservice/broadcast"
	"fixitBack/internal/homeservice/fsm"
	"fixitBack/internal/homeservice/geo"
	"fixitBack/internal/homeservice/notify"
	"fixitBack/internal/homeservice/repo"
	"fixitBack/internal/homeservice/settlement"
	"fixitBack/internal/identity"
	"fixitBack/internal/metrics"
)

// Logger is a minimal logger interface required by the booking service.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type Store interface {
	Create(ctx context.Context, b repo.Booking) (int64, error)
	Get(ctx context.Context, id int64) (repo.Booking, error)
	UpdateStatus(ctx context.Context, id, technicianID int64, fromStatus, toStatus string) error
	Cancel(ctx context.Context, id int64, fromStatus, reason string, now time.Time) ([]int64, error)
}

type Catalog interface {
	GetService(ctx context.Context, id int64) (repo.Service, error)
	GetAddress(ctx context.Context, userID, addressID int64) (repo.Address, error)
}

type OfferLister interface {
	ListLive(ctx context.Context, technicianID int64, now time.Time) ([]repo.Broadcast, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, bookingID int64) (broadcast.Outcome, error)
}

type Settler interface {
	SettleIfEligible(ctx context.Context, bookingID int64) (settlement.Outcome, error)
}

// CreateRequest is the customer's booking form.
type CreateRequest struct {
	ServiceID   int64           `json:"service_id"`
	AddressID   int64           `json:"address_id"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	BaseAmount  decimal.Decimal `json:"base_amount"`
}

func (r CreateRequest) validate(now time.Time) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ServiceID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.AddressID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.ScheduledAt, validation.Required, validation.By(func(interface{}) error {
			if r.ScheduledAt.Before(now.Add(-time.Minute)) {
				return errors.New("must not be in the past")
			}
			return nil
		})),
		validation.Field(&r.BaseAmount, validation.By(func(interface{}) error {
			if !r.BaseAmount.IsPositive() {
				return errors.New("must be positive")
			}
			if r.BaseAmount.Exponent() < -2 {
				return errors.New("must have at most two decimal places")
			}
			return nil
		})),
	)
}

// Service implements booking lifecycle operations.
type Service struct {
	store     Store
	catalog   Catalog
	offers    OfferLister
	pipeline  Dispatcher
	settler   Settler
	notifier  notify.Notifier
	publisher events.Publisher
	logger    Logger
	now       func() time.Time
}

func NewService(store Store, catalog Catalog, offers OfferLister, pipeline Dispatcher, settler Settler,
	notifier notify.Notifier, publisher events.Publisher, logger Logger) *Service {
	return &Service{store: store, catalog: catalog, offers: offers, pipeline: pipeline, settler: settler,
		notifier: notifier, publisher: publisher, logger: logger, now: time.Now}
}

// Create records a booking and offers it to nearby technicians. A failed
// match leaves the booking requested for the re-dispatcher.
func (s *Service) Create(ctx context.Context, who identity.Identity, req CreateRequest) (View, error) {
	if !who.IsCustomer() {
		return View{}, apierror.New(apierror.CodeForbidden, "only customers create bookings", nil)
	}
	now := s.now()
	if err := req.validate(now); err != nil {
		return View{}, apierror.Validation(err)
	}

	svc, err := s.catalog.GetService(ctx, req.ServiceID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && !svc.IsActive) {
		return View{}, apierror.New(apierror.CodeValidation, "request validation failed", map[string]string{"service_id": "unknown or inactive service"})
	}
	if err != nil {
		return View{}, fmt.Errorf("load service %d: %w", req.ServiceID, err)
	}
	addr, err := s.catalog.GetAddress(ctx, who.UserID, req.AddressID)
	if errors.Is(err, repo.ErrNotFound) {
		return View{}, apierror.New(apierror.CodeValidation, "request validation failed", map[string]string{"address_id": "unknown address"})
	}
	if err != nil {
		return View{}, fmt.Errorf("load address %d: %w", req.AddressID, err)
	}

	b, err := newBooking(who.UserID, req, addr)
	if err != nil {
		return View{}, err
	}
	id, err := s.store.Create(ctx, b)
	if err != nil {
		return View{}, fmt.Errorf("create booking: %w", err)
	}
	metrics.BookingsCreatedTotal.Inc()
	s.logger.Infof("booking %d created by customer %d for service %d", id, who.UserID, req.ServiceID)
	if err := s.publisher.Publish(ctx, events.Event{Type: events.TypeBookingCreated, BookingID: id, Status: fsm.StatusRequested, OccurredAt: now}); err != nil {
		s.logger.Errorf("booking %d: publish created: %v", id, err)
	}

	if out, err := s.pipeline.Dispatch(ctx, id); err != nil {
		s.logger.Errorf("booking %d: dispatch: %v", id, err)
	} else if len(out.Offered) == 0 {
		s.logger.Infof("booking %d: no technician offered yet", id)
	}

	created, err := s.store.Get(ctx, id)
	if err != nil {
		return View{}, fmt.Errorf("reload booking %d: %w", id, err)
	}
	return toView(created), nil
}

func newBooking(customerID int64, req CreateRequest, addr repo.Address) (repo.Booking, error) {
	b := repo.Booking{
		CustomerID:  customerID,
		ServiceID:   req.ServiceID,
		BaseAmount:  req.BaseAmount,
		ScheduledAt: req.ScheduledAt,
		Pincode:     strings.TrimSpace(addr.Pincode),
		City:        strings.TrimSpace(addr.City),
		State:       strings.TrimSpace(addr.State),
		Status:      fsm.StatusRequested,
	}
	b.Address = repo.AddressSnapshot{AddressID: addr.ID, Line1: addr.Line1, Pincode: b.Pincode, City: b.City, State: b.State}

	located := false
	if addr.Latitude.Valid && addr.Longitude.Valid && geo.ValidCoords(addr.Latitude.Float64, addr.Longitude.Float64) == nil {
		lat, lon := addr.Latitude.Float64, addr.Longitude.Float64
		b.Latitude = sql.NullFloat64{Float64: lat, Valid: true}
		b.Longitude = sql.NullFloat64{Float64: lon, Valid: true}
		b.Address.Latitude, b.Address.Longitude = &lat, &lon
		located = true
	}
	if !located && b.Pincode == "" && b.City == "" && b.State == "" {
		return repo.Booking{}, apierror.New(apierror.CodeValidation, "request validation failed",
			map[string]string{"address_id": "address has neither coordinates nor pincode, city or state"})
	}
	return b, nil
}

func (s *Service) load(ctx context.Context, id int64) (repo.Booking, error) {
	b, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return repo.Booking{}, apierror.New(apierror.CodeNotFound, "booking not found", nil)
		}
		return repo.Booking{}, fmt.Errorf("load booking %d: %w", id, err)
	}
	return b, nil
}

func canView(who identity.Identity, b repo.Booking) bool {
	switch {
	case who.IsAdmin():
		return true
	case who.IsCustomer():
		return b.CustomerID == who.UserID
	case who.IsTechnician():
		return b.AssignedTo(who.ProfileID)
	}
	return false
}

// Get returns a booking to its customer, its technician or an admin.
func (s *Service) Get(ctx context.Context, who identity.Identity, id int64) (View, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return View{}, err
	}
	if !canView(who, b) {
		return View{}, apierror.New(apierror.CodeNotFound, "booking not found", nil)
	}
	return toView(b), nil
}

// UpdateStatus applies a progress step reported by the assigned technician.
func (s *Service) UpdateStatus(ctx context.Context, who identity.Identity, id int64, to string) (View, error) {
	if !who.IsTechnician() {
		return View{}, apierror.New(apierror.CodeForbidden, "only the assigned technician reports progress", nil)
	}
	if !fsm.TechnicianStep(to) {
		return View{}, apierror.New(apierror.CodeValidation, "request validation failed", map[string]string{"status": "unsupported status"})
	}
	b, err := s.load(ctx, id)
	if err != nil {
		return View{}, err
	}
	if !fsm.Assigned(b.Status) || !b.AssignedTo(who.ProfileID) {
		return View{}, apierror.New(apierror.CodeForbidden, "booking is not assigned to you", nil)
	}
	if !fsm.CanTransition(b.Status, to) {
		return View{}, invalidTransition(b.Status, to)
	}

	if err := s.store.UpdateStatus(ctx, id, who.ProfileID, b.Status, to); err != nil {
		switch {
		case errors.Is(err, fsm.ErrInvalidTransition):
			return View{}, invalidTransition(b.Status, to)
		case errors.Is(err, repo.ErrConflict):
			current, lerr := s.load(ctx, id)
			if lerr != nil {
				return View{}, lerr
			}
			return View{}, invalidTransition(current.Status, to)
		}
		return View{}, fmt.Errorf("update booking %d: %w", id, err)
	}
	from := b.Status
	b.Status = to
	s.logger.Infof("booking %d: %s -> %s by technician %d", id, from, to, who.ProfileID)

	if to == fsm.StatusCompleted {
		if outcome, err := s.settler.SettleIfEligible(ctx, id); err != nil {
			s.logger.Errorf("booking %d: settle on completion: %v", id, err)
		} else {
			s.logger.Infof("booking %d: settlement %s", id, outcome)
		}
	}
	if err := s.notifier.NotifyCustomer(ctx, b.CustomerID, notify.Event{Type: notify.EventBookingStatusChanged, BookingID: id, TechnicianID: who.ProfileID, Status: to}); err != nil {
		metrics.NotificationFailuresTotal.WithLabelValues("customer").Inc()
		s.logger.Errorf("booking %d: notify customer: %v", id, err)
	}
	if err := s.publisher.Publish(ctx, events.Event{Type: events.TypeBookingStatusChanged, BookingID: id, TechnicianID: who.ProfileID, Status: to, OccurredAt: s.now()}); err != nil {
		s.logger.Errorf("booking %d: publish status: %v", id, err)
	}

	updated, err := s.store.Get(ctx, id)
	if err != nil {
		return toView(b), nil
	}
	return toView(updated), nil
}

func invalidTransition(from, to string) *apierror.APIError {
	return apierror.New(apierror.CodeInvalidTransition, fmt.Sprintf("cannot move booking from %s to %s", from, to),
		map[string]string{"status": from})
}

// Cancel closes the booking and voids its outstanding offers. The previous
// assignee and offer holders are told the job is gone.
func (s *Service) Cancel(ctx context.Context, who identity.Identity, id int64, reason string) (View, error) {
	if !who.IsCustomer() && !who.IsAdmin() {
		return View{}, apierror.New(apierror.CodeForbidden, "only the customer may cancel", nil)
	}
	reason = strings.TrimSpace(reason)
	if len(reason) > 255 {
		return View{}, apierror.New(apierror.CodeValidation, "request validation failed", map[string]string{"reason": "the length must be no more than 255"})
	}
	b, err := s.load(ctx, id)
	if err != nil {
		return View{}, err
	}
	if who.IsCustomer() && b.CustomerID != who.UserID {
		return View{}, apierror.New(apierror.CodeNotFound, "booking not found", nil)
	}
	if !fsm.Cancellable(b.Status) {
		return View{}, invalidTransition(b.Status, fsm.StatusCancelled)
	}

	now := s.now()
	holders, err := s.store.Cancel(ctx, id, b.Status, reason, now)
	if err != nil {
		switch {
		case errors.Is(err, fsm.ErrInvalidTransition):
			return View{}, invalidTransition(b.Status, fsm.StatusCancelled)
		case errors.Is(err, repo.ErrConflict):
			current, lerr := s.load(ctx, id)
			if lerr != nil {
				return View{}, lerr
			}
			if current.Status == fsm.StatusCancelled {
				return View{}, apierror.New(apierror.CodeAlreadyProcessed, "booking already cancelled", nil)
			}
			return View{}, invalidTransition(current.Status, fsm.StatusCancelled)
		}
		return View{}, fmt.Errorf("cancel booking %d: %w", id, err)
	}
	s.logger.Infof("booking %d cancelled from %s; %d offers voided", id, b.Status, len(holders))

	affected := holders
	if fsm.Assigned(b.Status) && b.TechnicianID.Valid {
		affected = append(affected, b.TechnicianID.Int64)
	}
	if len(affected) > 0 {
		if err := s.notifier.NotifyJobTaken(ctx, affected, id); err != nil {
			metrics.NotificationFailuresTotal.WithLabelValues("job_taken").Inc()
			s.logger.Errorf("booking %d: notify technicians of cancel: %v", id, err)
		}
	}
	if who.IsAdmin() {
		if err := s.notifier.NotifyCustomer(ctx, b.CustomerID, notify.Event{Type: notify.EventBookingCancelled, BookingID: id, Status: fsm.StatusCancelled}); err != nil {
			s.logger.Errorf("booking %d: notify customer of cancel: %v", id, err)
		}
	}
	if err := s.publisher.Publish(ctx, events.Event{Type: events.TypeBookingCancelled, BookingID: id, Status: fsm.StatusCancelled, OccurredAt: now}); err != nil {
		s.logger.Errorf("booking %d: publish cancel: %v", id, err)
	}
	return s.Get(ctx, who, id)
}

// ListBroadcasts returns the technician's live offers, newest first.
func (s *Service) ListBroadcasts(ctx context.Context, who identity.Identity) ([]Offer, error) {
	if !who.IsTechnician() {
		return nil, apierror.New(apierror.CodeForbidden, "technician access only", nil)
	}
	live, err := s.offers.ListLive(ctx, who.ProfileID, s.now())
	if err != nil {
		return nil, fmt.Errorf("list offers of technician %d: %w", who.ProfileID, err)
	}
	out := make([]Offer, 0, len(live))
	for _, bc := range live {
		out = append(out, toOffer(bc))
	}
	return out, nil
}
