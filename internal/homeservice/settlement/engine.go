// Package settlement credits technician wallets for paid, completed bookings
// and drives the payment flow that feeds it.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fixitBack/internal/events"
	"fixitBack/internal/homeservice/fsm"
	"fixitBack/internal/homeservice/repo"
	"fixitBack/internal/metrics"
)

// Outcome of a settlement attempt.
type Outcome string

const (
	OutcomeSettled              Outcome = "settled"
	OutcomeAlreadySettled       Outcome = "already_settled"
	OutcomeNotCompleted         Outcome = "not_completed"
	OutcomePaymentNotSuccessful Outcome = "payment_not_successful"
)

// Logger is a minimal logger interface required by settlement.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type BookingReader interface {
	Get(ctx context.Context, id int64) (repo.Booking, error)
}

type PaymentReader interface {
	GetByBooking(ctx context.Context, bookingID int64) (repo.Payment, error)
}

// Ledger writes job credits.
type Ledger interface {
	HasJobCredit(ctx context.Context, bookingID int64) (bool, error)
	CreditJob(ctx context.Context, technicianID, bookingID int64, amount decimal.Decimal) error
}

// Engine settles bookings. Every trigger may call it any number of times.
type Engine struct {
	bookings  BookingReader
	payments  PaymentReader
	ledger    Ledger
	publisher events.Publisher
	logger    Logger
	now       func() time.Time
}

func NewEngine(bookings BookingReader, payments PaymentReader, ledger Ledger, publisher events.Publisher, logger Logger) *Engine {
	return &Engine{bookings: bookings, payments: payments, ledger: ledger, publisher: publisher, logger: logger, now: time.Now}
}

// SettleIfEligible credits the assigned technician once the booking is
// completed and its payment succeeded. A booking is credited at most once;
// the ledger's unique key settles concurrent callers.
func (e *Engine) SettleIfEligible(ctx context.Context, bookingID int64) (Outcome, error) {
	outcome, err := e.settle(ctx, bookingID)
	if err == nil {
		metrics.SettlementsTotal.WithLabelValues(string(outcome)).Inc()
	}
	return outcome, err
}

func (e *Engine) settle(ctx context.Context, bookingID int64) (Outcome, error) {
	b, err := e.bookings.Get(ctx, bookingID)
	if err != nil {
		return "", fmt.Errorf("load booking %d: %w", bookingID, err)
	}
	if b.Status != fsm.StatusCompleted || !b.TechnicianID.Valid {
		return OutcomeNotCompleted, nil
	}

	p, err := e.payments.GetByBooking(ctx, bookingID)
	if errors.Is(err, repo.ErrNotFound) {
		return OutcomePaymentNotSuccessful, nil
	}
	if err != nil {
		return "", fmt.Errorf("load payment of booking %d: %w", bookingID, err)
	}
	if p.Status != repo.PaymentSuccess {
		return OutcomePaymentNotSuccessful, nil
	}

	credited, err := e.ledger.HasJobCredit(ctx, bookingID)
	if err != nil {
		return "", fmt.Errorf("check credit of booking %d: %w", bookingID, err)
	}
	if credited {
		return OutcomeAlreadySettled, nil
	}

	technicianID := b.TechnicianID.Int64
	if err := e.ledger.CreditJob(ctx, technicianID, bookingID, p.TechnicianAmount); err != nil {
		if errors.Is(err, repo.ErrAlreadySettled) {
			return OutcomeAlreadySettled, nil
		}
		return "", fmt.Errorf("credit technician %d for booking %d: %w", technicianID, bookingID, err)
	}

	e.logger.Infof("booking %d settled: technician %d credited %s", bookingID, technicianID, p.TechnicianAmount.StringFixed(2))
	if err := e.publisher.Publish(ctx, events.Event{
		Type:         events.TypeWalletCredited,
		BookingID:    bookingID,
		TechnicianID: technicianID,
		Amount:       p.TechnicianAmount.StringFixed(2),
		OccurredAt:   e.now(),
	}); err != nil {
		e.logger.Errorf("booking %d: publish credit: %v", bookingID, err)
	}
	return OutcomeSettled, nil
}
