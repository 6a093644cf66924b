// Package notify delivers booking notifications to technicians and customers.
package notify

import (
	"context"
	"errors"
	"time"
)

// Customer event types.
const (
	EventBookingAccepted      = "booking_accepted"
	EventBookingStatusChanged = "booking_status_changed"
	EventBookingCancelled     = "booking_cancelled"
	EventPaymentVerified      = "payment_verified"
)

// Logger defines minimal logging interface required by notifiers.
type Logger interface {
	Infof(string, ...interface{})
	Errorf(string, ...interface{})
}

// JobSummary is what a technician sees in a new offer.
type JobSummary struct {
	BookingID   int64     `json:"booking_id"`
	ServiceID   int64     `json:"service_id"`
	ServiceName string    `json:"service_name,omitempty"`
	BaseAmount  string    `json:"base_amount"`
	City        string    `json:"city,omitempty"`
	Pincode     string    `json:"pincode,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Event is a booking update for a customer.
type Event struct {
	Type         string `json:"type"`
	BookingID    int64  `json:"booking_id"`
	TechnicianID int64  `json:"technician_id,omitempty"`
	Status       string `json:"status,omitempty"`
}

// Notifier is the notification channel used after commits.
type Notifier interface {
	NotifyTechnicians(ctx context.Context, technicianIDs []int64, job JobSummary) error
	NotifyCustomer(ctx context.Context, customerID int64, ev Event) error
	NotifyJobTaken(ctx context.Context, technicianIDs []int64, bookingID int64) error
}

// Multi fans a notification out to every channel and joins their errors.
type Multi []Notifier

func (m Multi) NotifyTechnicians(ctx context.Context, ids []int64, job JobSummary) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.NotifyTechnicians(ctx, ids, job))
	}
	return errors.Join(errs...)
}

func (m Multi) NotifyCustomer(ctx context.Context, customerID int64, ev Event) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.NotifyCustomer(ctx, customerID, ev))
	}
	return errors.Join(errs...)
}

func (m Multi) NotifyJobTaken(ctx context.Context, ids []int64, bookingID int64) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.NotifyJobTaken(ctx, ids, bookingID))
	}
	return errors.Join(errs...)
}

// Nop drops every notification.
type Nop struct{}

func (Nop) NotifyTechnicians(context.Context, []int64, JobSummary) error { return nil }
func (Nop) NotifyCustomer(context.Context, int64, Event) error           { return nil }
func (Nop) NotifyJobTaken(context.Context, []int64, int64) error         { return nil }
