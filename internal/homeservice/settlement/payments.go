package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"fixitBack/internal/apierror"
	"fixitBack/internal/events"
	"fixitBack/internal/homeservice/fsm"
	"fixitBack/internal/homeservice/notify"
	"fixitBack/internal/homeservice/pay"
	"fixitBack/internal/homeservice/pricing"
	"fixitBack/internal/homeservice/repo"
	"fixitBack/internal/identity"
	"fixitBack/internal/metrics"
)

type ServiceCatalog interface {
	GetService(ctx context.Context, id int64) (repo.Service, error)
}

// PaymentStore persists payments and webhook audit rows.
type PaymentStore interface {
	PaymentReader
	CreatePending(ctx context.Context, p repo.Payment) (repo.Payment, bool, error)
	SetProviderOrder(ctx context.Context, paymentID int64, orderID string) error
	MarkSuccess(ctx context.Context, bookingID int64, orderID, paymentID string, now time.Time) error
	MarkFailed(ctx context.Context, bookingID int64, orderID, paymentID string, now time.Time) error
	SaveWebhook(ctx context.Context, ev repo.WebhookEvent) error
}

// Settler is the engine as seen by payments.
type Settler interface {
	SettleIfEligible(ctx context.Context, bookingID int64) (Outcome, error)
}

// Order is returned to the customer app to open the checkout.
type Order struct {
	PaymentID        int64  `json:"payment_id"`
	BookingID        int64  `json:"booking_id"`
	Provider         string `json:"provider"`
	ProviderOrderID  string `json:"provider_order_id"`
	Receipt          string `json:"receipt"`
	Amount           string `json:"amount"`
	AmountMinor      int64  `json:"amount_minor"`
	Currency         string `json:"currency"`
	CommissionAmount string `json:"commission_amount"`
	TechnicianAmount string `json:"technician_amount"`
	Status           string `json:"status"`
}

// VerifyRequest carries the checkout callback of the customer app.
type VerifyRequest struct {
	BookingID         int64  `json:"booking_id"`
	ProviderOrderID   string `json:"provider_order_id"`
	ProviderPaymentID string `json:"provider_payment_id"`
	Signature         string `json:"signature"`
}

func (r VerifyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.BookingID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.ProviderOrderID, validation.Required),
		validation.Field(&r.ProviderPaymentID, validation.Required),
		validation.Field(&r.Signature, validation.Required),
	)
}

// VerifyResult reports the payment state after verification.
type VerifyResult struct {
	BookingID     int64   `json:"booking_id"`
	PaymentStatus string  `json:"payment_status"`
	Settlement    Outcome `json:"settlement,omitempty"`
}

// Payments opens gateway orders and records their outcome.
type Payments struct {
	bookings  BookingReader
	catalog   ServiceCatalog
	store     PaymentStore
	provider  pay.Provider
	settler   Settler
	notifier  notify.Notifier
	publisher events.Publisher
	logger    Logger
	currency  string
	now       func() time.Time
}

func NewPayments(bookings BookingReader, catalog ServiceCatalog, store PaymentStore, provider pay.Provider, settler Settler,
	notifier notify.Notifier, publisher events.Publisher, logger Logger, currency string) *Payments {
	if currency == "" {
		currency = "INR"
	}
	return &Payments{bookings: bookings, catalog: catalog, store: store, provider: provider, settler: settler,
		notifier: notifier, publisher: publisher, logger: logger, currency: currency, now: time.Now}
}

func (s *Payments) ownedBooking(ctx context.Context, who identity.Identity, bookingID int64) (repo.Booking, error) {
	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return repo.Booking{}, apierror.New(apierror.CodeNotFound, "booking not found", nil)
		}
		return repo.Booking{}, fmt.Errorf("load booking %d: %w", bookingID, err)
	}
	if !who.IsAdmin() && !(who.IsCustomer() && b.CustomerID == who.UserID) {
		return repo.Booking{}, apierror.New(apierror.CodeNotFound, "booking not found", nil)
	}
	return b, nil
}

// CreateOrder returns the booking's gateway order, opening it on first call.
func (s *Payments) CreateOrder(ctx context.Context, who identity.Identity, bookingID int64) (Order, error) {
	if !who.IsCustomer() {
		return Order{}, apierror.New(apierror.CodeForbidden, "only customers pay for bookings", nil)
	}
	b, err := s.ownedBooking(ctx, who, bookingID)
	if err != nil {
		return Order{}, err
	}
	if b.Status == fsm.StatusCancelled {
		return Order{}, apierror.New(apierror.CodeInvalidTransition, "booking is cancelled", nil)
	}

	p, err := s.store.GetByBooking(ctx, bookingID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		p, err = s.createPending(ctx, b)
		if err != nil {
			return Order{}, err
		}
	case err != nil:
		return Order{}, fmt.Errorf("load payment of booking %d: %w", bookingID, err)
	}

	switch p.Status {
	case repo.PaymentSuccess:
		return Order{}, apierror.New(apierror.CodeDuplicatePayment, "booking already paid", map[string]int64{"payment_id": p.ID})
	case repo.PaymentFailed:
		return Order{}, apierror.New(apierror.CodeInvalidTransition, "payment already failed", map[string]int64{"payment_id": p.ID})
	}
	if p.ProviderOrderID.Valid {
		return s.order(p), nil
	}

	gwOrder, err := s.provider.CreateOrder(ctx, pay.OrderRequest{
		Receipt:  p.Receipt,
		Amount:   p.TotalAmount,
		Currency: p.Currency,
		Notes:    map[string]string{"booking_id": fmt.Sprint(bookingID)},
	})
	if err != nil {
		s.logger.Errorf("booking %d: create gateway order: %v", bookingID, err)
		return Order{}, apierror.New(apierror.CodeProvider, "payment provider unavailable", nil)
	}
	if err := s.store.SetProviderOrder(ctx, p.ID, gwOrder.ID); err != nil && !errors.Is(err, repo.ErrConflict) {
		return Order{}, fmt.Errorf("store order of payment %d: %w", p.ID, err)
	}
	// A concurrent caller may have stored its own order first; return the stored one.
	stored, err := s.store.GetByBooking(ctx, bookingID)
	if err != nil {
		return Order{}, fmt.Errorf("reload payment of booking %d: %w", bookingID, err)
	}
	return s.order(stored), nil
}

func (s *Payments) createPending(ctx context.Context, b repo.Booking) (repo.Payment, error) {
	svc, err := s.catalog.GetService(ctx, b.ServiceID)
	if err != nil {
		return repo.Payment{}, fmt.Errorf("load service %d: %w", b.ServiceID, err)
	}
	split := pricing.Split(b.BaseAmount, svc.CommissionPct)
	p, _, err := s.store.CreatePending(ctx, repo.Payment{
		BookingID:        b.ID,
		Provider:         s.provider.Name(),
		Receipt:          uuid.NewString(),
		BaseAmount:       split.Base,
		TotalAmount:      split.Total,
		CommissionAmount: split.Commission,
		TechnicianAmount: split.TechnicianShare,
		Currency:         s.currency,
	})
	if err != nil {
		return repo.Payment{}, fmt.Errorf("create payment for booking %d: %w", b.ID, err)
	}
	metrics.PaymentsTotal.WithLabelValues(repo.PaymentPending).Inc()
	return p, nil
}

func (s *Payments) order(p repo.Payment) Order {
	return Order{
		PaymentID:        p.ID,
		BookingID:        p.BookingID,
		Provider:         p.Provider,
		ProviderOrderID:  p.ProviderOrderID.String,
		Receipt:          p.Receipt,
		Amount:           p.TotalAmount.StringFixed(2),
		AmountMinor:      pricing.MinorUnits(p.TotalAmount),
		Currency:         p.Currency,
		CommissionAmount: p.CommissionAmount.StringFixed(2),
		TechnicianAmount: p.TechnicianAmount.StringFixed(2),
		Status:           p.Status,
	}
}

// Verify checks the checkout signature and finalizes the payment. A valid
// signature moves it to success and triggers settlement; an invalid one
// fails it. Re-verifying a successful payment is a no-op.
func (s *Payments) Verify(ctx context.Context, who identity.Identity, req VerifyRequest) (VerifyResult, error) {
	if err := req.Validate(); err != nil {
		return VerifyResult{}, apierror.Validation(err)
	}
	b, err := s.ownedBooking(ctx, who, req.BookingID)
	if err != nil {
		return VerifyResult{}, err
	}
	p, err := s.store.GetByBooking(ctx, b.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return VerifyResult{}, apierror.New(apierror.CodeNotFound, "payment not found", nil)
		}
		return VerifyResult{}, fmt.Errorf("load payment of booking %d: %w", b.ID, err)
	}
	if p.ProviderOrderID.String != req.ProviderOrderID {
		return VerifyResult{}, apierror.New(apierror.CodeValidation, "order does not belong to booking", map[string]string{"provider_order_id": "mismatch"})
	}

	switch p.Status {
	case repo.PaymentSuccess:
		return s.settled(ctx, b.ID)
	case repo.PaymentFailed:
		return VerifyResult{}, apierror.New(apierror.CodeAlreadyProcessed, "payment already failed", nil)
	}

	now := s.now()
	if !s.provider.VerifyPayment(req.ProviderOrderID, req.ProviderPaymentID, req.Signature) {
		if err := s.store.MarkFailed(ctx, b.ID, req.ProviderOrderID, req.ProviderPaymentID, now); err != nil && !errors.Is(err, repo.ErrConflict) {
			return VerifyResult{}, fmt.Errorf("fail payment of booking %d: %w", b.ID, err)
		}
		metrics.PaymentsTotal.WithLabelValues(repo.PaymentFailed).Inc()
		return VerifyResult{}, apierror.New(apierror.CodeValidation, "payment signature mismatch", map[string]string{"signature": "invalid"})
	}

	if err := s.store.MarkSuccess(ctx, b.ID, req.ProviderOrderID, req.ProviderPaymentID, now); err != nil {
		if !errors.Is(err, repo.ErrConflict) {
			return VerifyResult{}, fmt.Errorf("confirm payment of booking %d: %w", b.ID, err)
		}
		current, rerr := s.store.GetByBooking(ctx, b.ID)
		if rerr != nil {
			return VerifyResult{}, fmt.Errorf("reload payment of booking %d: %w", b.ID, rerr)
		}
		if current.Status != repo.PaymentSuccess {
			return VerifyResult{}, apierror.New(apierror.CodeAlreadyProcessed, "payment already processed", map[string]string{"status": current.Status})
		}
		return s.settled(ctx, b.ID)
	}

	metrics.PaymentsTotal.WithLabelValues(repo.PaymentSuccess).Inc()
	s.logger.Infof("payment of booking %d verified", b.ID)
	if err := s.notifier.NotifyCustomer(ctx, b.CustomerID, notify.Event{Type: notify.EventPaymentVerified, BookingID: b.ID, Status: repo.PaymentSuccess}); err != nil {
		s.logger.Errorf("booking %d: notify payment: %v", b.ID, err)
	}
	if err := s.publisher.Publish(ctx, events.Event{Type: events.TypePaymentVerified, BookingID: b.ID, Status: repo.PaymentSuccess,
		Amount: p.TotalAmount.StringFixed(2), OccurredAt: now}); err != nil {
		s.logger.Errorf("booking %d: publish payment: %v", b.ID, err)
	}
	return s.settled(ctx, b.ID)
}

func (s *Payments) settled(ctx context.Context, bookingID int64) (VerifyResult, error) {
	res := VerifyResult{BookingID: bookingID, PaymentStatus: repo.PaymentSuccess}
	outcome, err := s.settler.SettleIfEligible(ctx, bookingID)
	if err != nil {
		s.logger.Errorf("booking %d: settle after payment: %v", bookingID, err)
		return res, nil
	}
	res.Settlement = outcome
	return res, nil
}

type webhookEnvelope struct {
	Event   string `json:"event"`
	OrderID string `json:"order_id"`
	Payload struct {
		OrderID string `json:"order_id"`
	} `json:"payload"`
}

// RecordWebhook stores a gateway callback for audit. It never changes
// payment state; the returned flag reports the signature check.
func (s *Payments) RecordWebhook(ctx context.Context, signature string, body []byte) (bool, error) {
	valid := s.provider.VerifyWebhook(body, signature)
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		s.logger.Errorf("webhook: undecodable body: %v", err)
	}
	orderID := env.OrderID
	if orderID == "" {
		orderID = env.Payload.OrderID
	}
	stored := body
	if !json.Valid(body) {
		quoted, _ := json.Marshal(string(body))
		stored = quoted
	}
	if err := s.store.SaveWebhook(ctx, repo.WebhookEvent{
		Provider:        s.provider.Name(),
		EventType:       env.Event,
		ProviderOrderID: orderID,
		Signature:       signature,
		SignatureValid:  valid,
		Body:            stored,
	}); err != nil {
		return valid, fmt.Errorf("store webhook: %w", err)
	}
	if !valid {
		s.logger.Errorf("webhook %q for order %q: invalid signature", env.Event, orderID)
	}
	return valid, nil
}
