// Package wallet exposes technician balances and the withdrawal workflow.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"fixitBack/internal/apierror"
	"fixitBack/internal/events"
	"fixitBack/internal/homeservice/repo"
	"fixitBack/internal/identity"
	"fixitBack/internal/lock"
	"fixitBack/internal/metrics"
)

const approveLockTTL = 15 * time.Second

// Logger is a minimal logger interface required by the wallet service.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type Ledger interface {
	Balance(ctx context.Context, technicianID int64) (decimal.Decimal, error)
	List(ctx context.Context, technicianID int64, limit, offset int) ([]repo.WalletTransaction, error)
}

type WithdrawalStore interface {
	Create(ctx context.Context, technicianID int64, amount decimal.Decimal) (int64, error)
	Get(ctx context.Context, id int64) (repo.Withdrawal, error)
	ListByTechnician(ctx context.Context, technicianID int64) ([]repo.Withdrawal, error)
	Approve(ctx context.Context, id int64, now time.Time) (repo.Withdrawal, error)
	Transition(ctx context.Context, id, technicianID int64, from, to, note string, now time.Time) error
}

// Mutex is a per-technician approval lock.
type Mutex interface {
	Lock(ctx context.Context, ttl time.Duration) error
	Unlock(ctx context.Context) error
}

// LockFactory returns the approval lock of a technician.
type LockFactory func(technicianID int64) Mutex

// Transaction is a ledger line as shown in the app.
type Transaction struct {
	ID           int64     `json:"id"`
	BookingID    *int64    `json:"booking_id,omitempty"`
	WithdrawalID *int64    `json:"withdrawal_id,omitempty"`
	Amount       string    `json:"amount"`
	Type         string    `json:"type"`
	Source       string    `json:"source"`
	CreatedAt    time.Time `json:"created_at"`
}

// Withdrawal is a payout request as shown in the app.
type Withdrawal struct {
	ID           int64      `json:"id"`
	TechnicianID int64      `json:"technician_id"`
	Amount       string     `json:"amount"`
	Status       string     `json:"status"`
	AdminNote    string     `json:"admin_note,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
}

// Service implements wallet operations.
type Service struct {
	ledger      Ledger
	withdrawals WithdrawalStore
	locks       LockFactory
	publisher   events.Publisher
	logger      Logger
	minimum     decimal.Decimal
	now         func() time.Time
}

func NewService(ledger Ledger, withdrawals WithdrawalStore, locks LockFactory, publisher events.Publisher, logger Logger, minimum decimal.Decimal) *Service {
	return &Service{ledger: ledger, withdrawals: withdrawals, locks: locks, publisher: publisher, logger: logger, minimum: minimum, now: time.Now}
}

func technicianOnly(who identity.Identity) error {
	if !who.IsTechnician() {
		return apierror.New(apierror.CodeForbidden, "technician access only", nil)
	}
	return nil
}

func adminOnly(who identity.Identity) error {
	if !who.IsAdmin() {
		return apierror.New(apierror.CodeForbidden, "admin access only", nil)
	}
	return nil
}

func (s *Service) Balance(ctx context.Context, who identity.Identity) (decimal.Decimal, error) {
	if err := technicianOnly(who); err != nil {
		return decimal.Zero, err
	}
	balance, err := s.ledger.Balance(ctx, who.ProfileID)
	if errors.Is(err, repo.ErrNotFound) {
		return decimal.Zero, apierror.New(apierror.CodeNotFound, "technician not found", nil)
	}
	return balance, err
}

func (s *Service) Transactions(ctx context.Context, who identity.Identity, limit, offset int) ([]Transaction, error) {
	if err := technicianOnly(who); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.ledger.List(ctx, who.ProfileID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions of technician %d: %w", who.ProfileID, err)
	}
	out := make([]Transaction, 0, len(rows))
	for _, tx := range rows {
		item := Transaction{ID: tx.ID, Amount: tx.Amount.StringFixed(2), Type: tx.Type, Source: tx.Source, CreatedAt: tx.CreatedAt}
		if tx.BookingID.Valid {
			id := tx.BookingID.Int64
			item.BookingID = &id
		}
		if tx.WithdrawalID.Valid {
			id := tx.WithdrawalID.Int64
			item.WithdrawalID = &id
		}
		out = append(out, item)
	}
	return out, nil
}

func toWithdrawal(w repo.Withdrawal) Withdrawal {
	out := Withdrawal{ID: w.ID, TechnicianID: w.TechnicianID, Amount: w.Amount.StringFixed(2), Status: w.Status,
		AdminNote: w.AdminNote.String, CreatedAt: w.CreatedAt}
	if w.ApprovedAt.Valid {
		t := w.ApprovedAt.Time
		out.ApprovedAt = &t
	}
	if w.PaidAt.Valid {
		t := w.PaidAt.Time
		out.PaidAt = &t
	}
	return out
}

func (s *Service) Withdrawals(ctx context.Context, who identity.Identity) ([]Withdrawal, error) {
	if err := technicianOnly(who); err != nil {
		return nil, err
	}
	rows, err := s.withdrawals.ListByTechnician(ctx, who.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("list withdrawals of technician %d: %w", who.ProfileID, err)
	}
	out := make([]Withdrawal, 0, len(rows))
	for _, w := range rows {
		out = append(out, toWithdrawal(w))
	}
	return out, nil
}

// RequestWithdrawal opens a payout request. Funds stay in the wallet until
// an admin approves it.
func (s *Service) RequestWithdrawal(ctx context.Context, who identity.Identity, amount decimal.Decimal) (Withdrawal, error) {
	if err := technicianOnly(who); err != nil {
		return Withdrawal{}, err
	}
	if err := (validation.Errors{"amount": s.checkAmount(amount)}).Filter(); err != nil {
		return Withdrawal{}, apierror.Validation(err)
	}

	id, err := s.withdrawals.Create(ctx, who.ProfileID, amount)
	switch {
	case errors.Is(err, repo.ErrActiveWithdrawal):
		return Withdrawal{}, apierror.New(apierror.CodeActiveWithdrawal, "a withdrawal is already in progress", nil)
	case errors.Is(err, repo.ErrInsufficientBalance):
		return Withdrawal{}, apierror.New(apierror.CodeInsufficientBalance, "amount exceeds wallet balance", nil)
	case errors.Is(err, repo.ErrNotFound):
		return Withdrawal{}, apierror.New(apierror.CodeNotFound, "technician not found", nil)
	case err != nil:
		return Withdrawal{}, fmt.Errorf("create withdrawal for technician %d: %w", who.ProfileID, err)
	}
	metrics.WithdrawalsTotal.WithLabelValues(repo.WithdrawalRequested).Inc()
	s.logger.Infof("technician %d requested withdrawal %d of %s", who.ProfileID, id, amount.StringFixed(2))
	return s.get(ctx, id)
}

func (s *Service) checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.New("must be positive")
	}
	if amount.LessThan(s.minimum) {
		return fmt.Errorf("must be at least %s", s.minimum.StringFixed(2))
	}
	if amount.Exponent() < -2 {
		return errors.New("must have at most two decimal places")
	}
	return nil
}

func (s *Service) get(ctx context.Context, id int64) (Withdrawal, error) {
	w, err := s.withdrawals.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Withdrawal{}, apierror.New(apierror.CodeNotFound, "withdrawal not found", nil)
		}
		return Withdrawal{}, fmt.Errorf("load withdrawal %d: %w", id, err)
	}
	return toWithdrawal(w), nil
}

// CancelWithdrawal withdraws the technician's own pending request.
func (s *Service) CancelWithdrawal(ctx context.Context, who identity.Identity, id int64) (Withdrawal, error) {
	if err := technicianOnly(who); err != nil {
		return Withdrawal{}, err
	}
	if err := s.withdrawals.Transition(ctx, id, who.ProfileID, repo.WithdrawalRequested, repo.WithdrawalCancelled, "", s.now()); err != nil {
		return Withdrawal{}, s.transitionError(ctx, id, who.ProfileID, err)
	}
	metrics.WithdrawalsTotal.WithLabelValues(repo.WithdrawalCancelled).Inc()
	return s.get(ctx, id)
}

// transitionError maps a lost CAS to NOT_FOUND for foreign or missing
// requests and to INVALID_TRANSITION otherwise.
func (s *Service) transitionError(ctx context.Context, id, technicianID int64, err error) error {
	if !errors.Is(err, repo.ErrConflict) {
		return fmt.Errorf("update withdrawal %d: %w", id, err)
	}
	w, gerr := s.withdrawals.Get(ctx, id)
	if errors.Is(gerr, repo.ErrNotFound) || (gerr == nil && technicianID != 0 && w.TechnicianID != technicianID) {
		return apierror.New(apierror.CodeNotFound, "withdrawal not found", nil)
	}
	if gerr != nil {
		return fmt.Errorf("load withdrawal %d: %w", id, gerr)
	}
	return apierror.New(apierror.CodeInvalidTransition, "withdrawal is "+w.Status, map[string]string{"status": w.Status})
}

// Approve debits the wallet for a requested withdrawal. Approvals of one
// technician are serialized by a Redis lock on top of the row lock.
func (s *Service) Approve(ctx context.Context, who identity.Identity, id int64) (Withdrawal, error) {
	if err := adminOnly(who); err != nil {
		return Withdrawal{}, err
	}
	pending, err := s.withdrawals.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Withdrawal{}, apierror.New(apierror.CodeNotFound, "withdrawal not found", nil)
		}
		return Withdrawal{}, fmt.Errorf("load withdrawal %d: %w", id, err)
	}

	mu := s.locks(pending.TechnicianID)
	if err := mu.Lock(ctx, approveLockTTL); err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return Withdrawal{}, apierror.New(apierror.CodeAlreadyProcessed, "another approval is in progress", nil)
		}
		return Withdrawal{}, fmt.Errorf("lock technician %d: %w", pending.TechnicianID, err)
	}
	defer func() {
		if err := mu.Unlock(ctx); err != nil {
			s.logger.Errorf("withdrawal %d: unlock: %v", id, err)
		}
	}()

	now := s.now()
	approved, err := s.withdrawals.Approve(ctx, id, now)
	switch {
	case errors.Is(err, repo.ErrInsufficientBalance):
		return Withdrawal{}, apierror.New(apierror.CodeInsufficientBalance, "wallet balance is below the requested amount", nil)
	case errors.Is(err, repo.ErrConflict):
		return Withdrawal{}, s.transitionError(ctx, id, 0, err)
	case errors.Is(err, repo.ErrNotFound):
		return Withdrawal{}, apierror.New(apierror.CodeNotFound, "withdrawal not found", nil)
	case err != nil:
		return Withdrawal{}, fmt.Errorf("approve withdrawal %d: %w", id, err)
	}

	metrics.WithdrawalsTotal.WithLabelValues(repo.WithdrawalApproved).Inc()
	s.logger.Infof("withdrawal %d approved: technician %d debited %s", id, approved.TechnicianID, approved.Amount.StringFixed(2))
	if err := s.publisher.Publish(ctx, events.Event{
		Type:         events.TypeWithdrawalApproved,
		TechnicianID: approved.TechnicianID,
		Amount:       approved.Amount.StringFixed(2),
		Status:       approved.Status,
		OccurredAt:   now,
	}); err != nil {
		s.logger.Errorf("withdrawal %d: publish approval: %v", id, err)
	}
	return toWithdrawal(approved), nil
}

// Reject closes a requested withdrawal without touching the wallet.
func (s *Service) Reject(ctx context.Context, who identity.Identity, id int64, note string) (Withdrawal, error) {
	return s.adminTransition(ctx, who, id, repo.WithdrawalRequested, repo.WithdrawalRejected, note)
}

// MarkPaid records the bank transfer of an approved withdrawal.
func (s *Service) MarkPaid(ctx context.Context, who identity.Identity, id int64) (Withdrawal, error) {
	return s.adminTransition(ctx, who, id, repo.WithdrawalApproved, repo.WithdrawalPaid, "")
}

func (s *Service) adminTransition(ctx context.Context, who identity.Identity, id int64, from, to, note string) (Withdrawal, error) {
	if err := adminOnly(who); err != nil {
		return Withdrawal{}, err
	}
	if err := s.withdrawals.Transition(ctx, id, 0, from, to, note, s.now()); err != nil {
		return Withdrawal{}, s.transitionError(ctx, id, 0, err)
	}
	metrics.WithdrawalsTotal.WithLabelValues(to).Inc()
	s.logger.Infof("withdrawal %d: %s -> %s", id, from, to)
	return s.get(ctx, id)
}
