// Package memstore is an in-memory stand-in for the MySQL repositories with
// the same conditional-update semantics. Service tests use it to exercise
// races without a database.
package memstore

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fixitBack/internal/homeservice/fsm"
	"fixitBack/internal/homeservice/repo"
)

// Store holds every table behind one mutex.
type Store struct {
	mu sync.Mutex

	bookings    map[int64]*repo.Booking
	broadcasts  map[int64]*repo.Broadcast
	technicians map[int64]*repo.Technician
	services    map[int64]repo.Service
	addresses   map[int64]repo.Address
	payments    map[int64]*repo.Payment
	webhooks    []repo.WebhookEvent
	ledger      []repo.WalletTransaction
	withdrawals map[int64]*repo.Withdrawal

	seq int64
}

func New() *Store {
	return &Store{
		bookings:    map[int64]*repo.Booking{},
		broadcasts:  map[int64]*repo.Broadcast{},
		technicians: map[int64]*repo.Technician{},
		services:    map[int64]repo.Service{},
		addresses:   map[int64]repo.Address{},
		payments:    map[int64]*repo.Payment{},
		withdrawals: map[int64]*repo.Withdrawal{},
	}
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

// PutTechnician seeds a technician.
func (s *Store) PutTechnician(t repo.Technician) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.technicians[t.ID] = &t
}

// PutService seeds a catalog entry.
func (s *Store) PutService(svc repo.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
}

// PutAddress seeds a customer address.
func (s *Store) PutAddress(a repo.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addresses[a.ID] = a
}

// PutBooking seeds a booking and returns its id.
func (s *Store) PutBooking(b repo.Booking) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == 0 {
		b.ID = s.nextID()
	}
	if b.Status == "" {
		b.Status = fsm.StatusRequested
	}
	if b.PaymentStatus == "" {
		b.PaymentStatus = repo.PaymentPending
	}
	s.bookings[b.ID] = &b
	return b.ID
}

// BroadcastsOf returns every offer of a booking ordered by id.
func (s *Store) BroadcastsOf(bookingID int64) []repo.Broadcast {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repo.Broadcast
	for _, b := range s.broadcasts {
		if b.BookingID == bookingID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Ledger returns a copy of the wallet ledger.
func (s *Store) Ledger() []repo.WalletTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]repo.WalletTransaction(nil), s.ledger...)
}

// Webhooks returns stored webhook audit rows.
func (s *Store) Webhooks() []repo.WebhookEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]repo.WebhookEvent(nil), s.webhooks...)
}

// Bookings is the BookingsRepo view.
func (s *Store) Bookings() *Bookings { return &Bookings{s} }

// Broadcasts is the BroadcastsRepo view.
func (s *Store) Broadcasts() *Broadcasts { return &Broadcasts{s} }

// Assignment is the AssignmentRepo view.
func (s *Store) Assignment() *Assignment { return &Assignment{s} }

// Technicians is the TechniciansRepo view.
func (s *Store) Technicians() *Technicians { return &Technicians{s} }

// Catalog is the CatalogRepo view.
func (s *Store) Catalog() *Catalog { return &Catalog{s} }

// Payments is the PaymentsRepo view.
func (s *Store) Payments() *Payments { return &Payments{s} }

// Wallet is the WalletRepo view.
func (s *Store) Wallet() *Wallet { return &Wallet{s} }

// Withdrawals is the WithdrawalsRepo view.
func (s *Store) Withdrawals() *Withdrawals { return &Withdrawals{s} }

type Bookings struct{ s *Store }

func (v *Bookings) Create(_ context.Context, b repo.Booking) (int64, error) {
	b.ID = 0
	now := time.Now()
	b.CreatedAt, b.UpdatedAt = now, now
	return v.s.PutBooking(b), nil
}

func (v *Bookings) Get(_ context.Context, id int64) (repo.Booking, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	b, ok := v.s.bookings[id]
	if !ok {
		return repo.Booking{}, repo.ErrNotFound
	}
	return *b, nil
}

func (v *Bookings) MarkBroadcasted(_ context.Context, id int64) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	b, ok := v.s.bookings[id]
	if !ok || !fsm.Open(b.Status) || b.TechnicianID.Valid {
		return false, nil
	}
	b.Status = fsm.StatusBroadcasted
	return true, nil
}

func (v *Bookings) UpdateStatus(_ context.Context, id, technicianID int64, from, to string) error {
	if !fsm.CanTransition(from, to) {
		return fsm.ErrInvalidTransition
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	b, ok := v.s.bookings[id]
	if !ok || b.Status != from || !b.AssignedTo(technicianID) {
		return repo.ErrConflict
	}
	b.Status = to
	return nil
}

func (v *Bookings) Cancel(_ context.Context, id int64, from, reason string, now time.Time) ([]int64, error) {
	if !fsm.Cancellable(from) {
		return nil, fsm.ErrInvalidTransition
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	b, ok := v.s.bookings[id]
	if !ok || b.Status != from {
		return nil, repo.ErrConflict
	}
	b.Status = fsm.StatusCancelled
	b.TechnicianID = sql.NullInt64{}
	b.CancelReason = sql.NullString{String: reason, Valid: reason != ""}
	var holders []int64
	for _, bc := range v.s.sortedBroadcasts() {
		if bc.BookingID == id && bc.Status == repo.BroadcastSent {
			bc.Status = repo.BroadcastExpired
			bc.RespondedAt = sql.NullTime{Time: now, Valid: true}
			holders = append(holders, bc.TechnicianID)
		}
	}
	return holders, nil
}

func (v *Bookings) ListForRedispatch(_ context.Context, since, now time.Time, limit int) ([]int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	live := map[int64]bool{}
	for _, bc := range v.s.broadcasts {
		if bc.Live(now) {
			live[bc.BookingID] = true
		}
	}
	var ids []int64
	for id, b := range v.s.bookings {
		if fsm.Open(b.Status) && !b.TechnicianID.Valid && !b.CreatedAt.Before(since) && !live[id] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *Store) sortedBroadcasts() []*repo.Broadcast {
	out := make([]*repo.Broadcast, 0, len(s.broadcasts))
	for _, b := range s.broadcasts {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type Broadcasts struct{ s *Store }

func (v *Broadcasts) InsertBatch(_ context.Context, bookingID int64, ids []int64, sentAt, expiresAt time.Time) ([]int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	existing := map[int64]bool{}
	for _, b := range v.s.broadcasts {
		if b.BookingID == bookingID {
			existing[b.TechnicianID] = true
		}
	}
	var fresh []int64
	for _, id := range ids {
		if existing[id] {
			continue
		}
		existing[id] = true
		bc := &repo.Broadcast{ID: v.s.nextID(), BookingID: bookingID, TechnicianID: id, SentAt: sentAt, ExpiresAt: expiresAt, Status: repo.BroadcastSent}
		v.s.broadcasts[bc.ID] = bc
		fresh = append(fresh, id)
	}
	return fresh, nil
}

func (v *Broadcasts) Get(_ context.Context, id int64) (repo.Broadcast, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	b, ok := v.s.broadcasts[id]
	if !ok {
		return repo.Broadcast{}, repo.ErrNotFound
	}
	return *b, nil
}

func (v *Broadcasts) Reject(_ context.Context, id, technicianID int64, now time.Time) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	b, ok := v.s.broadcasts[id]
	if !ok || b.TechnicianID != technicianID || b.Status != repo.BroadcastSent {
		return repo.ErrConflict
	}
	b.Status = repo.BroadcastRejected
	b.RespondedAt = sql.NullTime{Time: now, Valid: true}
	return nil
}

func (v *Broadcasts) ListLive(_ context.Context, technicianID int64, now time.Time) ([]repo.Broadcast, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []repo.Broadcast
	for _, b := range v.s.sortedBroadcasts() {
		if b.TechnicianID == technicianID && b.Live(now) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (v *Broadcasts) ExpireStale(_ context.Context, now time.Time) (int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var n int64
	for _, b := range v.s.broadcasts {
		if b.Status == repo.BroadcastSent && !now.Before(b.ExpiresAt) {
			b.Status = repo.BroadcastExpired
			n++
		}
	}
	return n, nil
}

type Assignment struct{ s *Store }

// Accept mirrors the MySQL transaction: every check happens under one lock
// and nothing changes unless both conditional updates succeed.
func (v *Assignment) Accept(_ context.Context, p repo.AcceptParams) (repo.AcceptOutcome, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	b, ok := v.s.bookings[p.BookingID]
	if !ok || !fsm.Open(b.Status) || b.TechnicianID.Valid {
		return repo.AcceptOutcome{}, repo.ErrBookingTaken
	}
	own, ok := v.s.broadcasts[p.BroadcastID]
	if !ok || own.BookingID != p.BookingID || own.TechnicianID != p.TechnicianID || !own.Live(p.Now) {
		return repo.AcceptOutcome{}, repo.ErrBroadcastClosed
	}
	b.TechnicianID = sql.NullInt64{Int64: p.TechnicianID, Valid: true}
	b.Status = fsm.StatusAccepted
	b.AssignedAt = sql.NullTime{Time: p.Now, Valid: true}
	own.Status = repo.BroadcastAccepted
	own.RespondedAt = sql.NullTime{Time: p.Now, Valid: true}

	out := repo.AcceptOutcome{CustomerID: b.CustomerID}
	for _, other := range v.s.sortedBroadcasts() {
		if other.BookingID == p.BookingID && other.ID != p.BroadcastID && other.Status == repo.BroadcastSent {
			other.Status = repo.BroadcastExpired
			other.RespondedAt = sql.NullTime{Time: p.Now, Valid: true}
			out.Losers = append(out.Losers, other.TechnicianID)
		}
	}
	return out, nil
}

type Technicians struct{ s *Store }

func (v *Technicians) Get(_ context.Context, id int64) (repo.Technician, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	t, ok := v.s.technicians[id]
	if !ok {
		return repo.Technician{}, repo.ErrNotFound
	}
	return *t, nil
}

func (v *Technicians) ListApprovedOnline(_ context.Context) ([]repo.Technician, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []repo.Technician
	for _, t := range v.s.technicians {
		if t.KYCStatus == "approved" && t.ProfileComplete && t.TrainingCompleted && t.WorkStatus == "approved" && t.IsOnline {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *Technicians) FilterByArea(_ context.Context, ids []int64, field repo.AreaField, value string) ([]int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	value = strings.TrimSpace(value)
	var out []int64
	for _, id := range ids {
		t, ok := v.s.technicians[id]
		if !ok {
			continue
		}
		var match bool
		switch field {
		case repo.AreaPincode:
			match = t.Pincode == value
		case repo.AreaCity:
			match = strings.EqualFold(t.City, value)
		case repo.AreaState:
			match = strings.EqualFold(t.State, value)
		}
		if match {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (v *Technicians) SetOnline(_ context.Context, id int64, online bool) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if t, ok := v.s.technicians[id]; ok {
		t.IsOnline = online
	}
	return nil
}

type Catalog struct{ s *Store }

func (v *Catalog) GetService(_ context.Context, id int64) (repo.Service, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	svc, ok := v.s.services[id]
	if !ok {
		return repo.Service{}, repo.ErrNotFound
	}
	return svc, nil
}

func (v *Catalog) GetAddress(_ context.Context, userID, addressID int64) (repo.Address, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	a, ok := v.s.addresses[addressID]
	if !ok || a.UserID != userID {
		return repo.Address{}, repo.ErrNotFound
	}
	return a, nil
}

type Payments struct{ s *Store }

func (v *Payments) CreatePending(_ context.Context, p repo.Payment) (repo.Payment, bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if existing, ok := v.s.payments[p.BookingID]; ok {
		return *existing, false, nil
	}
	p.ID = v.s.nextID()
	p.Status = repo.PaymentPending
	p.ProviderOrderID = sql.NullString{}
	v.s.payments[p.BookingID] = &p
	return p, true, nil
}

func (v *Payments) GetByBooking(_ context.Context, bookingID int64) (repo.Payment, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	p, ok := v.s.payments[bookingID]
	if !ok {
		return repo.Payment{}, repo.ErrNotFound
	}
	return *p, nil
}

func (v *Payments) SetProviderOrder(_ context.Context, paymentID int64, orderID string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, p := range v.s.payments {
		if p.ID == paymentID && p.Status == repo.PaymentPending && !p.ProviderOrderID.Valid {
			p.ProviderOrderID = sql.NullString{String: orderID, Valid: true}
			return nil
		}
	}
	return repo.ErrConflict
}

func (v *Payments) MarkSuccess(ctx context.Context, bookingID int64, orderID, paymentID string, now time.Time) error {
	return v.finish(bookingID, orderID, paymentID, repo.PaymentSuccess, now)
}

func (v *Payments) MarkFailed(ctx context.Context, bookingID int64, orderID, paymentID string, now time.Time) error {
	return v.finish(bookingID, orderID, paymentID, repo.PaymentFailed, now)
}

func (v *Payments) finish(bookingID int64, orderID, paymentID, status string, now time.Time) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	p, ok := v.s.payments[bookingID]
	if !ok || p.Status != repo.PaymentPending || p.ProviderOrderID.String != orderID {
		return repo.ErrConflict
	}
	p.Status = status
	p.ProviderPaymentID = sql.NullString{String: paymentID, Valid: paymentID != ""}
	p.VerifiedAt = sql.NullTime{Time: now, Valid: true}
	if b, ok := v.s.bookings[bookingID]; ok {
		b.PaymentStatus = status
	}
	return nil
}

func (v *Payments) SaveWebhook(_ context.Context, ev repo.WebhookEvent) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.webhooks = append(v.s.webhooks, ev)
	return nil
}

type Wallet struct{ s *Store }

func (v *Wallet) HasJobCredit(_ context.Context, bookingID int64) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.hasJobCredit(bookingID), nil
}

func (s *Store) hasJobCredit(bookingID int64) bool {
	for _, tx := range s.ledger {
		if tx.BookingID.Valid && tx.BookingID.Int64 == bookingID && tx.Type == repo.TxCredit && tx.Source == repo.SourceJob {
			return true
		}
	}
	return false
}

func (v *Wallet) CreditJob(_ context.Context, technicianID, bookingID int64, amount decimal.Decimal) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.hasJobCredit(bookingID) {
		return repo.ErrAlreadySettled
	}
	t, ok := v.s.technicians[technicianID]
	if !ok {
		return repo.ErrNotFound
	}
	v.s.ledger = append(v.s.ledger, repo.WalletTransaction{
		ID: v.s.nextID(), TechnicianID: technicianID, BookingID: sql.NullInt64{Int64: bookingID, Valid: true},
		Amount: amount, Type: repo.TxCredit, Source: repo.SourceJob, CreatedAt: time.Now(),
	})
	t.WalletBalance = t.WalletBalance.Add(amount)
	return nil
}

func (v *Wallet) Balance(_ context.Context, technicianID int64) (decimal.Decimal, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	t, ok := v.s.technicians[technicianID]
	if !ok {
		return decimal.Zero, repo.ErrNotFound
	}
	return t.WalletBalance, nil
}

func (v *Wallet) List(_ context.Context, technicianID int64, limit, offset int) ([]repo.WalletTransaction, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []repo.WalletTransaction
	for i := len(v.s.ledger) - 1; i >= 0; i-- {
		if v.s.ledger[i].TechnicianID == technicianID {
			out = append(out, v.s.ledger[i])
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type Withdrawals struct{ s *Store }

func (v *Withdrawals) Create(_ context.Context, technicianID int64, amount decimal.Decimal) (int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	t, ok := v.s.technicians[technicianID]
	if !ok {
		return 0, repo.ErrNotFound
	}
	for _, w := range v.s.withdrawals {
		if w.TechnicianID == technicianID && (w.Status == repo.WithdrawalRequested || w.Status == repo.WithdrawalApproved) {
			return 0, repo.ErrActiveWithdrawal
		}
	}
	if t.WalletBalance.LessThan(amount) {
		return 0, repo.ErrInsufficientBalance
	}
	now := time.Now()
	w := &repo.Withdrawal{ID: v.s.nextID(), TechnicianID: technicianID, Amount: amount, Status: repo.WithdrawalRequested, CreatedAt: now, UpdatedAt: now}
	v.s.withdrawals[w.ID] = w
	return w.ID, nil
}

func (v *Withdrawals) Get(_ context.Context, id int64) (repo.Withdrawal, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	w, ok := v.s.withdrawals[id]
	if !ok {
		return repo.Withdrawal{}, repo.ErrNotFound
	}
	return *w, nil
}

func (v *Withdrawals) ListByTechnician(_ context.Context, technicianID int64) ([]repo.Withdrawal, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []repo.Withdrawal
	for _, w := range v.s.withdrawals {
		if w.TechnicianID == technicianID {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (v *Withdrawals) Approve(_ context.Context, id int64, now time.Time) (repo.Withdrawal, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	w, ok := v.s.withdrawals[id]
	if !ok {
		return repo.Withdrawal{}, repo.ErrNotFound
	}
	if w.Status != repo.WithdrawalRequested {
		return repo.Withdrawal{}, repo.ErrConflict
	}
	t, ok := v.s.technicians[w.TechnicianID]
	if !ok {
		return repo.Withdrawal{}, repo.ErrNotFound
	}
	if t.WalletBalance.LessThan(w.Amount) {
		return repo.Withdrawal{}, repo.ErrInsufficientBalance
	}
	w.Status = repo.WithdrawalApproved
	w.ApprovedAt = sql.NullTime{Time: now, Valid: true}
	t.WalletBalance = t.WalletBalance.Sub(w.Amount)
	v.s.ledger = append(v.s.ledger, repo.WalletTransaction{
		ID: v.s.nextID(), TechnicianID: w.TechnicianID, WithdrawalID: sql.NullInt64{Int64: w.ID, Valid: true},
		Amount: w.Amount, Type: repo.TxDebit, Source: repo.SourceWithdrawal, CreatedAt: now,
	})
	return *w, nil
}

func (v *Withdrawals) Transition(_ context.Context, id, technicianID int64, from, to, note string, now time.Time) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	w, ok := v.s.withdrawals[id]
	if !ok || w.Status != from || (technicianID != 0 && w.TechnicianID != technicianID) {
		return repo.ErrConflict
	}
	w.Status = to
	if note != "" {
		w.AdminNote = sql.NullString{String: note, Valid: true}
	}
	if to == repo.WithdrawalPaid {
		w.PaidAt = sql.NullTime{Time: now, Valid: true}
	}
	return nil
}
