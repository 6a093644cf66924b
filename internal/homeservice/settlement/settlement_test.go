package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fixitBack/internal/apierror"
	"fixitBack/internal/events"
	"fixitBack/internal/homeservice/fsm"
	"fixitBack/internal/homeservice/memstore"
	"fixitBack/internal/homeservice/notify"
	"fixitBack/internal/homeservice/pay"
	"fixitBack/internal/homeservice/repo"
	"fixitBack/internal/identity"
)

type fakeProvider struct {
	mu       sync.Mutex
	orders   int
	fail     error
	validSig string
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) CreateOrder(_ context.Context, req pay.OrderRequest) (pay.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return pay.Order{}, p.fail
	}
	p.orders++
	return pay.Order{ID: "order_1", Amount: 50000, Currency: req.Currency, Receipt: req.Receipt, Status: "created"}, nil
}

func (p *fakeProvider) VerifyPayment(_, _, signature string) bool { return signature == p.validSig }

func (p *fakeProvider) VerifyWebhook(_ []byte, signature string) bool { return signature == p.validSig }

type publishSpy struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *publishSpy) Publish(_ context.Context, ev events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *publishSpy) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

type customerSpy struct {
	notify.Nop
	mu  sync.Mutex
	got []notify.Event
}

func (s *customerSpy) NotifyCustomer(_ context.Context, _ int64, ev notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, ev)
	return nil
}

var customer = identity.Identity{UserID: 100, Role: identity.RoleCustomer}

type fixture struct {
	store     *memstore.Store
	bookingID int64
	provider  *fakeProvider
	spy       *publishSpy
	notes     *customerSpy
	engine    *Engine
	payments  *Payments
}

func newFixture(t *testing.T, status string) *fixture {
	t.Helper()
	st := memstore.New()
	st.PutTechnician(repo.Technician{ID: 7, UserID: 1007})
	st.PutService(repo.Service{ID: 3, Name: "AC repair", CommissionPct: decimal.NewFromInt(20), IsActive: true})
	b := repo.Booking{CustomerID: 100, ServiceID: 3, BaseAmount: decimal.NewFromInt(500), Status: status}
	if fsm.Assigned(status) {
		b.TechnicianID.Int64, b.TechnicianID.Valid = 7, true
	}
	bookingID := st.PutBooking(b)

	provider := &fakeProvider{validSig: "good"}
	spy := &publishSpy{}
	notes := &customerSpy{}
	log := zap.NewNop().Sugar()
	engine := NewEngine(st.Bookings(), st.Payments(), st.Wallet(), spy, log)
	payments := NewPayments(st.Bookings(), st.Catalog(), st.Payments(), provider, engine, notes, spy, log, "INR")
	payments.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return &fixture{store: st, bookingID: bookingID, provider: provider, spy: spy, notes: notes, engine: engine, payments: payments}
}

func (f *fixture) verify(t *testing.T, signature string) (VerifyResult, error) {
	t.Helper()
	return f.payments.Verify(context.Background(), customer, VerifyRequest{
		BookingID: f.bookingID, ProviderOrderID: "order_1", ProviderPaymentID: "pay_1", Signature: signature,
	})
}

func TestCreateOrderSplitsAndIsIdempotent(t *testing.T) {
	f := newFixture(t, fsm.StatusAccepted)
	ctx := context.Background()

	order, err := f.payments.CreateOrder(ctx, customer, f.bookingID)
	require.NoError(t, err)
	assert.Equal(t, "order_1", order.ProviderOrderID)
	assert.Equal(t, "500.00", order.Amount)
	assert.Equal(t, int64(50000), order.AmountMinor)
	assert.Equal(t, "100.00", order.CommissionAmount)
	assert.Equal(t, "400.00", order.TechnicianAmount)
	assert.Equal(t, repo.PaymentPending, order.Status)
	assert.NotEmpty(t, order.Receipt)

	again, err := f.payments.CreateOrder(ctx, customer, f.bookingID)
	require.NoError(t, err)
	assert.Equal(t, order, again)
	assert.Equal(t, 1, f.provider.orders)
}

func TestCreateOrderGuards(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, fsm.StatusAccepted)
	_, err := f.payments.CreateOrder(ctx, identity.Identity{UserID: 1007, Role: identity.RoleTechnician, ProfileID: 7}, f.bookingID)
	assert.True(t, apierror.HasCode(err, apierror.CodeForbidden))

	_, err = f.payments.CreateOrder(ctx, identity.Identity{UserID: 555, Role: identity.RoleCustomer}, f.bookingID)
	assert.True(t, apierror.HasCode(err, apierror.CodeNotFound))

	cancelled := newFixture(t, fsm.StatusCancelled)
	_, err = cancelled.payments.CreateOrder(ctx, customer, cancelled.bookingID)
	assert.True(t, apierror.HasCode(err, apierror.CodeInvalidTransition))

	down := newFixture(t, fsm.StatusAccepted)
	down.provider.fail = errors.New("gateway 503")
	_, err = down.payments.CreateOrder(ctx, customer, down.bookingID)
	assert.True(t, apierror.HasCode(err, apierror.CodeProvider))

	// The pending row survives a provider outage and the retry completes it.
	down.provider.fail = nil
	order, err := down.payments.CreateOrder(ctx, customer, down.bookingID)
	require.NoError(t, err)
	assert.Equal(t, "order_1", order.ProviderOrderID)
}

func TestCreateOrderAfterSuccessIsDuplicate(t *testing.T) {
	f := newFixture(t, fsm.StatusAccepted)
	ctx := context.Background()
	_, err := f.payments.CreateOrder(ctx, customer, f.bookingID)
	require.NoError(t, err)
	_, err = f.verify(t, "good")
	require.NoError(t, err)

	_, err = f.payments.CreateOrder(ctx, customer, f.bookingID)
	assert.True(t, apierror.HasCode(err, apierror.CodeDuplicatePayment))
}

func TestVerifyBeforeCompletionDefersSettlement(t *testing.T) {
	f := newFixture(t, fsm.StatusInProgress)
	ctx := context.Background()
	_, err := f.payments.CreateOrder(ctx, customer, f.bookingID)
	require.NoError(t, err)

	res, err := f.verify(t, "good")
	require.NoError(t, err)
	assert.Equal(t, repo.PaymentSuccess, res.PaymentStatus)
	assert.Equal(t, OutcomeNotCompleted, res.Settlement)
	assert.Empty(t, f.store.Ledger())

	b, err := f.store.Bookings().Get(ctx, f.bookingID)
	require.NoError(t, err)
	assert.Equal(t, repo.PaymentSuccess, b.PaymentStatus)
	require.Len(t, f.notes.got, 1)
	assert.Equal(t, notify.EventPaymentVerified, f.notes.got[0].Type)
}

// Completed while the payment was pending, then paid: exactly one credit.
func TestCompletedThenPaidCreditsOnce(t *testing.T) {
	f := newFixture(t, fsm.StatusCompleted)
	ctx := context.Background()
	_, err := f.payments.CreateOrder(ctx, customer, f.bookingID)
	require.NoError(t, err)

	outcome, err := f.engine.SettleIfEligible(ctx, f.bookingID)
	require.NoError(t, err)
	assert.Equal(t, OutcomePaymentNotSuccessful, outcome)

	res, err := f.verify(t, "good")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, res.Settlement)

	res, err = f.verify(t, "good")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadySettled, res.Settlement)

	ledger := f.store.Ledger()
	require.Len(t, ledger, 1)
	assert.Equal(t, int64(7), ledger[0].TechnicianID)
	assert.True(t, ledger[0].Amount.Equal(decimal.NewFromInt(400)))
	balance, err := f.store.Wallet().Balance(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "400", balance.String())
	assert.Equal(t, []string{events.TypePaymentVerified, events.TypeWalletCredited}, f.spy.types())
}

func TestConcurrentSettlementCreditsOnce(t *testing.T) {
	f := newFixture(t, fsm.StatusCompleted)
	ctx := context.Background()
	_, err := f.payments.CreateOrder(ctx, customer, f.bookingID)
	require.NoError(t, err)
	require.NoError(t, f.store.Payments().MarkSuccess(ctx, f.bookingID, "order_1", "pay_1", time.Now()))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[Outcome]int{}
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.engine.SettleIfEligible(ctx, f.bookingID)
			if assert.NoError(t, err) {
				mu.Lock()
				outcomes[out]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, outcomes[OutcomeSettled])
	assert.Equal(t, 9, outcomes[OutcomeAlreadySettled])
	assert.Len(t, f.store.Ledger(), 1)
}

func TestVerifyInvalidSignatureFailsPayment(t *testing.T) {
	f := newFixture(t, fsm.StatusCompleted)
	ctx := context.Background()
	_, err := f.payments.CreateOrder(ctx, customer, f.bookingID)
	require.NoError(t, err)

	_, err = f.verify(t, "forged")
	assert.True(t, apierror.HasCode(err, apierror.CodeValidation))
	p, err := f.store.Payments().GetByBooking(ctx, f.bookingID)
	require.NoError(t, err)
	assert.Equal(t, repo.PaymentFailed, p.Status)
	assert.Empty(t, f.store.Ledger())

	_, err = f.verify(t, "good")
	assert.True(t, apierror.HasCode(err, apierror.CodeAlreadyProcessed))
}

func TestVerifyRejectsBadRequests(t *testing.T) {
	f := newFixture(t, fsm.StatusCompleted)
	ctx := context.Background()

	_, err := f.payments.Verify(ctx, customer, VerifyRequest{BookingID: f.bookingID})
	assert.True(t, apierror.HasCode(err, apierror.CodeValidation))

	_, err = f.verify(t, "good")
	assert.True(t, apierror.HasCode(err, apierror.CodeNotFound))

	_, err = f.payments.CreateOrder(ctx, customer, f.bookingID)
	require.NoError(t, err)
	_, err = f.payments.Verify(ctx, customer, VerifyRequest{BookingID: f.bookingID, ProviderOrderID: "order_other", ProviderPaymentID: "pay_1", Signature: "good"})
	assert.True(t, apierror.HasCode(err, apierror.CodeValidation))
}

func TestSettleOutcomes(t *testing.T) {
	ctx := context.Background()

	open := newFixture(t, fsm.StatusAccepted)
	out, err := open.engine.SettleIfEligible(ctx, open.bookingID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotCompleted, out)

	unpaid := newFixture(t, fsm.StatusCompleted)
	out, err = unpaid.engine.SettleIfEligible(ctx, unpaid.bookingID)
	require.NoError(t, err)
	assert.Equal(t, OutcomePaymentNotSuccessful, out)

	_, err = unpaid.engine.SettleIfEligible(ctx, 9999)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestRecordWebhookIsAuditOnly(t *testing.T) {
	f := newFixture(t, fsm.StatusCompleted)
	ctx := context.Background()
	_, err := f.payments.CreateOrder(ctx, customer, f.bookingID)
	require.NoError(t, err)

	valid, err := f.payments.RecordWebhook(ctx, "good", []byte(`{"event":"payment.captured","payload":{"order_id":"order_1"}}`))
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = f.payments.RecordWebhook(ctx, "forged", []byte(`not json`))
	require.NoError(t, err)
	assert.False(t, valid)

	hooks := f.store.Webhooks()
	require.Len(t, hooks, 2)
	assert.Equal(t, "payment.captured", hooks[0].EventType)
	assert.Equal(t, "order_1", hooks[0].ProviderOrderID)
	assert.True(t, hooks[0].SignatureValid)
	assert.JSONEq(t, `"not json"`, string(hooks[1].Body))

	p, err := f.store.Payments().GetByBooking(ctx, f.bookingID)
	require.NoError(t, err)
	assert.Equal(t, repo.PaymentPending, p.Status)
}
