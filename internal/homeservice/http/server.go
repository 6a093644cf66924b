package http

import (
	"context"
	"net/http"

	"github.com/bmizerany/pat"
	"github.com/justinas/alice"
	"github.com/shopspring/decimal"

	"fixitBack/internal/homeservice/acceptance"
	"fixitBack/internal/homeservice/booking"
	"fixitBack/internal/homeservice/settlement"
	"fixitBack/internal/homeservice/wallet"
	"fixitBack/internal/identity"
)

// Logger captures the logging contract required by the server.
type Logger interface {
	Infof(string, ...interface{})
	Errorf(string, ...interface{})
}

type Bookings interface {
	Create(ctx context.Context, who identity.Identity, req booking.CreateRequest) (booking.View, error)
	Get(ctx context.Context, who identity.Identity, id int64) (booking.View, error)
	UpdateStatus(ctx context.Context, who identity.Identity, id int64, to string) (booking.View, error)
	Cancel(ctx context.Context, who identity.Identity, id int64, reason string) (booking.View, error)
	ListBroadcasts(ctx context.Context, who identity.Identity) ([]booking.Offer, error)
}

type Responder interface {
	Respond(ctx context.Context, who identity.Identity, broadcastID int64, action string) (acceptance.Result, error)
}

type Payments interface {
	CreateOrder(ctx context.Context, who identity.Identity, bookingID int64) (settlement.Order, error)
	Verify(ctx context.Context, who identity.Identity, req settlement.VerifyRequest) (settlement.VerifyResult, error)
	RecordWebhook(ctx context.Context, signature string, body []byte) (bool, error)
}

type Settler interface {
	SettleIfEligible(ctx context.Context, bookingID int64) (settlement.Outcome, error)
}

type Wallet interface {
	Balance(ctx context.Context, who identity.Identity) (decimal.Decimal, error)
	Transactions(ctx context.Context, who identity.Identity, limit, offset int) ([]wallet.Transaction, error)
	Withdrawals(ctx context.Context, who identity.Identity) ([]wallet.Withdrawal, error)
	RequestWithdrawal(ctx context.Context, who identity.Identity, amount decimal.Decimal) (wallet.Withdrawal, error)
	CancelWithdrawal(ctx context.Context, who identity.Identity, id int64) (wallet.Withdrawal, error)
	Approve(ctx context.Context, who identity.Identity, id int64) (wallet.Withdrawal, error)
	Reject(ctx context.Context, who identity.Identity, id int64, note string) (wallet.Withdrawal, error)
	MarkPaid(ctx context.Context, who identity.Identity, id int64) (wallet.Withdrawal, error)
}

type Availability interface {
	ReportLocation(ctx context.Context, who identity.Identity, lat, lon float64) error
	GoOffline(ctx context.Context, who identity.Identity) error
}

// SocketServer upgrades an authenticated request for the given owner id.
type SocketServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, id int64)
}

// Services groups the domain services behind the handlers.
type Services struct {
	Bookings     Bookings
	Responder    Responder
	Payments     Payments
	Settler      Settler
	Wallet       Wallet
	Availability Availability
	Technicians  SocketServer
	Customers    SocketServer
}

// Server provides HTTP handlers for the home-services domain.
type Server struct {
	svc    Services
	logger Logger
}

// NewServer constructs a Server instance.
func NewServer(svc Services, logger Logger) *Server {
	return &Server{svc: svc, logger: logger}
}

// RegisterRoutes mounts the routes on mux. authed must resolve the caller
// identity into the request context; public is used for provider callbacks.
func (s *Server) RegisterRoutes(mux *pat.PatternServeMux, public, authed alice.Chain) {
	// Customer
	mux.Post("/bookings", authed.ThenFunc(s.createBooking))
	mux.Get("/bookings/:id", authed.ThenFunc(s.getBooking))
	mux.Post("/bookings/:id/cancel", authed.ThenFunc(s.cancelBooking))
	mux.Post("/bookings/:id/payment", authed.ThenFunc(s.createPaymentOrder))
	mux.Post("/payments/verify", authed.ThenFunc(s.verifyPayment))
	mux.Post("/payments/webhook", public.ThenFunc(s.paymentWebhook))

	// Technician
	mux.Put("/bookings/:id/status", authed.ThenFunc(s.updateBookingStatus))
	mux.Get("/technician/broadcasts", authed.ThenFunc(s.listBroadcasts))
	mux.Post("/technician/broadcasts/:id/respond", authed.ThenFunc(s.respondBroadcast))
	mux.Put("/technician/location", authed.ThenFunc(s.updateLocation))
	mux.Post("/technician/offline", authed.ThenFunc(s.goOffline))
	mux.Get("/technician/wallet", authed.ThenFunc(s.walletBalance))
	mux.Get("/technician/wallet/transactions", authed.ThenFunc(s.walletTransactions))
	mux.Get("/technician/withdrawals", authed.ThenFunc(s.listWithdrawals))
	mux.Post("/technician/withdrawals", authed.ThenFunc(s.requestWithdrawal))
	mux.Post("/technician/withdrawals/:id/cancel", authed.ThenFunc(s.cancelWithdrawal))

	// Admin
	mux.Post("/admin/bookings/:id/settle", authed.ThenFunc(s.settleBooking))
	mux.Post("/admin/withdrawals/:id/approve", authed.ThenFunc(s.approveWithdrawal))
	mux.Post("/admin/withdrawals/:id/reject", authed.ThenFunc(s.rejectWithdrawal))
	mux.Post("/admin/withdrawals/:id/paid", authed.ThenFunc(s.markWithdrawalPaid))

	// Sockets
	mux.Get("/ws/technician", authed.ThenFunc(s.technicianWS))
	mux.Get("/ws/customer", authed.ThenFunc(s.customerWS))
}
