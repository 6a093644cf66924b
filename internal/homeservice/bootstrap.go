package homeservice

import (
	"context"

	"github.com/bmizerany/pat"
	"github.com/hibiken/asynq"
	"github.com/justinas/alice"

	"fixitBack/internal/homeservice/acceptance"
	"fixitBack/internal/homeservice/availability"
	"fixitBack/internal/homeservice/booking"
	"fixitBack/internal/homeservice/broadcast"
	"fixitBack/internal/homeservice/dispatch"
	"fixitBack/internal/homeservice/eligibility"
	"fixitBack/internal/homeservice/geo"
	servicehttp "fixitBack/internal/homeservice/http"
	"fixitBack/internal/homeservice/locator"
	"fixitBack/internal/homeservice/matching"
	"fixitBack/internal/homeservice/notify"
	"fixitBack/internal/homeservice/pay"
	"fixitBack/internal/homeservice/repo"
	"fixitBack/internal/homeservice/settlement"
	"fixitBack/internal/homeservice/wallet"
	"fixitBack/internal/lock"
)

type moduleState struct {
	technicianHub *notify.TechnicianHub
	customerHub   *notify.CustomerHub
	delivery      notify.Notifier
	redispatcher  *dispatch.Redispatcher
	sweeper       *dispatch.Sweeper
	server        *servicehttp.Server
}

func ensureModule(deps *Deps) (*moduleState, error) {
	if err := deps.Validate(); err != nil {
		return nil, err
	}
	if deps.module != nil {
		return deps.module, nil
	}
	cfg := deps.Config

	bookingsRepo := repo.NewBookingsRepo(deps.DB)
	broadcastsRepo := repo.NewBroadcastsRepo(deps.DB)
	assignmentRepo := repo.NewAssignmentRepo(deps.DB)
	techniciansRepo := repo.NewTechniciansRepo(deps.DB)
	catalogRepo := repo.NewCatalogRepo(deps.DB)
	paymentsRepo := repo.NewPaymentsRepo(deps.DB)
	walletRepo := repo.NewWalletRepo(deps.DB)
	withdrawalsRepo := repo.NewWithdrawalsRepo(deps.DB)
	devicesRepo := repo.NewDevicesRepo(deps.DB)

	index := geo.NewTechnicianIndex(deps.RDB, deps.Logger)
	availabilitySvc := availability.NewService(index, techniciansRepo, deps.Logger)

	technicianHub := notify.NewTechnicianHub(deps.Logger, nil)
	technicianHub.SetLocationSink(availabilitySvc)
	customerHub := notify.NewCustomerHub(deps.Logger)
	var push notify.Notifier = notify.Nop{}
	if deps.Messaging != nil {
		push = notify.NewPush(deps.Messaging, devicesRepo, deps.Logger)
	}
	notifier, delivery := notifiers(notify.Sockets{Technicians: technicianHub, Customers: customerHub}, push, deps.Queue)

	matcher := matching.New(bookingsRepo, eligibility.NewFilter(techniciansRepo), locator.New(index, techniciansRepo), deps.Logger, matching.Config{
		RadiusMeters: float64(cfg.MatchRadiusMeters),
		Limit:        cfg.MatchLimit,
	})
	fanout := broadcast.New(broadcastsRepo, bookingsRepo, catalogRepo, notifier, deps.Publisher, deps.Logger, cfg.BroadcastTTL)
	pipeline := dispatch.NewPipeline(matcher, fanout)
	resolver := acceptance.New(techniciansRepo, broadcastsRepo, bookingsRepo, assignmentRepo, notifier, deps.Publisher, deps.Logger)

	engine := settlement.NewEngine(bookingsRepo, paymentsRepo, walletRepo, deps.Publisher, deps.Logger)
	provider := pay.NewClient(deps.HTTPClient, pay.Config{
		Name:          cfg.PaymentProvider,
		BaseURL:       cfg.PaymentBaseURL,
		KeyID:         cfg.PaymentKeyID,
		KeySecret:     cfg.PaymentKeySecret,
		WebhookSecret: cfg.PaymentWebhookSecret,
	})
	payments := settlement.NewPayments(bookingsRepo, catalogRepo, paymentsRepo, provider, engine, notifier, deps.Publisher, deps.Logger, cfg.Currency)

	locks := func(technicianID int64) wallet.Mutex { return lock.ForWithdrawals(deps.RDB, technicianID) }
	walletSvc := wallet.NewService(walletRepo, withdrawalsRepo, locks, deps.Publisher, deps.Logger, cfg.MinWithdrawal)

	bookingSvc := booking.NewService(bookingsRepo, catalogRepo, broadcastsRepo, pipeline, engine, notifier, deps.Publisher, deps.Logger)

	server := servicehttp.NewServer(servicehttp.Services{
		Bookings:     bookingSvc,
		Responder:    resolver,
		Payments:     payments,
		Settler:      engine,
		Wallet:       walletSvc,
		Availability: availabilitySvc,
		Technicians:  technicianHub,
		Customers:    customerHub,
	}, deps.Logger)

	deps.module = &moduleState{
		technicianHub: technicianHub,
		customerHub:   customerHub,
		delivery:      delivery,
		redispatcher:  dispatch.NewRedispatcher(bookingsRepo, pipeline, deps.Logger, cfg.DispatchTick, cfg.RedispatchWindow),
		sweeper:       dispatch.NewSweeper(broadcastsRepo, deps.Logger, cfg.SweepInterval),
		server:        server,
	}
	return deps.module, nil
}

// notifiers returns the notifier handed to services and the target of queued
// tasks. Sockets live on whichever instance holds the connection, so they are
// always written inline by the process that made the change; only push goes
// through the queue when one is configured.
func notifiers(sockets, push notify.Notifier, queue *asynq.Client) (notify.Notifier, notify.Notifier) {
	if queue == nil {
		return notify.Multi{sockets, push}, push
	}
	return notify.Multi{sockets, notify.NewQueue(queue)}, push
}

// RegisterRoutes wires HTTP and WebSocket routes into the provided mux.
func RegisterRoutes(mux *pat.PatternServeMux, public, authed alice.Chain, deps *Deps) error {
	module, err := ensureModule(deps)
	if err != nil {
		return err
	}
	module.server.RegisterRoutes(mux, public, authed)
	return nil
}

// StartWorkers launches the re-dispatch loop and the offer expiry sweep.
func StartWorkers(ctx context.Context, deps *Deps) error {
	module, err := ensureModule(deps)
	if err != nil {
		return err
	}
	go module.redispatcher.Run(ctx)
	go module.sweeper.Run(ctx)
	return nil
}

// RegisterTaskHandlers routes queued notification tasks to FCM push.
func RegisterTaskHandlers(mux *asynq.ServeMux, deps *Deps) error {
	module, err := ensureModule(deps)
	if err != nil {
		return err
	}
	notify.RegisterHandlers(mux, module.delivery, deps.Logger)
	return nil
}
