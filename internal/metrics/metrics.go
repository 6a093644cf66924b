package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_created_total",
		Help: "Total number of service bookings created",
	})

	BroadcastsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "job_broadcasts_sent_total",
		Help: "Total number of job offers persisted for technicians",
	})

	MatchEmptyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "match_empty_total",
		Help: "Matches that produced no candidates",
	}, []string{"stage"})

	ResponsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "job_responses_total",
		Help: "Technician responses to job offers by outcome",
	}, []string{"action", "outcome"})

	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlements_total",
		Help: "Settlement attempts by outcome",
	}, []string{"outcome"})

	PaymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_total",
		Help: "Payment state changes",
	}, []string{"status"})

	WithdrawalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "withdrawals_total",
		Help: "Withdrawal request transitions",
	}, []string{"status"})

	NotificationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_failures_total",
		Help: "Notification deliveries that failed",
	}, []string{"channel"})

	SweepExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "job_broadcasts_swept_total",
		Help: "Stale job offers marked expired by the sweeper",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})
)
