package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seatres_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "seatres_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	HoldsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seatres_holds_created_total",
			Help: "Total holds created",
		},
	)

	HoldsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seatres_holds_expired_total",
			Help: "Total holds purged by the expiry sweep",
		},
	)

	ReservationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seatres_reservations_created_total",
			Help: "Total reservations created",
		},
	)

	SeatConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seatres_seat_conflicts_total",
			Help: "Total seat-state conflicts by operation",
		},
		[]string{"operation"},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "seatres_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seatres_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
