package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Total number of successful order status transitions",
	}, []string{"from", "to"})

	OrderTransitionsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_rejected_total",
		Help: "Total number of refused order status transitions",
	}, []string{"reason"})

	EscrowLockedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrow_locked_total",
		Help: "Total number of escrow holds placed",
	})

	EscrowLockFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_lock_failed_total",
		Help: "Total number of failed escrow holds",
	}, []string{"reason"})

	PayoutsReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payouts_released_total",
		Help: "Total number of escrow releases to sellers",
	})

	PayoutReleaseLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payout_release_latency_seconds",
		Help:    "Latency of payout release",
		Buckets: prometheus.DefBuckets,
	})

	EscrowRefundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrow_refunds_total",
		Help: "Total number of escrow holds returned to buyers",
	})

	InspectionsSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inspections_submitted_total",
		Help: "Total number of inspections submitted",
	}, []string{"verdict"})

	InspectionsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inspections_rejected_total",
		Help: "Total number of inspection submissions failing validation",
	})

	ListingsModeratedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listings_moderated_total",
		Help: "Total number of moderation decisions",
	}, []string{"decision"})

	ListingsPendingOverdue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "listings_pending_overdue",
		Help: "Pending listings past their approval SLA",
	})

	WithdrawalsRequestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "withdrawals_requested_total",
		Help: "Total number of accepted withdrawal requests",
	})

	WithdrawalsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "withdrawals_failed_total",
		Help: "Total number of refused withdrawal requests",
	}, []string{"reason"})

	NotificationsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_written_total",
		Help: "Total number of notifications written from events",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
