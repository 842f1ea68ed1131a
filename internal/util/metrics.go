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

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of rejected or failed order creations",
	}, []string{"reason"})

	OrderStatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Total number of order status transitions",
	}, []string{"status"})

	StockReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_reserve_latency_seconds",
		Help:    "Latency of stock reservation for an order",
		Buckets: prometheus.DefBuckets,
	})

	LoyaltyPointsAwardedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loyalty_points_awarded_total",
		Help: "Total loyalty points awarded on orders",
	})

	LoyaltyPointsDeductedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loyalty_points_deducted_total",
		Help: "Total loyalty points deducted on cancellations",
	})

	RatingRecomputeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rating_recompute_latency_seconds",
		Help:    "Latency of rating aggregate recomputation",
		Buckets: prometheus.DefBuckets,
	}, []string{"target"})

	RatingRecomputeFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rating_recompute_failed_total",
		Help: "Total number of failed rating recomputations",
	}, []string{"target", "reason"})

	CommissionsCalculatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commissions_calculated_total",
		Help: "Total number of commissions calculated",
	})

	OnboardingTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "onboarding_transitions_total",
		Help: "Total number of onboarding wizard transitions",
	}, []string{"action"})

	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Total number of notification emails attempted",
	}, []string{"kind", "result"})

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
