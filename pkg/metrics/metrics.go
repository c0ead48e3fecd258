package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all delivery-engine metrics. Every state transition in the
// pipeline is observable here; backpressure (queue depth, limiter waits) is
// surfaced as gauges rather than dropped work.
type Metrics struct {
	// Creation
	NotificationsCreated *prometheus.CounterVec
	CreationFailures     *prometheus.CounterVec

	// Delivery outcomes
	DeliverySuccess   *prometheus.CounterVec
	DeliveryFailure   *prometheus.CounterVec
	DeliveryLatency   *prometheus.HistogramVec
	DeliveryRetries   *prometheus.CounterVec
	ChannelSuppressed *prometheus.CounterVec

	// Queue / limiter backpressure
	QueueDepth      *prometheus.GaugeVec
	RateLimiterWait *prometheus.HistogramVec

	// Spend
	SMSSpendCents prometheus.Counter

	// Database
	DatabaseOperations *prometheus.CounterVec
}

// NewMetrics creates and registers all delivery-engine metrics.
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		NotificationsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notifications_created_total",
			Help:      "Total number of notifications created",
		}, []string{"priority", "category"}),
		CreationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notification_creation_failures_total",
			Help:      "Total number of rejected CreateNotification calls",
		}, []string{"reason"}),
		DeliverySuccess: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "delivery_success_total",
			Help:      "Total number of successful delivery attempts",
		}, []string{"channel"}),
		DeliveryFailure: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "delivery_failure_total",
			Help:      "Total number of failed delivery attempts",
		}, []string{"channel", "error_code"}),
		DeliveryLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "delivery_latency_ms",
			Help:      "Time from task enqueue to delivery outcome, in milliseconds",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"channel"}),
		DeliveryRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "delivery_retries_total",
			Help:      "Total number of delivery tasks re-enqueued for retry",
		}, []string{"channel"}),
		ChannelSuppressed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "channel_suppressed_total",
			Help:      "Policy-selected channels removed by recipient preferences or quiet hours",
		}, []string{"channel", "reason"}),
		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "delivery_queue_depth",
			Help:      "Current number of tasks waiting per channel, scheduled plus ready",
		}, []string{"channel"}),
		RateLimiterWait: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rate_limiter_wait_seconds",
			Help:      "Time workers spend blocked on channel token buckets",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		}, []string{"channel"}),
		SMSSpendCents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sms_spend_cents_total",
			Help:      "Cumulative SMS provider cost in cents",
		}),
		DatabaseOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}
}

// New creates an unregistered metrics set for tests, so parallel test
// packages don't collide on the default registry.
func New(namespace string) *Metrics {
	return &Metrics{
		NotificationsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_created_total",
			Help:      "Total number of notifications created",
		}, []string{"priority", "category"}),
		CreationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_creation_failures_total",
			Help:      "Total number of rejected CreateNotification calls",
		}, []string{"reason"}),
		DeliverySuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_success_total",
			Help:      "Total number of successful delivery attempts",
		}, []string{"channel"}),
		DeliveryFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failure_total",
			Help:      "Total number of failed delivery attempts",
		}, []string{"channel", "error_code"}),
		DeliveryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_latency_ms",
			Help:      "Time from task enqueue to delivery outcome, in milliseconds",
		}, []string{"channel"}),
		DeliveryRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_retries_total",
			Help:      "Total number of delivery tasks re-enqueued for retry",
		}, []string{"channel"}),
		ChannelSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_suppressed_total",
			Help:      "Policy-selected channels removed by recipient preferences or quiet hours",
		}, []string{"channel", "reason"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "delivery_queue_depth",
			Help:      "Current number of tasks waiting per channel",
		}, []string{"channel"}),
		RateLimiterWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limiter_wait_seconds",
			Help:      "Time workers spend blocked on channel token buckets",
		}, []string{"channel"}),
		SMSSpendCents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sms_spend_cents_total",
			Help:      "Cumulative SMS provider cost in cents",
		}),
		DatabaseOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}
}
