package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Access decisions
	AuthorizationDecisions *prometheus.CounterVec
	MembershipCacheLookups *prometheus.CounterVec

	// Invitation lifecycle
	Invitations *prometheus.CounterVec

	// Replication and reconciliation
	ReplicationOperations *prometheus.CounterVec
	ReconcileItems        *prometheus.CounterVec
	ReconcileDuration     prometheus.Histogram

	// Delivery
	Notifications *prometheus.CounterVec

	RateLimitRejections *prometheus.CounterVec

	// Store metrics
	StoreOperations *prometheus.CounterVec
	StoreLatency    *prometheus.HistogramVec
}

// NewMetrics creates all application metrics and registers them with reg.
// A nil reg leaves the collectors unregistered.
func NewMetrics(namespace, subsystem string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		AuthorizationDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "authorization_decisions_total",
			Help:      "Access guard decisions by result and reason",
		}, []string{"result", "reason"}),
		MembershipCacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "membership_cache_lookups_total",
			Help:      "Reverse index cache lookups by result",
		}, []string{"result"}),

		Invitations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "invitations_total",
			Help:      "Invitation transitions by outcome",
		}, []string{"outcome"}),

		ReplicationOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "replication_operations_total",
			Help:      "Membership replication operations by kind and status",
		}, []string{"operation", "status"}),
		ReconcileItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reconcile_items_total",
			Help:      "Patient-level records visited by the reconciler, by result",
		}, []string{"result"}),
		ReconcileDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reconcile_duration_seconds",
			Help:      "Time spent reconciling one family",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),

		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notifications_total",
			Help:      "Notification deliveries by channel and status",
		}, []string{"channel", "status"}),

		RateLimitRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rate_limit_rejections_total",
			Help:      "Requests rejected by the rate limiter",
		}, []string{"backend"}),

		StoreOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "store_operations_total",
			Help:      "Total number of document store operations",
		}, []string{"operation", "status"}),
		StoreLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "store_operation_duration_seconds",
			Help:      "Duration of document store operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
	}
}

// Discard returns unregistered metrics, for tests and tools.
func Discard() *Metrics {
	return NewMetrics("", "", nil)
}

// Status maps an error onto the status label.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
