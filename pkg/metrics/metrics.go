package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Letter flow
	LettersSent      *prometheus.CounterVec
	LettersPending   prometheus.Counter
	LettersApproved  prometheus.Counter
	LettersRejected  prometheus.Counter
	LettersForwarded prometheus.Counter
	CCSkipped        prometheus.Counter
	PartialFailures  *prometheus.CounterVec
	PendingStale     prometheus.Gauge

	// Mail delivery
	MailFailures prometheus.Counter
	MailLatency  prometheus.Histogram

	// Notifications
	NotificationsCreated *prometheus.CounterVec
	NotificationsPurged  prometheus.Counter

	// Broker
	BrokerOperations *prometheus.CounterVec
}

// NewMetrics creates the application metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		LettersSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "letters",
			Name:      "sent_total",
			Help:      "Letters delivered by email, by priority",
		}, []string{"priority"}),
		LettersPending: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "letters",
			Name:      "pending_total",
			Help:      "Letters held for admin approval",
		}),
		LettersApproved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "letters",
			Name:      "approved_total",
			Help:      "Pending letters approved and delivered",
		}),
		LettersRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "letters",
			Name:      "rejected_total",
			Help:      "Pending letters rejected by an admin",
		}),
		LettersForwarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "letters",
			Name:      "forwarded_total",
			Help:      "Letters created by forwarding",
		}),
		CCSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "letters",
			Name:      "cc_skipped_total",
			Help:      "CC addresses with no matching user",
		}),
		PartialFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "letters",
			Name:      "partial_failures_total",
			Help:      "Secondary records that failed after the primary letter was stored",
		}, []string{"stage"}),
		PendingStale: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "letters",
			Name:      "pending_stale",
			Help:      "Pending letters older than the reminder threshold",
		}),
		MailFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mail",
			Name:      "failures_total",
			Help:      "Failed email deliveries",
		}),
		MailLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mail",
			Name:      "send_duration_seconds",
			Help:      "Time spent handing a message to the mail relay",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		NotificationsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "created_total",
			Help:      "Notifications created, by type",
		}, []string{"type"}),
		NotificationsPurged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "purged_total",
			Help:      "Read notifications removed by the retention worker",
		}),
		BrokerOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "operations_total",
			Help:      "Total number of broker operations",
		}, []string{"operation", "status"}),
	}
}

// NewNop returns metrics bound to a throwaway registry.
func NewNop() *Metrics {
	return NewMetrics(prometheus.NewRegistry(), "letter")
}
