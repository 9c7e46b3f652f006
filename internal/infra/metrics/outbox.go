package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(outboxEventsTotal, outboxPending, notificationFailuresTotal, rateLimitedTotal) }

var (
	outboxEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_events_total",
			Help: "Lifecycle events handled by the outbox, labeled by kind and status.",
		},
		[]string{"kind", "status"}, // status: 'delivered', 'failed', 'dropped'
	)

	outboxPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "outbox_pending",
			Help: "Lifecycle events waiting for a worker.",
		},
	)

	notificationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Failed outbound side effects after retries, by effect.",
		},
		[]string{"effect"}, // 'grant_role', 'revoke_role', 'notify', 'presence', 'prune_record'
	)

	rateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Requests rejected by the rate limiter, by route.",
		},
		[]string{"route"},
	)
)

func IncOutboxEvent(kind, status string) {
	outboxEventsTotal.WithLabelValues(norm(kind), norm(status)).Inc()
}

func SetOutboxPending(n int) {
	outboxPending.Set(float64(n))
}

func IncNotificationFailure(effect string) {
	notificationFailuresTotal.WithLabelValues(norm(effect)).Inc()
}

func IncRateLimited(route string) {
	rateLimitedTotal.WithLabelValues(norm(route)).Inc()
}
