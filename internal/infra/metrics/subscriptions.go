package metrics

import (
	"time"

	"subscription-ledger/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		subscriptionsExpiredTotal,
		subscriptionsWarnedTotal,
		subscriptionsTotal,
		subscriptionsActive,
		sweepDuration,
		sweepItemFailuresTotal,
		transactionsPrunedTotal,
	)
}

var (
	subscriptionsExpiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriptions_expired_total",
			Help: "Subscriptions moved to expired, by sweep trigger.",
		},
		[]string{"trigger"}, // 'periodic', 'recovery'
	)

	subscriptionsWarnedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriptions_warned_total",
			Help: "Expiry warnings queued, by sweep trigger.",
		},
		[]string{"trigger"},
	)

	subscriptionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions_total",
			Help: "Current number of subscriptions by status.",
		},
		[]string{"status"}, // 'active', 'expired'
	)

	subscriptionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "subscriptions_active",
			Help: "Entitlements active and unexpired at the last presence refresh.",
		},
	)

	sweepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sweep_duration_seconds",
			Help:    "Duration of expiry sweeps.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"trigger"},
	)

	sweepItemFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_item_failures_total",
			Help: "Per-entitlement failures isolated during sweeps.",
		},
		[]string{"pass"}, // 'warning', 'expiry'
	)

	transactionsPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transactions_pruned_total",
			Help: "Transaction records deleted by the retention prune.",
		},
	)
)

// ObserveSweep records one sweep run.
func ObserveSweep(trigger string, warned, expired, warnFailures, expiryFailures int, pruned int64, took time.Duration) {
	t := norm(trigger)
	subscriptionsWarnedTotal.WithLabelValues(t).Add(float64(warned))
	subscriptionsExpiredTotal.WithLabelValues(t).Add(float64(expired))
	sweepItemFailuresTotal.WithLabelValues("warning").Add(float64(warnFailures))
	sweepItemFailuresTotal.WithLabelValues("expiry").Add(float64(expiryFailures))
	transactionsPrunedTotal.Add(float64(pruned))
	sweepDuration.WithLabelValues(t).Observe(took.Seconds())
}

func SetSubscriptionsTotal(counts map[model.SubscriptionStatus]int) {
	for _, status := range []model.SubscriptionStatus{model.SubscriptionStatusActive, model.SubscriptionStatusExpired} {
		subscriptionsTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

func SetActiveSubscriptions(n int) {
	subscriptionsActive.Set(float64(n))
}
