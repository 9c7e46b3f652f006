package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

func init() {
	register(purchasesTotal, purchaseFailuresTotal, pointsSpentTotal)
}

var (
	purchasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchases_total",
			Help: "Committed purchases by type.",
		},
		[]string{"type"}, // 'purchase', 'renewal'
	)

	purchaseFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchase_failures_total",
			Help: "Rejected or failed purchase attempts by reason.",
		},
		[]string{"reason"}, // 'plan_not_found', 'insufficient_balance', 'duplicate', ...
	)

	pointsSpentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "points_spent_total",
			Help: "Sum of points debited by committed purchases.",
		},
	)
)

func IncPurchase(kind string, amount decimal.Decimal) {
	purchasesTotal.WithLabelValues(norm(kind)).Inc()
	f, _ := amount.Float64()
	pointsSpentTotal.Add(f)
}

func IncPurchaseFailure(reason string) {
	purchaseFailuresTotal.WithLabelValues(norm(reason)).Inc()
}
