package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cacheRequestsTotal, catalogReloadsTotal) }

var (
	cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Tracks cache hits and misses for various caches.",
		},
		[]string{"cache", "result"}, // e.g., cache="plan_catalog", result="hit"
	)

	catalogReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plan_catalog_reloads_total",
			Help: "Plan catalog reloads by outcome.",
		},
		[]string{"result"}, // 'ok', 'error'
	)
)

func IncCacheRequest(cacheName, result string) {
	cacheRequestsTotal.WithLabelValues(norm(cacheName), norm(result)).Inc()
}

func IncCatalogReload(result string) {
	catalogReloadsTotal.WithLabelValues(norm(result)).Inc()
}
