package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(progressCacheLookups) }

var progressCacheLookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scriptgen_cache_lookups_total",
		Help: "Shared cache lookups by cache and result (hit, miss, error).",
	},
	[]string{"cache", "result"},
)

func IncCacheRequest(cache, result string) {
	progressCacheLookups.WithLabelValues(norm(cache), norm(result)).Inc()
}
