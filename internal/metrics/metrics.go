package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subtitles",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "subtitles",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subtitles",
		Name:      "provider_requests_total",
		Help:      "Total requests to subtitle providers by provider name and result status.",
	}, []string{"provider", "status"})

	ProviderRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "subtitles",
		Name:      "provider_request_duration_seconds",
		Help:      "Subtitle provider request duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"provider"})

	ProviderAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "subtitles",
		Name:      "provider_available",
		Help:      "Whether a provider is available (1) or blocked by circuit breaker (0).",
	}, []string{"provider"})

	ContentCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "subtitles",
		Name:      "content_cache_hits_total",
		Help:      "Total number of subtitle content blob store hits.",
	})

	ContentCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "subtitles",
		Name:      "content_cache_misses_total",
		Help:      "Total number of subtitle content blob store misses.",
	})

	ContentDownloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subtitles",
		Name:      "content_downloads_total",
		Help:      "Total subtitle content downloads fetched from providers by provider name.",
	}, []string{"provider"})

	CacheWriteFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "subtitles",
		Name:      "cache_write_failures_total",
		Help:      "Total background blob store writes that failed after retries.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ProviderRequestsTotal,
		ProviderRequestDuration,
		ProviderAvailable,
		ContentCacheHitsTotal,
		ContentCacheMissesTotal,
		ContentDownloadsTotal,
		CacheWriteFailuresTotal,
	)
}
