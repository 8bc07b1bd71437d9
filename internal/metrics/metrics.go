// Package metrics provides Prometheus metrics for the sync service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cacheReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncsvc_cache_reads_total",
			Help: "Total reads by serving source",
		},
		[]string{"source"},
	)

	cacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "syncsvc_cache_entries",
			Help: "Number of live cache entries",
		},
	)

	cacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncsvc_cache_evictions_total",
			Help: "Total evicted entries",
		},
		[]string{"reason"},
	)

	drainsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncsvc_drains_total",
			Help: "Total drain runs by result",
		},
		[]string{"result"},
	)

	drainDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "syncsvc_drain_duration_seconds",
			Help:    "Drain run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	conflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "syncsvc_conflicts_total",
			Help: "Total version conflicts surfaced by drains",
		},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "syncsvc_queue_depth",
			Help: "Number of keys awaiting sync",
		},
	)

	validationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncsvc_validation_failures_total",
			Help: "Payloads rejected by validation or corruption checks",
		},
		[]string{"kind"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRead records a served read and where it came from.
func RecordRead(source string) {
	cacheReadsTotal.WithLabelValues(source).Inc()
}

// SetCacheEntries sets the current cache size.
func SetCacheEntries(count int) {
	cacheEntries.Set(float64(count))
}

// RecordEviction records evicted entries by reason ("expired", "pressure").
func RecordEviction(reason string, count int) {
	cacheEvictionsTotal.WithLabelValues(reason).Add(float64(count))
}

// RecordDrain records a drain run outcome.
func RecordDrain(duration time.Duration, failed int) {
	drainDuration.Observe(duration.Seconds())
	result := "clean"
	if failed > 0 {
		result = "partial"
	}
	drainsTotal.WithLabelValues(result).Inc()
}

// RecordConflict counts a surfaced version conflict.
func RecordConflict() {
	conflictsTotal.Inc()
}

// SetQueueDepth sets the number of queued keys.
func SetQueueDepth(depth int) {
	queueDepth.Set(float64(depth))
}

// RecordValidationFailure counts a rejected payload ("schema", "corruption").
func RecordValidationFailure(kind string) {
	validationFailuresTotal.WithLabelValues(kind).Inc()
}
