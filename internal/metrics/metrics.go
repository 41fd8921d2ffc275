// Package metrics provides Prometheus metrics for docsync
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for docsync
type Metrics struct {
	// Coordinated operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Virtual lock metrics
	LockAcquireTotal  *prometheus.CounterVec
	LockWaitDuration  prometheus.Histogram
	LocksHeld         prometheus.Gauge
	ExpiredLocksTotal prometheus.Counter
	LockSweepsTotal   prometheus.Counter

	// Conflict metrics
	ConflictsDetectedTotal prometheus.Counter
	ConflictsResolvedTotal prometheus.Counter

	// Master index metrics
	IndexLoadDuration prometheus.Histogram
	IndexSaveDuration prometheus.Histogram
	CollectionsTotal  prometheus.Gauge

	// Blob cache metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates metrics registered against the given registerer.
// Tests pass a fresh registry to avoid duplicate-registration panics.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.OperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsync_operations_total",
			Help: "Total number of coordinated collection operations",
		},
		[]string{"operation", "status"},
	)

	m.OperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docsync_operation_duration_seconds",
			Help:    "Duration of coordinated collection operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	m.LockAcquireTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsync_lock_acquire_total",
			Help: "Total number of virtual lock acquisition attempts",
		},
		[]string{"result"},
	)

	m.LockWaitDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docsync_lock_wait_duration_seconds",
			Help:    "Time spent waiting to acquire a virtual lock",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.LocksHeld = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "docsync_locks_held",
			Help: "Number of currently held virtual locks",
		},
	)

	m.ExpiredLocksTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "docsync_expired_locks_total",
			Help: "Total number of expired locks evicted by sweeps",
		},
	)

	m.LockSweepsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "docsync_lock_sweeps_total",
			Help: "Total number of expired-lock sweeps",
		},
	)

	m.ConflictsDetectedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "docsync_conflicts_detected_total",
			Help: "Total number of modification-token conflicts detected",
		},
	)

	m.ConflictsResolvedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "docsync_conflicts_resolved_total",
			Help: "Total number of conflicts resolved by reloading state",
		},
	)

	m.IndexLoadDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docsync_index_load_duration_seconds",
			Help:    "Duration of master index loads",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.IndexSaveDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docsync_index_save_duration_seconds",
			Help:    "Duration of master index saves",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.CollectionsTotal = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "docsync_collections_total",
			Help: "Number of collections registered in the master index",
		},
	)

	m.CacheHitsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "docsync_cache_hits_total",
			Help: "Total number of collection file cache hits",
		},
	)

	m.CacheMissesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "docsync_cache_misses_total",
			Help: "Total number of collection file cache misses",
		},
	)

	return m
}

// RecordOperation records a coordinated operation with its status
func (m *Metrics) RecordOperation(operation string, status string, duration time.Duration) {
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordSweep records an expired-lock sweep
func (m *Metrics) RecordSweep(evicted int) {
	m.LockSweepsTotal.Inc()
	if evicted > 0 {
		m.ExpiredLocksTotal.Add(float64(evicted))
	}
}
