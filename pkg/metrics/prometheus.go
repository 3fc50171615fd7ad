// Package metrics provides Prometheus metrics for the versus ranking engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns all Prometheus metrics for the engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Matchmaking metrics
	groupsSelected    *prometheus.CounterVec // by strategy
	selectionFailures prometheus.Counter
	bootstrapActive   prometheus.Gauge

	// Outcome metrics
	outcomesProcessed prometheus.Counter
	pairwiseUpdates   prometheus.Counter
	degenerateUpdates prometheus.Counter
	invalidOutcomes   prometheus.Counter
	undoOperations    prometheus.Counter

	// Population state
	ratedEntities      prometheus.Gauge
	frozenEntities     prometheus.Gauge
	refinementDepth    prometheus.Gauge
	refinementEnqueued prometheus.Counter
	refinementDropped  prometheus.Counter
	milestonesReached  prometheus.Counter

	// Snapshot metrics
	snapshotDuration prometheus.Histogram
	snapshotCount    prometheus.Counter

	// Persistence metrics
	flushCount    prometheus.Counter
	flushErrors   prometheus.Counter
	flushDuration prometheus.Histogram

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "versus",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.groupsSelected = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "groups_selected_total",
			Help:      "Total comparison groups issued, labeled by selection strategy",
		},
		[]string{"strategy"},
	)

	m.selectionFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "selection_failures_total",
		Help:      "Total selection attempts that failed for insufficient population",
	})

	m.bootstrapActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "bootstrap_active",
		Help:      "1 while selection is restricted to the bootstrap subset",
	})

	m.outcomesProcessed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "outcomes_processed_total",
		Help:      "Total comparison outcomes processed",
	})

	m.pairwiseUpdates = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pairwise_updates_total",
		Help:      "Total pairwise rating updates applied",
	})

	m.degenerateUpdates = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "degenerate_updates_total",
		Help:      "Total pairwise updates skipped for non-finite results",
	})

	m.invalidOutcomes = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "invalid_outcomes_total",
		Help:      "Total outcome submissions rejected as malformed",
	})

	m.undoOperations = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "undo_operations_total",
		Help:      "Total undo operations applied to the history log",
	})

	m.ratedEntities = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rated_entities",
		Help:      "Number of entities with at least one comparison",
	})

	m.frozenEntities = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "frozen_entities",
		Help:      "Number of (entity, tier) freeze flags currently set",
	})

	m.refinementDepth = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "refinement_queue_depth",
		Help:      "Current number of pending refinement tasks",
	})

	m.refinementEnqueued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "refinement_enqueued_total",
		Help:      "Total refinement tasks accepted into the queue",
	})

	m.refinementDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "refinement_dropped_total",
		Help:      "Total refinement tasks dropped for unresolvable ids",
	})

	m.milestonesReached = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "milestones_reached_total",
		Help:      "Total comparison-count milestones crossed",
	})

	m.snapshotDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "snapshot_rebuild_milliseconds",
		Help:      "Histogram of ranking snapshot rebuild duration in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.snapshotCount = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "snapshots_total",
		Help:      "Total ranking snapshots generated",
	})

	m.flushCount = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "persistence_flush_total",
		Help:      "Total background persistence flushes completed",
	})

	m.flushErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "persistence_flush_errors_total",
		Help:      "Total background persistence flushes that failed",
	})

	m.flushDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "persistence_flush_milliseconds",
		Help:      "Histogram of persistence flush duration in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by endpoint, method and status code",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)
}

// RecordGroupSelected increments the group counter for a strategy.
func RecordGroupSelected(strategy string) {
	globalManager.groupsSelected.WithLabelValues(strategy).Inc()
}

// RecordSelectionFailure increments the failed-selection counter.
func RecordSelectionFailure() {
	globalManager.selectionFailures.Inc()
}

// UpdateBootstrapActive reflects whether the bootstrap subset is in effect.
func UpdateBootstrapActive(active bool) {
	if active {
		globalManager.bootstrapActive.Set(1)
	} else {
		globalManager.bootstrapActive.Set(0)
	}
}

// RecordOutcomeProcessed increments the processed outcomes counter.
func RecordOutcomeProcessed() {
	globalManager.outcomesProcessed.Inc()
}

// RecordPairwiseUpdate increments the pairwise updates counter.
func RecordPairwiseUpdate() {
	globalManager.pairwiseUpdates.Inc()
}

// RecordDegenerateUpdate increments the skipped-update counter.
func RecordDegenerateUpdate() {
	globalManager.degenerateUpdates.Inc()
}

// RecordInvalidOutcome increments the rejected-outcome counter.
func RecordInvalidOutcome() {
	globalManager.invalidOutcomes.Inc()
}

// RecordUndo increments the undo counter.
func RecordUndo() {
	globalManager.undoOperations.Inc()
}

// UpdateRatedEntities sets the rated entity gauge.
func UpdateRatedEntities(count int) {
	globalManager.ratedEntities.Set(float64(count))
}

// UpdateFrozenEntities sets the frozen flag gauge.
func UpdateFrozenEntities(count int) {
	globalManager.frozenEntities.Set(float64(count))
}

// UpdateRefinementDepth sets the refinement queue depth gauge.
func UpdateRefinementDepth(depth int) {
	globalManager.refinementDepth.Set(float64(depth))
}

// RecordRefinementEnqueued increments the accepted-task counter.
func RecordRefinementEnqueued() {
	globalManager.refinementEnqueued.Inc()
}

// RecordRefinementDropped increments the dropped-task counter.
func RecordRefinementDropped() {
	globalManager.refinementDropped.Inc()
}

// RecordMilestone increments the milestone counter.
func RecordMilestone() {
	globalManager.milestonesReached.Inc()
}

// RecordSnapshotDuration records a snapshot rebuild duration in milliseconds.
func RecordSnapshotDuration(ms float64) {
	globalManager.snapshotDuration.Observe(ms)
	globalManager.snapshotCount.Inc()
}

// RecordFlush records a completed persistence flush.
func RecordFlush(ms float64) {
	globalManager.flushCount.Inc()
	globalManager.flushDuration.Observe(ms)
}

// RecordFlushError increments the flush error counter.
func RecordFlushError() {
	globalManager.flushErrors.Inc()
}

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records an HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms)
}

// GetRegistry returns the custom registry for the /metrics handler.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
