// Package metrics provides Prometheus metrics for the churnsight pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the pipeline.
type Manager struct {
	namespace string
	registry  *prometheus.Registry

	// Ingest metrics - raw battle log scan
	battlesScanned  prometheus.Counter
	battlesSampled  prometheus.Counter
	malformedRows   prometheus.Counter
	timelineEntries prometheus.Counter

	// Stage metrics
	stageDuration *prometheus.HistogramVec

	// Player population metrics
	playersTracked   prometheus.Gauge
	playersFiltered  prometheus.Counter
	playersQualified prometheus.Gauge
	playersChurned   prometheus.Gauge

	// Fold pool metrics
	foldWorkers     prometheus.Gauge
	foldsCompleted  prometheus.Counter
	duplicateStamps prometheus.Counter
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the metric namespace.
func WithNamespace(ns string) Option {
	return func(m *Manager) {
		if ns != "" {
			m.namespace = ns
		}
	}
}

// WithRegistry sets a custom Prometheus registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

// NewManager creates a metrics manager and registers all collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "churnsight",
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}

	factory := promauto.With(m.registry)

	m.battlesScanned = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "battles_scanned_total",
		Help:      "Raw battle rows read from the event source.",
	})
	m.battlesSampled = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "battles_sampled_total",
		Help:      "Battle rows kept after sampling.",
	})
	m.malformedRows = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "malformed_rows_total",
		Help:      "Battle rows dropped for missing tags or unparseable timestamps.",
	})
	m.timelineEntries = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "timeline_entries_total",
		Help:      "Perspective entries emitted by the timeline builder.",
	})
	m.stageDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "stage_duration_seconds",
		Help:      "Wall-clock duration of each pipeline stage.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"stage"})
	m.playersTracked = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "players_tracked",
		Help:      "Distinct players seen in the timeline.",
	})
	m.playersFiltered = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "players_filtered_total",
		Help:      "Players excluded for insufficient history.",
	})
	m.playersQualified = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "players_qualified",
		Help:      "Players that met the minimum battle count.",
	})
	m.playersChurned = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "players_churned",
		Help:      "Qualified players labeled churned in the current run.",
	})
	m.foldWorkers = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "fold_workers",
		Help:      "Workers in the per-player fold pool.",
	})
	m.foldsCompleted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "folds_completed_total",
		Help:      "Per-player temporal folds completed.",
	})
	m.duplicateStamps = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "duplicate_timestamps_total",
		Help:      "Entries sharing a timestamp with their predecessor, ordered by input sequence.",
	})

	return m
}

// Registry returns the underlying registry for exposition.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// Global metrics manager instance.
var globalManager = NewManager() //nolint:gochecknoglobals // singleton metrics manager

// Default returns the global metrics manager.
func Default() *Manager { return globalManager }

// Package-level recording helpers, mirroring the manager fields.

func RecordBattlesScanned(n int)  { globalManager.battlesScanned.Add(float64(n)) }
func RecordBattlesSampled(n int)  { globalManager.battlesSampled.Add(float64(n)) }
func RecordMalformedRow()         { globalManager.malformedRows.Inc() }
func RecordTimelineEntries(n int) { globalManager.timelineEntries.Add(float64(n)) }

func RecordStageDuration(stage string, seconds float64) {
	globalManager.stageDuration.WithLabelValues(stage).Observe(seconds)
}

func UpdatePlayersTracked(n int)   { globalManager.playersTracked.Set(float64(n)) }
func RecordPlayersFiltered(n int)  { globalManager.playersFiltered.Add(float64(n)) }
func UpdatePlayersQualified(n int) { globalManager.playersQualified.Set(float64(n)) }
func UpdatePlayersChurned(n int)   { globalManager.playersChurned.Set(float64(n)) }
func UpdateFoldWorkers(n int)      { globalManager.foldWorkers.Set(float64(n)) }
func RecordFoldCompleted()         { globalManager.foldsCompleted.Inc() }
func RecordDuplicateTimestamp()    { globalManager.duplicateStamps.Inc() }
