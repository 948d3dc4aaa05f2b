// Package metrics exposes sync activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"synccal/internal/model"
)

// Collector holds the sync engine's metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	registry *prometheus.Registry

	historyEntries     *prometheus.CounterVec
	conflictsDetected  *prometheus.CounterVec
	conflictsResolved  *prometheus.CounterVec
	persistFailures    prometheus.Counter
	recurrenceInstance prometheus.Counter
	pendingConflicts   prometheus.Gauge
	passDuration       prometheus.Histogram
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		historyEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "synccal_history_entries_total",
			Help: "Sync history entries recorded, by action and outcome",
		}, []string{"action", "success"}),
		conflictsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "synccal_conflicts_detected_total",
			Help: "Conflicts merged into the session, by type",
		}, []string{"type"}),
		conflictsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "synccal_conflicts_resolved_total",
			Help: "Conflicts resolved, by strategy",
		}, []string{"strategy"}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "synccal_persist_failures_total",
			Help: "Failed writes of session state to the durable store",
		}),
		recurrenceInstance: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "synccal_recurrence_instances_total",
			Help: "Event instances generated from recurrence patterns",
		}),
		pendingConflicts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "synccal_pending_conflicts",
			Help: "Conflicts currently awaiting resolution",
		}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "synccal_sync_pass_duration_seconds",
			Help:    "Duration of sync passes in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}

	c.registry.MustRegister(
		c.historyEntries,
		c.conflictsDetected,
		c.conflictsResolved,
		c.persistFailures,
		c.recurrenceInstance,
		c.pendingConflicts,
		c.passDuration,
	)
	return c
}

func (c *Collector) RecordHistory(e model.SyncHistoryEntry) {
	if c == nil {
		return
	}
	c.historyEntries.WithLabelValues(string(e.Action), strconv.FormatBool(e.Success)).Inc()
}

func (c *Collector) RecordDetected(conflicts []model.EventConflict) {
	if c == nil {
		return
	}
	for _, cf := range conflicts {
		c.conflictsDetected.WithLabelValues(string(cf.ConflictType)).Inc()
	}
}

func (c *Collector) RecordResolved(s model.Strategy) {
	if c == nil {
		return
	}
	c.conflictsResolved.WithLabelValues(string(s)).Inc()
}

func (c *Collector) RecordPersistFailure() {
	if c == nil {
		return
	}
	c.persistFailures.Inc()
}

func (c *Collector) RecordInstances(n int) {
	if c == nil {
		return
	}
	c.recurrenceInstance.Add(float64(n))
}

func (c *Collector) SetPendingConflicts(n int) {
	if c == nil {
		return
	}
	c.pendingConflicts.Set(float64(n))
}

func (c *Collector) ObservePass(seconds float64) {
	if c == nil {
		return
	}
	c.passDuration.Observe(seconds)
}

// Registry exposes the underlying registry for tests and custom handlers.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
