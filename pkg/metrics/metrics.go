// Package metrics collects Prometheus instrumentation for the
// coordination core.
//
// A nil *Collector is a usable no-op, so instrumented code paths never
// check whether metrics are enabled. Registration goes through an injected
// Registerer instead of the package-global default, which keeps tests
// hermetic and lets the watcher own its registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/daviddao/worklog/pkg/model"
)

// Collector holds every metric the core records.
type Collector struct {
	events  *prometheus.CounterVec
	commits prometheus.Counter
	aborts  prometheus.Counter

	lockAcquired  prometheus.Counter
	lockContended prometheus.Counter
	lockReclaimed prometheus.Counter
	lockWait      prometheus.Histogram

	rebuilds     prometheus.Counter
	driftEntries prometheus.Gauge
}

// NewCollector creates the metric set and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worklog_events_total",
			Help: "Events appended to the log, by event type",
		}, []string{"type"}),
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worklog_commits_total",
			Help: "Transactions committed",
		}),
		aborts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worklog_commit_aborts_total",
			Help: "Transactions that failed or were abandoned before commit",
		}),
		lockAcquired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worklog_lock_acquisitions_total",
			Help: "Successful lock acquisitions",
		}),
		lockContended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worklog_lock_contention_total",
			Help: "Acquisition attempts that found the lock held",
		}),
		lockReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worklog_lock_stale_reclaims_total",
			Help: "Stale locks reclaimed from dead or hung holders",
		}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "worklog_lock_wait_seconds",
			Help:    "Time spent waiting for the log lock",
			Buckets: prometheus.DefBuckets,
		}),
		rebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worklog_index_rebuilds_total",
			Help: "Index rebuilds from log replay",
		}),
		driftEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "worklog_drift_entries",
			Help: "Disagreements found by the last sync validation",
		}),
	}

	reg.MustRegister(
		c.events, c.commits, c.aborts,
		c.lockAcquired, c.lockContended, c.lockReclaimed, c.lockWait,
		c.rebuilds, c.driftEntries,
	)
	return c
}

// RecordEvent counts one appended event by type.
func (c *Collector) RecordEvent(typ model.EventType) {
	if c == nil {
		return
	}
	c.events.WithLabelValues(string(typ)).Inc()
}

// RecordCommit counts one committed transaction.
func (c *Collector) RecordCommit() {
	if c == nil {
		return
	}
	c.commits.Inc()
}

// RecordAbort counts one transaction that did not commit.
func (c *Collector) RecordAbort() {
	if c == nil {
		return
	}
	c.aborts.Inc()
}

// RecordLockAcquired counts a successful acquisition and observes how
// long the caller waited for it.
func (c *Collector) RecordLockAcquired(waitSeconds float64) {
	if c == nil {
		return
	}
	c.lockAcquired.Inc()
	c.lockWait.Observe(waitSeconds)
}

// RecordLockContention counts an attempt that found the lock held.
func (c *Collector) RecordLockContention() {
	if c == nil {
		return
	}
	c.lockContended.Inc()
}

// RecordStaleReclaim counts a stale lock reclaimed.
func (c *Collector) RecordStaleReclaim() {
	if c == nil {
		return
	}
	c.lockReclaimed.Inc()
}

// RecordRebuild counts one index rebuild.
func (c *Collector) RecordRebuild() {
	if c == nil {
		return
	}
	c.rebuilds.Inc()
}

// SetDriftEntries records the finding count of the latest sync validation.
func (c *Collector) SetDriftEntries(n int) {
	if c == nil {
		return
	}
	c.driftEntries.Set(float64(n))
}

// Handler serves the registry in Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
