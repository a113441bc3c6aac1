// Package pgmetrics exposes a Prometheus Collector for a pglue.Pool —
// connection counts, query latency, reconnects, and notifications
// (SPEC_FULL.md's [DOMAIN STACK] metrics wiring).
package pgmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the Prometheus metrics for one pglue.Pool.
type Collector struct {
	Registry *prometheus.Registry

	connectionsActive  prometheus.Gauge
	connectionsIdle    prometheus.Gauge
	connectionsTotal   prometheus.Gauge
	connectionsWaiting prometheus.Gauge
	poolExhausted      prometheus.Counter

	queryDuration   *prometheus.HistogramVec
	acquireDuration prometheus.Histogram

	reconnectsTotal     prometheus.Counter
	notificationsTotal  *prometheus.CounterVec
}

// New creates and registers a Collector on a fresh registry. Safe to
// call more than once (e.g. one Collector per Pool under test) since
// each call owns an independent registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pglue_connections_active",
			Help: "Number of wires currently borrowed from the pool",
		}),
		connectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pglue_connections_idle",
			Help: "Number of wires currently idle in the pool",
		}),
		connectionsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pglue_connections_total",
			Help: "Total number of wires tracked by the pool",
		}),
		connectionsWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pglue_connections_waiting",
			Help: "Number of goroutines blocked in Pool.Acquire",
		}),
		poolExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pglue_pool_exhausted_total",
			Help: "Times Acquire blocked because the pool was at MaxConnections",
		}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pglue_query_duration_seconds",
			Help:    "Duration of a Query terminal method call",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		}, []string{"outcome"}),
		acquireDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pglue_acquire_duration_seconds",
			Help:    "Time spent waiting in Pool.Acquire",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		reconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pglue_reconnects_total",
			Help: "Successful reconnects performed by the Supervisor",
		}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pglue_notifications_total",
			Help: "NOTIFY messages delivered, by channel",
		}, []string{"channel"}),
	}

	reg.MustRegister(
		c.connectionsActive,
		c.connectionsIdle,
		c.connectionsTotal,
		c.connectionsWaiting,
		c.poolExhausted,
		c.queryDuration,
		c.acquireDuration,
		c.reconnectsTotal,
		c.notificationsTotal,
	)
	return c
}

// UpdatePoolStats sets the connection gauges from a point-in-time snapshot.
func (c *Collector) UpdatePoolStats(active, idle, total, waiting int) {
	c.connectionsActive.Set(float64(active))
	c.connectionsIdle.Set(float64(idle))
	c.connectionsTotal.Set(float64(total))
	c.connectionsWaiting.Set(float64(waiting))
}

// PoolExhausted increments the exhaustion counter.
func (c *Collector) PoolExhausted() { c.poolExhausted.Inc() }

// QueryCompleted records a Query terminal method's duration and outcome
// ("ok" or "error").
func (c *Collector) QueryCompleted(d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.queryDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// AcquireCompleted observes the time spent waiting in Pool.Acquire.
func (c *Collector) AcquireCompleted(d time.Duration) {
	c.acquireDuration.Observe(d.Seconds())
}

// Reconnected increments the reconnect counter.
func (c *Collector) Reconnected() { c.reconnectsTotal.Inc() }

// Notified increments the per-channel notification counter.
func (c *Collector) Notified(channel string) {
	c.notificationsTotal.WithLabelValues(channel).Inc()
}
