// Package prom implements indexq.MetricsCollector with Prometheus metrics.
package prom

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports staging queue metrics to a Prometheus registry.
//
// All metrics carry the "indexq" namespace and a "shard" label.
type Collector struct {
	enqueues     *prometheus.CounterVec
	enqueueBytes *prometheus.CounterVec
	dequeues     *prometheus.CounterVec
	dequeueTime  *prometheus.HistogramVec
	sessions     *prometheus.CounterVec
	delivered    *prometheus.CounterVec
	compactions  *prometheus.CounterVec
	errors       *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics. If reg is nil,
// prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		enqueues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "indexq",
			Name:      "enqueued_operations_total",
			Help:      "Operations appended to a shard's primary queue.",
		}, []string{"shard"}),
		enqueueBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "indexq",
			Name:      "enqueued_bytes_total",
			Help:      "Encoded operation bytes appended to a shard's primary queue.",
		}, []string{"shard"}),
		dequeues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "indexq",
			Name:      "dequeued_operations_total",
			Help:      "Operations delivered to the consumer, split by fresh vs replayed.",
		}, []string{"shard", "replayed"}),
		dequeueTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "indexq",
			Name:      "dequeue_duration_seconds",
			Help:      "Latency of a single PeekNext call.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"shard"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "indexq",
			Name:      "sessions_confirmed_total",
			Help:      "Completed EndDequeue confirmations.",
		}, []string{"shard"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "indexq",
			Name:      "session_delivered_operations_total",
			Help:      "Operations confirmed across all sessions.",
		}, []string{"shard"}),
		compactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "indexq",
			Name:      "compactions_total",
			Help:      "Compaction passes over a shard's queue pair.",
		}, []string{"shard"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "indexq",
			Name:      "errors_total",
			Help:      "Failed queue operations by kind.",
		}, []string{"shard", "op"}),
	}

	reg.MustRegister(
		c.enqueues, c.enqueueBytes, c.dequeues, c.dequeueTime,
		c.sessions, c.delivered, c.compactions, c.errors,
	)
	return c
}

// RecordEnqueue implements indexq.MetricsCollector.
func (c *Collector) RecordEnqueue(shard, bytes int, err error) {
	s := strconv.Itoa(shard)
	if err != nil {
		c.errors.WithLabelValues(s, "enqueue").Inc()
		return
	}
	c.enqueues.WithLabelValues(s).Inc()
	c.enqueueBytes.WithLabelValues(s).Add(float64(bytes))
}

// RecordDequeue implements indexq.MetricsCollector.
func (c *Collector) RecordDequeue(shard int, replayed bool, duration time.Duration, err error) {
	s := strconv.Itoa(shard)
	if err != nil {
		c.errors.WithLabelValues(s, "dequeue").Inc()
		return
	}
	c.dequeues.WithLabelValues(s, strconv.FormatBool(replayed)).Inc()
	c.dequeueTime.WithLabelValues(s).Observe(duration.Seconds())
}

// RecordSessionEnd implements indexq.MetricsCollector.
func (c *Collector) RecordSessionEnd(shard int, delivered int64, err error) {
	s := strconv.Itoa(shard)
	if err != nil {
		c.errors.WithLabelValues(s, "end_dequeue").Inc()
		return
	}
	c.sessions.WithLabelValues(s).Inc()
	c.delivered.WithLabelValues(s).Add(float64(delivered))
}

// RecordCompaction implements indexq.MetricsCollector.
func (c *Collector) RecordCompaction(shard int, duration time.Duration, err error) {
	s := strconv.Itoa(shard)
	if err != nil {
		c.errors.WithLabelValues(s, "compact").Inc()
		return
	}
	c.compactions.WithLabelValues(s).Inc()
}
