package indexq

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the prom
// subpackage provides a Prometheus-backed implementation.
type MetricsCollector interface {
	// RecordEnqueue is called after each enqueue onto a shard's primary queue.
	RecordEnqueue(shard int, bytes int, err error)

	// RecordDequeue is called after each PeekNext. replayed reports whether the
	// operation was redelivered from a prior unconfirmed session.
	RecordDequeue(shard int, replayed bool, duration time.Duration, err error)

	// RecordSessionEnd is called after each EndDequeue with the number of
	// operations confirmed.
	RecordSessionEnd(shard int, delivered int64, err error)

	// RecordCompaction is called after each compaction pass over a shard's
	// queue pair.
	RecordCompaction(shard int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordEnqueue(int, int, error)                 {}
func (NoopMetricsCollector) RecordDequeue(int, bool, time.Duration, error) {}
func (NoopMetricsCollector) RecordSessionEnd(int, int64, error)            {}
func (NoopMetricsCollector) RecordCompaction(int, time.Duration, error)    {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	EnqueueCount      atomic.Int64
	EnqueueBytes      atomic.Int64
	EnqueueErrors     atomic.Int64
	DequeueCount      atomic.Int64
	DequeueReplays    atomic.Int64
	DequeueErrors     atomic.Int64
	DequeueTotalNanos atomic.Int64
	SessionCount      atomic.Int64
	SessionDelivered  atomic.Int64
	SessionErrors     atomic.Int64
	CompactionCount   atomic.Int64
	CompactionErrors  atomic.Int64
}

// RecordEnqueue implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEnqueue(shard, bytes int, err error) {
	b.EnqueueCount.Add(1)
	b.EnqueueBytes.Add(int64(bytes))
	if err != nil {
		b.EnqueueErrors.Add(1)
	}
}

// RecordDequeue implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDequeue(shard int, replayed bool, duration time.Duration, err error) {
	b.DequeueCount.Add(1)
	b.DequeueTotalNanos.Add(duration.Nanoseconds())
	if replayed {
		b.DequeueReplays.Add(1)
	}
	if err != nil {
		b.DequeueErrors.Add(1)
	}
}

// RecordSessionEnd implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSessionEnd(shard int, delivered int64, err error) {
	b.SessionCount.Add(1)
	b.SessionDelivered.Add(delivered)
	if err != nil {
		b.SessionErrors.Add(1)
	}
}

// RecordCompaction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCompaction(shard int, duration time.Duration, err error) {
	b.CompactionCount.Add(1)
	if err != nil {
		b.CompactionErrors.Add(1)
	}
}
