package prom

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/indexq"
)

// The collector must satisfy the store's metrics interface.
var _ indexq.MetricsCollector = (*Collector)(nil)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordEnqueue(3, 128, nil)
	c.RecordEnqueue(3, 64, nil)
	c.RecordDequeue(3, false, time.Millisecond, nil)
	c.RecordDequeue(3, true, time.Millisecond, nil)
	c.RecordSessionEnd(3, 2, nil)
	c.RecordCompaction(3, time.Millisecond, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.enqueues.WithLabelValues("3")))
	assert.Equal(t, 192.0, testutil.ToFloat64(c.enqueueBytes.WithLabelValues("3")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.dequeues.WithLabelValues("3", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.dequeues.WithLabelValues("3", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sessions.WithLabelValues("3")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.delivered.WithLabelValues("3")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.compactions.WithLabelValues("3")))
}

func TestCollectorErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	boom := errors.New("disk full")
	c.RecordEnqueue(0, 10, boom)
	c.RecordDequeue(0, false, 0, boom)
	c.RecordSessionEnd(0, 0, boom)
	c.RecordCompaction(0, 0, boom)

	// Failures count as errors, not as successful operations.
	assert.Equal(t, 1.0, testutil.ToFloat64(c.errors.WithLabelValues("0", "enqueue")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.errors.WithLabelValues("0", "dequeue")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.errors.WithLabelValues("0", "end_dequeue")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.errors.WithLabelValues("0", "compact")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.enqueues.WithLabelValues("0")))

	require.Equal(t, 4, testutil.CollectAndCount(c.errors, "indexq_errors_total"))
}
