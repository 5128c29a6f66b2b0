package indexq

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/indexq/fifoq"
)

func upsertOp(id string) Operation {
	return NewUpsert([]Record{{ID: id, Data: []byte("payload-" + id)}})
}

// drainSession pulls every remaining operation of the active session.
func drainSession(t *testing.T, q *ShardQueue) []Operation {
	t.Helper()

	var ops []Operation
	for !q.IsEmpty() {
		op, err := q.PeekNext()
		require.NoError(t, err)
		ops = append(ops, op)
	}
	return ops
}

func TestShardQueueSession(t *testing.T) {
	dir := t.TempDir()

	q, err := OpenShardQueue(0, WithBaseDir(dir))
	require.NoError(t, err)
	defer q.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(upsertOp(fmt.Sprintf("rec-%d", i))))
	}
	require.Equal(t, int64(3), q.Size())

	q.StartDequeue()
	ops := drainSession(t, q)
	require.NoError(t, q.EndDequeue())

	require.Len(t, ops, 3)
	for i, op := range ops {
		assert.Equal(t, fmt.Sprintf("rec-%d", i), op.Records[0].ID)
	}

	// Confirmed operations are gone for good.
	q.StartDequeue()
	assert.True(t, q.IsEmpty())
	assert.Equal(t, int64(0), q.Size())
	_, err = q.PeekNext()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestShardQueueSizeExcludesDelivered(t *testing.T) {
	dir := t.TempDir()

	q, err := OpenShardQueue(0, WithBaseDir(dir))
	require.NoError(t, err)
	defer q.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(upsertOp(fmt.Sprintf("rec-%d", i))))
	}

	q.StartDequeue()
	for i := 0; i < 2; i++ {
		_, err := q.PeekNext()
		require.NoError(t, err)
	}

	// Two operations are staged but unconfirmed; only the unclaimed three
	// count.
	assert.Equal(t, int64(3), q.Size())
	assert.False(t, q.IsEmpty())
}

func TestShardQueueRedeliveryAfterCrash(t *testing.T) {
	dir := t.TempDir()

	q, err := OpenShardQueue(4, WithBaseDir(dir))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(upsertOp(fmt.Sprintf("rec-%d", i))))
	}

	// Deliver two operations but never confirm them: the process "crashes"
	// before EndDequeue.
	q.StartDequeue()
	for i := 0; i < 2; i++ {
		op, err := q.PeekNext()
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("rec-%d", i), op.Records[0].ID)
	}
	require.NoError(t, q.Close())

	q, err = OpenShardQueue(4, WithBaseDir(dir))
	require.NoError(t, err)
	defer q.Close()

	q.StartDequeue()
	require.Equal(t, int64(2), q.secondaryInitialCount)

	// The unconfirmed operations come back first, in order, then the
	// untouched remainder.
	ops := drainSession(t, q)
	require.NoError(t, q.EndDequeue())

	require.Len(t, ops, 3)
	for i, op := range ops {
		assert.Equal(t, fmt.Sprintf("rec-%d", i), op.Records[0].ID)
	}

	q.StartDequeue()
	assert.True(t, q.IsEmpty())
}

func TestShardQueueCrashedSessionThenNewEnqueues(t *testing.T) {
	dir := t.TempDir()

	q, err := OpenShardQueue(0, WithBaseDir(dir))
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(upsertOp("old")))
	q.StartDequeue()
	_, err = q.PeekNext()
	require.NoError(t, err)
	require.NoError(t, q.Close())

	q, err = OpenShardQueue(0, WithBaseDir(dir))
	require.NoError(t, err)
	defer q.Close()

	// Work enqueued after the crash is delivered after the replay backlog.
	require.NoError(t, q.Enqueue(upsertOp("new")))

	q.StartDequeue()
	ops := drainSession(t, q)
	require.NoError(t, q.EndDequeue())

	require.Len(t, ops, 2)
	assert.Equal(t, "old", ops[0].Records[0].ID)
	assert.Equal(t, "new", ops[1].Records[0].ID)
}

func TestShardQueueEnqueueDuringSession(t *testing.T) {
	dir := t.TempDir()

	q, err := OpenShardQueue(0, WithBaseDir(dir))
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.Enqueue(upsertOp("a")))

	q.StartDequeue()
	_, err = q.PeekNext()
	require.NoError(t, err)

	// A producer races in mid-session; IsEmpty picks the new work up.
	require.NoError(t, q.Enqueue(upsertOp("b")))
	require.False(t, q.IsEmpty())

	op, err := q.PeekNext()
	require.NoError(t, err)
	assert.Equal(t, "b", op.Records[0].ID)
	require.NoError(t, q.EndDequeue())
}

func TestShardQueueDeleteOperations(t *testing.T) {
	dir := t.TempDir()

	q, err := OpenShardQueue(0, WithBaseDir(dir))
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.Enqueue(NewDelete(7, "events", []string{"rec-1", "rec-2"})))

	q.StartDequeue()
	op, err := q.PeekNext()
	require.NoError(t, err)
	require.NoError(t, q.EndDequeue())

	assert.True(t, op.IsDelete())
	assert.Equal(t, int64(7), op.DeleteTenantID)
	assert.Equal(t, "events", op.DeleteTable)
	assert.Equal(t, []string{"rec-1", "rec-2"}, op.DeleteIDs)
}

func TestShardQueueCompactionThreshold(t *testing.T) {
	dir := t.TempDir()
	metrics := &BasicMetricsCollector{}

	q, err := OpenShardQueue(0,
		WithBaseDir(dir),
		WithCompactionThreshold(2),
		WithMetrics(metrics),
	)
	require.NoError(t, err)
	defer q.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(upsertOp(fmt.Sprintf("rec-%d", i))))
	}

	q.StartDequeue()
	ops := drainSession(t, q)
	require.NoError(t, q.EndDequeue())

	// Compaction is transparent: every operation still arrives in order.
	require.Len(t, ops, 10)
	for i, op := range ops {
		assert.Equal(t, fmt.Sprintf("rec-%d", i), op.Records[0].ID)
	}
	assert.Greater(t, metrics.CompactionCount.Load(), int64(0))
	assert.Equal(t, int64(0), metrics.CompactionErrors.Load())
}

func TestShardQueueCorruptEntry(t *testing.T) {
	dir := t.TempDir()

	// Plant an undecodable entry between two valid ones, below the
	// operation codec.
	raw, err := fifoq.Open(dir, "0P")
	require.NoError(t, err)
	good, err := upsertOp("good-1").MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, raw.Enqueue(good))
	require.NoError(t, raw.Enqueue([]byte{0xba, 0xad}))
	good2, err := upsertOp("good-2").MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, raw.Enqueue(good2))
	require.NoError(t, raw.Close())

	q, err := OpenShardQueue(0, WithBaseDir(dir))
	require.NoError(t, err)
	defer q.Close()

	q.StartDequeue()

	op, err := q.PeekNext()
	require.NoError(t, err)
	assert.Equal(t, "good-1", op.Records[0].ID)

	_, err = q.PeekNext()
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)

	// The corrupt entry counts as delivered; the session continues past it.
	op, err = q.PeekNext()
	require.NoError(t, err)
	assert.Equal(t, "good-2", op.Records[0].ID)
	assert.True(t, q.IsEmpty())

	// Confirming the session discards the corrupt entry with the rest.
	require.NoError(t, q.EndDequeue())
	q.StartDequeue()
	assert.True(t, q.IsEmpty())
}

func TestShardQueueCorruptEntryPreservedWithoutConfirm(t *testing.T) {
	dir := t.TempDir()

	raw, err := fifoq.Open(dir, "2P")
	require.NoError(t, err)
	require.NoError(t, raw.Enqueue([]byte{0xba, 0xad}))
	require.NoError(t, raw.Close())

	q, err := OpenShardQueue(2, WithBaseDir(dir))
	require.NoError(t, err)

	q.StartDequeue()
	_, err = q.PeekNext()
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)

	// No EndDequeue: the entry stays on disk for inspection and replay.
	require.NoError(t, q.Close())

	q, err = OpenShardQueue(2, WithBaseDir(dir))
	require.NoError(t, err)
	defer q.Close()

	q.StartDequeue()
	require.False(t, q.IsEmpty())
	_, err = q.PeekNext()
	require.ErrorAs(t, err, &decErr)
}

// exclusiveQueue flags overlapping mutating calls, which the DurableQueue
// contract (one writer at a time) forbids.
type exclusiveQueue struct {
	inner      DurableQueue
	inUse      atomic.Int32
	violations *atomic.Int32
}

func (q *exclusiveQueue) enter() func() {
	if q.inUse.Add(1) != 1 {
		q.violations.Add(1)
	}
	return func() { q.inUse.Add(-1) }
}

func (q *exclusiveQueue) Enqueue(data []byte) error {
	defer q.enter()()
	return q.inner.Enqueue(data)
}

func (q *exclusiveQueue) Dequeue() ([]byte, error) {
	defer q.enter()()
	return q.inner.Dequeue()
}

func (q *exclusiveQueue) Peek() ([]byte, error) {
	defer q.enter()()
	return q.inner.Peek()
}

func (q *exclusiveQueue) RemoveAll() error {
	defer q.enter()()
	return q.inner.RemoveAll()
}

func (q *exclusiveQueue) Compact() error {
	defer q.enter()()
	return q.inner.Compact()
}

func (q *exclusiveQueue) Size() int64   { return q.inner.Size() }
func (q *exclusiveQueue) IsEmpty() bool { return q.inner.IsEmpty() }
func (q *exclusiveQueue) Close() error  { return q.inner.Close() }

func TestShardQueueCompactionExcludesProducers(t *testing.T) {
	dir := t.TempDir()
	violations := &atomic.Int32{}

	q, err := OpenShardQueue(0,
		WithCompactionThreshold(1),
		WithQueueFactory(func(id string) (DurableQueue, error) {
			inner, err := fifoq.Open(dir, id)
			if err != nil {
				return nil, err
			}
			if strings.HasSuffix(id, primaryQueueSuffix) {
				return &exclusiveQueue{inner: inner, violations: violations}, nil
			}
			return inner, nil
		}),
	)
	require.NoError(t, err)
	defer q.Close()

	const total = 200
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			if err := q.Enqueue(upsertOp(fmt.Sprintf("rec-%d", i))); err != nil {
				t.Errorf("Enqueue failed: %v", err)
				return
			}
		}
	}()

	// Drain in sessions while the producer races; the low threshold makes
	// compaction run constantly alongside the enqueues.
	delivered := 0
	deadline := time.Now().Add(30 * time.Second)
	for delivered < total && time.Now().Before(deadline) {
		q.StartDequeue()
		for !q.IsEmpty() {
			_, err := q.PeekNext()
			require.NoError(t, err)
			delivered++
		}
		require.NoError(t, q.EndDequeue())
	}
	<-done

	require.Equal(t, total, delivered)
	assert.Equal(t, int32(0), violations.Load(), "concurrent mutations on the primary queue")
}

func TestShardQueueClosed(t *testing.T) {
	dir := t.TempDir()

	q, err := OpenShardQueue(0, WithBaseDir(dir))
	require.NoError(t, err)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Enqueue(upsertOp("x")), ErrClosed)
}

func TestShardQueueMetrics(t *testing.T) {
	dir := t.TempDir()
	metrics := &BasicMetricsCollector{}

	q, err := OpenShardQueue(0, WithBaseDir(dir), WithMetrics(metrics))
	require.NoError(t, err)
	defer q.Close()

	for i := 0; i < 2; i++ {
		require.NoError(t, q.Enqueue(upsertOp(fmt.Sprintf("rec-%d", i))))
	}

	q.StartDequeue()
	drainSession(t, q)
	require.NoError(t, q.EndDequeue())

	assert.Equal(t, int64(2), metrics.EnqueueCount.Load())
	assert.Greater(t, metrics.EnqueueBytes.Load(), int64(0))
	assert.Equal(t, int64(2), metrics.DequeueCount.Load())
	assert.Equal(t, int64(1), metrics.SessionCount.Load())
	assert.Equal(t, int64(2), metrics.SessionDelivered.Load())
}
