package indexq

import (
	"fmt"
	"sync"
	"time"
)

const (
	primaryQueueSuffix   = "P"
	secondaryQueueSuffix = "S"
)

// ShardQueue buffers index operations for one shard and lets a single
// consumer pull them through a crash-safe session protocol.
//
// Enqueued operations land in the primary queue. During a session
// (StartDequeue .. EndDequeue), PeekNext stages each operation into the
// secondary queue before returning it, so operations delivered but not yet
// confirmed survive a crash and are redelivered by the next session.
//
// Enqueue may be called from any number of producer goroutines, concurrently
// with an active session. The session calls themselves (StartDequeue,
// PeekNext, EndDequeue, IsEmpty) must be driven by one consumer goroutine at
// a time; interleaving them from two goroutines breaks the session
// accounting and voids the delivery guarantee.
type ShardQueue struct {
	shard     int
	primary   DurableQueue
	secondary DurableQueue

	// enqueueMu serializes producers onto the primary queue. The consumer
	// session also takes it when it moves the primary head, so the
	// single-writer contract of the underlying queue holds.
	enqueueMu sync.Mutex

	// Session state, owned by the single consumer goroutine.
	secondaryInitialCount   int64
	secondaryProcessedCount int64
	gcCounter               int

	compactionThreshold int
	logger              *Logger
	metrics             MetricsCollector
	closed              bool
}

// OpenShardQueue opens the queue pair for one shard index, resuming any
// persisted state from a previous process.
func OpenShardQueue(shard int, optFns ...Option) (*ShardQueue, error) {
	opts := newOptions(optFns...)
	return openShardQueue(shard, opts)
}

func openShardQueue(shard int, opts options) (*ShardQueue, error) {
	primaryID := queueID(shard, primaryQueueSuffix)
	secondaryID := queueID(shard, secondaryQueueSuffix)

	primary, err := opts.queueFactory(primaryID)
	if err != nil {
		return nil, queueErr("open", primaryID, err)
	}
	secondary, err := opts.queueFactory(secondaryID)
	if err != nil {
		_ = primary.Close()
		return nil, queueErr("open", secondaryID, err)
	}

	return &ShardQueue{
		shard:               shard,
		primary:             primary,
		secondary:           secondary,
		compactionThreshold: opts.compactionThreshold,
		logger:              opts.logger,
		metrics:             opts.metrics,
	}, nil
}

// queueID derives the deterministic on-disk identifier of one of a shard's
// queues. The "<shard>P"/"<shard>S" contract must not change: it is what ties
// a reopened queue to its persisted files.
func queueID(shard int, suffix string) string {
	return fmt.Sprintf("%d%s", shard, suffix)
}

// Shard returns the shard index this queue belongs to.
func (q *ShardQueue) Shard() int { return q.shard }

// Enqueue appends an operation to the primary queue. It is safe to call from
// multiple producers and concurrently with an active consumption session.
func (q *ShardQueue) Enqueue(op Operation) error {
	data, err := op.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode operation: %w", err)
	}

	q.enqueueMu.Lock()
	defer q.enqueueMu.Unlock()

	if q.closed {
		return ErrClosed
	}
	err = q.primary.Enqueue(data)
	q.metrics.RecordEnqueue(q.shard, len(data), err)
	if err != nil {
		return queueErr("enqueue", queueID(q.shard, primaryQueueSuffix), err)
	}
	return nil
}

// StartDequeue begins a consumption session. It snapshots how many
// unconfirmed operations a previous session left in the secondary queue;
// PeekNext redelivers those before any new work.
func (q *ShardQueue) StartDequeue() {
	q.secondaryProcessedCount = 0
	q.secondaryInitialCount = q.secondary.Size()
}

// PeekNext returns the next operation of the active session.
//
// Replay backlog from a prior unconfirmed session is delivered first: the
// secondary head is rotated to the secondary tail (re-appended, then removed)
// so it stays durable until EndDequeue. Fresh operations are staged from the
// primary into the secondary queue before the primary copy is removed, which
// keeps the operation on disk at every instant.
//
// Callers must check IsEmpty first; PeekNext on a drained session returns
// ErrQueueEmpty. A decode failure returns a *DecodeError and counts the
// corrupt entry as delivered: a following EndDequeue discards it for good,
// while skipping EndDequeue preserves it for inspection.
func (q *ShardQueue) PeekNext() (Operation, error) {
	start := time.Now()
	replaying := q.replayRemaining() > 0

	data, err := q.nextEntry(replaying)
	if err != nil {
		q.metrics.RecordDequeue(q.shard, replaying, time.Since(start), err)
		return Operation{}, err
	}
	q.secondaryProcessedCount++

	var op Operation
	if err := op.UnmarshalBinary(data); err != nil {
		decErr := &DecodeError{QueueID: queueID(q.shard, primaryQueueSuffix), Err: err}
		q.metrics.RecordDequeue(q.shard, replaying, time.Since(start), decErr)
		return Operation{}, decErr
	}

	q.metrics.RecordDequeue(q.shard, replaying, time.Since(start), nil)

	q.gcCounter++
	if q.compactionThreshold > 0 && q.gcCounter > q.compactionThreshold {
		q.gcCounter = 0
		q.compact()
	}
	return op, nil
}

// nextEntry moves the next entry into its delivered-but-unconfirmed position
// and returns its bytes.
func (q *ShardQueue) nextEntry(replaying bool) ([]byte, error) {
	if replaying {
		// Rotate the secondary head to its tail. The entry never leaves the
		// secondary queue, so a crash mid-rotation at worst duplicates it,
		// which at-least-once delivery permits. Replay order degrades from
		// strict FIFO only when a replaying session itself fails again.
		data, err := q.secondary.Peek()
		if err != nil {
			return nil, queueErr("peek", queueID(q.shard, secondaryQueueSuffix), err)
		}
		if err := q.secondary.Enqueue(data); err != nil {
			return nil, queueErr("enqueue", queueID(q.shard, secondaryQueueSuffix), err)
		}
		if _, err := q.secondary.Dequeue(); err != nil {
			return nil, queueErr("dequeue", queueID(q.shard, secondaryQueueSuffix), err)
		}
		return data, nil
	}

	q.enqueueMu.Lock()
	defer q.enqueueMu.Unlock()

	if q.primary.IsEmpty() {
		return nil, ErrQueueEmpty
	}
	// Stage into secondary before removing from primary, so the entry is on
	// disk in at least one queue at every instant.
	data, err := q.primary.Peek()
	if err != nil {
		return nil, queueErr("peek", queueID(q.shard, primaryQueueSuffix), err)
	}
	if err := q.secondary.Enqueue(data); err != nil {
		return nil, queueErr("enqueue", queueID(q.shard, secondaryQueueSuffix), err)
	}
	if _, err := q.primary.Dequeue(); err != nil {
		return nil, queueErr("dequeue", queueID(q.shard, primaryQueueSuffix), err)
	}
	return data, nil
}

// EndDequeue confirms the active session: every operation returned by
// PeekNext since StartDequeue has been applied downstream and is removed from
// the secondary queue. A crash before EndDequeue leaves those operations in
// place for redelivery.
func (q *ShardQueue) EndDequeue() error {
	delivered := q.secondaryProcessedCount
	err := q.drainSecondary(delivered)
	q.metrics.RecordSessionEnd(q.shard, delivered, err)
	q.logger.LogSessionEnd(q.shard, delivered, err)
	if err != nil {
		return queueErr("drain", queueID(q.shard, secondaryQueueSuffix), err)
	}
	q.secondaryProcessedCount = 0
	q.secondaryInitialCount = 0
	return nil
}

func (q *ShardQueue) drainSecondary(count int64) error {
	if count >= q.secondary.Size() {
		return q.secondary.RemoveAll()
	}
	for i := int64(0); i < count; i++ {
		if _, err := q.secondary.Dequeue(); err != nil {
			return err
		}
	}
	return nil
}

// IsEmpty reports whether the session has nothing left to deliver: no replay
// backlog and an empty primary queue. Operations already delivered in the
// current session but not yet confirmed do not count.
func (q *ShardQueue) IsEmpty() bool {
	return q.replayRemaining() <= 0 && q.primary.IsEmpty()
}

// replayRemaining is the number of unconfirmed operations from a prior
// session still to be redelivered. EndDequeue drains from the secondary head
// while replay rotates to its tail, so confirming before this reaches zero
// would discard never-delivered entries.
func (q *ShardQueue) replayRemaining() int64 {
	return q.secondaryInitialCount - q.secondaryProcessedCount
}

// Size returns the number of unclaimed operations in the primary queue.
// Operations staged into the secondary queue (delivered but unconfirmed) are
// deliberately not counted.
func (q *ShardQueue) Size() int64 {
	return q.primary.Size()
}

// compact reclaims space on both queues. Compaction failures are logged, not
// surfaced: it is maintenance only and never affects queue contents.
//
// The primary queue is compacted under enqueueMu: producers may be
// mid-Enqueue on it, and the DurableQueue contract only promises one writer
// at a time. The secondary queue is touched by the consumer alone.
func (q *ShardQueue) compact() {
	start := time.Now()
	q.enqueueMu.Lock()
	err := q.primary.Compact()
	q.enqueueMu.Unlock()
	if err == nil {
		err = q.secondary.Compact()
	}
	q.metrics.RecordCompaction(q.shard, time.Since(start), err)
	q.logger.LogCompaction(q.shard, err)
}

// Close closes both underlying queues. Persisted entries, including any
// unconfirmed session state, remain on disk for the next open.
func (q *ShardQueue) Close() error {
	q.enqueueMu.Lock()
	defer q.enqueueMu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true

	err := q.primary.Close()
	if cerr := q.secondary.Close(); err == nil {
		err = cerr
	}
	return err
}
