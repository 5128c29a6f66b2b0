package indexq

import (
	"errors"
	"fmt"
)

var (
	// ErrShardNotOwned is returned by Store.Queue when the shard has no
	// locally-open queue (it is owned by another node).
	ErrShardNotOwned = errors.New("shard not locally owned")

	// ErrQueueEmpty is returned by PeekNext when there is nothing to deliver.
	// Guard consumption loops with IsEmpty instead of relying on this error.
	ErrQueueEmpty = errors.New("queue is empty")

	// ErrClosed is returned by operations on a closed store or shard queue.
	ErrClosed = errors.New("queue is closed")
)

// QueueError wraps a failure of the underlying durable queue (open, read,
// write or compaction I/O).
//
// The original underlying error can be accessed via errors.Unwrap.
type QueueError struct {
	Op      string // operation that failed ("enqueue", "peek", "open", ...)
	QueueID string // on-disk queue identifier, e.g. "3P"
	Err     error
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("queue %s: %s failed: %v", e.QueueID, e.Op, e.Err)
}

func (e *QueueError) Unwrap() error { return e.Err }

// DecodeError indicates corrupt or malformed stored operation bytes.
//
// A decode failure is never silently skipped: the shard's session is blocked
// until the caller either inspects the queues or confirms the session via
// EndDequeue, which discards the corrupt entry.
type DecodeError struct {
	QueueID string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("queue %s: corrupt operation entry: %v", e.QueueID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func queueErr(op, queueID string, err error) error {
	return &QueueError{Op: op, QueueID: queueID, Err: err}
}
