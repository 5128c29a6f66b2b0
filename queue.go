package indexq

// DurableQueue is the on-disk FIFO primitive a ShardQueue is built from.
//
// Implementations must persist enqueued entries and the dequeue position
// across process restarts, and must be safe for one writer and one reader
// goroutine at a time. The fifoq package provides the default file-backed
// implementation; the pebbleq package provides a Pebble-backed one.
type DurableQueue interface {
	// Enqueue appends an entry to the tail.
	Enqueue(data []byte) error

	// Dequeue removes and returns the head entry.
	Dequeue() ([]byte, error)

	// Peek returns the head entry without removing it.
	Peek() ([]byte, error)

	// Size returns the number of entries currently in the queue.
	Size() int64

	// IsEmpty reports whether the queue holds no entries.
	IsEmpty() bool

	// RemoveAll discards every entry.
	RemoveAll() error

	// Compact reclaims space occupied by already-removed entries. It must not
	// alter the remaining entries or their order.
	Compact() error

	// Close releases the queue's resources. The on-disk state remains and a
	// later open with the same identifier resumes where it left off.
	Close() error
}

// QueueFactory opens the durable queue with the given on-disk identifier.
//
// The identifier encodes the shard index plus a fixed suffix ("P" for the
// primary queue, "S" for the secondary), so a factory must map equal ids to
// the same persisted state across restarts.
type QueueFactory func(id string) (DurableQueue, error)
