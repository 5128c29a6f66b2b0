// Package pebbleq implements a durable FIFO queue on top of Pebble.
//
// It is an alternative to the fifoq file backend for deployments already
// operating Pebble stores. Entries are keyed by a monotonically increasing
// big-endian sequence number, so Pebble's key order is the queue order.
package pebbleq

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
)

var (
	// ErrEmpty is returned by Peek and Dequeue on an empty queue.
	ErrEmpty = errors.New("pebbleq: queue is empty")

	// ErrClosed is returned by operations on a closed queue.
	ErrClosed = errors.New("pebbleq: queue is closed")
)

// Queue is a durable FIFO queue stored in its own Pebble database under
// dir/<id>.
type Queue struct {
	mu sync.Mutex

	db      *pebble.DB
	wo      *pebble.WriteOptions
	headSeq uint64 // sequence of the current head entry
	nextSeq uint64 // sequence the next enqueue will use
	closed  bool
}

// Open opens (or creates) the queue with the given id under dir.
func Open(dir, id string, sync bool) (*Queue, error) {
	db, err := pebble.Open(filepath.Join(dir, id), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble queue: %w", err)
	}

	q := &Queue{
		db: db,
		wo: &pebble.WriteOptions{Sync: sync},
	}
	if err := q.recover(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return q, nil
}

// recover derives the head and tail sequence numbers from the first and last
// keys present.
func (q *Queue) recover() error {
	iter, err := q.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return fmt.Errorf("failed to open pebble iterator: %w", err)
	}
	defer iter.Close()

	if iter.First() {
		q.headSeq = binary.BigEndian.Uint64(iter.Key())
		iter.Last()
		q.nextSeq = binary.BigEndian.Uint64(iter.Key()) + 1
	}
	return iter.Error()
}

func seqKey(seq uint64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], seq)
	return key[:]
}

// Enqueue appends an entry to the tail.
func (q *Queue) Enqueue(data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if err := q.db.Set(seqKey(q.nextSeq), data, q.wo); err != nil {
		return fmt.Errorf("failed to append queue entry: %w", err)
	}
	q.nextSeq++
	return nil
}

// Peek returns the head entry without removing it.
func (q *Queue) Peek() ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.peekLocked()
}

func (q *Queue) peekLocked() ([]byte, error) {
	if q.closed {
		return nil, ErrClosed
	}
	if q.headSeq == q.nextSeq {
		return nil, ErrEmpty
	}
	value, closer, err := q.db.Get(seqKey(q.headSeq))
	if err != nil {
		return nil, fmt.Errorf("failed to read queue entry: %w", err)
	}
	data := make([]byte, len(value))
	copy(data, value)
	if err := closer.Close(); err != nil {
		return nil, fmt.Errorf("failed to release queue entry: %w", err)
	}
	return data, nil
}

// Dequeue removes and returns the head entry.
func (q *Queue) Dequeue() ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	data, err := q.peekLocked()
	if err != nil {
		return nil, err
	}
	if err := q.db.Delete(seqKey(q.headSeq), q.wo); err != nil {
		return nil, fmt.Errorf("failed to remove queue entry: %w", err)
	}
	q.headSeq++
	return data, nil
}

// Size returns the number of entries currently in the queue.
func (q *Queue) Size() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(q.nextSeq - q.headSeq)
}

// IsEmpty reports whether the queue holds no entries.
func (q *Queue) IsEmpty() bool {
	return q.Size() == 0
}

// RemoveAll discards every entry.
func (q *Queue) RemoveAll() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if err := q.db.DeleteRange(seqKey(q.headSeq), seqKey(q.nextSeq), q.wo); err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}
	q.headSeq = q.nextSeq
	return nil
}

// Compact asks Pebble to reclaim space from deleted entries. Contents and
// order of the remaining entries are unchanged.
func (q *Queue) Compact() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if err := q.db.Compact(seqKey(0), seqKey(q.nextSeq+1), false); err != nil {
		return fmt.Errorf("failed to compact queue: %w", err)
	}
	return nil
}

// Close closes the underlying Pebble database. Entries remain for the next
// Open with the same dir and id.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	return q.db.Close()
}
