package indexq

import (
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// Store fans mutation batches out to per-shard durable queues and owns the
// queue set's lifecycle. Producers call Put and Delete from any goroutine;
// the indexing consumer fetches individual queues via Queue and drives the
// ShardQueue session protocol itself.
type Store struct {
	router Router
	opts   options

	// queues maps shard index to its open queue. Lookups on the hot enqueue
	// path are lock-free; refreshMu serializes refresh/close against each
	// other so two owners never hold the same on-disk files.
	queues    *xsync.MapOf[int, *ShardQueue]
	refreshMu sync.Mutex
	closed    bool
}

// NewStore opens a queue for every shard the router reports as local.
func NewStore(router Router, optFns ...Option) (*Store, error) {
	if router == nil {
		return nil, fmt.Errorf("indexq: router is required")
	}
	s := &Store{
		router: router,
		opts:   newOptions(optFns...),
		queues: xsync.NewMapOf[int, *ShardQueue](),
	}
	if err := s.RefreshLocalShards(); err != nil {
		return nil, err
	}
	return s, nil
}

// RefreshLocalShards closes every open shard queue and reopens one per shard
// the router currently reports as local. Queues reopen against their
// persisted files, so unconfirmed operations from before the refresh (or a
// crash) are recovered.
//
// Close failures are logged and do not stop the refresh; an open failure
// aborts it.
func (s *Store) RefreshLocalShards() error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if s.closed {
		return ErrClosed
	}

	// Old instances must be fully closed before new ones reopen the same
	// files: two writers on one queue file corrupt it.
	s.closeQueuesLocked()

	shards := s.router.LocalShards()
	for _, shard := range shards {
		q, err := openShardQueue(shard, s.opts)
		if err != nil {
			return fmt.Errorf("open shard %d: %w", shard, err)
		}
		s.queues.Store(shard, q)
	}
	s.opts.logger.LogRefresh(shards)
	return nil
}

// Put partitions records by shard and enqueues an upsert operation on every
// locally-owned shard that received at least one record. Partitions routed to
// shards this node does not own are skipped; those records belong to another
// node's store.
func (s *Store) Put(records []Record) error {
	for shard, part := range s.router.RecordsByShard(records) {
		q, ok := s.queues.Load(shard)
		if !ok {
			continue
		}
		if err := q.Enqueue(NewUpsert(part)); err != nil {
			return err
		}
	}
	return nil
}

// Delete partitions ids by shard and enqueues a delete operation on every
// locally-owned shard that received at least one id.
func (s *Store) Delete(tenantID int64, table string, ids []string) error {
	for shard, part := range s.router.IDsByShard(ids) {
		q, ok := s.queues.Load(shard)
		if !ok {
			continue
		}
		if err := q.Enqueue(NewDelete(tenantID, table, part)); err != nil {
			return err
		}
	}
	return nil
}

// Queue returns the open queue for a locally-owned shard. The consumer uses
// it to drive the dequeue session protocol.
func (s *Store) Queue(shard int) (*ShardQueue, error) {
	q, ok := s.queues.Load(shard)
	if !ok {
		return nil, fmt.Errorf("shard %d: %w", shard, ErrShardNotOwned)
	}
	return q, nil
}

// Shards returns the shard indices with a locally-open queue.
func (s *Store) Shards() []int {
	shards := make([]int, 0, s.queues.Size())
	s.queues.Range(func(shard int, _ *ShardQueue) bool {
		shards = append(shards, shard)
		return true
	})
	return shards
}

// Close closes every shard queue. Individual close failures are logged, not
// returned: shutdown is best effort and one bad queue must not leave the rest
// open.
func (s *Store) Close() error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.closeQueuesLocked()
	return nil
}

func (s *Store) closeQueuesLocked() {
	s.queues.Range(func(shard int, q *ShardQueue) bool {
		err := q.Close()
		s.opts.logger.LogQueueClose(shard, err)
		s.queues.Delete(shard)
		return true
	})
}
