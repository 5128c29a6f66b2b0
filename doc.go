// Package indexq provides a sharded durable staging queue for index mutations.
//
// Indexq buffers record upserts and deletes destined for a search index so the
// write path never blocks on indexing latency, and so buffered mutations
// survive process crashes. Mutations are partitioned by shard and appended to
// per-shard on-disk queues; a consumer drains each shard through a crash-safe
// session protocol that guarantees at-least-once delivery.
//
// # Quick Start
//
//	store, _ := indexq.NewStore(router, indexq.WithBaseDir("./staging"))
//	defer store.Close()
//
//	// Producer side: buffer mutations.
//	store.Put([]indexq.Record{{ID: "r1", Data: payload}})
//	store.Delete(tenantID, "orders", []string{"r2", "r3"})
//
//	// Consumer side: drain one shard.
//	q, _ := store.Queue(shard)
//	q.StartDequeue()
//	for !q.IsEmpty() {
//	    op, _ := q.PeekNext()
//	    apply(op) // must be idempotent
//	}
//	q.EndDequeue() // confirm; only now are delivered ops discarded
//
// # Reliability Model
//
// Each shard owns two durable FIFO queues. Enqueued operations land in the
// primary queue. PeekNext moves an operation into the secondary queue before
// returning it, so a crash between delivery and confirmation leaves the
// operation recoverable. The first StartDequeue after a restart detects
// leftover unconfirmed operations and redelivers them before any new work.
// EndDequeue is the confirmation boundary: it discards exactly the operations
// delivered during the session.
//
// Delivery is at-least-once, never exactly-once: an operation whose
// confirmation raced a crash is redelivered. Consumers must be idempotent.
//
// # Scope
//
// Indexq is local to one process. Shard assignment, record encoding and the
// indexing step itself belong to the caller; see the Router interface for the
// routing contract.
package indexq
