// Package fifoq implements a durable on-disk FIFO queue.
//
// A queue is identified by a string id inside a base directory and survives
// process restarts: both appended entries and the dequeue position are
// persisted. One writer and one reader goroutine may use a queue at a time;
// all operations are additionally serialized by an internal mutex.
//
// Dequeued entries are not erased immediately. They remain as a consumed
// prefix of the data file until Compact rewrites the file, which bounds disk
// usage without an fsync-per-entry write path.
package fifoq
