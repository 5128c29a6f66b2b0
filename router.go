package indexq

import (
	"github.com/cespare/xxhash/v2"
)

// Router supplies the shard topology: how records and delete ids map to shard
// indices, and which shard indices this node currently owns. The surrounding
// indexer implements it; HashRouter is a self-contained default.
type Router interface {
	// RecordsByShard partitions a batch of records by shard index. Every
	// record must appear in exactly one partition.
	RecordsByShard(records []Record) map[int][]Record

	// IDsByShard partitions a batch of record ids by shard index.
	IDsByShard(ids []string) map[int][]string

	// LocalShards returns the shard indices currently owned by this node.
	LocalShards() []int
}

// HashRouter routes by xxhash of the record id modulo the shard count. The
// same id always lands on the same shard for a fixed shard count.
type HashRouter struct {
	numShards int
	local     []int
}

// NewHashRouter creates a router over numShards shards. If local is nil,
// every shard is considered locally owned.
func NewHashRouter(numShards int, local []int) *HashRouter {
	if local == nil {
		local = make([]int, numShards)
		for i := range local {
			local[i] = i
		}
	}
	return &HashRouter{numShards: numShards, local: local}
}

// ShardFor returns the shard index for a record id.
func (r *HashRouter) ShardFor(id string) int {
	return int(xxhash.Sum64String(id) % uint64(r.numShards))
}

// RecordsByShard implements Router.
func (r *HashRouter) RecordsByShard(records []Record) map[int][]Record {
	out := make(map[int][]Record)
	for _, rec := range records {
		shard := r.ShardFor(rec.ID)
		out[shard] = append(out[shard], rec)
	}
	return out
}

// IDsByShard implements Router.
func (r *HashRouter) IDsByShard(ids []string) map[int][]string {
	out := make(map[int][]string)
	for _, id := range ids {
		shard := r.ShardFor(id)
		out[shard] = append(out[shard], id)
	}
	return out
}

// LocalShards implements Router.
func (r *HashRouter) LocalShards() []int {
	out := make([]int, len(r.local))
	copy(out, r.local)
	return out
}
