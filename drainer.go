package indexq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DrainHandler applies one operation to the downstream index. Delivery is
// at-least-once, so handlers must be idempotent with respect to replays.
type DrainHandler func(ctx context.Context, shard int, op Operation) error

type drainOptions struct {
	batchSize      int
	limiter        *rate.Limiter
	discardCorrupt bool
}

// DrainOption configures a Drainer.
type DrainOption func(*drainOptions)

// WithBatchSize caps the number of operations confirmed per session. Smaller
// batches shorten the redelivery window after a crash. Default 100.
//
// The cap never cuts a replay backlog short: a session may only be confirmed
// once every unconfirmed operation from the prior session has been
// redelivered, so a backlog larger than the batch size is drained completely
// before the session ends.
func WithBatchSize(n int) DrainOption {
	return func(o *drainOptions) {
		o.batchSize = n
	}
}

// WithRateLimit paces session starts across all shards.
func WithRateLimit(limit rate.Limit, burst int) DrainOption {
	return func(o *drainOptions) {
		o.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithDiscardCorrupt makes the drainer confirm (and thereby permanently
// discard) entries that fail to decode, instead of stopping the shard's
// drain. Discarded entries are logged.
func WithDiscardCorrupt(discard bool) DrainOption {
	return func(o *drainOptions) {
		o.discardCorrupt = discard
	}
}

// Drainer drives the dequeue session protocol over every locally-owned shard
// of a Store, handing each operation to a caller-supplied handler.
//
// Each shard is drained by exactly one goroutine per drain pass, preserving
// the single-consumer contract of ShardQueue.
type Drainer struct {
	store   *Store
	handler DrainHandler
	opts    drainOptions
}

// NewDrainer creates a drainer over the store's local shards.
func NewDrainer(store *Store, handler DrainHandler, optFns ...DrainOption) *Drainer {
	opts := drainOptions{
		batchSize: 100,
		limiter:   rate.NewLimiter(rate.Inf, 0),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Drainer{store: store, handler: handler, opts: opts}
}

// DrainOnce runs one confirmation session per non-empty local shard, in
// parallel. It returns once every shard either drained up to the batch limit
// or failed; the first failure is returned and the failed shard's session is
// left unconfirmed for redelivery.
func (d *Drainer) DrainOnce(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, shard := range d.store.Shards() {
		g.Go(func() error {
			return d.drainShard(ctx, shard)
		})
	}
	return g.Wait()
}

// Run drains in a loop every interval until the context is cancelled.
func (d *Drainer) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := d.DrainOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *Drainer) drainShard(ctx context.Context, shard int) error {
	q, err := d.store.Queue(shard)
	if err != nil {
		// The shard set changed under us; nothing to drain here.
		if errors.Is(err, ErrShardNotOwned) {
			return nil
		}
		return err
	}
	if err := d.opts.limiter.Wait(ctx); err != nil {
		return err
	}

	q.StartDequeue()
	delivered := 0
	// Confirming mid-backlog would discard never-delivered entries: replay
	// rotates to the secondary tail while EndDequeue drains from its head.
	// The batch cap therefore yields only once the backlog is exhausted.
	for !q.IsEmpty() && (delivered < d.opts.batchSize || q.replayRemaining() > 0) {
		if err := ctx.Err(); err != nil {
			// Abandon without confirming; delivered operations replay on the
			// next session.
			return err
		}

		op, err := q.PeekNext()
		if err != nil {
			var decErr *DecodeError
			if errors.As(err, &decErr) && d.opts.discardCorrupt {
				d.store.opts.logger.Warn("discarding corrupt queue entry",
					"shard", shard,
					"error", err,
				)
				delivered++
				continue
			}
			return fmt.Errorf("shard %d: %w", shard, err)
		}

		if err := d.handler(ctx, shard, op); err != nil {
			return fmt.Errorf("shard %d: handler: %w", shard, err)
		}
		delivered++
	}
	if delivered == 0 {
		return nil
	}
	return q.EndDequeue()
}
