package config

import (
	"github.com/hupe1980/indexq"
	"github.com/hupe1980/indexq/fifoq"
	"github.com/hupe1980/indexq/pebbleq"
	"golang.org/x/time/rate"
)

// QueueFactory returns the durable queue factory the configuration selects.
// It is what the store uses internally; tooling can use it to open a single
// queue directly.
func (c *Config) QueueFactory() indexq.QueueFactory {
	if c.Backend == BackendPebble {
		baseDir := c.BaseDir
		sync := c.SyncWrites
		return func(id string) (indexq.DurableQueue, error) {
			return pebbleq.Open(baseDir, id, sync)
		}
	}
	baseDir := c.BaseDir
	return func(id string) (indexq.DurableQueue, error) {
		return fifoq.Open(baseDir, id, func(o *fifoq.Options) {
			o.SyncWrites = c.SyncWrites
			o.Compress = c.Compress
			o.CompressionLevel = c.CompressionLevel
		})
	}
}

// StoreOptions translates the configuration into indexq store options.
func (c *Config) StoreOptions() []indexq.Option {
	opts := []indexq.Option{
		indexq.WithBaseDir(c.BaseDir),
		indexq.WithCompactionThreshold(c.CompactionThreshold),
	}

	switch c.Backend {
	case BackendPebble:
		baseDir := c.BaseDir
		sync := c.SyncWrites
		opts = append(opts, indexq.WithQueueFactory(func(id string) (indexq.DurableQueue, error) {
			return pebbleq.Open(baseDir, id, sync)
		}))
	default:
		opts = append(opts, indexq.WithFIFOOptions(func(o *fifoq.Options) {
			o.SyncWrites = c.SyncWrites
			o.Compress = c.Compress
			o.CompressionLevel = c.CompressionLevel
		}))
	}
	return opts
}

// DrainOptions translates the drain configuration into drainer options.
func (c *Config) DrainOptions() []indexq.DrainOption {
	opts := []indexq.DrainOption{
		indexq.WithBatchSize(c.Drain.BatchSize),
		indexq.WithDiscardCorrupt(c.Drain.DiscardCorrupt),
	}
	if c.Drain.SessionsPerSecond > 0 {
		opts = append(opts, indexq.WithRateLimit(rate.Limit(c.Drain.SessionsPerSecond), 1))
	}
	return opts
}
