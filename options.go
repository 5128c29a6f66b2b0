package indexq

import (
	"github.com/hupe1980/indexq/fifoq"
)

const (
	// DefaultCompactionThreshold is the number of delivered operations after
	// which a shard's queue pair is compacted.
	DefaultCompactionThreshold = 1000

	// DefaultBaseDir is the default staging directory for queue files.
	DefaultBaseDir = "./index-staging"
)

type options struct {
	baseDir             string
	compactionThreshold int
	queueFactory        QueueFactory
	logger              *Logger
	metrics             MetricsCollector
	fifoOptions         []func(*fifoq.Options)
}

// Option configures a Store or a standalone ShardQueue.
type Option func(*options)

// WithBaseDir sets the directory the default file-backed queues live in.
// The directory is created on demand.
func WithBaseDir(dir string) Option {
	return func(o *options) {
		o.baseDir = dir
	}
}

// WithCompactionThreshold overrides the number of delivered operations between
// compaction passes. Values <= 0 disable threshold-based compaction.
func WithCompactionThreshold(n int) Option {
	return func(o *options) {
		o.compactionThreshold = n
	}
}

// WithQueueFactory replaces the durable queue backend. The factory is handed
// the deterministic on-disk identifier ("<shard>P" / "<shard>S") and must map
// equal identifiers to the same persisted state across restarts.
//
// When a factory is set, WithBaseDir and WithFIFOOptions are ignored.
func WithQueueFactory(f QueueFactory) Option {
	return func(o *options) {
		o.queueFactory = f
	}
}

// WithFIFOOptions forwards options to the default file-backed queues, e.g. to
// enable compression or synchronous writes.
func WithFIFOOptions(optFns ...func(*fifoq.Options)) Option {
	return func(o *options) {
		o.fifoOptions = append(o.fifoOptions, optFns...)
	}
}

// WithLogger sets the logger. If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetrics sets the metrics collector. If nil is passed, metrics are
// disabled.
func WithMetrics(m MetricsCollector) Option {
	return func(o *options) {
		if m == nil {
			m = NoopMetricsCollector{}
		}
		o.metrics = m
	}
}

func newOptions(optFns ...Option) options {
	opts := options{
		baseDir:             DefaultBaseDir,
		compactionThreshold: DefaultCompactionThreshold,
		logger:              NoopLogger(),
		metrics:             NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.queueFactory == nil {
		baseDir := opts.baseDir
		fifoOpts := opts.fifoOptions
		opts.queueFactory = func(id string) (DurableQueue, error) {
			return fifoq.Open(baseDir, id, fifoOpts...)
		}
	}
	return opts
}
