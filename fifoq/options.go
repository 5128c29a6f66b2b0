package fifoq

// Options contains configuration for a queue.
type Options struct {
	// SyncWrites fsyncs the data file after every enqueue and the head file
	// after every dequeue. Slower but loses nothing on power failure. When
	// false (the default), durability is bounded by the OS page cache; a
	// process crash alone loses nothing either way.
	SyncWrites bool

	// Compress enables zstd compression of entry payloads. The flag is
	// recorded in the file header, so reopening an existing queue keeps the
	// format it was created with.
	Compress bool

	// CompressionLevel sets the zstd compression level (1-22). Default 3.
	CompressionLevel int
}

// DefaultOptions are the default queue options.
var DefaultOptions = Options{
	SyncWrites:       false,
	Compress:         false,
	CompressionLevel: 3,
}
