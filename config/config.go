// Package config loads indexq staging configuration from YAML or JSON files.
// All configuration is immutable after the store is opened.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Backend selects the durable queue implementation.
type Backend string

const (
	// BackendFile is the file-backed fifoq implementation (default).
	BackendFile Backend = "file"
	// BackendPebble stores queues in per-queue Pebble databases.
	BackendPebble Backend = "pebble"
)

// Config is the complete staging queue configuration.
type Config struct {
	// BaseDir is the directory queue files are stored in.
	// Default: "./index-staging"
	BaseDir string `json:"base_dir,omitempty" yaml:"base_dir"`

	// Backend selects the durable queue implementation ("file" or "pebble").
	// Default: "file"
	Backend Backend `json:"backend,omitempty" yaml:"backend"`

	// CompactionThreshold is the number of delivered operations between
	// compaction passes on a shard's queue pair. Zero disables it.
	// Default: 1000
	CompactionThreshold int `json:"compaction_threshold,omitempty" yaml:"compaction_threshold"`

	// SyncWrites fsyncs after every queue write. Default: false
	SyncWrites bool `json:"sync_writes,omitempty" yaml:"sync_writes"`

	// Compress enables zstd compression of queue entries (file backend only).
	// Default: false
	Compress bool `json:"compress,omitempty" yaml:"compress"`

	// CompressionLevel sets the zstd level (1-22). Default: 3
	CompressionLevel int `json:"compression_level,omitempty" yaml:"compression_level"`

	// Drain configures the consumer loop.
	Drain DrainConfig `json:"drain,omitempty" yaml:"drain"`
}

// DrainConfig configures the drainer.
type DrainConfig struct {
	// BatchSize caps operations confirmed per session. Default: 100
	BatchSize int `json:"batch_size,omitempty" yaml:"batch_size"`

	// SessionsPerSecond paces session starts. Zero means unlimited.
	SessionsPerSecond float64 `json:"sessions_per_second,omitempty" yaml:"sessions_per_second"`

	// DiscardCorrupt confirms entries that fail to decode instead of
	// stopping the shard's drain. Default: false
	DiscardCorrupt bool `json:"discard_corrupt,omitempty" yaml:"discard_corrupt"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		BaseDir:             "./index-staging",
		Backend:             BackendFile,
		CompactionThreshold: 1000,
		CompressionLevel:    3,
		Drain: DrainConfig{
			BatchSize: 100,
		},
	}
}

// Load reads a configuration file. The format is chosen by extension:
// .yaml/.yml or .json. Unset fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is user-supplied by design
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %q", filepath.Ext(path))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.BaseDir == "" {
		return fmt.Errorf("base_dir must not be empty")
	}
	switch c.Backend {
	case BackendFile, BackendPebble:
	default:
		return fmt.Errorf("unknown backend: %q", c.Backend)
	}
	if c.Backend == BackendPebble && c.Compress {
		return fmt.Errorf("compress is only supported by the file backend")
	}
	if c.CompressionLevel < 1 || c.CompressionLevel > 22 {
		return fmt.Errorf("compression_level must be in [1,22], got %d", c.CompressionLevel)
	}
	if c.CompactionThreshold < 0 {
		return fmt.Errorf("compaction_threshold must not be negative, got %d", c.CompactionThreshold)
	}
	if c.Drain.BatchSize <= 0 {
		return fmt.Errorf("drain.batch_size must be positive, got %d", c.Drain.BatchSize)
	}
	if c.Drain.SessionsPerSecond < 0 {
		return fmt.Errorf("drain.sessions_per_second must not be negative, got %f", c.Drain.SessionsPerSecond)
	}
	return nil
}
