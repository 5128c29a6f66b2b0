package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "./index-staging", cfg.BaseDir)
	assert.Equal(t, BackendFile, cfg.Backend)
	assert.Equal(t, 1000, cfg.CompactionThreshold)
	assert.Equal(t, 100, cfg.Drain.BatchSize)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "indexq.yaml", `
base_dir: /var/lib/indexq
backend: pebble
sync_writes: true
drain:
  batch_size: 25
  sessions_per_second: 2.5
  discard_corrupt: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/indexq", cfg.BaseDir)
	assert.Equal(t, BackendPebble, cfg.Backend)
	assert.True(t, cfg.SyncWrites)
	assert.Equal(t, 25, cfg.Drain.BatchSize)
	assert.Equal(t, 2.5, cfg.Drain.SessionsPerSecond)
	assert.True(t, cfg.Drain.DiscardCorrupt)

	// Unset fields keep their defaults.
	assert.Equal(t, 1000, cfg.CompactionThreshold)
	assert.Equal(t, 3, cfg.CompressionLevel)
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "indexq.json", `{
  "base_dir": "/tmp/staging",
  "compress": true,
  "compression_level": 9
}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/staging", cfg.BaseDir)
	assert.Equal(t, BackendFile, cfg.Backend)
	assert.True(t, cfg.Compress)
	assert.Equal(t, 9, cfg.CompressionLevel)
}

func TestLoadErrors(t *testing.T) {
	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("UnsupportedExtension", func(t *testing.T) {
		_, err := Load(writeConfig(t, "indexq.toml", "base_dir = 'x'"))
		assert.Error(t, err)
	})

	t.Run("MalformedYAML", func(t *testing.T) {
		_, err := Load(writeConfig(t, "indexq.yaml", "base_dir: [unclosed"))
		assert.Error(t, err)
	})

	t.Run("InvalidContent", func(t *testing.T) {
		_, err := Load(writeConfig(t, "indexq.yaml", "backend: redis"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "EmptyBaseDir", mutate: func(c *Config) { c.BaseDir = "" }},
		{name: "UnknownBackend", mutate: func(c *Config) { c.Backend = "redis" }},
		{name: "PebbleWithCompress", mutate: func(c *Config) { c.Backend = BackendPebble; c.Compress = true }},
		{name: "CompressionLevelTooLow", mutate: func(c *Config) { c.CompressionLevel = 0 }},
		{name: "CompressionLevelTooHigh", mutate: func(c *Config) { c.CompressionLevel = 23 }},
		{name: "NegativeCompactionThreshold", mutate: func(c *Config) { c.CompactionThreshold = -1 }},
		{name: "ZeroBatchSize", mutate: func(c *Config) { c.Drain.BatchSize = 0 }},
		{name: "NegativeRate", mutate: func(c *Config) { c.Drain.SessionsPerSecond = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestStoreOptions(t *testing.T) {
	cfg := Default()
	cfg.BaseDir = t.TempDir()

	// The options must produce a working store for both backends.
	for _, backend := range []Backend{BackendFile, BackendPebble} {
		cfg.Backend = backend
		opts := cfg.StoreOptions()
		assert.NotEmpty(t, opts, "backend %s", backend)
	}
}

func TestDrainOptions(t *testing.T) {
	cfg := Default()
	assert.Len(t, cfg.DrainOptions(), 2)

	cfg.Drain.SessionsPerSecond = 10
	assert.Len(t, cfg.DrainOptions(), 3)
}
