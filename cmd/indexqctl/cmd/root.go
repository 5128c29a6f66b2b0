// Package cmd implements the indexqctl command line tool for inspecting and
// maintaining index staging queues on disk.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hupe1980/indexq/config"
)

var (
	dirFlag    string
	configFlag string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "indexqctl",
	Short: "Inspect and maintain index staging queues",
	Long: `indexqctl operates directly on the on-disk staging queues of a node.

Run it only while the owning process is stopped: the queue files are
single-owner and concurrent access corrupts them.

Examples:
  indexqctl stats --dir ./index-staging        # Per-shard queue depths
  indexqctl dump 3 --dir ./index-staging       # Print shard 3's buffered ops
  indexqctl compact --dir ./index-staging      # Reclaim space on all shards
  indexqctl drain --dir ./index-staging        # Consume and print all ops`,
	PersistentPreRunE: loadConfig,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dirFlag, "dir", "d", "", "staging directory (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "path to a YAML/JSON config file")

	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(compactCmd)
	rootCmd.AddCommand(drainCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if configFlag != "" {
		loaded, err := config.Load(configFlag)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}
	if dirFlag != "" {
		cfg.BaseDir = dirFlag
	}
	return nil
}

// primaryQueuePattern matches the on-disk artifacts of a shard's primary
// queue: "<shard>P.q" for the file backend, directory "<shard>P" for pebble.
var primaryQueuePattern = regexp.MustCompile(`^(\d+)P(\.q)?$`)

// localShards discovers the shard indices with queue state in the staging
// directory.
func localShards() ([]int, error) {
	entries, err := os.ReadDir(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list staging directory: %w", err)
	}

	shards := make([]int, 0, len(entries))
	for _, e := range entries {
		m := primaryQueuePattern.FindStringSubmatch(filepath.Base(e.Name()))
		if m == nil {
			continue
		}
		shard, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		shards = append(shards, shard)
	}
	sort.Ints(shards)
	return shards, nil
}

func parseShardArg(arg string) (int, error) {
	shard, err := strconv.Atoi(arg)
	if err != nil || shard < 0 {
		return 0, fmt.Errorf("invalid shard index: %q", arg)
	}
	return shard, nil
}
