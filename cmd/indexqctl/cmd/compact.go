package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Reclaim disk space held by consumed entries on all shards",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		shards, err := localShards()
		if err != nil {
			return err
		}

		factory := cfg.QueueFactory()
		for _, shard := range shards {
			for _, suffix := range []string{"P", "S"} {
				id := fmt.Sprintf("%d%s", shard, suffix)
				q, err := factory(id)
				if err != nil {
					return fmt.Errorf("failed to open queue %s: %w", id, err)
				}
				if err := q.Compact(); err != nil {
					_ = q.Close()
					return fmt.Errorf("failed to compact queue %s: %w", id, err)
				}
				if err := q.Close(); err != nil {
					return fmt.Errorf("failed to close queue %s: %w", id, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "shard %d compacted\n", shard)
		}
		return nil
	},
}
