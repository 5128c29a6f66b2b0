package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print per-shard queue depths",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		shards, err := localShards()
		if err != nil {
			return err
		}
		if len(shards) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no shard queues found")
			return nil
		}

		factory := cfg.QueueFactory()

		fmt.Fprintf(cmd.OutOrStdout(), "%-8s %-10s %-12s\n", "SHARD", "BUFFERED", "UNCONFIRMED")
		for _, shard := range shards {
			primary, err := factory(fmt.Sprintf("%dP", shard))
			if err != nil {
				return fmt.Errorf("failed to open shard %d primary queue: %w", shard, err)
			}
			buffered := primary.Size()
			if err := primary.Close(); err != nil {
				return err
			}

			secondary, err := factory(fmt.Sprintf("%dS", shard))
			if err != nil {
				return fmt.Errorf("failed to open shard %d secondary queue: %w", shard, err)
			}
			unconfirmed := secondary.Size()
			if err := secondary.Close(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%-8d %-10d %-12d\n", shard, buffered, unconfirmed)
		}
		return nil
	},
}
