package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/indexq"
	"github.com/hupe1980/indexq/codec"
)

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Consume all buffered operations and print them as JSON",
	Long: `drain opens every shard queue in the staging directory, delivers the
buffered operations to stdout as JSON lines and confirms them. Confirmed
operations are removed from disk.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		shards, err := localShards()
		if err != nil {
			return err
		}
		if len(shards) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no shard queues found")
			return nil
		}

		numShards := shards[len(shards)-1] + 1
		router := indexq.NewHashRouter(numShards, shards)

		store, err := indexq.NewStore(router, cfg.StoreOptions()...)
		if err != nil {
			return err
		}
		defer store.Close()

		var seq int64
		handler := func(ctx context.Context, shard int, op indexq.Operation) error {
			view := dumpOperation{
				Seq:            seq,
				Kind:           op.Kind.String(),
				DeleteIDs:      op.DeleteIDs,
				DeleteTenantID: op.DeleteTenantID,
				DeleteTable:    op.DeleteTable,
			}
			for _, r := range op.Records {
				view.Records = append(view.Records, dumpRecord{ID: r.ID, Data: r.Data})
			}
			seq++

			out, err := codec.Default.Marshal(view)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		}

		drainer := indexq.NewDrainer(store, handler, cfg.DrainOptions()...)

		ctx := cmd.Context()
		for {
			if err := drainer.DrainOnce(ctx); err != nil {
				return err
			}
			done := true
			for _, shard := range store.Shards() {
				q, err := store.Queue(shard)
				if err != nil {
					return err
				}
				if !q.IsEmpty() {
					done = false
					break
				}
			}
			if done {
				return nil
			}
		}
	},
}
