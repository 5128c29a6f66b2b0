package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/indexq"
	"github.com/hupe1980/indexq/codec"
)

// dumpRecord is the JSON view of a buffered record.
type dumpRecord struct {
	ID   string `json:"id"`
	Data []byte `json:"data,omitempty"`
}

// dumpOperation is the JSON view of a buffered operation.
type dumpOperation struct {
	Seq            int64        `json:"seq"`
	Kind           string       `json:"kind"`
	Records        []dumpRecord `json:"records,omitempty"`
	DeleteIDs      []string     `json:"delete_ids,omitempty"`
	DeleteTenantID int64        `json:"delete_tenant_id,omitempty"`
	DeleteTable    string       `json:"delete_table,omitempty"`
}

var dumpCmd = &cobra.Command{
	Use:   "dump <shard>",
	Short: "Print a shard's buffered operations without consuming them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		shard, err := parseShardArg(args[0])
		if err != nil {
			return err
		}

		factory := cfg.QueueFactory()
		q, err := factory(fmt.Sprintf("%dP", shard))
		if err != nil {
			return fmt.Errorf("failed to open shard %d primary queue: %w", shard, err)
		}
		defer q.Close()

		// Rotate the queue once: each entry is read from the head, appended to
		// the tail and removed from the head. After Size() rotations the queue
		// holds the same entries in the same order.
		n := q.Size()
		for i := int64(0); i < n; i++ {
			data, err := q.Peek()
			if err != nil {
				return fmt.Errorf("failed to read shard %d entry %d: %w", shard, i, err)
			}
			if err := q.Enqueue(data); err != nil {
				return fmt.Errorf("failed to rotate shard %d entry %d: %w", shard, i, err)
			}
			if _, err := q.Dequeue(); err != nil {
				return fmt.Errorf("failed to rotate shard %d entry %d: %w", shard, i, err)
			}

			var op indexq.Operation
			if err := op.UnmarshalBinary(data); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "shard %d entry %d: undecodable: %v\n", shard, i, err)
				continue
			}

			view := dumpOperation{
				Seq:            i,
				Kind:           op.Kind.String(),
				DeleteIDs:      op.DeleteIDs,
				DeleteTenantID: op.DeleteTenantID,
				DeleteTable:    op.DeleteTable,
			}
			for _, r := range op.Records {
				view.Records = append(view.Records, dumpRecord{ID: r.ID, Data: r.Data})
			}

			out, err := codec.Default.Marshal(view)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
		}
		return nil
	},
}
