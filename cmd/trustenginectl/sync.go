package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/trustmesh/trustmesh-core/block"
)

// syncCmd runs one round of fetch-and-apply against the shared block log,
// including pinning the trustchain on first run: Session.ApplyIncoming
// handles every nature, trustchain-creation included, the same way
// Session.RunSyncLoop does.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch and apply blocks from the shared block log once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, m, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer sess.Close()

		blocks, err := sess.Transport.GetUserHistoryByDeviceIDs(context.Background(),
			[][block.IDSize]byte{sess.DeviceID})
		if err != nil {
			return err
		}

		applied, skipped := 0, 0
		for _, blk := range blocks {
			if err := sess.ApplyIncoming(blk); err != nil {
				jww.WARN.Printf("dropped block (nature %s): %v", blk.Nature, err)
				skipped++
				continue
			}
			applied++
		}

		fmt.Printf("applied %d block(s), skipped %d, for device %s\n", applied, skipped, m.DeviceID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
