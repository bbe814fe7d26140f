package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fwdtrain/fwdtrain/train/ledger"
)

var (
	ledgerLimit int      // Max uploads listed by `ledger pending`
	ackIDs      []string // Upload IDs marked delivered by `ledger ack`
)

// ledgerCmd groups upload ledger subcommands
var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the local upload ledger",
}

var ledgerPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List uploads that have not been delivered",
	Run: func(cmd *cobra.Command, args []string) {
		if err := listPending(context.Background(), cmd.OutOrStdout(), ledgerPath, ledgerLimit); err != nil {
			logrus.Fatalf("Listing pending uploads: %v", err)
		}
	},
}

var ledgerAckCmd = &cobra.Command{
	Use:   "ack",
	Short: "Mark uploads as delivered",
	Run: func(cmd *cobra.Command, args []string) {
		if err := ackUploads(context.Background(), ledgerPath, ackIDs, time.Now()); err != nil {
			logrus.Fatalf("Acknowledging uploads: %v", err)
		}
	},
}

func openLedger(path string) (*ledger.Store, error) {
	if path == "" {
		return nil, fmt.Errorf("--ledger is required")
	}
	return ledger.Open(path)
}

// listPending prints pending uploads oldest first, one JSON object each.
func listPending(ctx context.Context, w io.Writer, path string, limit int) error {
	store, err := openLedger(path)
	if err != nil {
		return err
	}
	defer store.Close()

	pending, err := store.Pending(ctx, limit)
	if err != nil {
		return err
	}
	for _, u := range pending {
		if err := printJSON(w, u); err != nil {
			return err
		}
	}
	logrus.Infof("%d pending uploads", len(pending))
	return nil
}

func ackUploads(ctx context.Context, path string, ids []string, now time.Time) error {
	if len(ids) == 0 {
		return fmt.Errorf("at least one --id is required")
	}
	store, err := openLedger(path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.MarkSent(ctx, now, ids...)
}

func init() {
	ledgerCmd.PersistentFlags().StringVar(&ledgerPath, "ledger", "", "Path to SQLite upload ledger")
	ledgerPendingCmd.Flags().IntVar(&ledgerLimit, "limit", 0, "Max uploads to list (0 = all)")
	ledgerAckCmd.Flags().StringSliceVar(&ackIDs, "id", nil, "Upload ID to mark delivered (repeatable)")

	ledgerCmd.AddCommand(ledgerPendingCmd, ledgerAckCmd)
	rootCmd.AddCommand(ledgerCmd)
}
