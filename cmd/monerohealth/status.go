package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/monero-ecosystem/monerohealth/internal/storage"
)

type statusStore interface {
	History(ctx context.Context, limit, offset int) ([]storage.Run, int, error)
	UptimePercent(ctx context.Context, last int) (float64, error)
}

func executeStatus(cmd *cobra.Command, db statusStore, limit int) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	runs, total, err := db.History(ctx, limit, 0)
	if err != nil {
		return fmt.Errorf("querying history: %w", err)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No check history. Run 'monerohealth serve' first.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECKED AT\tSTATUS\tLAST BLOCK\tRPC\tP2P\tHASH\tERROR")
	for _, r := range runs {
		hash := r.BlockHash
		if hash == "" {
			hash = "—"
		} else if len(hash) > 12 {
			hash = hash[:12]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.CheckedAt.Local().Format("2006-01-02 15:04:05"),
			r.Status,
			r.LastBlockStatus,
			r.RPCStatus,
			r.P2PStatus,
			hash,
			r.Error,
		)
	}
	w.Flush()

	pct, err := db.UptimePercent(ctx, total)
	if err != nil {
		return fmt.Errorf("calculating uptime: %w", err)
	}
	fmt.Fprintf(out, "\nShowing %d of %d runs. OK in %.1f%% of all runs.\n", len(runs), total, pct)
	return nil
}
