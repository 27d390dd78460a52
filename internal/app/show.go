package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints the most recent delivery ledger rows.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	deliveries, err := store.ListRecentDeliveries(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(deliveries) == 0 {
		fmt.Fprintln(os.Stdout, "no deliveries found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Sent (UTC)\tAlert\tChannel\tStatus\tDelivered (UTC)")

	for _, d := range deliveries {
		deliveredAt := "-"
		if d.DeliveredAt != nil {
			deliveredAt = d.DeliveredAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(
			writer,
			"%s\t%d\t%s\t%s\t%s\n",
			d.SendAt.UTC().Format(time.RFC3339),
			d.AlertID,
			d.Channel,
			d.Status,
			deliveredAt,
		)
	}

	writer.Flush()
	return nil
}
