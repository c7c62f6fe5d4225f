package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func replayWebhooksCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "replay-webhooks",
		Short: "Re-ingest stored webhook deliveries that are pending or due for retry",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.close()

			processed, failed, err := app.webhooks.ReplayPending(context.Background(), limit)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "processed: %d, failed: %d\n", processed, failed)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of events to replay")

	return cmd
}
