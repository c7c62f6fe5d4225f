package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wekeepgrowing/qris-gateway/internal/domain/dto"
	domainErrors "github.com/wekeepgrowing/qris-gateway/internal/domain/errors"
)

func pollCmd() *cobra.Command {
	var (
		attempts int
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "poll <reference>",
		Short: "Poll the gateway until the payment is terminal",
		Long: `Poll the gateway for one payment until it reaches COMPLETED, FAILED or EXPIRED.

Examples:
  qris-gateway poll INV-1001
  qris-gateway poll INV-1001 --attempts 20 --interval 3s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			payment, err := app.qris.PollByReference(ctx, args[0], attempts, interval)
			if payment != nil {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				if encErr := encoder.Encode(dto.NewPaymentResponse(payment)); encErr != nil {
					return encErr
				}
			}
			if domainErrors.IsTimeout(err) {
				cmd.PrintErrln(err)
				return nil
			}
			return err
		},
	}

	cmd.Flags().IntVarP(&attempts, "attempts", "n", 0, "maximum number of status queries (default from config)")
	cmd.Flags().DurationVarP(&interval, "interval", "i", 0, "delay between queries (default from config)")

	return cmd
}
