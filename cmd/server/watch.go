package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wekeepgrowing/qris-gateway/pkg/messaging"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print status changes published on the redis events channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer log.Sync()

			if cfg.Events.Driver != "redis" {
				return fmt.Errorf("watch requires events.driver redis, got %s", cfg.Events.Driver)
			}

			client, err := messaging.NewRedisClient(cfg.Events.Redis.Addr, cfg.Events.Redis.Password, cfg.Events.Redis.DB)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			messages, err := client.Subscribe(ctx, cfg.Events.Topic)
			if err != nil {
				return err
			}

			for msg := range messages {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", msg.Time.Format("15:04:05.000"), msg.Payload)
			}
			return nil
		},
	}
}
