package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wekeepgrowing/qris-gateway/internal/infrastructure/database"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the payment and webhook tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer log.Sync()

			if cfg.Storage.Driver != "postgres" {
				return fmt.Errorf("migrate requires storage.driver postgres, got %s", cfg.Storage.Driver)
			}

			db, err := database.NewConnection(&cfg.Database, cfg.Log.Development, log)
			if err != nil {
				return err
			}
			defer database.Close(db, log)

			return database.Migrate(db, log)
		},
	}
}
