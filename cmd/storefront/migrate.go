package main

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"storefront-payments/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the payment tables and seed currencies",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := context.Background()
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		log.Printf("schema applied to %s", cfg.Database.Name)
		return nil
	},
}
