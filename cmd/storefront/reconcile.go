package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"storefront-payments/internal/database"
	"storefront-payments/internal/repo"
	"storefront-payments/internal/worker"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "List orders marked paid that have no payment record",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger()

		ctx := context.Background()
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		rw := worker.NewReconciliationWorker(repo.NewOrderRepo(db), cfg.Reconcile.OlderThan, cfg.Reconcile.Interval, logger)
		orphans, err := rw.RunOnce(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(orphans) == 0 {
			fmt.Fprintln(out, "nothing to reconcile")
			return nil
		}
		for _, o := range orphans {
			fmt.Fprintf(out, "%d\t%s\t%s\t%s\n", o.ID, o.BusinessNumber, o.Total.String(), o.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}
