package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openalpha/spotex/account"
	"github.com/openalpha/spotex/config"
	"github.com/openalpha/spotex/engine"
	"github.com/openalpha/spotex/ledger"
	"github.com/openalpha/spotex/metrics"
)

func newSeedCmd() *cobra.Command {
	var adminName string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Bootstrap the database with the cash instrument and an admin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			ctx := cmd.Context()
			store, err := ledger.Open(cfg.DBDriver, cfg.DBDSN, log)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Bootstrap(ctx); err != nil {
				return err
			}

			col := metrics.NewCollector()
			eng := engine.New(store, log, col, nil)
			accounts := account.NewService(store, eng, log)
			if err := accounts.EnsureQuoteInstrument(ctx); err != nil {
				return err
			}

			admin, err := accounts.CreateAdmin(ctx, adminName)
			if err != nil {
				return err
			}
			fmt.Printf("admin created\n  id:      %s\n  api key: %s\n", admin.ID, admin.APIKey)
			return nil
		},
	}
	cmd.Flags().StringVar(&adminName, "name", "admin", "name for the bootstrap admin user")
	return cmd
}
