package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jensholdgaard/squad-auction/internal/config"
	"github.com/jensholdgaard/squad-auction/internal/store/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres schema migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cfg.Database.Driver != "postgres" {
				return fmt.Errorf("migrate only applies to the postgres driver, configured driver is %q", cfg.Database.Driver)
			}
			if err := postgres.Migrate(cfg.Database.URL()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
