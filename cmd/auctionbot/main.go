package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	// Register store drivers so they are available via store.Open.
	_ "github.com/jensholdgaard/squad-auction/internal/store/postgres"
	_ "github.com/jensholdgaard/squad-auction/internal/store/sqlite"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "auctionbot",
		Short:         "Live player auction with squad budget checks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "path to configuration file (environment variables override it)")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newReserveCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return root
}
