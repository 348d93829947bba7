package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/congo-pay/walletcore/internal/config"
	"github.com/congo-pay/walletcore/internal/infra"
	"github.com/congo-pay/walletcore/internal/logging"
	"github.com/congo-pay/walletcore/internal/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending SQL migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().Bool("list", false, "Print the embedded migration versions and exit")
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	if list, _ := cmd.Flags().GetBool("list"); list {
		versions, err := migrations.Versions()
		if err != nil {
			return err
		}
		for _, v := range versions {
			fmt.Fprintln(os.Stdout, v)
		}
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.LogLevel)

	db, err := infra.NewPostgresPool(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := migrations.Run(cmd.Context(), db, logger)
	if err != nil {
		return err
	}
	logger.Info("migrations complete", "applied", applied)
	return nil
}
