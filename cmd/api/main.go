package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "walletcore",
	Short: "Custodial wallet ledger and transaction engine",
	Long: `walletcore serves the wallet HTTP API: agent deposits, card funding through the
payment gateway, transfers, withdrawals and investment products.
Configuration is read from the environment.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
