package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "pearlsonic",
		Short:        "Pearlsonic - credit-metered music generation backend",
		Version:      Version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().Int64Var(&nodeID, "node", 1, "snowflake node id for this process")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(ledgerCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
