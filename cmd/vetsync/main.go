package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "vetsync",
	Short: "Offline-first sync companion for the clinic system",
	Long: `vetsync keeps a local copy of clinic data on this workstation and
synchronizes it with the main server whenever a connection is available.
Records created while offline are queued and uploaded later; reference
data is downloaded from the server for the configured branch.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(branchesCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
