package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "jitguardctl",
	Short: "jitguardctl inspects and exercises a JIT entitlement service's core",
	Long: `jitguardctl is an operator CLI for the entitlement catalog and activation
engine: it verifies approval tokens and runs readiness diagnostics against
collaborators reachable from wherever it is invoked.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(diagnoseCmd)
}
