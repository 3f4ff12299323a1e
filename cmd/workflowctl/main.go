// Package main implements the workflowctl CLI for manual operations
// against the workflowforge HTTP API (§6's inbound events): creating
// workflows and approving, rejecting, or requesting changes to a gated
// stage.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the workflowforge API server.
	serverURL string
	version   = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "workflowctl",
	Short: "CLI for workflowforge API operations",
	Long: `workflowctl is a command-line interface for interacting with the
workflowforge HTTP API. It provides commands for creating feature
workflows and for approving, rejecting, or requesting changes to a gated
stage.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "workflowforge API server URL")
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(artifactCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(changesCmd)
}
