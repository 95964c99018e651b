// Package main is the entry point for the magma-calc server.
//
// The main package stays minimal: it reads configuration, builds the logger
// and the sandbox executor, and hands them to internal/server. All request
// handling lives in the imported packages.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "magma-calc",
	Short: "magma-calc runs untrusted Magma code behind a rate-limited HTTP API.",
	Long: `magma-calc accepts Magma programs over HTTP, runs each one in a sandbox
with time, CPU and memory limits, and returns the parsed output together with
interpreter metadata. Requests are rate limited per client address and the
number of concurrent executions is capped.`,
	RunE:          runServe, // Default to serve.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, tokenCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
