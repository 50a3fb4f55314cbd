// Command whatsnextd is the WhatsNext broker daemon: it owns the job
// store, runs the scheduling engine, and serves the HTTP API described in
// spec.md §6. Structured as a single cobra root command the way the
// teacher's cmd/bd binary is, though the teacher itself has no long-running
// server subcommand to ground this on directly.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "whatsnextd",
		Short:         "WhatsNext job-queue broker daemon",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd())
	return root
}
