// Command wn is the WhatsNext operator and worker CLI: it drives the
// broker's HTTP API for project/task/job/client management and hosts the
// worker dispatch loop (`wn worker run`). Exit codes: 0 success, 2 for a
// Validation-kind error (a command's own argument checks, or a 400 from
// the broker), 1 for any other error. Cobra's own flag-parsing and
// argument-count errors are not Validation-kind and exit 1. Cobra command
// structure mirrors the teacher's cmd/bd layout (one file per command
// group, each added to the root inside rootCmd).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/whatsnext/whatsnext/internal/client"
	"github.com/whatsnext/whatsnext/internal/config"
	"github.com/whatsnext/whatsnext/internal/werrors"
)

var version = "dev"

var (
	flagServer string
	flagAPIKey string
	flagJSON   bool

	rootCtx context.Context
	cfg     config.Config
)

func main() {
	os.Exit(run())
}

func run() int {
	root := rootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitCodeFor(err)
	}
	return 0
}

func exitCodeFor(err error) int {
	switch werrors.KindOf(err) {
	case werrors.KindValidation:
		return 2
	default:
		return 1
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wn",
		Short:         "WhatsNext operator and worker CLI",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			rootCtx = cmd.Context()
			if rootCtx == nil {
				rootCtx = context.Background()
			}

			loader, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cfg = loader.Current()

			if flagServer != "" {
				cfg.Server.Host, cfg.Server.Port = splitHostPort(flagServer)
			}
			if flagAPIKey != "" {
				cfg.Server.APIKey = flagAPIKey
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&flagServer, "server", "", "broker address host:port (default from config)")
	root.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "broker API key (default from config)")
	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit machine-readable JSON output")

	root.AddCommand(projectCmd())
	root.AddCommand(taskCmd())
	root.AddCommand(jobCmd())
	root.AddCommand(clientCmd())
	root.AddCommand(workerCmd())

	return root
}

func newClient() *client.Client {
	return client.New(client.Options{
		BaseURL: cfg.BaseURL(),
		APIKey:  cfg.Server.APIKey,
	})
}

func splitHostPort(addr string) (string, int) {
	host, portStr := addr, ""
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			host, portStr = addr[:i], addr[i+1:]
			break
		}
	}
	port := 0
	fmt.Sscanf(portStr, "%d", &port)
	if port == 0 {
		port = 7420
	}
	return host, port
}
