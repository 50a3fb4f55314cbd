package main

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// clientCmd groups the operator-facing worker-registry commands (list,
// deactivate). The loop itself lives under workerCmd's "run"
// subcommand.
func clientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "client",
		Short:   "Inspect and manage registered workers",
		Aliases: []string{"clients"},
	}
	cmd.AddCommand(clientListCmd())
	cmd.AddCommand(clientDeactivateCmd())
	return cmd
}

func clientListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := newClient().ListWorkers(rootCtx)
			if err != nil {
				return err
			}
			printResult(list, func() {
				for _, w := range list {
					printf("%s\t%s\tactive=%v\tcpu=%d acc=%d\n", w.ID, w.Name, w.IsActive, w.Capacity.CPU, w.Capacity.Accelerators)
				}
			})
			return nil
		},
	}
}

func clientDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <id>",
		Short: "Deactivate a worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := newClient().DeactivateWorker(rootCtx, args[0])
			if err != nil {
				return err
			}
			printf("deactivated worker %s\n", w.ID)
			return nil
		},
	}
}

// newWorkerID generates a worker id on first registration when the
// operator hasn't supplied one via --id.
func newWorkerID() string {
	return uuid.NewString()
}
