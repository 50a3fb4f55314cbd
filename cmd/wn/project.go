package main

import (
	"github.com/spf13/cobra"

	"github.com/whatsnext/whatsnext/internal/types"
)

func projectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "project",
		Short:   "Manage projects",
		Aliases: []string{"projects"},
	}
	cmd.AddCommand(projectCreateCmd())
	cmd.AddCommand(projectListCmd())
	cmd.AddCommand(projectGetCmd())
	cmd.AddCommand(projectDeleteCmd())
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newClient().CreateProject(rootCtx, args[0], description)
			if err != nil {
				return err
			}
			printResult(p, func() {
				printf("created project %d (%s)\n", p.ID, p.Name)
			})
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "project description")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := newClient().ListProjects(rootCtx)
			if err != nil {
				return err
			}
			printResult(list, func() {
				for _, p := range list {
					printf("%d\t%s\t%s\n", p.ID, p.Name, p.Status)
				}
			})
			return nil
		},
	}
}

func projectGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <name-or-id>",
		Short: "Show one project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := resolveProject(args[0])
			if err != nil {
				return err
			}
			printResult(p, func() {
				printf("%d\t%s\t%s\t%s\n", p.ID, p.Name, p.Status, p.Description)
			})
			return nil
		},
	}
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name-or-id>",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := resolveProject(args[0])
			if err != nil {
				return err
			}
			if err := newClient().DeleteProject(rootCtx, p.ID); err != nil {
				return err
			}
			printf("deleted project %d\n", p.ID)
			return nil
		},
	}
}

// resolveProject accepts either a numeric id or a project name.
func resolveProject(ref string) (*types.Project, error) {
	c := newClient()
	if id, ok := parseID(ref); ok {
		return c.GetProject(rootCtx, id)
	}
	return c.GetProjectByName(rootCtx, ref)
}
