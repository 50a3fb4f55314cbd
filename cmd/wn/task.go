package main

import (
	"github.com/spf13/cobra"
)

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "task",
		Short:   "Manage tasks",
		Aliases: []string{"tasks"},
	}
	cmd.AddCommand(taskCreateCmd())
	cmd.AddCommand(taskListCmd())
	return cmd
}

func taskCreateCmd() *cobra.Command {
	var (
		project      string
		command      string
		cpu          int
		accelerators int
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := resolveProject(project)
			if err != nil {
				return err
			}
			t, err := newClient().CreateTask(rootCtx, p.ID, args[0], command, cpu, accelerators)
			if err != nil {
				return err
			}
			printResult(t, func() {
				printf("created task %d (%s)\n", t.ID, t.Name)
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project name or id")
	cmd.Flags().StringVar(&command, "command", "", "command template, {param} placeholders substituted from job parameters")
	cmd.Flags().IntVar(&cpu, "cpu", 0, "required cpu count")
	cmd.Flags().IntVar(&accelerators, "accelerators", 0, "required accelerator count")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func taskListCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks in a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := resolveProject(project)
			if err != nil {
				return err
			}
			list, err := newClient().ListTasks(rootCtx, p.ID)
			if err != nil {
				return err
			}
			printResult(list, func() {
				for _, t := range list {
					printf("%d\t%s\tcpu=%d acc=%d\n", t.ID, t.Name, t.RequiredCPU, t.RequiredAccelerators)
				}
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project name or id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}
