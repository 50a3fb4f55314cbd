package main

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/whatsnext/whatsnext/internal/werrors"
)

func jobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "job",
		Short:   "Manage jobs",
		Aliases: []string{"jobs"},
	}
	cmd.AddCommand(jobCreateCmd())
	cmd.AddCommand(jobListCmd())
	cmd.AddCommand(jobGetCmd())
	cmd.AddCommand(jobRetryCmd())
	cmd.AddCommand(jobDependenciesCmd())
	return cmd
}

func jobCreateCmd() *cobra.Command {
	var (
		project      string
		task         string
		params       []string
		priority     int
		dependencies []string
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := resolveProject(project)
			if err != nil {
				return err
			}
			taskID, ok := parseID(task)
			if !ok {
				t, err := newClient().ListTasks(rootCtx, p.ID)
				if err != nil {
					return err
				}
				for _, candidate := range t {
					if candidate.Name == task {
						taskID = candidate.ID
						ok = true
						break
					}
				}
				if !ok {
					return werrors.Validation("task %q not found in project %q", task, p.Name)
				}
			}

			parameters, err := parseKeyValues(params)
			if err != nil {
				return err
			}
			deps, err := parseDependencyIDs(dependencies)
			if err != nil {
				return err
			}

			j, err := newClient().CreateJob(rootCtx, p.ID, taskID, args[0], parameters, priority, deps)
			if err != nil {
				return err
			}
			printResult(j, func() {
				printf("created job %d (%s) status=%s\n", j.ID, j.Name, j.Status)
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project name or id")
	cmd.Flags().StringVar(&task, "task", "", "task name or id")
	cmd.Flags().StringArrayVar(&params, "param", nil, "job parameter key=value, may repeat")
	cmd.Flags().IntVar(&priority, "priority", 0, "dispatch priority, higher runs first")
	cmd.Flags().StringArrayVar(&dependencies, "depends-on", nil, "dependency job id, may repeat")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func jobListCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs in a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := resolveProject(project)
			if err != nil {
				return err
			}
			jobs, err := newClient().ListJobs(rootCtx, p.ID)
			if err != nil {
				return err
			}
			printResult(jobs, func() {
				for _, j := range jobs {
					printf("%d\t%s\t%s\tpriority=%d\n", j.ID, j.Name, j.Status, j.Priority)
				}
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project name or id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func jobGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, ok := parseID(args[0])
			if !ok {
				return werrors.Validation("invalid job id %q", args[0])
			}
			j, err := newClient().GetJob(rootCtx, id)
			if err != nil {
				return err
			}
			printResult(j, func() {
				printf("%d\t%s\t%s\tpriority=%d\n", j.ID, j.Name, j.Status, j.Priority)
			})
			return nil
		},
	}
}

func jobRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Retry a BLOCKED or FAILED job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, ok := parseID(args[0])
			if !ok {
				return werrors.Validation("invalid job id %q", args[0])
			}
			j, err := newClient().RetryJob(rootCtx, id)
			if err != nil {
				return err
			}
			printResult(j, func() {
				printf("job %d now %s\n", j.ID, j.Status)
			})
			return nil
		},
	}
}

func jobDependenciesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dependencies <id>",
		Short: "Show a job's dependency report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, ok := parseID(args[0])
			if !ok {
				return werrors.Validation("invalid job id %q", args[0])
			}
			rep, err := newClient().JobDependencies(rootCtx, id)
			if err != nil {
				return err
			}
			printResult(rep, func() {
				printf("%s (%s): all_completed=%v has_failed=%v\n", rep.JobName, rep.Status, rep.AllCompleted, rep.HasFailed)
				for _, d := range rep.Dependencies {
					printf("  - %d %s\n", d.JobID, d.JobName)
				}
			})
			return nil
		},
	}
}

func parseKeyValues(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, werrors.Validation("invalid --param %q, expected key=value", p)
		}
		out[k] = v
	}
	return out, nil
}

func parseDependencyIDs(ids []string) (map[int64]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	out := make(map[int64]string, len(ids))
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, werrors.Validation("invalid --depends-on %q, expected a job id", raw)
		}
		out[id] = ""
	}
	return out, nil
}
