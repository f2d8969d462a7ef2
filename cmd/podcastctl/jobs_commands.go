package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"research-podcaster/internal/models"
	"research-podcaster/internal/pipeline"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and cancel generation jobs",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsStatusCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var status, category string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := models.JobFilter{Category: category, Limit: limit}
			if status != "" {
				st, err := pipeline.ParseStatus(status)
				if err != nil {
					return err
				}
				filter.Status = st
			}
			return ctx.withEnvironment(func(env *environment) error {
				jobs, err := env.store.ListJobs(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(jobColumns, buildJobRows(jobs)))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only jobs in this status")
	cmd.Flags().StringVar(&category, "category", "", "Only jobs in this category")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of jobs")
	return cmd
}

func newJobsStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEnvironment(func(env *environment) error {
				job, err := env.store.GetJob(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("job %s: %w", args[0], err)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(detailColumns, buildJobDetail(job)))
				return nil
			})
		},
	}
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a job that has not finished",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEnvironment(func(env *environment) error {
				job, err := env.store.FailJob(cmd.Context(), args[0], models.ErrorCancelled, "Cancelled by an administrator")
				if err != nil {
					return fmt.Errorf("cancel job %s: %w", args[0], err)
				}
				if job.TaskID != nil && env.canceler != nil {
					if err := env.canceler.CancelProcessing(*job.TaskID); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "warning: task %s not signalled: %v\n", *job.TaskID, err)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s cancelled\n", job.ID)
				return nil
			})
		},
	}
}
