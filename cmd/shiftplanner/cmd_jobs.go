package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shiftplanner/shiftplanner/cmd/shiftplanner/cli"
	"github.com/shiftplanner/shiftplanner/internal/app"
)

var scheduledPageSize int

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect the background generation queue",
}

var jobsInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show pending, active, retry and archived counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withJobs(cmd, func(jobsCLI *cli.JobsCLI) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			stats, err := jobsCLI.InspectQueue(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(stats)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue %s: pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
			return nil
		})
	},
}

var jobsScheduledCmd = &cobra.Command{
	Use:   "scheduled",
	Short: "List scheduled tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withJobs(cmd, func(jobsCLI *cli.JobsCLI) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			tasks, err := jobsCLI.ListScheduled(ctx, scheduledPageSize)
			if err != nil {
				return err
			}
			for _, task := range tasks {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", task.ID, task.Type, task.NextProcessAt.Format(time.RFC3339))
			}
			return nil
		})
	},
}

func initJobsFlags() {
	jobsScheduledCmd.Flags().IntVar(&scheduledPageSize, "size", 10, "Number of tasks to list")
	jobsCmd.AddCommand(jobsInspectCmd)
	jobsCmd.AddCommand(jobsScheduledCmd)
}

func withJobs(cmd *cobra.Command, fn func(*cli.JobsCLI) error) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	jobsCLI := cli.NewJobsCLI(app.RedisOpts(cfg))
	defer jobsCLI.Close()
	return fn(jobsCLI)
}
