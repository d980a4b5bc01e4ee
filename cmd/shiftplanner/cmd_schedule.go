package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/shiftplanner/shiftplanner/cmd/shiftplanner/cli"
	"github.com/shiftplanner/shiftplanner/internal/schedules"
)

var (
	overrideEmployee int64
	overridePosition int
	overrideNotes    string

	listOrganization int64
	listLimit        int
	listOffset       int
)

var finalizeCmd = &cobra.Command{
	Use:   "finalize SCHEDULE_ID",
	Short: "Finalize a draft schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runTransition(schedules.StatusFinalized),
}

var archiveCmd = &cobra.Command{
	Use:   "archive SCHEDULE_ID",
	Short: "Archive a draft or finalized schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runTransition(schedules.StatusArchived),
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize SCHEDULE_ID",
	Short: "Swap same-day shift positions toward employee preferences",
	Long: `Run the preference optimizer over a draft schedule.

Two employees working the same day exchange positions when the swap strictly
raises the number of preferred shifts. Manual overrides are never moved.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withPlanner(cmd, func(ctx context.Context, planner *cli.PlannerCLI) int {
			return planner.OptimizeCommand(ctx, id, output(cmd))
		})
	},
}

var overrideCmd = &cobra.Command{
	Use:   "override SCHEDULE_ID ASSIGNMENT_ID",
	Short: "Manually reassign one shift",
	Args:  cobra.ExactArgs(2),
	RunE:  runOverride,
}

var showCmd = &cobra.Command{
	Use:   "show SCHEDULE_ID",
	Short: "Print a schedule and its assignments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withPlanner(cmd, func(ctx context.Context, planner *cli.PlannerCLI) int {
			return planner.ShowCommand(ctx, id, output(cmd))
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List an organization's schedules, newest month first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPlanner(cmd, func(ctx context.Context, planner *cli.PlannerCLI) int {
			return planner.ListCommand(ctx, listOrganization, listLimit, listOffset, output(cmd))
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats SCHEDULE_ID",
	Short: "Show per-employee shift totals for a schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withPlanner(cmd, func(ctx context.Context, planner *cli.PlannerCLI) int {
			return planner.StatsCommand(ctx, id, output(cmd))
		})
	},
}

func initScheduleFlags() {
	overrideCmd.Flags().Int64Var(&overrideEmployee, "employee", 0, "Employee to place on the shift")
	overrideCmd.Flags().IntVar(&overridePosition, "position", 0, "Shift position (1-based)")
	overrideCmd.Flags().StringVar(&overrideNotes, "notes", "", "Notes stored on the assignment")

	listCmd.Flags().Int64Var(&listOrganization, "org", 0, "Organization id (required)")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Page size")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Rows to skip")
	_ = listCmd.MarkFlagRequired("org")
}

func runTransition(target schedules.Status) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withPlanner(cmd, func(ctx context.Context, planner *cli.PlannerCLI) int {
			return planner.TransitionCommand(ctx, id, target, output(cmd))
		})
	}
}

func runOverride(cmd *cobra.Command, args []string) error {
	scheduleID, err := parseID(args[0])
	if err != nil {
		return err
	}
	assignmentID, err := parseID(args[1])
	if err != nil {
		return err
	}
	in := schedules.OverrideInput{ScheduleID: scheduleID, AssignmentID: assignmentID}
	flags := cmd.Flags()
	if flags.Changed("employee") {
		in.EmployeeID = &overrideEmployee
	}
	if flags.Changed("position") {
		in.ShiftPosition = &overridePosition
	}
	if flags.Changed("notes") {
		in.Notes = &overrideNotes
	}
	if in.EmployeeID == nil && in.ShiftPosition == nil && in.Notes == nil {
		return errors.New("nothing to change: pass --employee, --position or --notes")
	}
	return withPlanner(cmd, func(ctx context.Context, planner *cli.PlannerCLI) int {
		return planner.OverrideCommand(ctx, in, output(cmd))
	})
}
