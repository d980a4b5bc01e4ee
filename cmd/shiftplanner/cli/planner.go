package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/shiftplanner/shiftplanner/internal/engine"
	"github.com/shiftplanner/shiftplanner/internal/schedules"
)

// Exit codes shared by every planner command.
const (
	ExitOK       = 0
	ExitUsage    = 1
	ExitNotFound = 2
	ExitConflict = 3
	ExitFailure  = 4
)

// Planner is the schedule service surface driven by the CLI.
type Planner interface {
	Generate(ctx context.Context, req schedules.GenerateRequest) (schedules.GenerationResult, error)
	Finalize(ctx context.Context, id int64) (schedules.Schedule, error)
	Archive(ctx context.Context, id int64) (schedules.Schedule, error)
	OptimizePreferences(ctx context.Context, id int64) (engine.OptimizeResult, error)
	OverrideAssignment(ctx context.Context, in schedules.OverrideInput) (schedules.Assignment, error)
	Get(ctx context.Context, id int64) (schedules.ScheduleWithAssignments, error)
	ListByOrganization(ctx context.Context, organizationID int64, limit, offset int) ([]schedules.Schedule, error)
	Statistics(ctx context.Context, id int64) (schedules.Statistics, error)
}

// Output configures where and how a command reports.
type Output struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

func (o Output) withDefaults() Output {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	return o
}

// PlannerCLI runs schedule commands against a Planner.
type PlannerCLI struct {
	planner Planner
}

// NewPlannerCLI constructs the helper.
func NewPlannerCLI(planner Planner) (*PlannerCLI, error) {
	if planner == nil {
		return nil, errors.New("planner cli: service required")
	}
	return &PlannerCLI{planner: planner}, nil
}

// GenerateSummary is the JSON shape printed by GenerateCommand.
type GenerateSummary struct {
	ScheduleID   int64  `json:"schedule_id"`
	GenerationID string `json:"generation_id"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	Assignments  int    `json:"assignments"`
	Unfilled     int    `json:"unfilled"`
	SkippedDays  int    `json:"skipped_days"`
	Swaps        int    `json:"swaps,omitempty"`
}

// GenerateCommand generates one month synchronously.
func (c *PlannerCLI) GenerateCommand(ctx context.Context, req schedules.GenerateRequest, out Output) int {
	out = out.withDefaults()
	result, err := c.planner.Generate(ctx, req)
	if err != nil {
		return report(out, "generate", err)
	}
	summary := GenerateSummary{
		ScheduleID:   result.ID,
		GenerationID: result.GenerationID.String(),
		Name:         result.Name,
		Status:       string(result.Status),
		Assignments:  len(result.Assignments),
		Unfilled:     result.Unfilled,
	}
	for _, day := range result.Days {
		if day.Skipped {
			summary.SkippedDays++
		}
	}
	if result.Optimization != nil {
		summary.Swaps = result.Optimization.Swaps
	}
	if out.JSONOutput {
		return writeJSON(out, summary)
	}
	fmt.Fprintf(out.Stdout, "schedule %d (%s) generated: %d assignments, %d unfilled slots, %d skipped days\n",
		summary.ScheduleID, summary.Name, summary.Assignments, summary.Unfilled, summary.SkippedDays)
	if result.Optimization != nil {
		fmt.Fprintf(out.Stdout, "preferences: %d swaps, score %d -> %d\n", result.Optimization.Swaps, result.Optimization.ScoreBefore, result.Optimization.ScoreAfter)
	}
	return ExitOK
}

// TransitionCommand finalizes or archives a schedule.
func (c *PlannerCLI) TransitionCommand(ctx context.Context, id int64, target schedules.Status, out Output) int {
	out = out.withDefaults()
	var (
		schedule schedules.Schedule
		err      error
	)
	switch target {
	case schedules.StatusFinalized:
		schedule, err = c.planner.Finalize(ctx, id)
	case schedules.StatusArchived:
		schedule, err = c.planner.Archive(ctx, id)
	default:
		fmt.Fprintf(out.Stderr, "unsupported target status %q\n", target)
		return ExitUsage
	}
	if err != nil {
		return report(out, string(target), err)
	}
	if out.JSONOutput {
		return writeJSON(out, map[string]any{"schedule_id": schedule.ID, "status": schedule.Status})
	}
	fmt.Fprintf(out.Stdout, "schedule %d is now %s\n", schedule.ID, schedule.Status)
	return ExitOK
}

// OptimizeCommand runs the preference optimizer over a draft.
func (c *PlannerCLI) OptimizeCommand(ctx context.Context, id int64, out Output) int {
	out = out.withDefaults()
	result, err := c.planner.OptimizePreferences(ctx, id)
	if err != nil {
		return report(out, "optimize", err)
	}
	if out.JSONOutput {
		return writeJSON(out, map[string]any{
			"schedule_id":  id,
			"swaps":        result.Swaps,
			"passes":       result.Passes,
			"score_before": result.ScoreBefore,
			"score_after":  result.ScoreAfter,
		})
	}
	fmt.Fprintf(out.Stdout, "schedule %d: %d swaps over %d passes, score %d -> %d\n", id, result.Swaps, result.Passes, result.ScoreBefore, result.ScoreAfter)
	return ExitOK
}

// OverrideCommand applies a manual assignment edit.
func (c *PlannerCLI) OverrideCommand(ctx context.Context, in schedules.OverrideInput, out Output) int {
	out = out.withDefaults()
	a, err := c.planner.OverrideAssignment(ctx, in)
	if err != nil {
		return report(out, "override", err)
	}
	if out.JSONOutput {
		return writeJSON(out, a)
	}
	fmt.Fprintf(out.Stdout, "assignment %d: employee %d position %d on %s (manual)\n", a.ID, a.EmployeeID, a.ShiftPosition, a.Date.Format(time.DateOnly))
	return ExitOK
}

// ShowCommand prints a schedule grid, one line per date.
func (c *PlannerCLI) ShowCommand(ctx context.Context, id int64, out Output) int {
	out = out.withDefaults()
	schedule, err := c.planner.Get(ctx, id)
	if err != nil {
		return report(out, "show", err)
	}
	if out.JSONOutput {
		return writeJSON(out, schedule)
	}
	fmt.Fprintf(out.Stdout, "%s [%s] %04d-%02d\n", schedule.Name, schedule.Status, schedule.Year, int(schedule.Month))
	tw := tabwriter.NewWriter(out.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tPOSITION\tEMPLOYEE\tMANUAL")
	for _, a := range schedule.Assignments {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%t\n", a.Date.Format(time.DateOnly), a.ShiftPosition, a.EmployeeID, a.IsManualOverride)
	}
	if err := tw.Flush(); err != nil {
		return report(out, "show", err)
	}
	return ExitOK
}

// ListCommand prints an organization's schedules.
func (c *PlannerCLI) ListCommand(ctx context.Context, organizationID int64, limit, offset int, out Output) int {
	out = out.withDefaults()
	rows, err := c.planner.ListByOrganization(ctx, organizationID, limit, offset)
	if err != nil {
		return report(out, "list", err)
	}
	if out.JSONOutput {
		return writeJSON(out, rows)
	}
	tw := tabwriter.NewWriter(out.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMONTH\tSTATUS\tNAME")
	for _, s := range rows {
		fmt.Fprintf(tw, "%d\t%04d-%02d\t%s\t%s\n", s.ID, s.Year, int(s.Month), s.Status, s.Name)
	}
	if err := tw.Flush(); err != nil {
		return report(out, "list", err)
	}
	return ExitOK
}

// StatsCommand prints per-employee totals.
func (c *PlannerCLI) StatsCommand(ctx context.Context, id int64, out Output) int {
	out = out.withDefaults()
	stats, err := c.planner.Statistics(ctx, id)
	if err != nil {
		return report(out, "stats", err)
	}
	if out.JSONOutput {
		return writeJSON(out, stats)
	}
	fmt.Fprintf(out.Stdout, "schedule %d: %d assignments, %d manual overrides\n", stats.ScheduleID, stats.TotalAssignments, stats.ManualOverrides)
	tw := tabwriter.NewWriter(out.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EMPLOYEE\tNAME\tTOTAL\tPREFERRED\tBY POSITION")
	for _, e := range stats.Employees {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\n", e.EmployeeID, e.Name, e.TotalShifts, e.PreferredShifts, formatPositions(e.ShiftsByPosition))
	}
	if err := tw.Flush(); err != nil {
		return report(out, "stats", err)
	}
	return ExitOK
}

func formatPositions(byPosition map[int]int) string {
	positions := make([]int, 0, len(byPosition))
	for p := range byPosition {
		positions = append(positions, p)
	}
	slices.Sort(positions)
	s := ""
	for i, p := range positions {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%d:%d", p, byPosition[p])
	}
	return s
}

// ExitCode maps service errors onto the CLI exit codes.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, schedules.ErrInvalidRequest), errors.Is(err, engine.ErrMalformedPattern), errors.Is(err, engine.ErrInvalidMonth):
		return ExitUsage
	case schedules.IsNotFound(err), errors.Is(err, schedules.ErrNoEmployees):
		return ExitNotFound
	case errors.Is(err, schedules.ErrDraftExists), errors.Is(err, schedules.ErrGenerationInProgress),
		errors.Is(err, schedules.ErrInvalidTransition), errors.Is(err, schedules.ErrAssignmentConflict):
		return ExitConflict
	default:
		return ExitFailure
	}
}

func report(out Output, command string, err error) int {
	fmt.Fprintf(out.Stderr, "%s: %v\n", command, err)
	return ExitCode(err)
}

func writeJSON(out Output, v any) int {
	enc := json.NewEncoder(out.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(out.Stderr, "encode output: %v\n", err)
		return ExitFailure
	}
	return ExitOK
}
