package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shiftplanner/shiftplanner/cmd/shiftplanner/cli"
	"github.com/shiftplanner/shiftplanner/internal/app"
	"github.com/shiftplanner/shiftplanner/internal/engine"
)

var (
	// Global flags
	jsonOutput bool
	timeout    time.Duration
	seed       int64
)

var rootCmd = &cobra.Command{
	Use:   "shiftplanner",
	Short: "Generate and manage monthly shift schedules",
	Long: `shiftplanner drives the shift generation engine against the planner database.

Schedules are generated as drafts, optionally optimised against employee shift
preferences, then finalized and eventually archived. Configuration is read from
the environment (PG_DSN, REDIS_ADDR, ...).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitError carries a command's exit code back to main.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return "exit status " + strconv.Itoa(e.code)
}

func exitWith(code int) error {
	if code == cli.ExitOK {
		return nil
	}
	return exitError{code: code}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print machine readable JSON")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")

	initGenerateFlags()
	initScheduleFlags()
	initJobsFlags()

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(finalizeCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(overrideCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(jobsCmd)
}

func main() {
	if app.SkipStartup(nil, "shiftplanner") {
		return
	}
	if err := rootCmd.Execute(); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitUsage)
	}
}

func output(cmd *cobra.Command) cli.Output {
	return cli.Output{JSONOutput: jsonOutput, Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()}
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// withPlanner connects to Postgres and Redis and runs fn against the schedule service.
func withPlanner(cmd *cobra.Command, fn func(context.Context, *cli.PlannerCLI) int) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "load config: %v\n", err)
		return exitWith(cli.ExitUsage)
	}
	logger := app.NewLogger(cfg).With(slog.String("binary", "shiftplanner"))

	runtime, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap", slog.Any("error", err))
		return exitWith(cli.ExitFailure)
	}
	defer runtime.Close()

	if seed != 0 {
		runtime.Schedules.WithSource(engine.NewSource(uint64(seed)))
	}

	planner, err := cli.NewPlannerCLI(runtime.Schedules)
	if err != nil {
		return err
	}
	return exitWith(fn(ctx, planner))
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
