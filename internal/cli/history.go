package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cliconform/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Limit    int
	RunID    string
	Baseline string
}

// HistoryResult is the payload of the history command. Exactly one of the
// fields is set, depending on the flags.
type HistoryResult struct {
	Runs      []store.Run            `json:"runs,omitempty"`
	Run       *store.Run             `json:"run,omitempty"`
	Scenarios []store.ScenarioRecord `json:"scenarios,omitempty"`
	Changes   []store.StatusChange   `json:"changes,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Long: `Show conformance runs recorded with --db.

Without --run, lists the most recent runs. With --run, shows every
scenario of that run. With --run and --baseline, lists scenarios whose
status changed since the baseline run and fails if any regressed.

Examples:
  cliconform history --db history.db
  cliconform history --db history.db --run 0190c6d2-...
  cliconform history --db history.db --run <new> --baseline <old>`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("db") {
				opts.Database = opts.config().Database
			}
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "run-history SQLite database")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs to list (0 for all)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show the scenarios of one run")
	cmd.Flags().StringVar(&opts.Baseline, "baseline", "", "compare --run against this run")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	if opts.Database == "" {
		return NewExitError(ExitCommandError, "no database configured (use --db or the config file)")
	}
	if _, err := os.Stat(opts.Database); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", opts.Database))
	}
	if opts.Baseline != "" && opts.RunID == "" {
		return NewExitError(ExitCommandError, "--baseline requires --run")
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	var notFound *store.RunNotFoundError
	switch {
	case opts.Baseline != "":
		changes, err := st.CompareRuns(ctx, opts.Baseline, opts.RunID)
		if errors.As(err, &notFound) {
			return WrapExitError(ExitCommandError, "unknown run", err)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to compare runs", err)
		}
		regressions := 0
		for _, c := range changes {
			if c.Regression() {
				regressions++
			}
		}
		if opts.Format == "json" {
			var cliErr *CLIError
			if regressions > 0 {
				cliErr = &CLIError{Code: CodeRegression, Message: fmt.Sprintf("%d scenario(s) regressed", regressions)}
			}
			if err := formatter.Report(HistoryResult{Changes: changes}, opts.RunID, cliErr); err != nil {
				return err
			}
		} else {
			printChanges(cmd, changes)
		}
		if regressions > 0 {
			return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) regressed", regressions))
		}
		return nil

	case opts.RunID != "":
		run, err := st.GetRun(ctx, opts.RunID)
		if errors.As(err, &notFound) {
			return WrapExitError(ExitCommandError, "unknown run", err)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read run", err)
		}
		scenarios, err := st.ScenarioResults(ctx, opts.RunID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read scenarios", err)
		}
		if opts.Format == "json" {
			return formatter.Success(HistoryResult{Run: &run, Scenarios: scenarios})
		}
		printRun(cmd, run, scenarios, opts.Verbose)
		return nil

	default:
		runs, err := st.ListRuns(ctx, opts.Limit)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		if opts.Format == "json" {
			return formatter.Success(HistoryResult{Runs: runs})
		}
		printRuns(cmd, runs)
		return nil
	}
}

func printRuns(cmd *cobra.Command, runs []store.Run) {
	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %s  %-9s  pass=%d fail=%d skip=%d error=%d  %s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Command,
			r.Passed, r.Failed, r.Skipped, r.Errored, r.Compiler)
	}
}

func printRun(cmd *cobra.Command, run store.Run, scenarios []store.ScenarioRecord, verbose bool) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run %s (%s, %s on %s)\n", run.ID, run.Command, run.Compiler, run.Platform)
	for _, s := range scenarios {
		fmt.Fprintf(w, "  %-5s %s", s.Status, s.Scenario)
		switch {
		case s.SkipReason != "":
			fmt.Fprintf(w, " (%s)", s.SkipReason)
		case s.Error != "":
			fmt.Fprintf(w, " (%s)", s.Error)
		}
		fmt.Fprintln(w)
		if !verbose {
			continue
		}
		for _, step := range s.Steps {
			fmt.Fprintf(w, "        %s: exit %d, %d failure(s), %s\n",
				step.Name, step.ExitCode, len(step.Failures), step.Duration)
		}
	}
}

func printChanges(cmd *cobra.Command, changes []store.StatusChange) {
	w := cmd.OutOrStdout()
	if len(changes) == 0 {
		fmt.Fprintln(w, "No status changes.")
		return
	}
	for _, c := range changes {
		before, after := c.Before, c.After
		if before == "" {
			before = "absent"
		}
		if after == "" {
			after = "absent"
		}
		mark := " "
		if c.Regression() {
			mark = "!"
		}
		fmt.Fprintf(w, "%s %s: %s -> %s\n", mark, c.Scenario, before, after)
	}
}
