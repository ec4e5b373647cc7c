package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/cliconform/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Compiler string        // compiler executable (overrides config)
	Update   bool          // regenerate golden files
	Filter   string        // scenario filter (doublestar glob)
	Parallel int           // concurrently running scenarios
	Database string        // run-history database
	Timeout  time.Duration // per-step timeout
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name       string   `json:"name"`
	File       string   `json:"file,omitempty"`
	Status     string   `json:"status"` // pass | fail | skip | error
	SkipReason string   `json:"skip_reason,omitempty"`
	Errors     []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Skipped   int              `json:"skipped"`
	Errored   int              `json:"errored"`
	Total     int              `json:"total"`
	RunID     string           `json:"run_id,omitempty"`
}

func (r *TestResult) add(s ScenarioResult) {
	r.Scenarios = append(r.Scenarios, s)
	r.Total++
	switch s.Status {
	case harness.StatusPass:
		r.Passed++
	case harness.StatusSkip:
		r.Skipped++
	case statusError:
		r.Errored++
	default:
		r.Failed++
	}
}

// statusError marks a scenario that could not be carried out.
const statusError = "error"

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run conformance scenarios against a compiler executable.

Every *.yaml or *.yml file under the scenarios directory is one scenario.
Each runs in its own temporary workspace. When <dir>/golden/<name>.golden
exists for a scenario file, the run transcript must also match it.

Exit codes:
  0 - All scenarios passed or were skipped
  1 - One or more scenarios failed
  2 - Command or harness error (invalid paths, spawn failures, timeouts)

Examples:
  cliconform test ./scenarios --compiler zkvyper
  cliconform test ./scenarios --filter "overwrite*"
  cliconform test ./scenarios --parallel 4 --timeout 2m
  cliconform test ./scenarios --update
  cliconform test ./scenarios --db history.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.config()
			if !cmd.Flags().Changed("compiler") {
				opts.Compiler = cfg.Compiler
			}
			if !cmd.Flags().Changed("parallel") {
				opts.Parallel = cfg.Parallel
			}
			if !cmd.Flags().Changed("db") {
				opts.Database = cfg.Database
			}
			if !cmd.Flags().Changed("timeout") {
				d, err := cfg.TimeoutDuration()
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid config", err)
				}
				opts.Timeout = d
			}
			return runTests(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Compiler, "compiler", "", "compiler executable")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern (supports **)")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 1, "number of scenarios to run concurrently")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record run history in this SQLite database")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "per-invocation timeout (0 means none)")

	return cmd
}

func runTests(ctx context.Context, opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.logger()

	info, err := os.Stat(scenariosDir)
	if err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}
	if opts.Parallel < 1 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--parallel must be at least 1, got %d", opts.Parallel))
	}
	if opts.Filter != "" && !doublestar.ValidatePattern(opts.Filter) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid filter pattern: %s", opts.Filter))
	}

	scenarioFiles, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	if len(scenarioFiles) == 0 {
		if opts.Format == "json" {
			return outputTestJSON(cmd, TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	loaded := make([]loadedScenario, len(scenarioFiles))
	for i, file := range scenarioFiles {
		loaded[i] = loadScenarioFile(file, scenariosDir)
	}
	if err := checkUniqueNames(loaded); err != nil {
		return err
	}

	rec, err := openRecorder(ctx, opts.Database, "test", opts.Compiler, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer rec.close(context.WithoutCancel(ctx))

	// Scenarios own their workspaces, so they run independently; results
	// are reported in file order.
	results := make([]ScenarioResult, len(loaded))
	var g errgroup.Group
	g.SetLimit(opts.Parallel)
	for i, ls := range loaded {
		g.Go(func() error {
			results[i] = runScenario(ctx, ls, opts, rec)
			return nil
		})
	}
	_ = g.Wait()

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(results)),
		RunID:     rec.runID(),
	}
	for _, r := range results {
		result.add(r)
	}

	if opts.Format == "json" {
		return outputTestJSON(cmd, result)
	}
	return outputTestText(cmd, result)
}

// findScenarioFiles finds all YAML scenario files under dir, in lexical
// order. filter is matched against the path relative to dir (without
// extension) and against the bare file name.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		// Only process .yaml and .yml files
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(strings.TrimSuffix(rel, ext))
			name := strings.TrimSuffix(filepath.Base(path), ext)

			matchRel, err := doublestar.Match(filter, rel)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			matchName, _ := doublestar.Match(filter, name)
			if !matchRel && !matchName {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})

	return files, err
}

// loadedScenario is a scenario file after loading. name is the scenario
// name, or the file name when loading failed.
type loadedScenario struct {
	file     string
	rel      string
	name     string
	scenario *harness.Scenario
	err      error
}

func loadScenarioFile(file, scenariosDir string) loadedScenario {
	rel, _ := filepath.Rel(scenariosDir, file)
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		return loadedScenario{file: file, rel: rel, name: name, err: err}
	}
	return loadedScenario{file: file, rel: rel, name: scenario.Name, scenario: scenario}
}

// checkUniqueNames rejects a suite where two files share a scenario name.
// Names key the run history.
func checkUniqueNames(loaded []loadedScenario) error {
	seen := make(map[string]string, len(loaded))
	for _, ls := range loaded {
		if prev, ok := seen[ls.name]; ok {
			return NewExitError(ExitCommandError,
				fmt.Sprintf("duplicate scenario name %q in %s and %s", ls.name, prev, ls.rel))
		}
		seen[ls.name] = ls.rel
	}
	return nil
}

// runScenario runs, checks and records a single loaded scenario.
func runScenario(ctx context.Context, ls loadedScenario, opts *TestOptions, rec *recorder) ScenarioResult {
	logger := opts.logger()
	cfg := opts.config()
	rel := ls.rel

	if ls.err != nil {
		rec.record(ctx, ls.name, nil, ls.err)
		return ScenarioResult{
			Name:   ls.name,
			File:   rel,
			Status: statusError,
			Errors: []string{fmt.Sprintf("failed to load scenario: %v", ls.err)},
		}
	}
	scenario := ls.scenario

	result, err := harness.Run(ctx, scenario, harness.Options{
		Compiler:        opts.Compiler,
		Timeout:         opts.Timeout,
		Capture:         cfg.CaptureMode(),
		WorkspacePrefix: cfg.WorkspacePrefix,
		Logger:          logger,
	})
	rec.record(ctx, scenario.Name, result, err)
	if err != nil {
		logger.Error("scenario aborted", "scenario", scenario.Name, "error", err)
		return ScenarioResult{
			Name:   scenario.Name,
			File:   rel,
			Status: statusError,
			Errors: []string{fmt.Sprintf("execution failed: %v", err)},
		}
	}

	out := ScenarioResult{
		Name:       scenario.Name,
		File:       rel,
		Status:     result.Status(),
		SkipReason: result.SkipReason,
		Errors:     result.Errors,
	}
	if result.Skipped {
		return out
	}

	goldenPath := goldenFilePath(ls.file)
	if _, err := os.Stat(goldenPath); err == nil || opts.Update {
		if err := checkGolden(goldenPath, result, opts.Update); err != nil {
			out.Status = harness.StatusFail
			out.Errors = append(out.Errors, err.Error())
		}
	}
	return out
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+harness.GoldenSuffix)
}

func checkGolden(path string, result *harness.Result, update bool) error {
	data, err := harness.Transcript(result)
	if err != nil {
		return err
	}
	err = harness.CheckGolden(path, data, update)
	var mismatch *harness.GoldenMismatchError
	if errors.As(err, &mismatch) {
		return fmt.Errorf("transcript does not match golden file (run with --update to regenerate)")
	}
	return err
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	var cliErr *CLIError
	switch {
	case result.Errored > 0:
		cliErr = &CLIError{
			Code:    CodeHarness,
			Message: fmt.Sprintf("%d scenario(s) could not be run", result.Errored),
		}
	case result.Failed > 0:
		cliErr = &CLIError{
			Code:    CodeTestFailed,
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	formatter := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
	if err := formatter.Report(result, result.RunID, cliErr); err != nil {
		return err
	}
	return testExitError(result)
}

// outputTestText outputs the test result as text.
func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()

	for _, s := range result.Scenarios {
		switch s.Status {
		case harness.StatusPass:
			fmt.Fprintf(w, "✓ %s\n", s.Name)
		case harness.StatusSkip:
			fmt.Fprintf(w, "- %s (skipped: %s)\n", s.Name, s.SkipReason)
		default:
			fmt.Fprintf(w, "✗ %s\n", s.Name)
			for _, e := range s.Errors {
				for _, line := range strings.Split(strings.TrimRight(e, "\n"), "\n") {
					fmt.Fprintf(w, "  %s\n", line)
				}
			}
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d skipped, %d errored, %d total\n",
		result.Passed, result.Failed, result.Skipped, result.Errored, result.Total)
	if result.RunID != "" {
		fmt.Fprintf(w, "Run ID: %s\n", result.RunID)
	}

	if err := testExitError(result); err != nil {
		return err
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}

// testExitError maps totals to the command's exit status.
func testExitError(result TestResult) error {
	if result.Errored > 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("%d scenario(s) could not be run", result.Errored))
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}
