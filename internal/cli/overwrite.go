package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cliconform/internal/artifact"
	"github.com/roach88/cliconform/internal/harness"
)

// OverwriteOptions holds flags for the overwrite command.
type OverwriteOptions struct {
	*RootOptions
	Compiler      string
	BaseName      string
	BinaryExt     string
	AssemblyExt   string
	OutputFlag    string
	OverwriteFlag string
	Database      string
	Timeout       time.Duration
}

// OverwriteResult is the outcome of the overwrite protection check.
type OverwriteResult struct {
	Scenario   string               `json:"scenario"`
	Status     string               `json:"status"`
	SkipReason string               `json:"skip_reason,omitempty"`
	Source     string               `json:"source"`
	Artifacts  []string             `json:"artifacts"`
	Steps      []harness.StepResult `json:"steps"`
	Errors     []string             `json:"errors,omitempty"`
	RunID      string               `json:"run_id,omitempty"`
}

// NewOverwriteCommand creates the overwrite command.
func NewOverwriteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OverwriteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "overwrite <source-file>",
		Short: "Check that existing outputs are only replaced on request",
		Long: `Check the compiler's overwrite protection on one source file.

Both output artifacts are pre-created empty in a fresh workspace. Then:
  1. compile without the overwrite flag: the output must say
     "refusing to overwrite" and the exit code must be nonzero
  2. compile with the overwrite flag: exit code 0, both artifacts
     non-empty, and no "error", "warning" or "fail" in the output

Exit codes:
  0 - Overwrite protection holds (or the platform cannot run the check)
  1 - A phase did not behave as required
  2 - Command or harness error

Examples:
  cliconform overwrite contracts/Token.vy --compiler zkvyper
  cliconform overwrite Token.vy --binary-ext .zbin --assembly-ext .zasm`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.config()
			if !cmd.Flags().Changed("compiler") {
				opts.Compiler = cfg.Compiler
			}
			if !cmd.Flags().Changed("db") {
				opts.Database = cfg.Database
			}
			if !cmd.Flags().Changed("base-name") {
				opts.BaseName = cfg.Artifacts.BaseName
			}
			if !cmd.Flags().Changed("binary-ext") && cfg.Artifacts.BinaryExt != "" {
				opts.BinaryExt = cfg.Artifacts.BinaryExt
			}
			if !cmd.Flags().Changed("assembly-ext") && cfg.Artifacts.AssemblyExt != "" {
				opts.AssemblyExt = cfg.Artifacts.AssemblyExt
			}
			if !cmd.Flags().Changed("timeout") {
				d, err := cfg.TimeoutDuration()
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid config", err)
				}
				opts.Timeout = d
			}
			return runOverwrite(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Compiler, "compiler", "", "compiler executable")
	cmd.Flags().StringVar(&opts.BaseName, "base-name", "", "artifact base name (default: source file name without extension)")
	cmd.Flags().StringVar(&opts.BinaryExt, "binary-ext", artifact.DefaultNaming.BinaryExt, "binary artifact extension")
	cmd.Flags().StringVar(&opts.AssemblyExt, "assembly-ext", artifact.DefaultNaming.AssemblyExt, "assembly artifact extension")
	cmd.Flags().StringVar(&opts.OutputFlag, "output-flag", "-o", "compiler flag selecting the output directory")
	cmd.Flags().StringVar(&opts.OverwriteFlag, "overwrite-flag", "--overwrite", "compiler flag forcing replacement")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record run history in this SQLite database")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "per-invocation timeout (0 means none)")

	return cmd
}

func runOverwrite(ctx context.Context, opts *OverwriteOptions, sourceFile string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.logger()
	cfg := opts.config()

	if opts.Compiler == "" {
		return NewExitError(ExitCommandError, "no compiler configured (use --compiler or the config file)")
	}
	source, err := filepath.Abs(sourceFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid source path", err)
	}
	if _, err := os.Stat(source); err != nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("source file not found: %s", sourceFile))
	}

	scenario := harness.OverwriteProtection(harness.OverwriteConfig{
		Compiler: opts.Compiler,
		Source:   source,
		Naming: artifact.Naming{
			BaseName:    opts.BaseName,
			BinaryExt:   opts.BinaryExt,
			AssemblyExt: opts.AssemblyExt,
		},
		OutputFlag:    opts.OutputFlag,
		OverwriteFlag: opts.OverwriteFlag,
	})

	rec, err := openRecorder(ctx, opts.Database, "overwrite", opts.Compiler, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer rec.close(context.WithoutCancel(ctx))

	result, runErr := harness.Run(ctx, scenario, harness.Options{
		Timeout:         opts.Timeout,
		Capture:         cfg.CaptureMode(),
		WorkspacePrefix: cfg.WorkspacePrefix,
		Logger:          logger,
	})
	rec.record(ctx, scenario.Name, result, runErr)

	out := OverwriteResult{
		Scenario:  scenario.Name,
		Source:    source,
		Artifacts: scenario.Artifacts.FileNames(),
		Steps:     []harness.StepResult{},
		RunID:     rec.runID(),
	}
	if result != nil {
		out.Status = result.Status()
		out.SkipReason = result.SkipReason
		out.Steps = result.Steps
		out.Errors = result.Errors
	}
	if runErr != nil {
		out.Status = statusError
		out.Errors = append(out.Errors, runErr.Error())
	}

	if opts.Format == "json" {
		var cliErr *CLIError
		if out.Status == harness.StatusFail || out.Status == statusError {
			cliErr = &CLIError{Code: CodeOverwrite, Message: "overwrite protection check failed"}
		}
		formatter := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
		if err := formatter.Report(out, out.RunID, cliErr); err != nil {
			return err
		}
	} else {
		outputOverwriteText(cmd, opts, out)
	}

	switch out.Status {
	case statusError:
		return WrapExitError(ExitCommandError, "overwrite check could not be run", runErr)
	case harness.StatusFail:
		return NewExitError(ExitFailure, "overwrite protection check failed")
	}
	return nil
}

func outputOverwriteText(cmd *cobra.Command, opts *OverwriteOptions, out OverwriteResult) {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Source: %s\n", out.Source)
	fmt.Fprintf(w, "Artifacts: %s\n", strings.Join(out.Artifacts, ", "))
	if out.Status == harness.StatusSkip {
		fmt.Fprintf(w, "- skipped: %s\n", out.SkipReason)
		return
	}

	for _, step := range out.Steps {
		mark := "✓"
		if len(step.Failures) > 0 {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s (exit %d)\n", mark, step.Name, step.ExitCode)
		for _, f := range step.Failures {
			for _, line := range strings.Split(strings.TrimRight(f, "\n"), "\n") {
				fmt.Fprintf(w, "  %s\n", line)
			}
		}
		if opts.Verbose {
			for _, line := range strings.Split(strings.TrimRight(step.Output, "\n"), "\n") {
				fmt.Fprintf(cmd.ErrOrStderr(), "  | %s\n", line)
			}
		}
	}

	if out.RunID != "" {
		fmt.Fprintf(w, "Run ID: %s\n", out.RunID)
	}
	switch out.Status {
	case harness.StatusPass:
		fmt.Fprintln(w, "✓ Overwrite protection holds")
	case statusError:
		fmt.Fprintf(w, "✗ Check aborted: %s\n", out.Errors[len(out.Errors)-1])
	default:
		fmt.Fprintln(w, "✗ Overwrite protection check failed")
	}
}
