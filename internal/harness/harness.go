package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/cliconform/internal/artifact"
	"github.com/roach88/cliconform/internal/platform"
	"github.com/roach88/cliconform/internal/process"
	"github.com/roach88/cliconform/internal/workspace"
)

// Options configures a scenario run. The zero value runs on the current
// platform with no timeout and a silent logger.
type Options struct {
	// Compiler is used when the scenario does not name one.
	Compiler string

	// Timeout bounds each step when the scenario sets none.
	Timeout time.Duration

	// Capture is used when the scenario does not set capture.
	Capture process.CaptureMode

	// Platform overrides platform detection for the skip gate.
	Platform *platform.Platform

	// WorkspacePrefix overrides workspace.DefaultPrefix.
	WorkspacePrefix string

	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (o Options) platform() platform.Platform {
	if o.Platform != nil {
		return *o.Platform
	}
	return platform.Current()
}

// Run executes a scenario and returns its result.
//
// Execution flow:
//  1. Skip if the platform is excluded or lacks a required capability
//  2. Create a fresh workspace, released on every return path
//  3. Seed collision files
//  4. Run each step and evaluate its assertions
//
// Assertion failures are reported through Result. A non-nil error means the
// scenario could not be carried out; the partial result is still returned.
func Run(ctx context.Context, scenario *Scenario, opts Options) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ValidateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	logger := opts.logger().With("scenario", scenario.Name)
	result := NewResult(scenario.Name)

	if reason := skipReason(scenario, opts.platform()); reason != "" {
		logger.Info("scenario skipped", "reason", reason)
		result.Skip(reason)
		return result, nil
	}

	compiler := scenario.Compiler
	if compiler == "" {
		compiler = opts.Compiler
	}
	if compiler == "" {
		return nil, fmt.Errorf("scenario %s: no compiler configured", scenario.Name)
	}
	compiler, err := resolveExecutable(compiler)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: resolve compiler: %w", scenario.Name, err)
	}

	timeout := opts.Timeout
	if scenario.Timeout != "" {
		timeout, _ = time.ParseDuration(scenario.Timeout)
	}
	capture := opts.Capture
	if scenario.Capture != "" {
		capture, _ = process.ParseCaptureMode(scenario.Capture)
	}

	prefix := opts.WorkspacePrefix
	if prefix == "" {
		prefix = workspace.DefaultPrefix
	}
	ws, err := workspace.Create(prefix)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := ws.Release(); err != nil {
			logger.Warn("failed to release workspace", "path", ws.Path(), "error", err)
		}
	}()

	result.Workspace = ws.Path()
	result.source = scenario.Source
	result.compiler = compiler
	logger.Debug("workspace created", "path", ws.Path())

	naming := scenario.Artifacts.ForSource(scenario.Source)
	vars := newVariables(ws.Path(), scenario.Source, compiler, naming)

	seeds := make([]string, len(scenario.Seed))
	for i, name := range scenario.Seed {
		seeds[i] = vars.Replace(name)
	}
	if err := ws.Seed(seeds...); err != nil {
		return result, err
	}

	// Empty inherits the caller's working directory.
	dir := vars.Replace(scenario.Dir)

	actx := AssertionContext{Dir: ws.Path(), Naming: naming, Expand: vars.Replace}

	for i, step := range scenario.Steps {
		name := scenario.StepName(i)
		args := make([]string, len(step.Args))
		for j, arg := range step.Args {
			args[j] = vars.Replace(arg)
		}

		runner := &process.Runner{
			Dir:     dir,
			Env:     stepEnv(step.Env, vars),
			Timeout: timeout,
			Capture: capture,
			Logger:  logger,
		}

		logger.Debug("running step", "step", name, "args", strings.Join(args, " "))
		res, err := runner.Run(ctx, compiler, args...)
		if err != nil {
			if res.ExitCode == -1 {
				result.Steps = append(result.Steps, stepResult(i, name, args, res, nil))
			}
			result.Pass = false
			return result, fmt.Errorf("step %s: %w", name, err)
		}

		failures := EvaluateAssertions(res, step.Expect, actx)
		for _, f := range failures {
			result.AddError(fmt.Sprintf("%s: %s", name, f))
		}
		result.Steps = append(result.Steps, stepResult(i, name, args, res, failures))

		logger.Info("step finished",
			"step", name,
			"exit_code", res.ExitCode,
			"failures", len(failures),
			"duration", res.Duration,
		)
	}

	return result, nil
}

func stepResult(i int, name string, args []string, res process.Result, failures []string) StepResult {
	return StepResult{
		Index:    i,
		Name:     name,
		Args:     args,
		ExitCode: res.ExitCode,
		Output:   res.Output,
		Duration: res.Duration,
		Failures: failures,
	}
}

// resolveExecutable makes a compiler path that names a directory absolute,
// so a step working directory cannot change which file is run. Bare names
// are left for PATH lookup.
func resolveExecutable(name string) (string, error) {
	if !strings.ContainsRune(name, '/') && !strings.ContainsRune(name, filepath.Separator) {
		return name, nil
	}
	return filepath.Abs(name)
}

// skipReason returns why the scenario cannot run on p, or "".
func skipReason(s *Scenario, p platform.Platform) string {
	for _, goos := range s.SkipOn {
		if goos == p.OS {
			return fmt.Sprintf("skipped on %s", p.OS)
		}
	}

	caps := make([]platform.Capability, 0, len(s.Requires))
	for _, r := range s.Requires {
		caps = append(caps, platform.Capability(r))
	}
	if missing := p.Missing(caps...); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, c := range missing {
			names[i] = string(c)
		}
		return fmt.Sprintf("%s lacks %s", p, strings.Join(names, ", "))
	}
	return ""
}

// newVariables builds the ${NAME} substitutions for a scenario run.
// Only the braced form of known names is replaced.
func newVariables(dir, source, compiler string, naming artifact.Naming) *strings.Replacer {
	return strings.NewReplacer(
		"${WORKSPACE}", dir,
		"${SOURCE}", source,
		"${COMPILER}", compiler,
		"${BINARY_FILE}", naming.FileName(artifact.KindBinary),
		"${ASSEMBLY_FILE}", naming.FileName(artifact.KindAssembly),
		"${BINARY}", artifact.OutputPath(dir, naming, artifact.KindBinary),
		"${ASSEMBLY}", artifact.OutputPath(dir, naming, artifact.KindAssembly),
	)
}

// stepEnv returns the inherited environment plus the step's variables,
// or nil to inherit unchanged.
func stepEnv(extra map[string]string, vars *strings.Replacer) []string {
	if len(extra) == 0 {
		return nil
	}
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+vars.Replace(v))
	}
	return env
}
