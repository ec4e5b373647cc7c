package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/roach88/cliconform/internal/platform"
)

// waitDelay bounds how long Wait blocks on inherited pipes after a kill.
const waitDelay = 2 * time.Second

// ErrPTYUnsupported is returned for CapturePTY where no pty is available.
var ErrPTYUnsupported = errors.New("pseudo-terminal capture is not supported on this platform")

// CaptureMode selects how the child's output is collected.
type CaptureMode int

const (
	// CapturePipe connects stdout and stderr to one shared pipe.
	CapturePipe CaptureMode = iota
	// CapturePTY attaches the child to a pseudo-terminal.
	// Line endings are normalized from CRLF to LF.
	CapturePTY
)

// String returns the flag spelling of the mode.
func (m CaptureMode) String() string {
	if m == CapturePTY {
		return "pty"
	}
	return "pipe"
}

// ParseCaptureMode parses "pipe" or "pty". Empty means pipe.
func ParseCaptureMode(s string) (CaptureMode, error) {
	switch s {
	case "", "pipe":
		return CapturePipe, nil
	case "pty":
		return CapturePTY, nil
	default:
		return CapturePipe, fmt.Errorf("unknown capture mode %q (want pipe or pty)", s)
	}
}

// Result is one immutable observation of a finished process.
type Result struct {
	Executable string        `json:"executable"`
	Args       []string      `json:"args"`
	ExitCode   int           `json:"exit_code"`
	Output     string        `json:"output"`
	Duration   time.Duration `json:"duration"`
}

// Success reports whether the process exited with status 0.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// SpawnError is returned when the executable could not be started at all.
type SpawnError struct {
	Executable string
	Err        error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Executable, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Runner spawns processes. The zero value inherits the caller's working
// directory and environment, captures through a pipe and has no timeout.
// A Runner holds no per-invocation state and is safe for concurrent use.
type Runner struct {
	// Dir overrides the working directory when non-empty.
	Dir string

	// Env replaces the environment when non-nil.
	Env []string

	// Timeout kills the process after this long when positive.
	Timeout time.Duration

	Capture CaptureMode

	Logger *slog.Logger
}

// Run executes executable with args and blocks until it exits.
func (r *Runner) Run(ctx context.Context, executable string, args ...string) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	if r.Capture == CapturePTY && !platform.Current().Supports(platform.PseudoTerminal) {
		return Result{}, ErrPTYUnsupported
	}

	cmd := exec.CommandContext(ctx, executable, args...)
	cmd.Dir = r.Dir
	if r.Env != nil {
		cmd.Env = r.Env
	}
	cmd.WaitDelay = waitDelay

	logger := r.logger()
	logger.Debug("spawning process",
		"executable", executable,
		"args", strings.Join(args, " "),
		"capture", r.Capture.String(),
	)

	start := time.Now()
	var (
		output  []byte
		started bool
		err     error
	)
	switch r.Capture {
	case CapturePTY:
		output, started, err = runPTY(ctx, cmd)
	default:
		output, started, err = runPipe(cmd)
	}
	elapsed := time.Since(start)

	if !started {
		return Result{}, &SpawnError{Executable: executable, Err: err}
	}

	result := Result{
		Executable: executable,
		Args:       append([]string(nil), args...),
		ExitCode:   0,
		Output:     string(output),
		Duration:   elapsed,
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		result.ExitCode = -1
		logger.Warn("process killed", "executable", executable, "reason", ctxErr, "duration", elapsed)
		return result, fmt.Errorf("%s did not finish: %w", executable, ctxErr)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return result, fmt.Errorf("wait for %s: %w", executable, err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	logger.Debug("process exited",
		"executable", executable,
		"exit_code", result.ExitCode,
		"output_bytes", len(result.Output),
		"duration", elapsed,
	)
	return result, nil
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// runPipe gives stdout and stderr the same writer. os/exec then hands the
// child a single pipe for both, so the kernel preserves write order.
func runPipe(cmd *exec.Cmd) ([]byte, bool, error) {
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	if err := cmd.Start(); err != nil {
		return nil, false, err
	}
	err := cmd.Wait()
	return buf.Bytes(), true, err
}
