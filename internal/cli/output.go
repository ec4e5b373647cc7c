package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Conformance failure (assertions failed, regressions found)
	ExitCommandError = 2 // Command or harness error (invalid paths, spawn failures, timeouts)
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitSuccess for nil and ExitCommandError (2) for errors that are
// not an ExitError, such as cobra's argument and flag errors.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// Error codes carried in JSON responses.
const (
	CodeTestFailed = "E_TEST_FAILED" // a scenario assertion failed
	CodeHarness    = "E_HARNESS"     // a scenario could not be run
	CodeOverwrite  = "E_OVERWRITE"   // overwrite protection did not hold
	CodeRegression = "E_REGRESSION"  // a scenario regressed against a baseline
)

// OutputFormatter writes command payloads as JSON or text.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`           // "ok" or "error"
	Data   any       `json:"data,omitempty"`   // command payload
	Error  *CLIError `json:"error,omitempty"`  // failure summary
	RunID  string    `json:"run_id,omitempty"` // recorded run, when --db is set
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // one of the Code* constants
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.Report(data, "", nil)
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Report writes a JSON response for data. A non-nil cliErr marks the
// response as failed; the payload is still included.
func (f *OutputFormatter) Report(data any, runID string, cliErr *CLIError) error {
	resp := CLIResponse{Status: "ok", Data: data, Error: cliErr, RunID: runID}
	if cliErr != nil {
		resp.Status = "error"
	}
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(resp)
}
