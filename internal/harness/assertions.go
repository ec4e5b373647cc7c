package harness

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"

	"github.com/roach88/cliconform/internal/artifact"
	"github.com/roach88/cliconform/internal/process"
)

// maxExcerpt bounds the output shown in an assertion failure.
const maxExcerpt = 512

// AssertionError is returned when an assertion fails.
// It includes the captured output to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Output   string // Captured output of the step
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if e.Output != "" {
		out := e.Output
		if len(out) > maxExcerpt {
			out = out[:maxExcerpt] + "..."
		}
		fmt.Fprintf(&buf, "\nOutput:\n")
		for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
			fmt.Fprintf(&buf, "  | %s\n", line)
		}
	}

	return buf.String()
}

// AssertionContext carries what artifact assertions need to locate files.
type AssertionContext struct {
	// Dir is the workspace directory.
	Dir string

	// Naming resolves kind-based artifact assertions.
	Naming artifact.Naming

	// Expand substitutes scenario variables. Nil leaves values unchanged.
	Expand func(string) string
}

func (c AssertionContext) expand(s string) string {
	if c.Expand == nil {
		return s
	}
	return c.Expand(s)
}

// EvaluateAssertions checks all assertions against one step observation
// and returns a message per failure. An empty slice means every assertion held.
func EvaluateAssertions(res process.Result, assertions []Assertion, actx AssertionContext) []string {
	var failures []string
	for _, a := range assertions {
		if err := evaluateAssertion(res, a, actx); err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

// evaluateAssertion dispatches to the appropriate assertion function.
func evaluateAssertion(res process.Result, a Assertion, actx AssertionContext) error {
	switch a.Type {
	case AssertExitCode:
		return assertExitCode(res, a)
	case AssertExitNonzero:
		return assertExitNonzero(res)
	case AssertOutputMatches:
		return assertOutputMatches(res, a.Pattern, true)
	case AssertOutputNotMatches:
		return assertOutputMatches(res, a.Pattern, false)
	case AssertOutputContains:
		return assertOutputContains(res, actx.expand(a.Text), true)
	case AssertOutputNotContains:
		return assertOutputContains(res, actx.expand(a.Text), false)
	case AssertArtifactExists, AssertArtifactMissing, AssertArtifactEmpty, AssertArtifactNonEmpty:
		return assertArtifact(res, a, actx)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

func assertExitCode(res process.Result, a Assertion) error {
	if a.Code == nil {
		return fmt.Errorf("exit_code assertion has no code")
	}
	if res.ExitCode != *a.Code {
		return &AssertionError{
			Type:     AssertExitCode,
			Expected: fmt.Sprintf("exit code %d", *a.Code),
			Actual:   fmt.Sprintf("exit code %d", res.ExitCode),
			Output:   res.Output,
		}
	}
	return nil
}

func assertExitNonzero(res process.Result) error {
	if res.ExitCode == 0 {
		return &AssertionError{
			Type:     AssertExitNonzero,
			Expected: "non-zero exit code",
			Actual:   "exit code 0",
			Output:   res.Output,
		}
	}
	return nil
}

// assertOutputMatches searches the merged output for pattern, case-insensitively.
// want reports whether a match is required or forbidden.
func assertOutputMatches(res process.Result, pattern string, want bool) error {
	re, err := compilePattern(pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	match := re.FindString(res.Output)
	if want && !re.MatchString(res.Output) {
		return &AssertionError{
			Type:     AssertOutputMatches,
			Expected: fmt.Sprintf("output matching /%s/i", pattern),
			Actual:   "no match",
			Output:   res.Output,
		}
	}
	if !want && re.MatchString(res.Output) {
		return &AssertionError{
			Type:     AssertOutputNotMatches,
			Expected: fmt.Sprintf("no output matching /%s/i", pattern),
			Actual:   fmt.Sprintf("matched %q", match),
			Output:   res.Output,
		}
	}
	return nil
}

// assertOutputContains looks for text after Unicode case folding both sides.
func assertOutputContains(res process.Result, text string, want bool) error {
	fold := cases.Fold()
	found := strings.Contains(fold.String(res.Output), fold.String(text))

	if want && !found {
		return &AssertionError{
			Type:     AssertOutputContains,
			Expected: fmt.Sprintf("output containing %q", text),
			Actual:   "not found",
			Output:   res.Output,
		}
	}
	if !want && found {
		return &AssertionError{
			Type:     AssertOutputNotContains,
			Expected: fmt.Sprintf("output not containing %q", text),
			Actual:   "found",
			Output:   res.Output,
		}
	}
	return nil
}

// artifactPath resolves the file an artifact assertion refers to.
func artifactPath(a Assertion, actx AssertionContext) (string, error) {
	if a.File != "" {
		file := actx.expand(a.File)
		if filepath.IsAbs(file) {
			return file, nil
		}
		return filepath.Join(actx.Dir, file), nil
	}
	kind, err := artifact.ParseKind(a.Kind)
	if err != nil {
		return "", err
	}
	return artifact.OutputPath(actx.Dir, actx.Naming, kind), nil
}

func assertArtifact(res process.Result, a Assertion, actx AssertionContext) error {
	path, err := artifactPath(a, actx)
	if err != nil {
		return err
	}
	rel, _ := filepath.Rel(actx.Dir, path)

	fail := func(expected, actual string) error {
		return &AssertionError{
			Type:     a.Type,
			Expected: expected,
			Actual:   actual,
			Output:   res.Output,
		}
	}

	switch a.Type {
	case AssertArtifactExists, AssertArtifactMissing:
		exists, err := artifact.Exists(path)
		if err != nil {
			return fmt.Errorf("inspect %s: %w", rel, err)
		}
		if a.Type == AssertArtifactExists && !exists {
			return fail(fmt.Sprintf("artifact %s exists", rel), "missing")
		}
		if a.Type == AssertArtifactMissing && exists {
			return fail(fmt.Sprintf("artifact %s is absent", rel), "present")
		}
	case AssertArtifactEmpty, AssertArtifactNonEmpty:
		size, err := artifact.Size(path)
		var nf *artifact.NotFoundError
		if errors.As(err, &nf) {
			return fail(fmt.Sprintf("artifact %s (%s)", rel, emptiness(a.Type)), "missing")
		}
		if err != nil {
			return fmt.Errorf("inspect %s: %w", rel, err)
		}
		if a.Type == AssertArtifactEmpty && size != 0 {
			return fail(fmt.Sprintf("artifact %s is empty", rel), fmt.Sprintf("%d bytes", size))
		}
		if a.Type == AssertArtifactNonEmpty && size == 0 {
			return fail(fmt.Sprintf("artifact %s is non-empty", rel), "0 bytes")
		}
	}
	return nil
}

func emptiness(t string) string {
	if t == AssertArtifactEmpty {
		return "empty"
	}
	return "non-empty"
}
