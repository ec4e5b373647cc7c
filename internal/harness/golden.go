package harness

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"golang.org/x/text/unicode/norm"
)

// GoldenSuffix is the file extension of golden transcripts.
const GoldenSuffix = ".golden"

// transcript is the stable, path-independent view of a Result.
type transcript struct {
	Scenario   string           `json:"scenario"`
	Status     string           `json:"status"`
	SkipReason string           `json:"skip_reason,omitempty"`
	Steps      []transcriptStep `json:"steps"`
}

type transcriptStep struct {
	Name     string   `json:"name"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exit_code"`
	Output   string   `json:"output"`
	Failures []string `json:"failures,omitempty"`
}

// Transcript renders result as indented JSON with durations dropped and
// run-specific paths replaced by ${WORKSPACE}, ${SOURCE} and ${COMPILER}.
// Output text is NFC-normalized, so equal results give equal bytes.
func Transcript(result *Result) ([]byte, error) {
	clean := result.normalizer()

	t := transcript{
		Scenario:   result.Scenario,
		Status:     result.Status(),
		SkipReason: result.SkipReason,
		Steps:      make([]transcriptStep, 0, len(result.Steps)),
	}
	for _, s := range result.Steps {
		step := transcriptStep{
			Name:     s.Name,
			Args:     make([]string, len(s.Args)),
			ExitCode: s.ExitCode,
			Output:   clean(s.Output),
		}
		for i, a := range s.Args {
			step.Args[i] = clean(a)
		}
		for _, f := range s.Failures {
			step.Failures = append(step.Failures, clean(f))
		}
		t.Steps = append(t.Steps, step)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t); err != nil {
		return nil, fmt.Errorf("encode transcript: %w", err)
	}
	return buf.Bytes(), nil
}

// normalizer returns a function that replaces known paths, longest first.
func (r *Result) normalizer() func(string) string {
	type sub struct{ path, name string }
	var subs []sub
	for _, s := range []sub{
		{r.Workspace, "${WORKSPACE}"},
		{r.source, "${SOURCE}"},
		{r.compiler, "${COMPILER}"},
	} {
		if s.path != "" {
			subs = append(subs, s)
		}
	}
	sort.SliceStable(subs, func(i, j int) bool { return len(subs[i].path) > len(subs[j].path) })

	pairs := make([]string, 0, 2*len(subs))
	for _, s := range subs {
		pairs = append(pairs, s.path, s.name)
	}
	replacer := strings.NewReplacer(pairs...)

	return func(s string) string {
		return replacer.Replace(norm.NFC.String(s))
	}
}

// AssertGolden compares the transcript of result against
// testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./... -update
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	data, err := Transcript(result)
	if err != nil {
		t.Fatalf("failed to render transcript: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(GoldenSuffix),
	)
	g.Assert(t, name, data)
}

// GoldenMismatchError reports a transcript that differs from its golden file.
type GoldenMismatchError struct {
	Path     string
	Expected []byte
	Actual   []byte
}

func (e *GoldenMismatchError) Error() string {
	return fmt.Sprintf("transcript does not match %s (rerun with --update to accept)", e.Path)
}

// CheckGolden compares data with the golden file at path outside of a test.
// With update set, or when the file does not exist yet, path is (re)written.
func CheckGolden(path string, data []byte, update bool) error {
	expected, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) || update {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("create golden dir: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("write golden file: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read golden file: %w", err)
	}
	if !bytes.Equal(expected, data) {
		return &GoldenMismatchError{Path: path, Expected: expected, Actual: data}
	}
	return nil
}
