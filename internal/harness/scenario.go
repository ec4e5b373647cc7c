package harness

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/cliconform/internal/artifact"
	"github.com/roach88/cliconform/internal/platform"
	"github.com/roach88/cliconform/internal/process"
)

//go:embed schema.cue
var schemaCUE string

// Scenario defines a conformance scenario: one workspace, optional collision
// files, and a linear sequence of compiler invocations with expectations.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains which behavior the scenario pins down.
	Description string `yaml:"description"`

	// Compiler is the executable to run. Empty means the caller's default.
	Compiler string `yaml:"compiler,omitempty"`

	// Source is the input file handed to the compiler as ${SOURCE}.
	// Relative paths are resolved against the scenario file's directory.
	Source string `yaml:"source,omitempty"`

	// SkipOn lists operating systems (GOOS values) where the scenario is skipped.
	SkipOn []string `yaml:"skip_on,omitempty"`

	// Requires lists platform capabilities the scenario depends on.
	Requires []string `yaml:"requires,omitempty"`

	// Timeout bounds each step (Go duration). Empty means no timeout.
	Timeout string `yaml:"timeout,omitempty"`

	// Capture selects "pipe" (default) or "pty" output capture.
	Capture string `yaml:"capture,omitempty"`

	// Dir is the working directory of every step, after variable
	// expansion (for example "${WORKSPACE}"). Empty inherits the caller's.
	Dir string `yaml:"dir,omitempty"`

	// Artifacts is the output naming convention. An empty base name is
	// derived from Source.
	Artifacts artifact.Naming `yaml:"artifacts,omitempty"`

	// Seed lists zero-length files created in the workspace before step 1.
	Seed []string `yaml:"seed,omitempty"`

	// Steps are executed in order, each as one compiler invocation.
	Steps []Step `yaml:"steps"`
}

// Step is one compiler invocation and the expectations on its observation.
type Step struct {
	// Name labels the step in reports. Defaults to "step-N".
	Name string `yaml:"name,omitempty"`

	// Args is the argument vector, after variable expansion.
	Args []string `yaml:"args,omitempty"`

	// Env adds variables to the inherited environment for this step.
	Env map[string]string `yaml:"env,omitempty"`

	// Expect lists assertions over the step's result and the workspace.
	Expect []Assertion `yaml:"expect,omitempty"`
}

// Assertion validates one observable surface of a step.
type Assertion struct {
	// Type specifies the assertion type (see the Assert* constants).
	Type string `yaml:"type"`

	// Code is the expected exit status (exit_code).
	Code *int `yaml:"code,omitempty"`

	// Pattern is a regular expression, matched case-insensitively
	// (output_matches, output_not_matches).
	Pattern string `yaml:"pattern,omitempty"`

	// Text is a literal, matched after Unicode case folding
	// (output_contains, output_not_contains).
	Text string `yaml:"text,omitempty"`

	// Kind selects a conventional artifact (artifact_*).
	Kind string `yaml:"kind,omitempty"`

	// File names an artifact explicitly, relative to the workspace (artifact_*).
	File string `yaml:"file,omitempty"`
}

// Assertion type constants.
const (
	AssertExitCode          = "exit_code"
	AssertExitNonzero       = "exit_nonzero"
	AssertOutputMatches     = "output_matches"
	AssertOutputNotMatches  = "output_not_matches"
	AssertOutputContains    = "output_contains"
	AssertOutputNotContains = "output_not_contains"
	AssertArtifactExists    = "artifact_exists"
	AssertArtifactMissing   = "artifact_missing"
	AssertArtifactEmpty     = "artifact_empty"
	AssertArtifactNonEmpty  = "artifact_nonempty"
)

// StepName returns the step's display name.
func (s *Scenario) StepName(i int) string {
	if s.Steps[i].Name != "" {
		return s.Steps[i].Name
	}
	return fmt.Sprintf("step-%d", i+1)
}

// LoadScenario reads and parses a scenario YAML file. A relative source
// path is resolved against the directory containing the file.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving a relative source path against basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, basePath)
}

// ParseScenario validates data against the scenario schema and decodes it.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	if err := validateSchema(data); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	// Strict decode catches anything the schema let through by accident.
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Source != "" && !filepath.IsAbs(scenario.Source) && basePath != "" {
		scenario.Source = filepath.Join(basePath, scenario.Source)
	}
	if scenario.Source != "" {
		abs, err := filepath.Abs(scenario.Source)
		if err != nil {
			return nil, fmt.Errorf("resolve source: %w", err)
		}
		scenario.Source = abs
	}

	if err := ValidateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateSchema unifies the raw document with #Scenario from schema.cue.
func validateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("scenario file is empty")
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	value := ctx.Encode(doc)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Scenario")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema violation: %s", cueerrors.Details(err, nil))
	}
	return nil
}

// ValidateScenario checks the semantic rules the schema cannot express.
// It is applied by the loaders and by Run.
func ValidateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if s.Source != "" {
		if _, err := os.Stat(s.Source); os.IsNotExist(err) {
			return fmt.Errorf("source file not found: %s", s.Source)
		}
	}

	for i, c := range s.Requires {
		if _, err := platform.ParseCapability(c); err != nil {
			return fmt.Errorf("requires[%d]: %w", i, err)
		}
	}

	if s.Timeout != "" {
		d, err := time.ParseDuration(s.Timeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("timeout must be non-negative")
		}
	}

	if _, err := process.ParseCaptureMode(s.Capture); err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	for i, name := range s.Seed {
		if name == "" {
			return fmt.Errorf("seed[%d]: file name is required", i)
		}
	}

	needsBase := false
	for i, step := range s.Steps {
		for j := range step.Expect {
			a := &step.Expect[j]
			if err := validateAssertion(a); err != nil {
				return fmt.Errorf("steps[%d].expect[%d]: %w", i, j, err)
			}
			if a.Kind != "" {
				needsBase = true
			}
		}
	}
	if needsBase && s.Artifacts.BaseName == "" && s.Source == "" {
		return fmt.Errorf("artifacts.base_name or source is required for kind-based artifact assertions")
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("type is required")
	case AssertExitCode:
		if a.Code == nil {
			return fmt.Errorf("code is required for exit_code")
		}
	case AssertExitNonzero:
	case AssertOutputMatches, AssertOutputNotMatches:
		if a.Pattern == "" {
			return fmt.Errorf("pattern is required for %s", a.Type)
		}
		if _, err := compilePattern(a.Pattern); err != nil {
			return fmt.Errorf("pattern: %w", err)
		}
	case AssertOutputContains, AssertOutputNotContains:
		if a.Text == "" {
			return fmt.Errorf("text is required for %s", a.Type)
		}
	case AssertArtifactExists, AssertArtifactMissing, AssertArtifactEmpty, AssertArtifactNonEmpty:
		if (a.Kind == "") == (a.File == "") {
			return fmt.Errorf("exactly one of kind or file is required for %s", a.Type)
		}
		if a.Kind != "" {
			if _, err := artifact.ParseKind(a.Kind); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// compilePattern compiles pattern for case-insensitive matching.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}
