package harness

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cliconform/internal/artifact"
	"github.com/roach88/cliconform/internal/process"
)

const (
	// RefusalPattern is the text signal of a refused overwrite.
	RefusalPattern = "refusing to overwrite"

	// FailureSignalPattern must not appear in the output of a forced run.
	FailureSignalPattern = "error|warning|fail"
)

var (
	refusalRe       = regexp.MustCompile("(?i)" + RefusalPattern)
	failureSignalRe = regexp.MustCompile("(?i)" + FailureSignalPattern)
)

// OverwriteConfig describes the compiler invocation under test.
type OverwriteConfig struct {
	// Compiler is the executable. Empty defers to Options.Compiler.
	Compiler string

	// Source is the absolute path of the input file.
	Source string

	// Naming is the output convention. An empty base name comes from Source.
	Naming artifact.Naming

	// OutputFlag selects the output directory. Defaults to "-o".
	OutputFlag string

	// OverwriteFlag forces replacement. Defaults to "--overwrite".
	OverwriteFlag string
}

func (c OverwriteConfig) withDefaults() OverwriteConfig {
	if c.OutputFlag == "" {
		c.OutputFlag = "-o"
	}
	if c.OverwriteFlag == "" {
		c.OverwriteFlag = "--overwrite"
	}
	c.Naming = c.Naming.ForSource(c.Source)
	return c
}

// OverwriteProtection builds the two-phase overwrite protocol. Both
// artifacts are seeded empty; the first step must refuse to replace them
// and the second, with the overwrite flag, must replace them cleanly.
func OverwriteProtection(cfg OverwriteConfig) *Scenario {
	cfg = cfg.withDefaults()
	zero := 0

	return &Scenario{
		Name:        "overwrite_protection",
		Description: "Refuse pre-existing outputs unless " + cfg.OverwriteFlag + " is given",
		Compiler:    cfg.Compiler,
		Source:      cfg.Source,
		Requires:    []string{"exact_argument_quoting"},
		Artifacts:   cfg.Naming,
		Seed:        []string{"${BINARY_FILE}", "${ASSEMBLY_FILE}"},
		Steps: []Step{
			{
				Name: "refuse",
				Args: []string{"${SOURCE}", cfg.OutputFlag, "${WORKSPACE}"},
				Expect: []Assertion{
					{Type: AssertOutputMatches, Pattern: RefusalPattern},
					{Type: AssertExitNonzero},
				},
			},
			{
				Name: "force",
				Args: []string{"${SOURCE}", cfg.OutputFlag, "${WORKSPACE}", cfg.OverwriteFlag},
				Expect: []Assertion{
					{Type: AssertExitCode, Code: &zero},
					{Type: AssertArtifactNonEmpty, Kind: string(artifact.KindBinary)},
					{Type: AssertArtifactNonEmpty, Kind: string(artifact.KindAssembly)},
					{Type: AssertOutputNotMatches, Pattern: FailureSignalPattern},
				},
			},
		},
	}
}

// AssertRefusal checks a refused overwrite: the refusal text, a nonzero
// exit status and artifacts left at their seeded zero length.
func AssertRefusal(t testing.TB, res process.Result, dir string, naming artifact.Naming) {
	t.Helper()
	assert.Regexp(t, refusalRe, res.Output, "missing refusal signal")
	assert.NotEqual(t, 0, res.ExitCode, "refusal must exit nonzero")
	for _, k := range artifact.Kinds {
		empty, err := artifact.IsEmpty(artifact.OutputPath(dir, naming, k))
		require.NoError(t, err)
		assert.True(t, empty, "%s artifact was modified", k)
	}
}

// AssertForcedSuccess checks a forced overwrite: exit 0, both artifacts
// non-empty and no failure signal in the output.
func AssertForcedSuccess(t testing.TB, res process.Result, dir string, naming artifact.Naming) {
	t.Helper()
	assert.Equal(t, 0, res.ExitCode, "output: %s", res.Output)
	for _, k := range artifact.Kinds {
		empty, err := artifact.IsEmpty(artifact.OutputPath(dir, naming, k))
		require.NoError(t, err)
		assert.False(t, empty, "%s artifact is empty", k)
	}
	assert.NotRegexp(t, failureSignalRe, res.Output, "forced run reported a failure signal")
}
