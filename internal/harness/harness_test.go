package harness

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cliconform/internal/artifact"
	"github.com/roach88/cliconform/internal/platform"
	"github.com/roach88/cliconform/internal/process"
	"github.com/roach88/cliconform/internal/testutil"
	"github.com/roach88/cliconform/internal/workspace"
)

func TestMain(m *testing.M) {
	testutil.RunFakeCompilerIfRequested()
	os.Exit(m.Run())
}

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func overwriteScenario(t *testing.T) *Scenario {
	t.Helper()
	platform.Require(t, platform.ExactArgumentQuoting)
	src := testutil.WriteSource(t, t.TempDir(), "Contract.vy")
	return OverwriteProtection(OverwriteConfig{Source: src})
}

func TestRun_OverwriteProtectionPasses(t *testing.T) {
	platform.Require(t, platform.ExactArgumentQuoting, platform.MergedOutputCapture)
	exe := testutil.UseFakeCompiler(t, "")

	result, err := Run(context.Background(), loadTestScenario(t, "overwrite_protection"), Options{Compiler: exe})
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, StatusPass, result.Status())
	assert.Empty(t, result.Errors)
	require.Len(t, result.Steps, 2)

	refuse := result.Steps[0]
	assert.Equal(t, "refuse", refuse.Name)
	assert.NotEqual(t, 0, refuse.ExitCode)
	assert.Regexp(t, "(?i)refusing to overwrite", refuse.Output)

	force := result.Steps[1]
	assert.Equal(t, "force", force.Name)
	assert.Equal(t, 0, force.ExitCode)
	assert.Contains(t, force.Args, "--overwrite")
}

func TestRun_ReleasesWorkspace(t *testing.T) {
	exe := testutil.UseFakeCompiler(t, "")

	result, err := Run(context.Background(), overwriteScenario(t), Options{Compiler: exe})
	require.NoError(t, err)

	require.NotEmpty(t, result.Workspace)
	assert.NoDirExists(t, result.Workspace)
}

func TestRun_UsesWorkspacePrefix(t *testing.T) {
	exe := testutil.UseFakeCompiler(t, "")

	result, err := Run(context.Background(), overwriteScenario(t), Options{
		Compiler:        exe,
		WorkspacePrefix: "harness-prefix-",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(result.Workspace), "harness-prefix-"))
}

func TestRun_CompilerWithoutProtectionFails(t *testing.T) {
	exe := testutil.UseFakeCompiler(t, "no-protection")

	result, err := Run(context.Background(), overwriteScenario(t), Options{Compiler: exe})
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Equal(t, StatusFail, result.Status())
	require.Len(t, result.Steps, 2, "later steps run after a failed step")

	refuse := result.Steps[0]
	assert.Equal(t, 0, refuse.ExitCode)
	require.Len(t, refuse.Failures, 2)
	assert.Contains(t, refuse.Failures[0], AssertOutputMatches)
	assert.Contains(t, refuse.Failures[1], AssertExitNonzero)

	assert.Empty(t, result.Steps[1].Failures)
}

func TestRun_WarningFailsForcedPhase(t *testing.T) {
	exe := testutil.UseFakeCompiler(t, "warn")

	result, err := Run(context.Background(), overwriteScenario(t), Options{Compiler: exe})
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Empty(t, result.Steps[0].Failures)
	require.Len(t, result.Steps[1].Failures, 1)
	assert.Contains(t, result.Steps[1].Failures[0], AssertOutputNotMatches)
	assert.Contains(t, result.Steps[1].Failures[0], "Warning: unused variable")
}

func TestRun_EmptyArtifactsFailForcedPhase(t *testing.T) {
	exe := testutil.UseFakeCompiler(t, "empty")

	result, err := Run(context.Background(), overwriteScenario(t), Options{Compiler: exe})
	require.NoError(t, err)

	assert.False(t, result.Pass)
	failures := result.Steps[1].Failures
	require.Len(t, failures, 2)
	assert.Contains(t, failures[0], "Contract.bin")
	assert.Contains(t, failures[1], "Contract.asm")
}

func TestRun_DefaultStepNamesAndVariables(t *testing.T) {
	exe := testutil.UseFakeCompiler(t, "")

	result, err := Run(context.Background(), loadTestScenario(t, "fresh_output"), Options{Compiler: exe})
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, "step-1", result.Steps[0].Name)
	assert.Equal(t, "stdout-only", result.Steps[1].Name)
	assert.Equal(t, result.Workspace, result.Steps[0].Args[2])
	assert.True(t, filepath.IsAbs(result.Steps[0].Args[0]))
}

func TestRun_RelativeCompilerPath(t *testing.T) {
	exe := testutil.UseFakeCompiler(t, "")
	s := overwriteScenario(t)
	t.Chdir(filepath.Dir(exe))

	result, err := Run(context.Background(), s, Options{Compiler: "./" + filepath.Base(exe)})
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.True(t, filepath.IsAbs(result.compiler))
	assert.Equal(t, filepath.Base(exe), filepath.Base(result.compiler))
}

func TestRun_InheritsWorkingDirectory(t *testing.T) {
	platform.Require(t, platform.ExactArgumentQuoting)
	exe := testutil.UseFakeCompiler(t, "")
	cwd := t.TempDir()
	src := testutil.WriteSource(t, t.TempDir(), "Contract.vy")
	t.Chdir(cwd)

	s := &Scenario{
		Name:        "relative_output",
		Description: "Relative -o resolves against the caller's directory",
		Source:      src,
		Steps: []Step{{
			Args:   []string{"${SOURCE}", "-o", "out"},
			Expect: []Assertion{{Type: AssertExitCode, Code: intPtr(0)}},
		}},
	}
	result, err := Run(context.Background(), s, Options{Compiler: exe})
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.FileExists(t, filepath.Join(cwd, "out", "Contract.bin"))
}

func TestRun_ScenarioDirOverridesWorkingDirectory(t *testing.T) {
	platform.Require(t, platform.ExactArgumentQuoting)
	exe := testutil.UseFakeCompiler(t, "")
	src := testutil.WriteSource(t, t.TempDir(), "Contract.vy")

	s := &Scenario{
		Name:        "workspace_cwd",
		Description: "Steps run inside the workspace",
		Source:      src,
		Dir:         "${WORKSPACE}",
		Steps: []Step{{
			Args: []string{"${SOURCE}", "-o", "."},
			Expect: []Assertion{
				{Type: AssertExitCode, Code: intPtr(0)},
				{Type: AssertArtifactNonEmpty, File: "${BINARY}"},
			},
		}},
	}
	result, err := Run(context.Background(), s, Options{Compiler: exe})
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_SkipsExcludedOS(t *testing.T) {
	s := overwriteScenario(t)
	s.SkipOn = []string{"plan9"}

	result, err := Run(context.Background(), s, Options{
		Compiler: "/nonexistent/compiler",
		Platform: &platform.Platform{OS: "plan9", Arch: "amd64"},
	})
	require.NoError(t, err)

	assert.True(t, result.Skipped)
	assert.Equal(t, StatusSkip, result.Status())
	assert.Contains(t, result.SkipReason, "plan9")
	assert.Empty(t, result.Steps)
	assert.Empty(t, result.Workspace, "no workspace for a skipped scenario")
}

func TestRun_SkipsMissingCapability(t *testing.T) {
	s := overwriteScenario(t)

	result, err := Run(context.Background(), s, Options{
		Compiler: "/nonexistent/compiler",
		Platform: &platform.Platform{OS: "windows", Arch: "amd64"},
	})
	require.NoError(t, err)

	assert.True(t, result.Skipped)
	assert.Contains(t, result.SkipReason, string(platform.ExactArgumentQuoting))
}

func TestRun_SpawnErrorAbortsAndReleases(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no-such-compiler")

	result, err := Run(context.Background(), overwriteScenario(t), Options{Compiler: missing})
	require.Error(t, err)

	var spawnErr *process.SpawnError
	require.True(t, errors.As(err, &spawnErr))
	assert.Equal(t, missing, spawnErr.Executable)

	require.NotNil(t, result)
	assert.False(t, result.Pass)
	assert.Empty(t, result.Steps)
	assert.NoDirExists(t, result.Workspace)
}

func TestRun_TimeoutAbortsScenario(t *testing.T) {
	exe := testutil.UseFakeCompiler(t, "sleep")

	result, err := Run(context.Background(), overwriteScenario(t), Options{
		Compiler: exe,
		Timeout:  200 * time.Millisecond,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	require.Len(t, result.Steps, 1, "the killed step is recorded")
	assert.Equal(t, -1, result.Steps[0].ExitCode)
	assert.NoDirExists(t, result.Workspace)
}

func TestRun_ScenarioTimeoutOverridesOptions(t *testing.T) {
	exe := testutil.UseFakeCompiler(t, "sleep")
	s := overwriteScenario(t)
	s.Timeout = "100ms"

	start := time.Now()
	_, err := Run(context.Background(), s, Options{Compiler: exe, Timeout: time.Hour})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 30*time.Second)
}

func TestRun_SeedErrorAborts(t *testing.T) {
	exe := testutil.UseFakeCompiler(t, "")
	s := overwriteScenario(t)
	s.Seed = []string{"../outside.bin"}

	result, err := Run(context.Background(), s, Options{Compiler: exe})
	require.Error(t, err)

	var seedErr *workspace.SeedError
	require.True(t, errors.As(err, &seedErr))
	assert.NoDirExists(t, result.Workspace)
}

func TestRun_RequiresCompiler(t *testing.T) {
	_, err := Run(context.Background(), overwriteScenario(t), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no compiler configured")
}

func TestRun_RejectsInvalidScenario(t *testing.T) {
	_, err := Run(context.Background(), &Scenario{Name: "x", Description: "y"}, Options{Compiler: "cc"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps")
}

func TestRun_ScenarioCompilerWins(t *testing.T) {
	exe := testutil.UseFakeCompiler(t, "")
	s := overwriteScenario(t)
	s.Compiler = exe

	result, err := Run(context.Background(), s, Options{Compiler: "/nonexistent/compiler"})
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ConcurrentScenariosAreIsolated(t *testing.T) {
	exe := testutil.UseFakeCompiler(t, "")
	s := overwriteScenario(t)

	results := make(chan *Result, 4)
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			r, err := Run(context.Background(), s, Options{Compiler: exe})
			results <- r
			errs <- err
		}()
	}

	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		require.NoError(t, <-errs)
		r := <-results
		assert.True(t, r.Pass, "errors: %v", r.Errors)
		assert.False(t, seen[r.Workspace], "workspace reused")
		seen[r.Workspace] = true
	}
}

func TestAssertHelpers_DirectUse(t *testing.T) {
	platform.Require(t, platform.ExactArgumentQuoting)
	exe := testutil.UseFakeCompiler(t, "")

	ws := workspace.ForTest(t)
	src := testutil.WriteSource(t, t.TempDir(), "Contract.vy")
	naming := artifact.Naming{}.ForSource(src)
	require.NoError(t, ws.Seed(naming.FileNames()...))

	r := &process.Runner{Dir: ws.Path()}

	res, err := r.Run(context.Background(), exe, src, "-o", ws.Path())
	require.NoError(t, err)
	AssertRefusal(t, res, ws.Path(), naming)

	res, err = r.Run(context.Background(), exe, src, "-o", ws.Path(), "--overwrite")
	require.NoError(t, err)
	AssertForcedSuccess(t, res, ws.Path(), naming)
}

func TestOverwriteProtection_Shape(t *testing.T) {
	s := OverwriteProtection(OverwriteConfig{
		Compiler: "zkvyper",
		Source:   "/src/Token.vy",
	})

	require.NoError(t, ValidateScenario(&Scenario{
		Name: s.Name, Description: s.Description, Steps: s.Steps, Artifacts: s.Artifacts,
	}))
	assert.Equal(t, "zkvyper", s.Compiler)
	assert.Equal(t, "Token", s.Artifacts.BaseName)
	assert.Equal(t, ".bin", s.Artifacts.BinaryExt)
	assert.Equal(t, []string{"${BINARY_FILE}", "${ASSEMBLY_FILE}"}, s.Seed)

	require.Len(t, s.Steps, 2)
	assert.Equal(t, []string{"${SOURCE}", "-o", "${WORKSPACE}"}, s.Steps[0].Args)
	assert.Equal(t, []string{"${SOURCE}", "-o", "${WORKSPACE}", "--overwrite"}, s.Steps[1].Args)

	var refusalTypes []string
	for _, a := range s.Steps[0].Expect {
		refusalTypes = append(refusalTypes, a.Type)
	}
	assert.Equal(t, []string{AssertOutputMatches, AssertExitNonzero}, refusalTypes)
}

func TestOverwriteProtection_CustomFlags(t *testing.T) {
	s := OverwriteProtection(OverwriteConfig{
		Source:        "/src/Token.vy",
		Naming:        artifact.Naming{BaseName: "out", BinaryExt: ".zbin"},
		OutputFlag:    "--output-dir",
		OverwriteFlag: "-f",
	})

	assert.Equal(t, "out", s.Artifacts.BaseName)
	assert.Equal(t, ".zbin", s.Artifacts.BinaryExt)
	assert.Equal(t, ".asm", s.Artifacts.AssemblyExt)
	assert.Equal(t, []string{"${SOURCE}", "--output-dir", "${WORKSPACE}", "-f"}, s.Steps[1].Args)
}
