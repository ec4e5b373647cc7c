package harness

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cliconform/internal/platform"
	"github.com/roach88/cliconform/internal/testutil"
)

// Regenerate with: go test ./internal/harness -run TestGolden -update
func TestGolden_OverwriteProtection(t *testing.T) {
	platform.Require(t, platform.ExactArgumentQuoting, platform.MergedOutputCapture)
	exe := testutil.UseFakeCompiler(t, "")

	scenario := loadTestScenario(t, "overwrite_protection")
	result, err := Run(context.Background(), scenario, Options{Compiler: exe})
	require.NoError(t, err)

	AssertGolden(t, scenario.Name, result)
}

func TestTranscript_ReplacesRunSpecificPaths(t *testing.T) {
	result := NewResult("demo")
	result.Workspace = "/tmp/cliconform-ws-123"
	result.source = "/home/dev/contracts/Contract.vy"
	result.compiler = "/usr/local/bin/zkvyper"
	result.Steps = append(result.Steps, StepResult{
		Name:     "refuse",
		Args:     []string{"/home/dev/contracts/Contract.vy", "-o", "/tmp/cliconform-ws-123"},
		ExitCode: 1,
		Output:   "/usr/local/bin/zkvyper: refusing to overwrite /tmp/cliconform-ws-123/Contract.bin\n",
	})

	data, err := Transcript(result)
	require.NoError(t, err)

	got := string(data)
	assert.NotContains(t, got, "/tmp/cliconform-ws-123")
	assert.NotContains(t, got, "/home/dev")
	assert.Contains(t, got, `"${SOURCE}"`)
	assert.Contains(t, got, `${COMPILER}: refusing to overwrite ${WORKSPACE}/Contract.bin`)
	assert.NotContains(t, got, "duration")
}

func TestTranscript_IsDeterministic(t *testing.T) {
	build := func(ws string) *Result {
		r := NewResult("demo")
		r.Workspace = ws
		r.Steps = append(r.Steps, StepResult{Name: "s", Args: []string{ws}, Output: "café in " + ws})
		return r
	}

	a, err := Transcript(build("/tmp/ws-a"))
	require.NoError(t, err)
	b, err := Transcript(build("/tmp/ws-b"))
	require.NoError(t, err)

	assert.Equal(t, string(a), string(b))
	assert.Contains(t, string(a), "café", "output is NFC-normalized")
}

func TestTranscript_Failing(t *testing.T) {
	result := NewResult("demo")
	result.AddError("force: boom")
	result.Steps = append(result.Steps, StepResult{Name: "force", Failures: []string{"boom"}})

	data, err := Transcript(result)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status": "fail"`)
	assert.Contains(t, string(data), `"failures"`)
}

func TestCheckGolden(t *testing.T) {
	path := filepath.Join(t.TempDir(), "golden", "demo.golden")

	// First run records.
	require.NoError(t, CheckGolden(path, []byte("one\n"), false))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one\n", string(data))

	require.NoError(t, CheckGolden(path, []byte("one\n"), false))

	err = CheckGolden(path, []byte("two\n"), false)
	var mismatch *GoldenMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "one\n", string(mismatch.Expected))
	assert.Equal(t, "two\n", string(mismatch.Actual))

	require.NoError(t, CheckGolden(path, []byte("two\n"), true))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two\n", string(data))
}
