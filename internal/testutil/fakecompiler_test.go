package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeCompiler_WritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	src := WriteSource(t, dir, "Contract.vy")
	out := filepath.Join(dir, "out")

	var stdout, stderr bytes.Buffer
	code := FakeCompiler([]string{src, "-o", out}, &stdout, &stderr, "")

	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "Compiler run successful")

	for _, name := range []string{"Contract.bin", "Contract.asm"} {
		info, err := os.Stat(filepath.Join(out, name))
		require.NoError(t, err)
		assert.NotZero(t, info.Size())
	}
}

func TestFakeCompiler_RefusesExistingOutputs(t *testing.T) {
	dir := t.TempDir()
	src := WriteSource(t, dir, "Contract.vy")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Contract.bin"), nil, 0644))

	var stdout, stderr bytes.Buffer
	code := FakeCompiler([]string{src, "-o", dir}, &stdout, &stderr, "")

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "Refusing to overwrite")

	code = FakeCompiler([]string{src, "-o", dir, "--overwrite"}, &stdout, &stderr, "")
	assert.Equal(t, 0, code)
}

func TestFakeCompiler_Modes(t *testing.T) {
	dir := t.TempDir()
	src := WriteSource(t, dir, "Contract.vy")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Contract.bin"), nil, 0644))

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, FakeCompiler([]string{src, "-o", dir}, &stdout, &stderr, "no-protection"))

	stderr.Reset()
	assert.Equal(t, 0, FakeCompiler([]string{src, "-o", dir, "--overwrite"}, &stdout, &stderr, "warn"))
	assert.Contains(t, stderr.String(), "Warning")

	assert.Equal(t, 0, FakeCompiler([]string{src, "-o", dir, "--overwrite"}, &stdout, &stderr, "empty"))
	info, err := os.Stat(filepath.Join(dir, "Contract.asm"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestFakeCompiler_UsageErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 2, FakeCompiler(nil, &stdout, &stderr, ""))
	assert.Equal(t, 2, FakeCompiler([]string{"x.vy", "-o"}, &stdout, &stderr, ""))
	assert.Equal(t, 2, FakeCompiler([]string{"--bogus"}, &stdout, &stderr, ""))
	assert.Equal(t, 1, FakeCompiler([]string{"/nonexistent/Contract.vy"}, &stdout, &stderr, ""))
}

func TestFakeCompiler_NoOutputDirPrintsBytecode(t *testing.T) {
	src := WriteSource(t, t.TempDir(), "Token.vy")

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, FakeCompiler([]string{src}, &stdout, &stderr, ""))
	assert.Contains(t, stdout.String(), "Contract `Token`")
	assert.Contains(t, stdout.String(), "bytecode: 0x")
}
