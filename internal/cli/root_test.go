package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "cliconform", cmd.Use)
	assert.Contains(t, cmd.Long, "isolated workspace")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"test", "overwrite", "history", "platform"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	for _, name := range []string{"compiler", "filter", "parallel", "update", "db", "timeout"} {
		assert.NotNil(t, testCmd.Flags().Lookup(name), "missing --%s", name)
	}
	assert.Equal(t, "1", testCmd.Flags().Lookup("parallel").DefValue)
}

func TestOverwriteCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	owCmd, _, err := cmd.Find([]string{"overwrite"})
	require.NoError(t, err)

	assert.Equal(t, ".bin", owCmd.Flags().Lookup("binary-ext").DefValue)
	assert.Equal(t, ".asm", owCmd.Flags().Lookup("assembly-ext").DefValue)
	assert.Equal(t, "-o", owCmd.Flags().Lookup("output-flag").DefValue)
	assert.Equal(t, "--overwrite", owCmd.Flags().Lookup("overwrite-flag").DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := execute(t, "platform", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConfigFlag(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, _, err := execute(t, "platform", "--config", filepath.Join(t.TempDir(), "none.yaml"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("invalid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "c.yaml")
		require.NoError(t, os.WriteFile(path, []byte("parallel: 0\n"), 0644))
		_, _, err := execute(t, "platform", "--config", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parallel")
	})

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "c.yaml")
		require.NoError(t, os.WriteFile(path, []byte("compiler: zkvyper\n"), 0644))
		_, _, err := execute(t, "platform", "--config", path)
		require.NoError(t, err)
	})
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(NewExitError(ExitFailure, "failed")))
	assert.Equal(t, ExitCommandError, GetExitCode(errors.New("unknown flag")))

	wrapped := fmt.Errorf("outer: %w", NewExitError(ExitFailure, "inner"))
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
}

func TestExitError(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapExitError(ExitCommandError, "failed to open database", cause)

	assert.Equal(t, "failed to open database: disk full", err.Error())
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "plain", NewExitError(ExitFailure, "plain").Error())
}
