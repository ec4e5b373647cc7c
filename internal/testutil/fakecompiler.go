// Package testutil provides a stand-in compiler for exercising the harness.
//
// The test binary doubles as the compiler: a package's TestMain calls
// RunFakeCompilerIfRequested, and tests point the harness at os.Args[0] with
// FakeCompilerEnv set. The child process then behaves like a compiler that
// implements overwrite protection.
package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// FakeCompilerEnv switches a re-executed test binary into compiler mode.
const FakeCompilerEnv = "CLICONFORM_FAKE_COMPILER"

// FakeModeEnv selects a misbehavior for negative tests:
//
//   - "" (default): refuse existing outputs unless --overwrite is given
//   - "no-protection": silently overwrite existing outputs
//   - "warn": succeed but print a warning line
//   - "empty": succeed but write zero-length artifacts
//   - "interleave": print alternating stdout/stderr lines and exit 3
//   - "sleep": block until killed
const FakeModeEnv = "CLICONFORM_FAKE_MODE"

// Fake compiler artifact extensions. They match artifact.DefaultNaming.
const (
	FakeBinaryExt   = ".bin"
	FakeAssemblyExt = ".asm"
)

// RunFakeCompilerIfRequested runs the fake compiler and exits when the
// process was started in compiler mode. Call it first thing in TestMain.
func RunFakeCompilerIfRequested() {
	if os.Getenv(FakeCompilerEnv) != "1" {
		return
	}
	os.Exit(FakeCompiler(os.Args[1:], os.Stdout, os.Stderr, os.Getenv(FakeModeEnv)))
}

// UseFakeCompiler enables compiler mode for child processes of this test and
// returns the executable to invoke. Not usable from parallel tests.
func UseFakeCompiler(tb testing.TB, mode string) string {
	tb.Helper()
	tb.Setenv(FakeCompilerEnv, "1")
	tb.Setenv(FakeModeEnv, mode)
	exe, err := os.Executable()
	if err != nil {
		tb.Fatalf("failed to resolve test executable: %v", err)
	}
	return exe
}

// WriteSource writes a minimal contract source file into dir.
func WriteSource(tb testing.TB, dir, name string) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	src := "# @version ^0.3.10\n\n@external\ndef get() -> uint256:\n    return 42\n"
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		tb.Fatalf("failed to write source: %v", err)
	}
	return path
}

// FakeCompiler implements the compiler CLI surface: a positional source
// path, -o <dir> and --overwrite. It returns the process exit code.
func FakeCompiler(args []string, stdout, stderr io.Writer, mode string) int {
	var (
		source    string
		outputDir string
		overwrite bool
	)
	for i := 0; i < len(args); i++ {
		switch arg := args[i]; {
		case arg == "-o" || arg == "--output-dir":
			if i+1 >= len(args) {
				fmt.Fprintln(stderr, "Error: -o requires a directory argument")
				return 2
			}
			i++
			outputDir = args[i]
		case arg == "--overwrite":
			overwrite = true
		case strings.HasPrefix(arg, "-"):
			fmt.Fprintf(stderr, "Error: unexpected argument %q\n", arg)
			return 2
		default:
			source = arg
		}
	}

	switch mode {
	case "interleave":
		for i := 1; i <= 3; i++ {
			fmt.Fprintf(stdout, "out-%d\n", i)
			fmt.Fprintf(stderr, "err-%d\n", i)
		}
		return 3
	case "sleep":
		time.Sleep(time.Hour)
		return 0
	}

	if source == "" {
		fmt.Fprintln(stderr, "Usage: compiler <source> [-o <dir>] [--overwrite]")
		return 2
	}

	code, err := os.ReadFile(source)
	if err != nil {
		fmt.Fprintf(stderr, "Error: cannot read source %q: %v\n", source, err)
		return 1
	}

	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	sum := sha256.Sum256(code)
	binary := hex.EncodeToString(sum[:]) + "\n"
	assembly := fmt.Sprintf("\t.text\n\t.globl\t%s\n%s:\n\tret\n", base, base)

	if outputDir == "" {
		fmt.Fprintf(stdout, "Contract `%s`:\nbytecode: 0x%s", base, binary)
		return 0
	}

	outputs := []struct {
		path    string
		content string
	}{
		{filepath.Join(outputDir, base+FakeBinaryExt), binary},
		{filepath.Join(outputDir, base+FakeAssemblyExt), assembly},
	}

	if !overwrite && mode != "no-protection" {
		for _, out := range outputs {
			if _, err := os.Stat(out.path); err == nil {
				fmt.Fprintf(stderr, "Error: Refusing to overwrite an existing file %q (use --overwrite to force).\n", out.path)
				return 1
			}
		}
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fmt.Fprintf(stderr, "Error: cannot create output directory: %v\n", err)
		return 1
	}
	for _, out := range outputs {
		content := out.content
		if mode == "empty" {
			content = ""
		}
		if err := os.WriteFile(out.path, []byte(content), 0644); err != nil {
			fmt.Fprintf(stderr, "Error: cannot write %q: %v\n", out.path, err)
			return 1
		}
	}

	if mode == "warn" {
		fmt.Fprintln(stderr, "Warning: unused variable in contract")
	}
	fmt.Fprintf(stdout, "Compiler run successful. Artifact(s) can be found in directory %q.\n", outputDir)
	return 0
}
