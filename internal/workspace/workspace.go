// Package workspace manages isolated scratch directories for conformance scenarios.
//
// Every scenario owns exactly one Workspace. Uniqueness comes from the OS temp
// allocator, so two live workspaces never share a path and no locking is needed.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// DefaultPrefix is the temp directory prefix used when none is given.
const DefaultPrefix = "cliconform-ws-"

// CreationError is returned when the scratch directory cannot be allocated.
type CreationError struct {
	Prefix string
	Err    error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("create workspace %q: %v", e.Prefix, e.Err)
}

func (e *CreationError) Unwrap() error {
	return e.Err
}

// SeedError is returned when a collision file cannot be created.
// Files seeded before the failing one are left in place.
type SeedError struct {
	Name string
	Err  error
}

func (e *SeedError) Error() string {
	return fmt.Sprintf("seed %q: %v", e.Name, e.Err)
}

func (e *SeedError) Unwrap() error {
	return e.Err
}

// Workspace is an ownership-scoped temporary directory.
//
// Thread-safety: Release may be called from several goroutines; the directory
// is removed once.
type Workspace struct {
	path string

	releaseOnce sync.Once
	releaseErr  error
}

// Create allocates a new isolated directory under the OS temp dir.
func Create(prefix string) (*Workspace, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	dir, err := os.MkdirTemp("", prefix+"*")
	if err != nil {
		return nil, &CreationError{Prefix: prefix, Err: err}
	}

	// Resolved so the path matches what a compiler reports after following
	// symlinked temp dirs such as /var on macOS.
	abs, err := filepath.Abs(dir)
	if err == nil {
		abs, err = filepath.EvalSymlinks(abs)
	}
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, &CreationError{Prefix: prefix, Err: err}
	}

	return &Workspace{path: abs}, nil
}

// ForTest creates a workspace whose release is registered with tb.Cleanup,
// so teardown runs even when the test fails or calls FailNow.
func ForTest(tb testing.TB) *Workspace {
	tb.Helper()

	ws, err := Create(DefaultPrefix)
	if err != nil {
		tb.Fatalf("failed to create workspace: %v", err)
	}
	tb.Cleanup(func() {
		if err := ws.Release(); err != nil {
			tb.Errorf("failed to release workspace %s: %v", ws.Path(), err)
		}
	})
	return ws
}

// Path returns the absolute workspace directory.
func (w *Workspace) Path() string {
	return w.path
}

// Join returns a path inside the workspace.
func (w *Workspace) Join(elem ...string) string {
	return filepath.Join(append([]string{w.path}, elem...)...)
}

// Exists reports whether the workspace directory is still present.
func (w *Workspace) Exists() bool {
	info, err := os.Stat(w.path)
	return err == nil && info.IsDir()
}

// Seed creates each named file with zero-length content.
// Names are relative to the workspace; parent directories are created.
func (w *Workspace) Seed(names ...string) error {
	for _, name := range names {
		target, err := w.resolve(name)
		if err != nil {
			return &SeedError{Name: name, Err: err}
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return &SeedError{Name: name, Err: err}
		}

		f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
		if err != nil {
			return &SeedError{Name: name, Err: err}
		}
		if err := f.Close(); err != nil {
			return &SeedError{Name: name, Err: err}
		}
	}
	return nil
}

// Release recursively removes the workspace. Calls after the first are no-ops.
func (w *Workspace) Release() error {
	w.releaseOnce.Do(func() {
		w.releaseErr = os.RemoveAll(w.path)
	})
	return w.releaseErr
}

// resolve maps a seed name to a path that must stay inside the workspace.
func (w *Workspace) resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty file name")
	}
	if filepath.IsAbs(name) {
		rel, err := filepath.Rel(w.path, name)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("path escapes workspace")
		}
		return filepath.Clean(name), nil
	}

	target := filepath.Join(w.path, name)
	rel, err := filepath.Rel(w.path, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace")
	}
	return target, nil
}
