package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/cliconform/internal/harness"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestResult creates a harness result with one step per exit code.
func createTestResult(name string, exitCodes ...int) *harness.Result {
	r := harness.NewResult(name)
	r.Workspace = "/tmp/ws"
	for i, code := range exitCodes {
		r.Steps = append(r.Steps, harness.StepResult{
			Index:    i,
			Name:     "step",
			Args:     []string{"Contract.vy", "-o", "/tmp/ws"},
			ExitCode: code,
			Output:   "output\n",
			Duration: 15 * time.Millisecond,
		})
	}
	return r
}
