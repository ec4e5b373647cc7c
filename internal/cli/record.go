package cli

import (
	"context"
	"log/slog"

	"github.com/roach88/cliconform/internal/harness"
	"github.com/roach88/cliconform/internal/platform"
	"github.com/roach88/cliconform/internal/store"
)

// recorder writes run history when a database is configured. A nil
// *recorder is valid and records nothing.
type recorder struct {
	st     *store.Store
	run    store.Run
	logger *slog.Logger
}

// openRecorder begins a run in the database at path. An empty path
// returns a nil recorder.
func openRecorder(ctx context.Context, path, command, compiler string, logger *slog.Logger) (*recorder, error) {
	if path == "" {
		return nil, nil
	}

	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	run, err := st.BeginRun(ctx, command, compiler, platform.Current().String())
	if err != nil {
		st.Close()
		return nil, err
	}

	logger.Debug("recording run", "run_id", run.ID, "db", path)
	return &recorder{st: st, run: run, logger: logger}, nil
}

func (r *recorder) record(ctx context.Context, name string, result *harness.Result, runErr error) {
	if r == nil {
		return
	}
	if err := r.st.RecordScenario(ctx, r.run.ID, name, result, runErr); err != nil {
		r.logger.Warn("failed to record scenario", "scenario", name, "error", err)
	}
}

func (r *recorder) runID() string {
	if r == nil {
		return ""
	}
	return r.run.ID
}

// close stamps the finish time and closes the database.
func (r *recorder) close(ctx context.Context) {
	if r == nil {
		return
	}
	if err := r.st.FinishRun(ctx, r.run.ID); err != nil {
		r.logger.Warn("failed to finish run", "run_id", r.run.ID, "error", err)
	}
	if err := r.st.Close(); err != nil {
		r.logger.Warn("failed to close database", "error", err)
	}
}
