package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/cliconform/internal/harness"
)

// BeginRun inserts a new run and returns it. Totals start at zero and are
// maintained by RecordScenario.
func (s *Store) BeginRun(ctx context.Context, command, compiler, platform string) (Run, error) {
	id, err := NewRunID()
	if err != nil {
		return Run{}, fmt.Errorf("begin run: %w", err)
	}

	run := Run{
		ID:        id,
		Command:   command,
		Compiler:  compiler,
		Platform:  platform,
		StartedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, command, compiler, platform, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, run.Command, run.Compiler, run.Platform, run.StartedAt.UnixMilli())
	if err != nil {
		return Run{}, fmt.Errorf("begin run: %w", err)
	}
	return run, nil
}

// RecordScenario stores a scenario outcome under runID. result may be nil
// when runErr aborted the scenario before it produced one. A scenario with
// a non-nil runErr is recorded with StatusError.
//
// Recording the same scenario twice for a run is an error.
func (s *Store) RecordScenario(ctx context.Context, runID, scenario string, result *harness.Result, runErr error) error {
	status := StatusError
	var skipReason, errText string
	if runErr != nil {
		errText = runErr.Error()
	} else if result != nil {
		status = result.Status()
		skipReason = result.SkipReason
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record scenario: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var seq int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scenario_results WHERE run_id = ?`, runID,
	).Scan(&seq); err != nil {
		return fmt.Errorf("record scenario: next seq: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO scenario_results (run_id, seq, scenario, status, skip_reason, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`, runID, seq, scenario, status, skipReason, errText)
	if err != nil {
		return fmt.Errorf("record scenario %s: %w", scenario, err)
	}
	scenarioID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("record scenario: last insert id: %w", err)
	}

	if result != nil {
		for _, step := range result.Steps {
			args, err := marshalStrings(step.Args)
			if err != nil {
				return fmt.Errorf("record scenario: %w", err)
			}
			failures, err := marshalStrings(step.Failures)
			if err != nil {
				return fmt.Errorf("record scenario: %w", err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO step_results
				(scenario_result_id, seq, name, args, exit_code, output, duration_ms, failures)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, scenarioID, step.Index, step.Name, args, step.ExitCode, step.Output,
				step.Duration.Milliseconds(), failures)
			if err != nil {
				return fmt.Errorf("record step %s: %w", step.Name, err)
			}
		}
	}

	column := map[string]string{
		harness.StatusPass: "passed",
		harness.StatusFail: "failed",
		harness.StatusSkip: "skipped",
		StatusError:        "errored",
	}[status]
	// column comes from the fixed map above, never from input.
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE runs SET %s = %s + 1 WHERE id = ?`, column, column), runID,
	); err != nil {
		return fmt.Errorf("record scenario: update totals: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record scenario: commit: %w", err)
	}
	return nil
}

// FinishRun stamps the run's finish time.
func (s *Store) FinishRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ? WHERE id = ?
	`, time.Now().UTC().UnixMilli(), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run: %w", &RunNotFoundError{ID: runID})
	}
	return nil
}
