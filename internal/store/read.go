package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RunNotFoundError is returned when a run ID has no record.
type RunNotFoundError struct {
	ID string
}

func (e *RunNotFoundError) Error() string {
	return fmt.Sprintf("run not found: %s", e.ID)
}

const runColumns = `id, command, compiler, platform, started_at, finished_at, passed, failed, skipped, errored`

// GetRun returns a single run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, &RunNotFoundError{ID: id}
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first. A limit <= 0
// returns all runs.
//
// Returns an empty slice (not nil) if no runs exist.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	// UUIDv7 IDs sort by creation time; id breaks ties within a millisecond.
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ScenarioResults returns every scenario recorded for a run, in recording
// order, each with its steps.
func (s *Store) ScenarioResults(ctx context.Context, runID string) ([]ScenarioRecord, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, seq, scenario, status, skip_reason, error
		FROM scenario_results
		WHERE run_id = ?
		ORDER BY seq ASC, id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query scenario results: %w", err)
	}

	var ids []int64
	records := []ScenarioRecord{}
	for rows.Next() {
		var (
			id  int64
			rec ScenarioRecord
		)
		if err := rows.Scan(&id, &rec.RunID, &rec.Seq, &rec.Scenario, &rec.Status, &rec.SkipReason, &rec.Error); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan scenario result: %w", err)
		}
		ids = append(ids, id)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate scenario results: %w", err)
	}
	// Release the single connection before querying steps.
	rows.Close()

	for i, id := range ids {
		steps, err := s.readSteps(ctx, id)
		if err != nil {
			return nil, err
		}
		records[i].Steps = steps
	}
	return records, nil
}

// readSteps returns the steps of one scenario result in execution order.
func (s *Store) readSteps(ctx context.Context, scenarioResultID int64) ([]StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, name, args, exit_code, output, duration_ms, failures
		FROM step_results
		WHERE scenario_result_id = ?
		ORDER BY seq ASC
	`, scenarioResultID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	steps := []StepRecord{}
	for rows.Next() {
		var (
			step           StepRecord
			args, failures string
			durationMillis int64
		)
		if err := rows.Scan(&step.Seq, &step.Name, &args, &step.ExitCode, &step.Output, &durationMillis, &failures); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		if step.Args, err = unmarshalStrings(args); err != nil {
			return nil, err
		}
		if step.Failures, err = unmarshalStrings(failures); err != nil {
			return nil, err
		}
		step.Duration = time.Duration(durationMillis) * time.Millisecond
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return steps, nil
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run      Run
		started  int64
		finished sql.NullInt64
	)
	if err := row.Scan(&run.ID, &run.Command, &run.Compiler, &run.Platform,
		&started, &finished, &run.Passed, &run.Failed, &run.Skipped, &run.Errored); err != nil {
		return Run{}, err
	}
	run.StartedAt = time.UnixMilli(started).UTC()
	if finished.Valid {
		t := time.UnixMilli(finished.Int64).UTC()
		run.FinishedAt = &t
	}
	return run, nil
}
