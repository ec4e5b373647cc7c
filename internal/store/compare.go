package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/cliconform/internal/harness"
)

// StatusChange describes a scenario whose status differs between two runs.
// An empty Before or After means the scenario is absent from that run.
type StatusChange struct {
	Scenario string `json:"scenario"`
	Before   string `json:"before"`
	After    string `json:"after"`
}

// Regression reports whether the change turns a passing scenario into
// anything other than a pass or a skip.
func (c StatusChange) Regression() bool {
	return c.Before == harness.StatusPass && c.After != harness.StatusPass && c.After != harness.StatusSkip
}

// CompareRuns returns the scenarios whose status differs between base and
// head, sorted by scenario name.
func (s *Store) CompareRuns(ctx context.Context, baseID, headID string) ([]StatusChange, error) {
	base, err := s.statuses(ctx, baseID)
	if err != nil {
		return nil, fmt.Errorf("compare runs: %w", err)
	}
	head, err := s.statuses(ctx, headID)
	if err != nil {
		return nil, fmt.Errorf("compare runs: %w", err)
	}

	names := make(map[string]struct{}, len(base)+len(head))
	for name := range base {
		names[name] = struct{}{}
	}
	for name := range head {
		names[name] = struct{}{}
	}

	changes := []StatusChange{}
	for name := range names {
		if base[name] != head[name] {
			changes = append(changes, StatusChange{Scenario: name, Before: base[name], After: head[name]})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Scenario < changes[j].Scenario })
	return changes, nil
}

// statuses maps scenario name to status for one run.
func (s *Store) statuses(ctx context.Context, runID string) (map[string]string, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT scenario, status FROM scenario_results WHERE run_id = ?
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query statuses: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, status string
		if err := rows.Scan(&name, &status); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		out[name] = status
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statuses: %w", err)
	}
	return out, nil
}
