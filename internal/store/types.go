package store

import (
	"time"

	"github.com/google/uuid"
)

// Run is one recorded invocation of the harness.
type Run struct {
	ID         string     `json:"id"`
	Command    string     `json:"command"`
	Compiler   string     `json:"compiler"`
	Platform   string     `json:"platform"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Passed     int        `json:"passed"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
	Errored    int        `json:"errored"`
}

// ScenarioRecord is the stored outcome of one scenario within a run.
type ScenarioRecord struct {
	RunID      string       `json:"run_id"`
	Seq        int          `json:"seq"`
	Scenario   string       `json:"scenario"`
	Status     string       `json:"status"`
	SkipReason string       `json:"skip_reason,omitempty"`
	Error      string       `json:"error,omitempty"`
	Steps      []StepRecord `json:"steps"`
}

// StepRecord is the stored observation of one step.
type StepRecord struct {
	Seq      int           `json:"seq"`
	Name     string        `json:"name"`
	Args     []string      `json:"args"`
	ExitCode int           `json:"exit_code"`
	Output   string        `json:"output"`
	Duration time.Duration `json:"duration"`
	Failures []string      `json:"failures,omitempty"`
}

// StatusError marks a scenario that aborted with a harness error.
const StatusError = "error"

// NewRunID returns a time-ordered run identifier (UUIDv7).
func NewRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
