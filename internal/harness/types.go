package harness

import "time"

// Status values reported for a scenario.
const (
	StatusPass = "pass"
	StatusFail = "fail"
	StatusSkip = "skip"
)

// StepResult is the observation of one step plus its assertion failures.
type StepResult struct {
	Index    int           `json:"index"`
	Name     string        `json:"name"`
	Args     []string      `json:"args"`
	ExitCode int           `json:"exit_code"`
	Output   string        `json:"output"`
	Duration time.Duration `json:"duration"`
	Failures []string      `json:"failures,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Scenario is the scenario name.
	Scenario string `json:"scenario"`

	// Pass indicates overall success. True if every assertion held.
	Pass bool `json:"pass"`

	// Skipped is set when the platform cannot run the scenario.
	Skipped    bool   `json:"skipped,omitempty"`
	SkipReason string `json:"skip_reason,omitempty"`

	// Steps holds one entry per executed step, in order.
	Steps []StepResult `json:"steps"`

	// Errors contains assertion failure messages across all steps.
	Errors []string `json:"errors,omitempty"`

	// Workspace is the directory the scenario ran in. It no longer
	// exists once Run returns.
	Workspace string `json:"workspace"`

	// Used by Transcript to replace run-specific paths.
	source   string
	compiler string
}

// NewResult creates a new passing result.
func NewResult(scenario string) *Result {
	return &Result{
		Scenario: scenario,
		Pass:     true,
		Steps:    []StepResult{},
		Errors:   []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Skip marks the result as skipped.
func (r *Result) Skip(reason string) {
	r.Skipped = true
	r.SkipReason = reason
}

// Status reports pass, fail or skip.
func (r *Result) Status() string {
	switch {
	case r.Skipped:
		return StatusSkip
	case r.Pass:
		return StatusPass
	default:
		return StatusFail
	}
}
