package stageworker

import "fmt"

// Severity classifies how a stage worker error should propagate.
type Severity string

const (
	// SeverityCritical failures fail the stage job outright: the worker's
	// failure path runs (stageStatus=blocked, E_JOB_FAILED published).
	SeverityCritical Severity = "critical"
	// SeverityHigh failures are recorded on the artifact/run but do not
	// block the stage from completing (e.g. a non-essential lookup failed).
	SeverityHigh Severity = "high"
	// SeverityLow failures are logged only; they never reach the run record.
	SeverityLow Severity = "low"
)

// StageError is a structured error a stage worker raises, carrying enough
// context for the run recorder and audit log without losing the original
// cause.
type StageError struct {
	Operation string
	Severity  Severity
	Err       error
	Context   string
}

func (e *StageError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s failed: %s (%s)", e.Operation, e.Err.Error(), e.Context)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Err.Error())
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError constructs a StageError.
func NewStageError(operation string, severity Severity, err error, context string) *StageError {
	return &StageError{Operation: operation, Severity: severity, Err: err, Context: context}
}

// WrapStageError annotates err with the operation that failed, preserving
// the error chain for errors.Is/errors.As.
func WrapStageError(operation string, err error) error {
	return fmt.Errorf("%s: %w", operation, err)
}

// Error handling guidelines for stage workers, mirrored from the pattern
// the orchestrator's upstream validation workflows follow:
//
// CRITICAL: a failure that prevents the stage from producing a usable
// artifact (LLM call exhausted retries, required input missing, write
// gate refused). Fail the job; the stage worker's failure path runs.
//
// HIGH: a failure in a non-essential enrichment (e.g. fetching an optional
// related PR for context). Record it on the artifact but let the stage
// complete.
//
// LOW: a failure in best-effort cleanup (e.g. removing a stale PR comment).
// Log only; never affects run status.
