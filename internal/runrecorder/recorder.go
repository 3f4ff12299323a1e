package runrecorder

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"github.com/google/uuid"
)

// Store is the narrow persistence interface the Recorder needs. The
// concrete implementation lives in internal/store; this interface keeps
// the recorder testable with an in-memory fake.
type Store interface {
	InsertRun(ctx context.Context, run domain.WorkflowRun) error
	UpdateRun(ctx context.Context, run domain.WorkflowRun) error
	FindRunsByInputHash(ctx context.Context, inputHash string) ([]domain.WorkflowRun, error)
}

// Recorder implements the Run Recorder (§4.2).
type Recorder struct {
	store Store
	now   func() time.Time
}

// New constructs a Recorder. now defaults to time.Now; tests may override
// it for deterministic duration assertions.
func New(store Store, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{store: store, now: now}
}

// StartRun computes inputHash, persists a running row, and returns its id.
func (r *Recorder) StartRun(ctx context.Context, workflowID, jobName string, inputs map[string]interface{}) (string, error) {
	hash, err := HashInputs(inputs)
	if err != nil {
		return "", fmt.Errorf("hashing run inputs: %w", err)
	}

	run := domain.WorkflowRun{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		JobName:    jobName,
		Status:     domain.RunRunning,
		InputHash:  hash,
		Inputs:     inputs,
		StartedAt:  r.now(),
	}
	if err := r.store.InsertRun(ctx, run); err != nil {
		return "", fmt.Errorf("inserting run record: %w", err)
	}
	return run.ID, nil
}

// CompleteRun marks a run completed with its outputs and duration.
func (r *Recorder) CompleteRun(ctx context.Context, runID string, started time.Time, outputs map[string]interface{}, usage domain.Usage) error {
	ended := r.now()
	run := domain.WorkflowRun{
		ID:         runID,
		Status:     domain.RunCompleted,
		Outputs:    outputs,
		Usage:      usage,
		EndedAt:    ended,
		DurationMs: ended.Sub(started).Milliseconds(),
	}
	return r.store.UpdateRun(ctx, run)
}

// FailRun marks a run failed with errorMsg.
func (r *Recorder) FailRun(ctx context.Context, runID string, started time.Time, errorMsg string) error {
	ended := r.now()
	run := domain.WorkflowRun{
		ID:         runID,
		Status:     domain.RunFailed,
		ErrorMsg:   errorMsg,
		EndedAt:    ended,
		DurationMs: ended.Sub(started).Milliseconds(),
	}
	return r.store.UpdateRun(ctx, run)
}

// FindRunsByInputHash returns every completed run with an identical
// inputHash. Callers may use this as a cache key; the recorder itself does
// not auto-short-circuit on a match (§4.2: "caching is a design option,
// not a guarantee").
func (r *Recorder) FindRunsByInputHash(ctx context.Context, inputHash string) ([]domain.WorkflowRun, error) {
	runs, err := r.store.FindRunsByInputHash(ctx, inputHash)
	if err != nil {
		return nil, err
	}
	completed := make([]domain.WorkflowRun, 0, len(runs))
	for _, run := range runs {
		if run.Status == domain.RunCompleted {
			completed = append(completed, run)
		}
	}
	return completed, nil
}
