package queue

import (
	"context"
	"sync"

	"github.com/fyrsmithlabs/workflowforge/internal/workflow"
)

// FakeEnqueuer is an in-memory Enqueuer for tests and the stub deployment
// profile (no Temporal configured). It records every job it was asked to
// enqueue and de-dupes by idempotencyKey the same way Temporal's
// WorkflowExecutionAlreadyStarted does for TemporalEnqueuer.
type FakeEnqueuer struct {
	mu   sync.Mutex
	seen map[string]bool
	Jobs []workflow.Job
}

// NewFakeEnqueuer constructs an empty FakeEnqueuer.
func NewFakeEnqueuer() *FakeEnqueuer {
	return &FakeEnqueuer{seen: make(map[string]bool)}
}

func (f *FakeEnqueuer) Enqueue(_ context.Context, job workflow.Job, idempotencyKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen[idempotencyKey] {
		return nil
	}
	f.seen[idempotencyKey] = true
	f.Jobs = append(f.Jobs, job)
	return nil
}
