// Package queue enqueues the jobs a transition decision produces (§6,
// "Queues.enqueue(name, payload, {idempotencyKey})") onto Temporal task
// queues. Each stage job becomes a Temporal workflow execution whose
// workflow ID is the idempotency key, so a duplicate enqueue of the same
// (workflowId, stage, runId) is a no-op rather than a second job.
package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/workflowforge/internal/workflow"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
)

// Enqueuer is the narrow interface internal/orchestrator depends on. It is
// implemented by *TemporalEnqueuer and by fakes in tests.
type Enqueuer interface {
	Enqueue(ctx context.Context, job workflow.Job, idempotencyKey string) error
}

// TemporalEnqueuer dispatches jobs as Temporal workflow executions, one
// task queue per job.Queue, using job.Name as the registered workflow type
// name and idempotencyKey as the workflow ID.
type TemporalEnqueuer struct {
	c client.Client
}

// NewTemporalEnqueuer wraps an already-connected Temporal client. Building
// the client (dialing, retrying until reachable) is main's job.
func NewTemporalEnqueuer(c client.Client) *TemporalEnqueuer {
	return &TemporalEnqueuer{c: c}
}

// Enqueue starts job.Name as a workflow execution on job.Queue's task
// queue, keyed by idempotencyKey. If a workflow with that ID is already
// running or has already completed, Temporal's own dedup returns
// WorkflowExecutionAlreadyStarted, which Enqueue treats as success: the
// orchestrator's re-delivery of an event it already enqueued a job for
// must not produce a second job (§5).
func (e *TemporalEnqueuer) Enqueue(ctx context.Context, job workflow.Job, idempotencyKey string) error {
	opts := client.StartWorkflowOptions{
		ID:        idempotencyKey,
		TaskQueue: job.Queue,
	}
	_, err := e.c.ExecuteWorkflow(ctx, opts, job.Name, job.Payload)
	if err != nil {
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &alreadyStarted) {
			return nil
		}
		return fmt.Errorf("queue: enqueue %s/%s: %w", job.Queue, job.Name, err)
	}
	return nil
}
