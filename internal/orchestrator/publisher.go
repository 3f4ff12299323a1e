package orchestrator

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	wf "github.com/fyrsmithlabs/workflowforge/internal/workflow"
	"go.temporal.io/sdk/client"
)

// TemporalPublisher signals a running OrchestratorWorkflow execution with
// the event a stage worker just produced (§4.4, "emit an event back to the
// orchestrator"). It satisfies stageworker.Publisher structurally; that
// package is intentionally left with no dependency on this one.
type TemporalPublisher struct {
	Client client.Client
}

func NewTemporalPublisher(c client.Client) *TemporalPublisher {
	return &TemporalPublisher{Client: c}
}

func (p *TemporalPublisher) signal(ctx context.Context, workflowID string, event wf.Event) error {
	if err := p.Client.SignalWorkflow(ctx, workflowID, "", SignalEvent, EventSignal{Event: event}); err != nil {
		return fmt.Errorf("orchestrator: signal %s: %w", workflowID, err)
	}
	return nil
}

func (p *TemporalPublisher) PublishJobCompleted(ctx context.Context, workflowID string, stage domain.Stage, result map[string]interface{}) error {
	return p.signal(ctx, workflowID, wf.Event{Type: wf.EJobCompleted, Stage: stage, Result: result})
}

func (p *TemporalPublisher) PublishJobFailed(ctx context.Context, workflowID string, stage domain.Stage, errMsg string) error {
	return p.signal(ctx, workflowID, wf.Event{Type: wf.EJobFailed, Stage: stage, Error: errMsg})
}

// PublishPolicyEvaluated signals E_POLICY_EVALUATED directly, in addition
// to whatever PublishJobCompleted the policy worker also sends, since the
// transition function's global BLOCKED_POLICY override and
// hasPolicyBeenEvaluated derivation both key off this specific event type
// (§4.1, §4.3) rather than the generic job-completion event.
func (p *TemporalPublisher) PublishPolicyEvaluated(ctx context.Context, workflowID string, hasBlocking bool) error {
	return p.signal(ctx, workflowID, wf.Event{Type: wf.EPolicyEvaluated, HasBlocking: hasBlocking})
}
