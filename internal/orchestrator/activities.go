package orchestrator

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"github.com/fyrsmithlabs/workflowforge/internal/queue"
	"github.com/fyrsmithlabs/workflowforge/internal/store"
	"github.com/fyrsmithlabs/workflowforge/internal/workflow"
)

const instrumentationName = "github.com/fyrsmithlabs/workflowforge/internal/orchestrator"

// Activities bundles the I/O every orchestrator workflow execution needs,
// injected once at worker startup the way jobrun.Activities bundles its DB
// and repo dependencies in the example pack. The pure decision logic in
// internal/workflow never appears here — only loading state, persisting
// it, and enqueueing jobs.
type Activities struct {
	Store    store.Store
	Enqueuer queue.Enqueuer

	tracer trace.Tracer
}

// NewActivities wires Activities with its OTEL tracer; the zero-value
// struct literal used by older call sites still works since tracer() below
// falls back to the global provider.
func NewActivities(st store.Store, enqueuer queue.Enqueuer) *Activities {
	return &Activities{Store: st, Enqueuer: enqueuer, tracer: otel.Tracer(instrumentationName)}
}

func (a *Activities) trc() trace.Tracer {
	if a.tracer != nil {
		return a.tracer
	}
	return otel.Tracer(instrumentationName)
}

// CreateWorkflowRowInput is CreateWorkflowActivity's argument.
type CreateWorkflowRowInput struct {
	WorkflowID            string
	FeatureGoal           string
	BusinessJustification string
	Repos                 []RepoInput
}

// CreateWorkflowActivity inserts the workflow's initial row in state
// INGESTED (§4.1's starting state), before the workflow loop applies
// E_WORKFLOW_CREATED to it.
func (a *Activities) CreateWorkflowActivity(ctx context.Context, in CreateWorkflowRowInput) error {
	ctx, span := a.trc().Start(ctx, "orchestrator.create_workflow")
	defer span.End()

	repos := make([]domain.Repo, len(in.Repos))
	for i, r := range in.Repos {
		repos[i] = domain.Repo{Owner: r.Owner, Name: r.Name, BaseBranch: r.BaseBranch, Role: domain.RepoRole(r.Role)}
	}
	if err := a.Store.CreateWorkflow(ctx, domain.Workflow{
		ID:                    in.WorkflowID,
		State:                 domain.StateIngested,
		FeatureGoal:           in.FeatureGoal,
		BusinessJustification: in.BusinessJustification,
		Repos:                 repos,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// TransitionContextResult is BuildContextActivity's return value: the
// workflow's current state/stage plus the deterministic Context the pure
// transition function needs (§4.5, "build a TransitionContext via
// deterministic queries").
type TransitionContextResult struct {
	State   domain.State
	Stage   domain.Stage
	Context workflow.Context
}

// BuildContextActivity derives the TransitionContext for workflowID by
// querying the store: whether any patch set exists, the latest patch set
// id, whether an apply approval is recorded, whether policy evaluation has
// run and whether it found blocking violations.
func (a *Activities) BuildContextActivity(ctx context.Context, workflowID string) (TransitionContextResult, error) {
	ctx, span := a.trc().Start(ctx, "orchestrator.build_context")
	defer span.End()

	wf, err := a.Store.GetWorkflow(ctx, workflowID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return TransitionContextResult{}, fmt.Errorf("orchestrator: load workflow: %w", err)
	}
	if wf == nil {
		err := fmt.Errorf("orchestrator: workflow %s not found", workflowID)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return TransitionContextResult{}, err
	}

	tc := workflow.Context{WorkflowID: workflowID}

	patchSet, err := a.Store.LatestArtifact(ctx, workflowID, domain.ArtifactPatchSetV1)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return TransitionContextResult{}, fmt.Errorf("orchestrator: latest patch set artifact: %w", err)
	}
	if patchSet != nil {
		tc.HasPatchSets = true
		tc.LatestPatchSetID = patchSet.ID

		hasBlocking, err := a.Store.HasBlockingPolicyViolations(ctx, patchSet.ID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return TransitionContextResult{}, fmt.Errorf("orchestrator: blocking policy violations: %w", err)
		}
		tc.HasBlockingPolicyViolations = hasBlocking

		evaluated, err := a.Store.HasEventOfType(ctx, workflowID, string(workflow.EPolicyEvaluated))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return TransitionContextResult{}, fmt.Errorf("orchestrator: policy evaluated event: %w", err)
		}
		tc.HasPolicyBeenEvaluated = evaluated

		approval, err := a.Store.FindApproval(ctx, workflowID, domain.StagePatches, domain.ApprovalApplyPatches)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return TransitionContextResult{}, fmt.Errorf("orchestrator: find approval: %w", err)
		}
		tc.HasApprovalToApply = approval != nil
	}

	return TransitionContextResult{State: wf.State, Stage: wf.Stage, Context: tc}, nil
}

// PersistDecisionInput is PersistDecisionActivity's argument: the computed
// decision plus the event it was derived from, so the activity can append
// an audit event and enqueue jobs with idempotency keys derived from the
// event.
type PersistDecisionInput struct {
	WorkflowID string
	Event      workflow.Event
	Decision   workflow.FullDecision
	RunID      string // for job idempotency keys; empty for signal-only events
}

// PersistDecisionActivity writes the decision's effects inside one
// per-workflow lock (§4.5: "update state, write WorkflowEvent, enqueue
// jobs" as a single transaction): update State/Stage/StageStatus/Feedback,
// append the WorkflowEvent, then enqueue every job the decision produced.
func (a *Activities) PersistDecisionActivity(ctx context.Context, in PersistDecisionInput) error {
	ctx, span := a.trc().Start(ctx, "orchestrator.persist_decision", trace.WithAttributes(
		attribute.String("event.type", string(in.Event.Type)),
	))
	defer span.End()

	err := a.Store.WithWorkflowLock(ctx, in.WorkflowID, func(ctx context.Context) error {
		d := in.Decision

		if d.Decision.NextState != "" {
			if err := a.Store.UpdateWorkflowState(ctx, in.WorkflowID, d.Decision.NextState, d.Stage.NextStage); err != nil {
				return fmt.Errorf("orchestrator: update workflow state: %w", err)
			}
		} else if d.Stage.NextStage != "" {
			if err := a.Store.UpdateWorkflowState(ctx, in.WorkflowID, "", d.Stage.NextStage); err != nil {
				return fmt.Errorf("orchestrator: update workflow stage: %w", err)
			}
		}
		if d.Stage.NextStageStatus != "" {
			if err := a.Store.SetStageStatus(ctx, in.WorkflowID, d.Stage.NextStageStatus); err != nil {
				return fmt.Errorf("orchestrator: set stage status: %w", err)
			}
		}
		if d.Stage.Feedback != "" {
			if err := a.Store.SetWorkflowFeedback(ctx, in.WorkflowID, d.Stage.Feedback); err != nil {
				return fmt.Errorf("orchestrator: set workflow feedback: %w", err)
			}
		}

		if err := a.Store.AppendEvent(ctx, domain.WorkflowEvent{
			WorkflowID: in.WorkflowID,
			Type:       string(in.Event.Type),
			Payload:    eventPayload(in.Event),
		}); err != nil {
			return fmt.Errorf("orchestrator: append event: %w", err)
		}

		for _, j := range d.Decision.Enqueue {
			key := fmt.Sprintf("%s/%s/%s", in.WorkflowID, j.Name, in.RunID)
			if err := a.Enqueuer.Enqueue(ctx, j, key); err != nil {
				return fmt.Errorf("orchestrator: enqueue %s: %w", j.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func eventPayload(e workflow.Event) map[string]interface{} {
	p := map[string]interface{}{"type": string(e.Type)}
	if e.Stage != "" {
		p["stage"] = string(e.Stage)
	}
	if e.NextStage != "" {
		p["nextStage"] = string(e.NextStage)
	}
	if e.Error != "" {
		p["error"] = e.Error
	}
	if e.Conclusion != "" {
		p["conclusion"] = e.Conclusion
	}
	if e.Comment != "" {
		p["comment"] = e.Comment
	}
	if e.Reason != "" {
		p["reason"] = e.Reason
	}
	if e.Result != nil {
		p["result"] = e.Result
	}
	return p
}
