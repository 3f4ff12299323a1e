package orchestrator

import (
	"time"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	wf "github.com/fyrsmithlabs/workflowforge/internal/workflow"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// OrchestratorWorkflow is one Temporal workflow execution per orchestrated
// workflow (workflow id == Temporal workflow id). It creates the workflow
// row, immediately applies E_WORKFLOW_CREATED, then loops receiving
// SignalEvent until the workflow reaches a terminal state (§4.1's
// Terminal), at which point the execution completes. This mirrors
// jobrun.Workflow's signal/tick loop, adapted from polling a job's status
// to reacting to externally delivered events.
func OrchestratorWorkflow(ctx workflow.Context, input CreateWorkflowInput) error {
	logger := workflow.GetLogger(ctx)

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var a *Activities

	if err := workflow.ExecuteActivity(ctx, a.CreateWorkflowActivity, CreateWorkflowRowInput{
		WorkflowID:            input.WorkflowID,
		FeatureGoal:           input.FeatureGoal,
		BusinessJustification: input.BusinessJustification,
		Repos:                 input.Repos,
	}).Get(ctx, nil); err != nil {
		return err
	}

	sigCh := workflow.GetSignalChannel(ctx, SignalEvent)

	state, terminal, err := applyEvent(ctx, a, input.WorkflowID, wf.Event{Type: wf.EWorkflowCreated})
	if err != nil {
		return err
	}

	processed := 1
	for !terminal {
		var signal EventSignal
		sigCh.Receive(ctx, &signal)

		logger.Info("orchestrator received event", "workflowId", input.WorkflowID, "type", signal.Event.Type)

		state, terminal, err = applyEvent(ctx, a, input.WorkflowID, signal.Event)
		if err != nil {
			return err
		}
		processed++

		if processed >= continueAsNewAfterEvents {
			return workflow.NewContinueAsNewError(ctx, OrchestratorWorkflow, input)
		}
	}

	logger.Info("orchestrator workflow reached terminal state", "workflowId", input.WorkflowID, "state", state)
	return nil
}

// applyEvent builds the TransitionContext, computes the decision (pure,
// inline — no I/O, safe for deterministic workflow code), and persists it.
// It dispatches to workflow.TransitionStage for stage-scoped events and to
// workflow.Transition for every other event, matching how
// internal/workflow documents the two decision functions as orthogonal
// (§4.1).
func applyEvent(ctx workflow.Context, a *Activities, workflowID string, event wf.Event) (domain.State, bool, error) {
	var tcResult TransitionContextResult
	if err := workflow.ExecuteActivity(ctx, a.BuildContextActivity, workflowID).Get(ctx, &tcResult); err != nil {
		return "", false, err
	}

	var decision wf.FullDecision
	switch event.Type {
	case wf.EStageApproved, wf.EStageRejected, wf.EStageChangesRequested:
		decision = wf.TransitionStage(tcResult.Stage, event, tcResult.Context)
	default:
		decision = wf.Transition(tcResult.State, event, tcResult.Context)
	}

	runID := ""
	if info := workflow.GetInfo(ctx); info != nil {
		runID = info.WorkflowExecution.RunID
	}

	if err := workflow.ExecuteActivity(ctx, a.PersistDecisionActivity, PersistDecisionInput{
		WorkflowID: workflowID,
		Event:      event,
		Decision:   decision,
		RunID:      runID,
	}).Get(ctx, nil); err != nil {
		return "", false, err
	}

	nextState := decision.Decision.NextState
	if nextState == "" {
		nextState = tcResult.State
	}
	return nextState, nextState.Terminal(), nil
}
