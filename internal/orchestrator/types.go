// Package orchestrator is the effectful shell around internal/workflow's
// pure transition function (§4.5). It runs as a long-lived Temporal
// workflow per orchestrated workflow: one OrchestratorWorkflow execution,
// keyed by the workflow id, receives every inbound event as a signal for
// as long as the workflow is open, mirroring the signal/poll loop the
// yungbote-neurobridge-backend example's jobrun.Workflow uses for
// long-running, human-gated jobs.
//
// All I/O — loading the workflow row, deriving the deterministic
// TransitionContext, persisting the decision, enqueueing jobs — happens in
// Activities methods, because Temporal workflow code itself must stay
// deterministic. The pure transition call runs directly inside the
// workflow function: it performs no I/O, so it is safe to call inline
// without an activity hop, the same way the decision logic is kept out of
// version_validation.go's activities and expressed as plain, replayable
// workflow code.
package orchestrator

import "github.com/fyrsmithlabs/workflowforge/internal/workflow"

// WorkflowName is the Temporal workflow type name registered for
// OrchestratorWorkflow.
const WorkflowName = "workflowforge.Orchestrator"

// TaskQueue is the Temporal task queue the orchestrator worker polls.
const TaskQueue = "orchestrator"

// SignalEvent is the name of the Temporal signal carrying a workflow.Event
// into a running OrchestratorWorkflow execution.
const SignalEvent = "workflowforge.event"

// CreateWorkflowInput starts a new orchestrator workflow execution (§6,
// "CreateWorkflow{featureGoal, businessJustification, repos[]}").
type CreateWorkflowInput struct {
	WorkflowID            string
	FeatureGoal           string
	BusinessJustification string
	Repos                 []RepoInput
}

// RepoInput mirrors domain.Repo for the wire-safe workflow input (Temporal
// serializes workflow arguments, so this stays a plain struct rather than
// importing domain types with unexported fields).
type RepoInput struct {
	Owner      string
	Name       string
	BaseBranch string
	Role       string
}

// EventSignal is the payload delivered over SignalEvent.
type EventSignal struct {
	Event workflow.Event
}

// continueAsNewAfterEvents bounds how many signals a single workflow
// execution processes before calling workflow.NewContinueAsNewError, to
// keep Temporal's replay history bounded for workflows that sit open for
// the days a human-gated review can take.
const continueAsNewAfterEvents = 500
