package workflow

import "github.com/fyrsmithlabs/workflowforge/internal/domain"

// StageDecision is the stage-pipeline counterpart to Decision: gating is
// tracked via Stage/StageStatus, orthogonal to the workflow-level State
// (§4.1, "Stage pipeline"). A zero value means "no stage change".
type StageDecision struct {
	NextStage       domain.Stage
	NextStageStatus domain.StageStatus
	Feedback        string
}

// FullDecision bundles the workflow-level Decision with any StageDecision,
// since a single event can drive both.
type FullDecision struct {
	Decision
	Stage StageDecision
}

func noop(state domain.State, reason string) FullDecision {
	return FullDecision{Decision: Decision{NextState: state, Reason: reason}}
}

// Transition is the pure core of the orchestrator: total, deterministic,
// side-effect-free. Calling it twice with equal arguments always returns
// equal results; it must never read persistent storage or wall-clock time.
func Transition(current domain.State, event Event, ctx Context) FullDecision {
	// Terminal stickiness: every event returns the same state.
	if current.Terminal() {
		return noop(current, "terminal state is sticky")
	}

	// Global override: a blocking policy verdict routes to BLOCKED_POLICY
	// from any non-terminal state, regardless of which state raised it.
	if event.Type == EPolicyEvaluated && event.HasBlocking {
		return FullDecision{Decision: Decision{
			NextState: domain.StateBlockedPolicy,
			Reason:    "policy evaluation reported a blocking violation",
		}}
	}

	switch current {
	case domain.StateIngested:
		return transitionIngested(event, ctx)
	case domain.StatePatchesProposed:
		return transitionPatchesProposed(event, ctx)
	case domain.StateWaitingUserApproval:
		return transitionWaitingUserApproval(event, ctx)
	case domain.StateApplyingPatches:
		return transitionApplyingPatches(event, ctx)
	case domain.StatePROpen:
		return transitionPROpen(event, ctx)
	case domain.StateVerifyingCI:
		return transitionVerifyingCI(event, ctx)
	default:
		return noop(current, "identity: no rule matches this state")
	}
}

func transitionIngested(event Event, ctx Context) FullDecision {
	switch event.Type {
	case EWorkflowCreated:
		return FullDecision{Decision: Decision{
			NextState: domain.StateIngested,
			Enqueue:   []Job{job("workflow", "ingest_context", map[string]interface{}{"workflowId": ctx.WorkflowID})},
			Reason:    "workflow created, enqueuing ingest",
		}}
	case EJobCompleted:
		if event.Stage == "" || event.Stage == "ingest_context" {
			if ctx.HasPatchSets {
				return FullDecision{Decision: Decision{NextState: domain.StatePatchesProposed, Reason: "ingest completed with patch sets"}}
			}
			return FullDecision{Decision: Decision{NextState: domain.StateNeedsHuman, Reason: "ingest completed without patch sets"}}
		}
		return noop(domain.StateIngested, "job completed for unrelated stage")
	case EJobFailed:
		return FullDecision{Decision: Decision{NextState: domain.StateFailed, Reason: "ingest job failed: " + event.Error}}
	default:
		return noop(domain.StateIngested, "identity")
	}
}

// transitionPatchesProposed models "any normalization event": the
// transition derives its decision from Context rather than the event
// payload, so any event received in this state re-evaluates the same
// policy-gating ladder.
func transitionPatchesProposed(event Event, ctx Context) FullDecision {
	if !ctx.HasPatchSets {
		return FullDecision{Decision: Decision{NextState: domain.StateNeedsHuman, Reason: "no patch sets to evaluate"}}
	}
	if !ctx.HasPolicyBeenEvaluated {
		return FullDecision{Decision: Decision{
			NextState: domain.StatePatchesProposed,
			Enqueue:   []Job{job("workflow", "evaluate_policy", map[string]interface{}{"workflowId": ctx.WorkflowID, "patchSetId": ctx.LatestPatchSetID})},
			Reason:    "patch set awaiting policy evaluation",
		}}
	}
	if ctx.HasBlockingPolicyViolations {
		return FullDecision{Decision: Decision{NextState: domain.StateBlockedPolicy, Reason: "policy evaluation found blocking violations"}}
	}
	return FullDecision{Decision: Decision{NextState: domain.StateWaitingUserApproval, Reason: "policy evaluation clean, awaiting approval"}}
}

func transitionWaitingUserApproval(event Event, ctx Context) FullDecision {
	switch event.Type {
	case EApprovalRecorded:
		if ctx.HasBlockingPolicyViolations {
			return FullDecision{Decision: Decision{NextState: domain.StateBlockedPolicy, Reason: "approval recorded but blocking violations present"}}
		}
		if ctx.HasApprovalToApply && ctx.LatestPatchSetID != "" {
			return FullDecision{Decision: Decision{
				NextState: domain.StateApplyingPatches,
				Enqueue:   []Job{job("workflow", "apply_patches", map[string]interface{}{"workflowId": ctx.WorkflowID, "patchSetId": ctx.LatestPatchSetID})},
				Reason:    "approval to apply recorded",
			}}
		}
		return noop(domain.StateWaitingUserApproval, "approval recorded but not yet ready to apply")
	case EPolicyEvaluated:
		if event.HasBlocking {
			return FullDecision{Decision: Decision{NextState: domain.StateBlockedPolicy, Reason: "late policy evaluation found blocking violations"}}
		}
		return noop(domain.StateWaitingUserApproval, "policy evaluation clean")
	default:
		return noop(domain.StateWaitingUserApproval, "identity")
	}
}

func transitionApplyingPatches(event Event, ctx Context) FullDecision {
	switch event.Type {
	case EJobCompleted:
		return FullDecision{Decision: Decision{NextState: domain.StatePROpen, Reason: "patches applied, pull request opened"}}
	case EJobFailed:
		if event.Error == WriteBlockedNoApproval {
			return FullDecision{Decision: Decision{
				NextState: domain.StateBlockedPolicy,
				Reason:    "write gate rejected apply: no recorded approval (safety trip, not a failure)",
			}}
		}
		return FullDecision{Decision: Decision{NextState: domain.StateFailed, Reason: "apply_patches job failed: " + event.Error}}
	default:
		return noop(domain.StateApplyingPatches, "identity")
	}
}

func transitionPROpen(event Event, ctx Context) FullDecision {
	switch event.Type {
	case ECIcompleted:
		if event.Conclusion == "success" {
			return FullDecision{Decision: Decision{NextState: domain.StateDone, Reason: "CI succeeded"}}
		}
		return FullDecision{Decision: Decision{NextState: domain.StateNeedsHuman, Reason: "CI reported a failing conclusion"}}
	case EPRMerged:
		return FullDecision{Decision: Decision{NextState: domain.StateDone, Reason: "pull request merged"}}
	case EPRClosed:
		return FullDecision{Decision: Decision{NextState: domain.StateRejected, Reason: "pull request closed without merge"}}
	case EChangesRequested:
		return FullDecision{Decision: Decision{NextState: domain.StatePROpen, Reason: "changes requested on open pull request"},
			Stage: StageDecision{Feedback: event.Comment}}
	default:
		return noop(domain.StatePROpen, "identity")
	}
}

func transitionVerifyingCI(event Event, ctx Context) FullDecision {
	switch event.Type {
	case ECIcompleted:
		if event.Conclusion == "success" {
			return FullDecision{Decision: Decision{NextState: domain.StateDone, Reason: "CI succeeded"}}
		}
		return FullDecision{Decision: Decision{NextState: domain.StateNeedsHuman, Reason: "CI reported a failing conclusion"}}
	default:
		return noop(domain.StateVerifyingCI, "identity")
	}
}

// TransitionStage computes the stage-pipeline gating decision (§4.1,
// "Stage pipeline"): a worker produces an artifact and sets
// stageStatus=ready, then the orchestrator waits for a human
// E_STAGE_APPROVED carrying the next stage before enqueuing its job. This
// is independent of the workflow-level State machine above and is invoked
// by the orchestrator whenever a stage-scoped event arrives.
func TransitionStage(currentStage domain.Stage, event Event, ctx Context) FullDecision {
	switch event.Type {
	case EStageApproved:
		next := event.NextStage
		if next == "" {
			next = currentStage.Next()
		}
		return FullDecision{
			Decision: Decision{Enqueue: []Job{job("workflow", string(next), map[string]interface{}{"workflowId": ctx.WorkflowID})}},
			Stage:    StageDecision{NextStage: next, NextStageStatus: domain.StageStatusPending},
		}
	case EStageRejected:
		return FullDecision{
			Decision: Decision{NextState: domain.StateRejected, Reason: "stage rejected: " + event.Reason},
			Stage:    StageDecision{NextStageStatus: domain.StageStatusRejected, Feedback: event.Reason},
		}
	case EStageChangesRequested:
		return FullDecision{
			Decision: Decision{Enqueue: []Job{job("workflow", string(currentStage), map[string]interface{}{"workflowId": ctx.WorkflowID})}},
			Stage:    StageDecision{NextStage: currentStage, NextStageStatus: domain.StageStatusNeedsChanges, Feedback: event.Comment},
		}
	default:
		return FullDecision{}
	}
}
