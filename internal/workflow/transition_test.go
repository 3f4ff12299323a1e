package workflow

import (
	"testing"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition_CreateWorkflow(t *testing.T) {
	ctx := Context{WorkflowID: "w1", HasPatchSets: false}
	d := Transition(domain.StateIngested, Event{Type: EWorkflowCreated}, ctx)

	assert.Equal(t, domain.StateIngested, d.NextState)
	require.Len(t, d.Enqueue, 1)
	assert.Equal(t, "ingest_context", d.Enqueue[0].Name)
	assert.Equal(t, "w1", d.Enqueue[0].Payload["workflowId"])
}

func TestTransition_IngestCompletesWithoutPatches(t *testing.T) {
	ctx := Context{HasPatchSets: false}
	d := Transition(domain.StateIngested, Event{Type: EJobCompleted, Stage: "ingest_context"}, ctx)

	assert.Equal(t, domain.StateNeedsHuman, d.NextState)
	assert.Empty(t, d.Enqueue)
}

func TestTransition_IngestJobFailed(t *testing.T) {
	d := Transition(domain.StateIngested, Event{Type: EJobFailed, Error: "boom"}, Context{})
	assert.Equal(t, domain.StateFailed, d.NextState)
}

func TestTransition_PolicyFailBlocksFromAnyNonTerminalState(t *testing.T) {
	for _, s := range []domain.State{domain.StateIngested, domain.StatePatchesProposed, domain.StateWaitingUserApproval, domain.StateApplyingPatches, domain.StatePROpen} {
		d := Transition(s, Event{Type: EPolicyEvaluated, HasBlocking: true}, Context{})
		assert.Equal(t, domain.StateBlockedPolicy, d.NextState, "state %s should route to BLOCKED_POLICY", s)
	}
}

func TestTransition_ApprovalWithoutPolicyEval(t *testing.T) {
	ctx := Context{
		WorkflowID:          "w1",
		HasPatchSets:        true,
		LatestPatchSetID:    "ps1",
		HasApprovalToApply:  true,
		HasBlockingPolicyViolations: false,
	}
	d := Transition(domain.StateWaitingUserApproval, Event{Type: EApprovalRecorded}, ctx)

	assert.Equal(t, domain.StateApplyingPatches, d.NextState)
	require.Len(t, d.Enqueue, 1)
	assert.Equal(t, "apply_patches", d.Enqueue[0].Name)
	assert.Equal(t, "ps1", d.Enqueue[0].Payload["patchSetId"])
}

func TestTransition_WriteBlockedRoutesToBlockedPolicyNotFailed(t *testing.T) {
	d := Transition(domain.StateApplyingPatches, Event{Type: EJobFailed, Error: WriteBlockedNoApproval}, Context{})
	assert.Equal(t, domain.StateBlockedPolicy, d.NextState)
}

func TestTransition_ApplyingPatchesOtherFailureIsFatal(t *testing.T) {
	d := Transition(domain.StateApplyingPatches, Event{Type: EJobFailed, Error: "timeout"}, Context{})
	assert.Equal(t, domain.StateFailed, d.NextState)
}

func TestTransition_CIOutcomes(t *testing.T) {
	d := Transition(domain.StatePROpen, Event{Type: ECIcompleted, Conclusion: "success"}, Context{})
	assert.Equal(t, domain.StateDone, d.NextState)

	d = Transition(domain.StatePROpen, Event{Type: ECIcompleted, Conclusion: "failure"}, Context{})
	assert.Equal(t, domain.StateNeedsHuman, d.NextState)
}

func TestTransition_TerminalStickiness(t *testing.T) {
	events := []Event{
		{Type: EWorkflowCreated}, {Type: EJobCompleted}, {Type: EJobFailed},
		{Type: EApprovalRecorded}, {Type: EPolicyEvaluated, HasBlocking: true},
		{Type: ECIcompleted, Conclusion: "success"},
	}
	for _, term := range []domain.State{domain.StateDone, domain.StateFailed, domain.StateRejected, domain.StateBlockedPolicy, domain.StateNeedsHuman} {
		for _, e := range events {
			d := Transition(term, e, Context{})
			assert.Equal(t, term, d.NextState, "terminal state %s must be sticky against %s", term, e.Type)
			assert.Empty(t, d.Enqueue, "terminal state must never enqueue work")
		}
	}
}

func TestTransition_Purity(t *testing.T) {
	ctx := Context{WorkflowID: "w1", HasPatchSets: true, LatestPatchSetID: "ps1", HasApprovalToApply: true}
	event := Event{Type: EApprovalRecorded}

	d1 := Transition(domain.StateWaitingUserApproval, event, ctx)
	d2 := Transition(domain.StateWaitingUserApproval, event, ctx)

	assert.Equal(t, d1, d2)
}

func TestTransitionStage_ApprovalAdvancesToNext(t *testing.T) {
	ctx := Context{WorkflowID: "w1"}
	d := TransitionStage(domain.StageFeasibility, Event{Type: EStageApproved}, ctx)

	assert.Equal(t, domain.StageArchitecture, d.Stage.NextStage)
	assert.Equal(t, domain.StageStatusPending, d.Stage.NextStageStatus)
	require.Len(t, d.Enqueue, 1)
	assert.Equal(t, string(domain.StageArchitecture), d.Enqueue[0].Name)
}

func TestTransitionStage_ChangesRequestedReenqueuesSameStage(t *testing.T) {
	ctx := Context{WorkflowID: "w1"}
	d := TransitionStage(domain.StagePatches, Event{Type: EStageChangesRequested, Comment: "needs more tests"}, ctx)

	assert.Equal(t, domain.StagePatches, d.Stage.NextStage)
	assert.Equal(t, domain.StageStatusNeedsChanges, d.Stage.NextStageStatus)
	assert.Equal(t, "needs more tests", d.Stage.Feedback)
	require.Len(t, d.Enqueue, 1)
	assert.Equal(t, string(domain.StagePatches), d.Enqueue[0].Name)
}

func TestTransitionStage_Rejected(t *testing.T) {
	d := TransitionStage(domain.StagePatches, Event{Type: EStageRejected, Reason: "out of scope"}, Context{WorkflowID: "w1"})
	assert.Equal(t, domain.StateRejected, d.NextState)
	assert.Equal(t, domain.StageStatusRejected, d.Stage.NextStageStatus)
}
