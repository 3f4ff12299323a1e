// Package workflow implements the orchestrator's transition function: a
// pure, deterministic mapping from (state, event, context) to a decision.
// Nothing in this package performs I/O or reads wall-clock time; that
// discipline is what makes the function testable without a running store
// or queue (see internal/orchestrator for the effectful shell that calls
// it).
package workflow

import "github.com/fyrsmithlabs/workflowforge/internal/domain"

// EventType enumerates every event the transition function recognizes.
type EventType string

const (
	EWorkflowCreated        EventType = "E_WORKFLOW_CREATED"
	EJobCompleted           EventType = "E_JOB_COMPLETED"
	EJobFailed              EventType = "E_JOB_FAILED"
	EApprovalRecorded       EventType = "E_APPROVAL_RECORDED"
	EPolicyEvaluated        EventType = "E_POLICY_EVALUATED"
	ECIcompleted            EventType = "E_CI_COMPLETED"
	EPRMerged               EventType = "E_PR_MERGED"
	EPRClosed               EventType = "E_PR_CLOSED"
	EChangesRequested       EventType = "E_CHANGES_REQUESTED"
	EPatchSetRejected       EventType = "E_PATCH_SET_REJECTED"
	EStageApproved          EventType = "E_STAGE_APPROVED"
	EStageRejected          EventType = "E_STAGE_REJECTED"
	EStageChangesRequested  EventType = "E_STAGE_CHANGES_REQUESTED"
)

// WriteBlockedNoApproval is the well-known error string the Write Gate
// raises; the transition function special-cases it in E_JOB_FAILED so it
// routes to BLOCKED_POLICY instead of FAILED.
const WriteBlockedNoApproval = "WRITE_BLOCKED_NO_APPROVAL"

// Event is the input delivered to the transition function. Only the fields
// relevant to EventType are populated; the rest are read from Context.
type Event struct {
	Type        EventType
	Stage       domain.Stage // E_JOB_COMPLETED, E_JOB_FAILED, E_STAGE_* events
	NextStage   domain.Stage // E_STAGE_APPROVED
	Error       string       // E_JOB_FAILED
	Result      map[string]interface{} // E_JOB_COMPLETED
	Conclusion  string       // E_CI_COMPLETED: "success" | "failure"
	Comment     string       // E_CHANGES_REQUESTED, E_STAGE_CHANGES_REQUESTED
	Reason      string       // E_PATCH_SET_REJECTED, E_STAGE_REJECTED
	HasBlocking bool         // E_POLICY_EVALUATED
}

// Context carries the deterministic queries the orchestrator resolves
// before calling Transition. The transition function never derives these
// itself — that would require I/O.
type Context struct {
	WorkflowID                 string
	HasPatchSets                bool
	LatestPatchSetID             string
	HasApprovalToApply           bool
	HasBlockingPolicyViolations  bool
	HasPolicyBeenEvaluated       bool
}

// Job is one unit of work the decision asks the orchestrator to enqueue.
type Job struct {
	Queue   string
	Name    string
	Payload map[string]interface{}
}

// Decision is the total output of Transition: the next state, the jobs to
// enqueue, and a human-readable reason for audit logging.
type Decision struct {
	NextState domain.State
	Enqueue   []Job
	Reason    string
}

func job(queue, name string, payload map[string]interface{}) Job {
	return Job{Queue: queue, Name: name, Payload: payload}
}
