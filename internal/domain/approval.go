package domain

import "time"

// ApprovalKind distinguishes an approval to apply a patch set from a plain
// stage-advance approval.
type ApprovalKind string

const (
	ApprovalApplyPatches  ApprovalKind = "apply_patches"
	ApprovalStageApproval ApprovalKind = "stage_approval"
)

// Approval is a human-recorded decision. An approval for a given
// (WorkflowID, Stage) is immutable and consumed by exactly one forward
// transition.
type Approval struct {
	ID         string       `json:"id"`
	WorkflowID string       `json:"workflowId"`
	Stage      Stage        `json:"stage"`
	Kind       ApprovalKind `json:"kind"`
	Reason     string       `json:"reason,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
}

// Severity classifies a PolicyViolation.
type Severity string

const (
	SeverityBlock Severity = "BLOCK"
	SeverityWarn  Severity = "WARN"
)

// PolicyViolation is tied to a PatchSet. The stored set for a PatchSet is
// overwritten atomically on each Gate2 re-evaluation; every row must be
// re-derivable from the PatchSet's diff and the active policy configuration.
type PolicyViolation struct {
	ID         string   `json:"id"`
	PatchSetID string   `json:"patchSetId"`
	Rule       string   `json:"rule"`
	Severity   Severity `json:"severity"`
	File       string   `json:"file"`
	Line       int      `json:"line,omitempty"`
	Message    string   `json:"message"`
	Evidence   string   `json:"evidence,omitempty"`
}

// WorkflowEvent is an append-only audit record, never mutated.
type WorkflowEvent struct {
	ID         string                 `json:"id"`
	WorkflowID string                 `json:"workflowId"`
	Type       string                 `json:"type"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
}

// RunStatus is the lifecycle of a WorkflowRun.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Usage records LLM token/cost counters for a run, when applicable.
type Usage struct {
	InputTokens  int     `json:"inputTokens,omitempty"`
	OutputTokens int     `json:"outputTokens,omitempty"`
	CostUSD      float64 `json:"costUsd,omitempty"`
}

// WorkflowRun is one record per stage execution attempt; the unit of audit
// for the Run Recorder (§4.2).
type WorkflowRun struct {
	ID         string                 `json:"id"`
	WorkflowID string                 `json:"workflowId"`
	JobName    string                 `json:"jobName"`
	Status     RunStatus              `json:"status"`
	InputHash  string                 `json:"inputHash"`
	Inputs     map[string]interface{} `json:"inputs"`
	Outputs    map[string]interface{} `json:"outputs,omitempty"`
	ErrorMsg   string                 `json:"errorMsg,omitempty"`
	Usage      Usage                  `json:"usage,omitempty"`
	StartedAt  time.Time              `json:"startedAt"`
	EndedAt    time.Time              `json:"endedAt,omitempty"`
	DurationMs int64                  `json:"durationMs,omitempty"`
}
